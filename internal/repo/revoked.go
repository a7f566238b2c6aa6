package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Skotchmaster/userauth/internal/models"
)

var ErrAlreadyRevoked = errors.New("token already revoked")

// Revoke records jti in the ledger. A second revocation of the same jti
// returns ErrAlreadyRevoked and leaves the original row untouched.
func (r *GormRepo) Revoke(ctx context.Context, jti string, at time.Time) error {
	row := models.RevokedToken{JTI: jti, RevokedOn: at.UTC()}
	if err := r.DB.WithContext(ctx).Create(&row).Error; err != nil {
		if isDuplicate(err) {
			return ErrAlreadyRevoked
		}
		return fmt.Errorf("revoke %s: %w", jti, err)
	}
	return nil
}

func (r *GormRepo) IsRevoked(ctx context.Context, jti string) (bool, error) {
	var count int64
	if err := r.DB.WithContext(ctx).Model(&models.RevokedToken{}).
		Where("jti = ?", jti).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("lookup revocation: %w", err)
	}
	return count > 0, nil
}

// PurgeRevokedBefore deletes ledger rows revoked before cutoff.
func (r *GormRepo) PurgeRevokedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tx := r.DB.WithContext(ctx).
		Where("revoked_on < ?", cutoff.UTC()).
		Delete(&models.RevokedToken{})
	if tx.Error != nil {
		return 0, fmt.Errorf("purge revocations: %w", tx.Error)
	}
	return tx.RowsAffected, nil
}

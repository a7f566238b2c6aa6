package models

import "time"

type User struct {
	ID           uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Username     string `gorm:"unique;not null"          json:"username"`
	PasswordHash string `gorm:"not null"                 json:"-"`
}

// RevokedToken is a ledger entry. Rows are inserted once and only removed by compaction.
type RevokedToken struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"     json:"id"`
	JTI       string    `gorm:"size:36;not null;uniqueIndex" json:"jti"`
	RevokedOn time.Time `gorm:"not null;index"               json:"revoked_on"`
}

func All() []any {
	return []any{&User{}, &RevokedToken{}}
}

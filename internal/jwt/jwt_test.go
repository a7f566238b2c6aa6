package jwt

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRawToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		cookie string
		want   string
	}{
		{name: "bearer header", header: "Bearer abc.def.ghi", want: "abc.def.ghi"},
		{name: "lowercase scheme", header: "bearer abc", want: "abc"},
		{name: "wrong scheme", header: "Basic abc", want: ""},
		{name: "header wins over cookie", header: "Bearer fromheader", cookie: "fromcookie", want: "fromheader"},
		{name: "cookie fallback", cookie: "fromcookie", want: "fromcookie"},
		{name: "nothing", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/logout", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: AccessCookie, Value: tt.cookie})
			}
			assert.Equal(t, tt.want, RawToken(req, AccessCookie))
		})
	}
}

func TestNewJTI_Unique(t *testing.T) {
	a, b := NewJTI(), NewJTI()
	assert.NotEqual(t, a, b)
	_, err := uuid.Parse(a)
	require.NoError(t, err)
	assert.Len(t, a, 36)
}

func TestDeleteCookie(t *testing.T) {
	c := DeleteCookie(RefreshCookie, "/")
	assert.Equal(t, -1, c.MaxAge)
	assert.Empty(t, c.Value)
}

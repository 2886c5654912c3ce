package services

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TestIsTokenExpired checks expiry detection across token shapes.
func TestIsTokenExpired(t *testing.T) {
	sign := func(claims jwt.MapClaims) string {
		tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("k"))
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return tok
	}

	testCases := []struct {
		name  string
		token string
		want  bool
	}{
		{
			name:  "opaque token",
			token: "tok-plain-1234",
			want:  false,
		},
		{
			name:  "valid future expiry",
			token: sign(jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()}),
			want:  false,
		},
		{
			name:  "expired",
			token: sign(jwt.MapClaims{"exp": time.Now().Add(-time.Minute).Unix()}),
			want:  true,
		},
		{
			name:  "no exp claim",
			token: sign(jwt.MapClaims{"sub": "guest1"}),
			want:  false,
		},
		{
			name:  "empty",
			token: "",
			want:  false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsTokenExpired(tc.token); got != tc.want {
				t.Errorf("IsTokenExpired = %v, want %v", got, tc.want)
			}
		})
	}
}

package auth

import (
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// tokenTTL 会话凭证有效期。
const tokenTTL = 7 * 24 * time.Hour

// IssueToken 为指定用户签发 HS256 JWT，有效期 7 天。
func IssueToken(userID uint, secret []byte) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatUint(uint64(userID), 10),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(tokenTTL)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

package service

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTClaims 接口访问令牌声明
// 组织ID与角色随令牌下发，请求侧所有数据访问以 OrganizationID 为隔离边界。
type JWTClaims struct {
	OrganizationID uint   `json:"org_id"`
	UserID         uint   `json:"user_id"`
	Role           string `json:"role"`
	jwt.RegisteredClaims
}

// ErrTokenInvalid 令牌无效
var ErrTokenInvalid = errors.New("token invalid")

// GenerateToken 签发访问令牌
func GenerateToken(secretKey string, expireHours int, orgID, userID uint, role string) (string, error) {
	if strings.TrimSpace(secretKey) == "" {
		return "", errors.New("jwt secret missing")
	}
	if orgID == 0 || userID == 0 {
		return "", ErrTokenInvalid
	}
	if expireHours <= 0 {
		expireHours = 24
	}
	now := time.Now()
	claims := JWTClaims{
		OrganizationID: orgID,
		UserID:         userID,
		Role:           strings.TrimSpace(role),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(expireHours) * time.Hour)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secretKey))
}

// ParseToken 解析并校验访问令牌
func ParseToken(secretKey, tokenString string) (*JWTClaims, error) {
	if strings.TrimSpace(secretKey) == "" || strings.TrimSpace(tokenString) == "" {
		return nil, ErrTokenInvalid
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &JWTClaims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(secretKey), nil
	})
	if err != nil || !token.Valid || claims.OrganizationID == 0 {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

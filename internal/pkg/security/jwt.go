package security

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ParseAccessToken 解析访问令牌但不校验签名，签名只有后端能校验，客户端只读取账号与过期时间
func ParseAccessToken(tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return nil, fmt.Errorf("token 解析失败: %w", err)
	}
	return claims, nil
}

// GenerateToken 签发令牌，本地调试登录与测试使用
func GenerateToken(accountID int64, region string, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &AccessClaims{
		AccountID: accountID,
		Region:    region,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "roger",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("签名 Token 失败: %w", err)
	}
	return tokenString, nil
}

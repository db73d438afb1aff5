package security

import (
	"github.com/golang-jwt/jwt/v5"
)

// AccessClaims 后端签发的访问令牌中客户端关心的字段
type AccessClaims struct {
	AccountID int64  `json:"account_id"`
	Region    string `json:"region,omitempty"`
	jwt.RegisteredClaims
}

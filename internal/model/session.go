package model

import "time"

// Session 当前登录会话
type Session struct {
	AccountID    int64     `json:"account_id"`
	DisplayName  string    `json:"display_name"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	Region       string    `json:"region"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Valid 是否处于登录状态
func (s *Session) Valid() bool {
	return s != nil && s.AccountID != 0 && s.AccessToken != ""
}

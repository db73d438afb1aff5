package dto

import "time"

type SignInDTO struct {
	AccessToken  string `json:"access_token" binding:"required"`
	RefreshToken string `json:"refresh_token"`
	DisplayName  string `json:"display_name"`
	Region       string `json:"region" binding:"omitempty,len=2"`
}

type SessionDTO struct {
	AccountID   int64     `json:"account_id"`
	DisplayName string    `json:"display_name"`
	Region      string    `json:"region"`
	ExpiresAt   time.Time `json:"expires_at"`
}

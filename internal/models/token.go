package models

import "time"

// TokenRecord holds the open-banking credentials for one user. There is at
// most one live row per user: a new code exchange or a refresh replaces the
// existing row rather than appending.
type TokenRecord struct {
	ID           int       `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID       int       `json:"user_id" gorm:"uniqueIndex;not null"`
	AccessToken  string    `json:"access_token" gorm:"not null"`
	RefreshToken string    `json:"refresh_token" gorm:"not null"`
	ExpiresIn    int       `json:"expires_in" gorm:"not null"`
	Scope        string    `json:"scope"`
	TokenType    string    `json:"token_type"`
	CreatedAt    time.Time `json:"created_at"`
}

// TableName specifies the table name for TokenRecord
func (TokenRecord) TableName() string {
	return "user_tokens"
}

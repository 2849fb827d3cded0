package model

import "time"

// TrackingCode registers every synthesized engagement code. The primary key is what
// detects a collision between two freshly generated tokens.
type TrackingCode struct {
	Code      string    `gorm:"type:varchar(32);primaryKey" json:"code"`
	ClientKey string    `gorm:"type:varchar(255);not null;index" json:"client_key"`
	CreatedAt time.Time `json:"created_at"`
}

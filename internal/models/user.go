package models

import (
	"time"
)

// User is keyed by the Telegram user id.
type User struct {
	ID               int64  `gorm:"primaryKey;autoIncrement:false"`
	StarBalance      int64  `gorm:"not null;default:0;check:star_balance >= 0"`
	ReferredBy       *int64 `gorm:"index"`
	ReferralCount    int64  `gorm:"not null;default:0"`
	ReferralRewarded bool   `gorm:"not null;default:false"`
	// IncomeRemainder is boosted income below one star, paid with the next collection.
	IncomeRemainder float64 `gorm:"not null;default:0"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

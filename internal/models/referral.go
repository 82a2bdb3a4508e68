package models

import (
	"time"
)

// ReferralTransaction records a referral reward paid to an invited user.
type ReferralTransaction struct {
	ID            uint  `gorm:"primaryKey"`
	ReferrerID    int64 `gorm:"not null;index"`
	InvitedUserID int64 `gorm:"not null;uniqueIndex"`
	Amount        int64 `gorm:"not null"`
	CreatedAt     time.Time
}

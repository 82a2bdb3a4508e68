package models

import (
	"time"
)

type FarmHolding struct {
	ID              int64  `gorm:"primaryKey"`
	OwnerID         int64  `gorm:"not null;index"`
	FarmTypeID      string `gorm:"size:64;not null"`
	IsActive        bool   `gorm:"not null;default:false"`
	LastActivatedAt *time.Time
	LastCollectedAt time.Time `gorm:"not null"`
	CreatedAt       time.Time
}

type NftHolding struct {
	ID         int64     `gorm:"primaryKey"`
	OwnerID    int64     `gorm:"not null;index"`
	NftTypeID  string    `gorm:"size:64;not null"`
	AcquiredAt time.Time `gorm:"not null"`
}

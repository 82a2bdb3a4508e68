package models

import (
	"time"
)

type AuctionStatus string

const (
	AuctionStatusActive AuctionStatus = "active"
	AuctionStatusEnded  AuctionStatus = "ended"
)

// AuctionResult describes how an ended auction was resolved.
type AuctionResult string

const (
	AuctionResultNone   AuctionResult = ""
	AuctionResultSold   AuctionResult = "sold"
	AuctionResultNoBids AuctionResult = "no_bids"
	// AuctionResultUnpaid means the leader could not cover the bid at settlement.
	AuctionResultUnpaid AuctionResult = "unpaid"
)

type Auction struct {
	ID              int64         `gorm:"primaryKey"`
	FarmTypeID      string        `gorm:"size:64;not null"`
	StartingPrice   int64         `gorm:"not null"`
	CurrentBid      int64         `gorm:"not null"`
	CurrentBidderID *int64        `gorm:"index"`
	Status          AuctionStatus `gorm:"size:16;not null;index;default:'active'"`
	Result          AuctionResult `gorm:"size:16"`
	// Escrowed is true while CurrentBid is held from CurrentBidderID's balance.
	Escrowed      bool `gorm:"not null;default:false"`
	AwardedFarmID *int64
	CreatedAt     time.Time
	EndTime       time.Time `gorm:"not null;index"`
	EndedAt       *time.Time
}

package economy

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrUnknownType        = errors.New("unknown type")
	ErrNotFound           = errors.New("not found")
	ErrBidTooLow          = errors.New("bid too low")
	ErrSelfReferral       = errors.New("self referral")
	ErrAlreadyRewarded    = errors.New("referral reward already granted")
	ErrNotReferred        = errors.New("user was not referred")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// BidTooLowError reports the bid that the rejected amount failed to beat.
type BidTooLowError struct {
	Current int64
}

func (e *BidTooLowError) Error() string {
	return fmt.Sprintf("bid too low: current bid is %d", e.Current)
}

func (e *BidTooLowError) Is(target error) bool {
	return target == ErrBidTooLow
}

var domainErrors = []error{
	ErrInsufficientFunds,
	ErrUnknownType,
	ErrNotFound,
	ErrBidTooLow,
	ErrSelfReferral,
	ErrAlreadyRewarded,
	ErrNotReferred,
	ErrInvalidAmount,
}

func isDomain(err error) bool {
	for _, d := range domainErrors {
		if errors.Is(err, d) {
			return true
		}
	}
	return false
}

// classify leaves game outcomes untouched and marks everything else as a
// storage fault the caller may retry.
func classify(err error) error {
	if err == nil || isDomain(err) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
}

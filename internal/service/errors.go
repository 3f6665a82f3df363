package service

import (
	"errors"
	"fmt"
)

// Business-rule errors surfaced to callers. Wrap with fmt.Errorf("%w: …")
// to carry detail; match with errors.Is.
var (
	// ErrValidation means the request was rejected before any write.
	ErrValidation = errors.New("validation failed")

	// ErrInsufficientBalance means the requested payout exceeds the
	// available balance computed inside the same transaction.
	ErrInsufficientBalance = errors.New("insufficient available balance")

	// ErrPendingPayoutExists means the creator already has a payout in
	// status pending.
	ErrPendingPayoutExists = errors.New("a pending payout already exists")

	// ErrNotFound means the referenced order, payout, product or
	// creator does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict means a uniqueness constraint lost a race and the
	// caller should re-read rather than retry the write.
	ErrConflict = errors.New("concurrent write conflict")

	// ErrInternal means storage failed in a way the caller can't act
	// on. The enclosing transaction rolled back, so the ledger and its
	// orders and payouts stay consistent.
	ErrInternal = errors.New("internal persistence error")
)

// wrapInternal tags unexpected storage errors as ErrInternal while
// passing the business-rule errors through untouched.
func wrapInternal(err error) error {
	if err == nil {
		return nil
	}
	for _, sentinel := range []error{
		ErrValidation, ErrInsufficientBalance, ErrPendingPayoutExists,
		ErrNotFound, ErrConflict,
	} {
		if errors.Is(err, sentinel) {
			return err
		}
	}
	return fmt.Errorf("%w: %v", ErrInternal, err)
}

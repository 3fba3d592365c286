package domain

import "time"

// Wallet holds an owner's spendable and reserved credits.
// Balance is what is available; LockedBalance is reserved by in-flight mints.
type Wallet struct {
	OwnerID       string    `json:"ownerId"`
	Balance       int64     `json:"balance"`
	LockedBalance int64     `json:"lockedBalance"`
	Version       int64     `json:"version"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Total returns balance plus locked credits.
func (w *Wallet) Total() int64 {
	return w.Balance + w.LockedBalance
}

// CanAfford reports whether amount is available without touching locked funds.
func (w *Wallet) CanAfford(amount int64) bool {
	return amount >= 0 && w.Balance >= amount
}

package models

import "time"

type EntryKind string

const (
	KindAllocate   EntryKind = "ALLOCATE"
	KindRedeem     EntryKind = "REDEEM"
	KindRefund     EntryKind = "REFUND"
	KindAdjustment EntryKind = "ADJUSTMENT"
)

func ParseEntryKind(s string) (EntryKind, bool) {
	switch k := EntryKind(s); k {
	case KindAllocate, KindRedeem, KindRefund, KindAdjustment:
		return k, true
	}
	return "", false
}

type EntryStatus string

// Committed entries are always COMPLETED; the column exists for exports.
const EntryCompleted EntryStatus = "COMPLETED"

// LedgerEntry is an immutable record of one balance change.
type LedgerEntry struct {
	ID            string         `json:"entry_id"`
	UserID        string         `json:"user_id"`
	Kind          EntryKind      `json:"kind"`
	Amount        int64          `json:"amount"`
	BalanceBefore int64          `json:"balance_before"`
	BalanceAfter  int64          `json:"balance_after"`
	Status        EntryStatus    `json:"status"`
	InitiatedBy   string         `json:"initiated_by"`
	ReferenceID   *string        `json:"reference_id,omitempty"`
	Description   *string        `json:"description,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// SignedAmount is the effect of the entry on the balance.
func (e LedgerEntry) SignedAmount() int64 {
	switch e.Kind {
	case KindRedeem:
		return -e.Amount
	case KindAdjustment:
		if e.BalanceAfter < e.BalanceBefore {
			return -e.Amount
		}
		return e.Amount
	default:
		return e.Amount
	}
}

// Consistent reports whether balance_after == balance_before + signed amount.
func (e LedgerEntry) Consistent() bool {
	return e.Amount > 0 && e.BalanceAfter == e.BalanceBefore+e.SignedAmount()
}

// EntryFilter narrows a history query. From and To are inclusive.
type EntryFilter struct {
	Kind *EntryKind
	From *time.Time
	To   *time.Time
}

func (f EntryFilter) Match(e LedgerEntry) bool {
	if f.Kind != nil && e.Kind != *f.Kind {
		return false
	}
	if f.From != nil && e.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && e.CreatedAt.After(*f.To) {
		return false
	}
	return true
}

type Page struct {
	Offset int
	Limit  int
}

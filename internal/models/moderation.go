package models

import "time"

// Warning is one entry in a user's warning ledger. Its case number is its
// 1-based position, which shifts when earlier warnings are removed.
type Warning struct {
	Reason   string    `json:"reason"`
	IssuedAt time.Time `json:"issued_at"`
	IssuedBy string    `json:"issued_by"`
}

// BlacklistEntry suspends a user from opening or continuing tickets.
type BlacklistEntry struct {
	UserID  string    `json:"user_id"`
	AddedBy string    `json:"added_by"`
	Reason  string    `json:"reason,omitempty"`
	AddedAt time.Time `json:"added_at"`
}

package models

import "time"

type AppealStatus string

const (
	AppealPending  AppealStatus = "pending"
	AppealAccepted AppealStatus = "accepted"
	AppealDenied   AppealStatus = "denied"
)

// Resolved reports whether staff has decided the appeal.
func (s AppealStatus) Resolved() bool {
	return s == AppealAccepted || s == AppealDenied
}

type AppealAnswer struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Appeal is a blacklisted user's request to be allowed back in.
type Appeal struct {
	ID          string         `json:"id"`
	UserID      string         `json:"user_id"`
	ThreadID    string         `json:"thread_id"`
	Answers     []AppealAnswer `json:"answers"`
	Status      AppealStatus   `json:"status"`
	SubmittedAt time.Time      `json:"submitted_at"`
	ResolvedAt  time.Time      `json:"resolved_at,omitempty"`
	ResolvedBy  string         `json:"resolved_by,omitempty"`
}

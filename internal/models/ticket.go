package models

// TicketStatus is the relay state of a ticket thread.
type TicketStatus string

const (
	TicketOpen   TicketStatus = "open"
	TicketClosed TicketStatus = "closed"
)

// Ticket binds one user to one relay thread.
type Ticket struct {
	UserID   string       `json:"user_id"`
	ThreadID string       `json:"thread_id"`
	Status   TicketStatus `json:"status"`
}

func (t Ticket) IsOpen() bool {
	return t.Status == TicketOpen
}

package models

import "time"

// Expense participant payment statuses.
const (
	PaymentPending                 = "pending"
	PaymentPaidWaitingConfirmation = "paid_waiting_confirmation"
	PaymentPaid                    = "paid"
)

// ValidPaymentStatus reports whether s is a known participant status.
func ValidPaymentStatus(s string) bool {
	switch s {
	case PaymentPending, PaymentPaidWaitingConfirmation, PaymentPaid:
		return true
	}
	return false
}

// ExpenseParticipant is one debtor of an expense.
type ExpenseParticipant struct {
	UserID ID     `json:"userId"`
	Name   string `json:"name,omitempty"`
	Status string `json:"status"`
	Paid   bool   `json:"paid"`
}

// Expense is a shared cost scoped to an event.
type Expense struct {
	ID           ID                   `json:"id"`
	EventID      ID                   `json:"eventId"`
	CreatorID    ID                   `json:"creatorId"`
	Title        string               `json:"title"`
	Amount       float64              `json:"amount"`
	PixKey       string               `json:"pixKey,omitempty"`
	Participants []ExpenseParticipant `json:"participants"`
	CreatedAt    time.Time            `json:"createdAt"`
}

// AmountPerPerson splits the amount evenly across participants.
func (e *Expense) AmountPerPerson() float64 {
	if len(e.Participants) == 0 {
		return 0
	}
	return e.Amount / float64(len(e.Participants))
}

// Participant returns the row for userID, or nil.
func (e *Expense) Participant(userID ID) *ExpenseParticipant {
	for i := range e.Participants {
		if e.Participants[i].UserID == userID {
			return &e.Participants[i]
		}
	}
	return nil
}

package services

import (
	"context"
	"strings"

	"meetmap-backend/internal/apperr"
	"meetmap-backend/internal/models"
	"meetmap-backend/internal/repository"

	"github.com/rs/zerolog/log"
)

// ExpenseService is the per-event expense ledger.
type ExpenseService struct {
	clock
	gw *repository.Gateway
}

// NewExpenseService creates a new expense service
func NewExpenseService(gw *repository.Gateway) *ExpenseService {
	return &ExpenseService{gw: gw}
}

// ParticipantInput names a debtor of an expense.
type ParticipantInput struct {
	UserID models.ID `json:"userId"`
	Name   string    `json:"name"`
}

// ExpenseRequest is the payload of expense creation.
type ExpenseRequest struct {
	Title        string             `json:"title"`
	Amount       float64            `json:"amount"`
	PixKey       string             `json:"pixKey"`
	Participants []ParticipantInput `json:"participants"`
	// ParticipantIDs is the short form; names are filled from the profiles.
	ParticipantIDs []models.ID `json:"participantIds"`
}

// ExpenseUpdate edits an expense; nil fields are left alone.
type ExpenseUpdate struct {
	Title        *string             `json:"title"`
	Amount       *float64            `json:"amount"`
	PixKey       *string             `json:"pixKey"`
	Participants *[]ParticipantInput `json:"participants"`
}

// ExpenseView is an expense with its per-person share.
type ExpenseView struct {
	models.Expense
	AmountPerPerson float64 `json:"amountPerPerson"`
}

func viewOf(e models.Expense) ExpenseView {
	return ExpenseView{Expense: e, AmountPerPerson: e.AmountPerPerson()}
}

// List returns the expenses of an event the viewer can see.
func (s *ExpenseService) List(ctx context.Context, viewerID, eventID models.ID) ([]ExpenseView, error) {
	doc, err := s.gw.Read(ctx)
	if err != nil {
		return nil, err
	}
	if err := visibleEvent(doc, eventID, viewerID); err != nil {
		return nil, err
	}
	out := []ExpenseView{}
	for _, e := range doc.Expenses {
		if e.EventID == eventID {
			out = append(out, viewOf(e))
		}
	}
	return out, nil
}

// Add creates an expense on an event with every participant pending.
func (s *ExpenseService) Add(ctx context.Context, creatorID, eventID models.ID, req ExpenseRequest) (*ExpenseView, error) {
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" || req.Amount == 0 {
		return nil, apperr.Validation("title and amount are required")
	}
	if req.Amount < 0 {
		return nil, apperr.Validation("amount must be positive")
	}

	var out ExpenseView
	err := s.gw.Update(ctx, func(doc *models.Document) error {
		if err := visibleEvent(doc, eventID, creatorID); err != nil {
			return err
		}
		expense := models.Expense{
			ID:           newID(),
			EventID:      eventID,
			CreatorID:    creatorID,
			Title:        req.Title,
			Amount:       req.Amount,
			PixKey:       req.PixKey,
			Participants: participantsFrom(withNames(doc, req.Participants, req.ParticipantIDs), nil),
			CreatedAt:    s.Now(),
		}
		doc.Expenses = append(doc.Expenses, expense)
		out = viewOf(expense)
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("expense_id", out.ID.String()).
		Str("event_id", eventID.String()).
		Float64("amount", out.Amount).
		Msg("Expense added")
	return &out, nil
}

// withNames merges the two participant forms and fills blank names from
// the users' display names.
func withNames(doc *models.Document, in []ParticipantInput, ids []models.ID) []ParticipantInput {
	out := make([]ParticipantInput, 0, len(in)+len(ids))
	out = append(out, in...)
	for _, id := range ids {
		out = append(out, ParticipantInput{UserID: id})
	}
	for i := range out {
		if out[i].Name != "" {
			continue
		}
		if u := doc.FindUser(out[i].UserID); u != nil {
			out[i].Name = u.DisplayName()
		}
	}
	return out
}

// participantsFrom builds participant rows, deduplicated by user id.
// Users already present in previous keep their status.
func participantsFrom(in []ParticipantInput, previous []models.ExpenseParticipant) []models.ExpenseParticipant {
	out := []models.ExpenseParticipant{}
	seen := models.IDSet{}
	for _, p := range in {
		if p.UserID == "" || !seen.Add(p.UserID) {
			continue
		}
		row := models.ExpenseParticipant{UserID: p.UserID, Name: p.Name, Status: models.PaymentPending}
		for _, old := range previous {
			if old.UserID == p.UserID {
				row.Status = old.Status
				row.Paid = old.Paid
				if row.Name == "" {
					row.Name = old.Name
				}
			}
		}
		out = append(out, row)
	}
	return out
}

// expenseOf finds an expense of eventID on behalf of actorID. Expenses of
// other events, or of events the actor cannot see, are not found. The
// expense's creator and participants always reach it.
func expenseOf(doc *models.Document, eventID, expenseID, actorID models.ID) (*models.Expense, error) {
	expense := doc.FindExpense(expenseID)
	if expense == nil || expense.EventID != eventID {
		return nil, apperr.NotFound("expense not found")
	}
	if expense.CreatorID == actorID || expense.Participant(actorID) != nil {
		return expense, nil
	}
	if err := visibleEvent(doc, eventID, actorID); err != nil {
		return nil, err
	}
	return expense, nil
}

// Update edits an expense. Only its creator may do so.
func (s *ExpenseService) Update(ctx context.Context, actorID, eventID, expenseID models.ID, upd ExpenseUpdate) (*ExpenseView, error) {
	var out ExpenseView
	err := s.gw.Update(ctx, func(doc *models.Document) error {
		expense, err := expenseOf(doc, eventID, expenseID, actorID)
		if err != nil {
			return err
		}
		if expense.CreatorID != actorID {
			return apperr.Forbidden("only the creator can edit this expense")
		}
		if upd.Title != nil {
			if title := strings.TrimSpace(*upd.Title); title != "" {
				expense.Title = title
			}
		}
		if upd.Amount != nil {
			if *upd.Amount <= 0 {
				return apperr.Validation("amount must be positive")
			}
			expense.Amount = *upd.Amount
		}
		if upd.PixKey != nil {
			expense.PixKey = *upd.PixKey
		}
		if upd.Participants != nil {
			expense.Participants = participantsFrom(withNames(doc, *upd.Participants, nil), expense.Participants)
		}
		out = viewOf(*expense)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// SetParticipantStatus moves one participant along the payment state
// machine:
//
//	pending -> paid_waiting_confirmation   by the participant
//	paid_waiting_confirmation -> paid      by the creator
//	paid_waiting_confirmation -> pending   by the creator
//	paid -> pending                        by the creator
//
// Any other actor is forbidden; any other transition is invalid. A
// rejected request leaves the row unchanged.
func (s *ExpenseService) SetParticipantStatus(ctx context.Context, actorID, eventID, expenseID, participantID models.ID, status string) (*ExpenseView, error) {
	if !models.ValidPaymentStatus(status) {
		return nil, apperr.Validation("invalid status %q", status)
	}

	var out ExpenseView
	err := s.gw.Update(ctx, func(doc *models.Document) error {
		expense, err := expenseOf(doc, eventID, expenseID, actorID)
		if err != nil {
			return err
		}
		row := expense.Participant(participantID)
		if row == nil {
			return apperr.NotFound("participant not found in expense")
		}

		if err := checkTransition(row.Status, status, actorID == participantID, actorID == expense.CreatorID); err != nil {
			return err
		}
		row.Status = status
		row.Paid = status == models.PaymentPaid
		out = viewOf(*expense)
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("expense_id", expenseID.String()).
		Str("user_id", participantID.String()).
		Str("status", status).
		Msg("Expense participant status changed")
	return &out, nil
}

func checkTransition(from, to string, isSelf, isCreator bool) error {
	switch {
	case to == models.PaymentPaidWaitingConfirmation:
		if !isSelf {
			if isCreator {
				return apperr.Validation("invalid status for the creator")
			}
			return apperr.Forbidden("permission denied")
		}
		if from != models.PaymentPending {
			return apperr.Validation("cannot move from %s to %s", from, to)
		}
	case to == models.PaymentPaid || to == models.PaymentPending:
		if !isCreator {
			return apperr.Forbidden("permission denied")
		}
		if to == models.PaymentPaid && from != models.PaymentPaidWaitingConfirmation {
			return apperr.Validation("cannot move from %s to %s", from, to)
		}
		if to == models.PaymentPending && from == models.PaymentPending {
			return apperr.Validation("cannot move from %s to %s", from, to)
		}
	default:
		return apperr.Validation("invalid status %q", to)
	}
	return nil
}

// Delete removes an expense. Anyone who can see the event may delete;
// there is no creator check.
func (s *ExpenseService) Delete(ctx context.Context, actorID, eventID, expenseID models.ID) error {
	err := s.gw.Update(ctx, func(doc *models.Document) error {
		if _, err := expenseOf(doc, eventID, expenseID, actorID); err != nil {
			return err
		}
		for i := range doc.Expenses {
			if doc.Expenses[i].ID == expenseID {
				doc.Expenses = append(doc.Expenses[:i], doc.Expenses[i+1:]...)
				return nil
			}
		}
		return apperr.NotFound("expense not found")
	})
	if err != nil {
		return err
	}

	log.Info().Str("expense_id", expenseID.String()).Str("user_id", actorID.String()).Msg("Expense deleted")
	return nil
}

package services

import (
	"context"
	"sort"
	"strings"

	"meetmap-backend/internal/apperr"
	"meetmap-backend/internal/models"
	"meetmap-backend/internal/repository"

	"github.com/rs/zerolog/log"
)

// seriesRef identifies the siblings of a recurring event: either by an
// explicit series id, or, for legacy rows without one, by creator and type.
type seriesRef struct {
	explicit models.ID
	creator  models.ID
	kind     string
}

func refOf(event *models.Event) (seriesRef, bool) {
	if id, ok := event.ExplicitSeriesID(); ok {
		return seriesRef{explicit: id}, true
	}
	if !event.IsRecurring {
		return seriesRef{}, false
	}
	return seriesRef{creator: event.CreatorID, kind: event.Type}, true
}

func (r seriesRef) matches(e *models.Event) bool {
	id, ok := e.ExplicitSeriesID()
	if r.explicit != "" {
		return ok && id == r.explicit
	}
	return !ok && e.IsRecurring && e.CreatorID == r.creator && e.Type == r.kind
}

func (r seriesRef) members(doc *models.Document) []*models.Event {
	var out []*models.Event
	for i := range doc.Events {
		if r.matches(&doc.Events[i]) {
			out = append(out, &doc.Events[i])
		}
	}
	return out
}

// promote assigns an explicit series id to an inferred group so that later
// edits no longer depend on the creator and type heuristic.
func promote(doc *models.Document, event *models.Event) seriesRef {
	ref, _ := refOf(event)
	if ref.explicit != "" {
		return ref
	}
	for _, e := range ref.members(doc) {
		e.RecurringSeries = &models.RecurringSeries{
			SeriesID:             event.ID,
			ParentEventID:        event.ID,
			CancelledOccurrences: models.IDSet{},
		}
	}
	log.Info().Str("event_id", event.ID.String()).Msg("Legacy series promoted to explicit id")
	return seriesRef{explicit: event.ID}
}

// SeriesPatch is the whitelisted set of fields propagated to occurrences.
type SeriesPatch struct {
	Name             *string          `json:"name"`
	Description      *string          `json:"description"`
	Location         *string          `json:"location"`
	Position         *models.Position `json:"position"`
	MaxAttendees     *int             `json:"maxAttendees"`
	Visibility       *string          `json:"visibility"`
	RequiresApproval *bool            `json:"requiresApproval"`
	Image            *string          `json:"image"`
}

// SeriesListing is the response of ListSeries.
type SeriesListing struct {
	SeriesID       models.ID      `json:"seriesId"`
	Occurrences    []models.Event `json:"occurrences"`
	CancelledCount int            `json:"cancelledCount"`
}

func (s *EventService) seriesTarget(doc *models.Document, id models.ID) (*models.Event, seriesRef, error) {
	event := doc.FindEvent(id)
	if event == nil {
		return nil, seriesRef{}, apperr.NotFound("event not found")
	}
	ref, ok := refOf(event)
	if !ok {
		return nil, seriesRef{}, apperr.Business("event is not recurring")
	}
	return event, ref, nil
}

// EditSeries applies patch to every occurrence of the series that has not
// started yet and returns how many were updated.
func (s *EventService) EditSeries(ctx context.Context, userID, id models.ID, patch SeriesPatch) (int, error) {
	if patch.Visibility != nil && !models.ValidVisibility(*patch.Visibility) {
		return 0, apperr.Validation("invalid visibility %q", *patch.Visibility)
	}

	var updated int
	err := s.gw.Update(ctx, func(doc *models.Document) error {
		event, _, err := s.seriesTarget(doc, id)
		if err != nil {
			return err
		}
		if event.CreatorID != userID {
			return apperr.Forbidden("only the creator can edit the series")
		}

		ref := promote(doc, event)
		now := s.Now()
		for _, e := range ref.members(doc) {
			start, ok := e.StartTime()
			if !ok || !start.After(now) {
				continue
			}
			applySeriesPatch(e, patch)
			e.Version = e.EffectiveVersion() + 1
			e.UpdatedAt = now
			updated++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	log.Info().Str("event_id", id.String()).Int("updated", updated).Msg("Series updated")
	return updated, nil
}

func applySeriesPatch(e *models.Event, p SeriesPatch) {
	if p.Name != nil && strings.TrimSpace(*p.Name) != "" {
		e.Name = strings.TrimSpace(*p.Name)
	}
	if p.Description != nil {
		e.Description = *p.Description
	}
	if p.Location != nil {
		e.Location = *p.Location
	}
	if p.Position != nil {
		pos := *p.Position
		e.Position = &pos
	}
	if p.MaxAttendees != nil {
		e.MaxAttendees = *p.MaxAttendees
	}
	if p.Visibility != nil {
		e.Visibility = *p.Visibility
	}
	if p.RequiresApproval != nil {
		e.RequiresApproval = *p.RequiresApproval
	}
	if p.Image != nil {
		e.Image = *p.Image
	}
}

// CancelOccurrence marks one occurrence cancelled and records it in the
// series' cancelled list. Cancelling twice is a no-op.
func (s *EventService) CancelOccurrence(ctx context.Context, userID, id models.ID) error {
	err := s.gw.Update(ctx, func(doc *models.Document) error {
		event, _, err := s.seriesTarget(doc, id)
		if err != nil {
			return err
		}
		if event.CreatorID != userID {
			return apperr.Forbidden("only the creator can cancel occurrences")
		}

		ref := promote(doc, event)
		for _, e := range ref.members(doc) {
			e.RecurringSeries.CancelledOccurrences.Add(id)
		}
		if event.Cancelled {
			return nil
		}
		event.Cancelled = true
		event.Version = event.EffectiveVersion() + 1
		event.UpdatedAt = s.Now()
		return nil
	})
	if err != nil {
		return err
	}

	log.Info().Str("event_id", id.String()).Msg("Occurrence cancelled")
	return nil
}

// ListSeries returns every occurrence of the event's series in start order.
func (s *EventService) ListSeries(ctx context.Context, viewer, id models.ID) (*SeriesListing, error) {
	doc, err := s.gw.Read(ctx)
	if err != nil {
		return nil, err
	}
	event, ref, err := s.seriesTarget(doc, id)
	if err != nil {
		return nil, err
	}
	if !canView(doc, event, viewer) {
		return nil, apperr.NotFound("event not found")
	}

	listing := &SeriesListing{SeriesID: ref.explicit, Occurrences: []models.Event{}}
	if listing.SeriesID == "" {
		listing.SeriesID = event.ID
	}
	for _, e := range ref.members(doc) {
		occ := *e
		refreshAttendees(doc, &occ)
		listing.Occurrences = append(listing.Occurrences, occ)
		if occ.Cancelled {
			listing.CancelledCount++
		}
	}
	sort.SliceStable(listing.Occurrences, func(i, j int) bool {
		a, okA := listing.Occurrences[i].StartTime()
		b, okB := listing.Occurrences[j].StartTime()
		if okA != okB {
			return okA
		}
		return a.Before(b)
	})
	return listing, nil
}

// JoinSeries joins every future, non-cancelled occurrence of the series and
// returns how many occurrences changed state.
func (s *EventService) JoinSeries(ctx context.Context, userID, id models.ID) (int, error) {
	var (
		joined int
		box    outbox
	)
	err := s.gw.Update(ctx, func(doc *models.Document) error {
		event, ref, err := s.seriesTarget(doc, id)
		if err != nil {
			return err
		}
		if !canJoin(doc, event, userID) {
			return apperr.NotFound("event not found")
		}
		now := s.Now()
		for _, e := range ref.members(doc) {
			start, ok := e.StartTime()
			if !ok || !start.After(now) || e.Cancelled {
				continue
			}
			already := e.AttendeeIDs.Contains(userID)
			if _, changed := s.joinLocked(doc, e, userID, &box); changed && !already {
				joined++
			}
		}
		if joined == 0 {
			return repository.ErrSkipSave
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.notifications.flush(box)

	log.Info().Str("event_id", id.String()).Str("user_id", userID.String()).Int("joined", joined).Msg("Series joined")
	return joined, nil
}

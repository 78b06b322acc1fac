package services

import (
	"context"
	"strings"
	"time"

	"meetmap-backend/internal/apperr"
	"meetmap-backend/internal/models"
	"meetmap-backend/internal/repository"
)

// Search scopes.
const (
	SearchAll    = "all"
	SearchEvents = "events"
	SearchUsers  = "users"
)

// SearchService runs the combined event and user search.
type SearchService struct {
	clock
	gw *repository.Gateway
}

// NewSearchService creates a new search service
func NewSearchService(gw *repository.Gateway) *SearchService {
	return &SearchService{gw: gw}
}

// SearchFilters narrow the event results.
type SearchFilters struct {
	EventType string     `json:"eventType"`
	DateFrom  *time.Time `json:"dateFrom"`
	DateTo    *time.Time `json:"dateTo"`
}

// SearchQuery is one search request.
type SearchQuery struct {
	Query   string
	Type    string
	Filters SearchFilters
}

// SearchResults holds the matches of a search.
type SearchResults struct {
	Events []models.Event      `json:"events"`
	Users  []models.PublicUser `json:"users"`
}

// Search matches events by name, description or location and users by
// name, username or bio, case-insensitively. Anything in a block
// relationship with viewer is left out. Authenticated searches are
// recorded in the viewer's history.
func (s *SearchService) Search(ctx context.Context, viewer models.ID, q SearchQuery) (*SearchResults, error) {
	query := strings.ToLower(strings.TrimSpace(q.Query))
	if q.Type == "" {
		q.Type = SearchAll
	}
	switch q.Type {
	case SearchAll, SearchEvents, SearchUsers:
	default:
		return nil, apperr.Validation("type must be all, events or users")
	}

	res := &SearchResults{Events: []models.Event{}, Users: []models.PublicUser{}}
	if query == "" {
		return res, nil
	}

	err := s.gw.Update(ctx, func(doc *models.Document) error {
		if q.Type == SearchAll || q.Type == SearchEvents {
			for i := range doc.Events {
				e := doc.Events[i]
				if !matchesAny(query, e.Name, e.Description, e.Location) {
					continue
				}
				if e.Hidden || !canView(doc, &e, viewer) || !q.Filters.accepts(&e) {
					continue
				}
				refreshAttendees(doc, &e)
				res.Events = append(res.Events, e)
			}
		}
		if q.Type == SearchAll || q.Type == SearchUsers {
			for i := range doc.Users {
				u := &doc.Users[i]
				if !matchesAny(query, u.Name, u.Username, u.Bio) {
					continue
				}
				if viewer != "" && doc.Blocked(viewer, u.ID) {
					continue
				}
				res.Users = append(res.Users, u.PublicFor(viewer))
			}
		}

		if viewer == "" {
			return repository.ErrSkipSave
		}
		user := doc.FindUser(viewer)
		if user == nil {
			return repository.ErrSkipSave
		}
		user.PushSearch(models.SearchEntry{Query: query, Type: q.Type, Timestamp: s.Now()})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (f SearchFilters) accepts(e *models.Event) bool {
	if f.EventType != "" && e.Type != f.EventType {
		return false
	}
	if f.DateFrom == nil && f.DateTo == nil {
		return true
	}
	start, ok := e.StartTime()
	if !ok {
		return false
	}
	if f.DateFrom != nil && start.Before(*f.DateFrom) {
		return false
	}
	if f.DateTo != nil && start.After(*f.DateTo) {
		return false
	}
	return true
}

func matchesAny(query string, fields ...string) bool {
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), query) {
			return true
		}
	}
	return false
}

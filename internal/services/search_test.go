package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"meetmap-backend/internal/apperr"
	"meetmap-backend/internal/models"
)

func TestSearch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ana, _ := f.register(t, "ana@example.com", "Ana Runner")
	bob, _ := f.register(t, "bob@example.com", "Bob")
	cid, _ := f.register(t, "cid@example.com", "Cid Runner")

	f.createEvent(t, ana, CreateEventRequest{Name: "Morning run", Type: "sport"}, f.now.Add(time.Hour))
	f.createEvent(t, ana, CreateEventRequest{Name: "Secret run", Visibility: models.VisibilityInviteOnly}, f.now.Add(time.Hour))
	f.createEvent(t, bob, CreateEventRequest{Name: "Board games", Location: "Runner's cafe"}, f.now.Add(48*time.Hour))

	if err := f.users.Block(ctx, cid, ana); err != nil {
		t.Fatalf("Block: %v", err)
	}

	tests := []struct {
		name       string
		viewer     models.ID
		query      SearchQuery
		wantEvents int
		wantUsers  int
	}{
		{"events and users", bob, SearchQuery{Query: "RUN"}, 2, 2},
		{"events only", bob, SearchQuery{Query: "run", Type: SearchEvents}, 2, 0},
		{"type filter", bob, SearchQuery{Query: "run", Filters: SearchFilters{EventType: "sport"}}, 1, 2},
		{"blocked viewer", cid, SearchQuery{Query: "run"}, 1, 1},
		{"creator sees invite-only", ana, SearchQuery{Query: "secret"}, 1, 0},
		{"anonymous", "", SearchQuery{Query: "run", Type: SearchEvents}, 2, 0},
		{"empty query", bob, SearchQuery{Query: "  "}, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := f.search.Search(ctx, tt.viewer, tt.query)
			if err != nil {
				t.Fatalf("Search: %v", err)
			}
			if len(res.Events) != tt.wantEvents || len(res.Users) != tt.wantUsers {
				t.Errorf("got %d events and %d users, want %d and %d",
					len(res.Events), len(res.Users), tt.wantEvents, tt.wantUsers)
			}
		})
	}

	_, err := f.search.Search(ctx, bob, SearchQuery{Query: "run", Type: "places"})
	wantKind(t, err, apperr.KindValidation)
}

func TestSearchHistoryIsCapped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ana, _ := f.register(t, "ana@example.com", "Ana")

	for i := 0; i < models.MaxSearchHistory+3; i++ {
		if _, err := f.search.Search(ctx, ana, SearchQuery{Query: fmt.Sprintf("q%d", i)}); err != nil {
			t.Fatalf("Search: %v", err)
		}
	}

	history, err := f.users.SearchHistory(ctx, ana)
	if err != nil {
		t.Fatalf("SearchHistory: %v", err)
	}
	if len(history) != models.MaxSearchHistory {
		t.Fatalf("history length = %d", len(history))
	}
	if history[0].Query != fmt.Sprintf("q%d", models.MaxSearchHistory+2) {
		t.Errorf("newest entry = %q", history[0].Query)
	}
}

func TestPosts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ana, _ := f.register(t, "ana@example.com", "Ana")
	bob, _ := f.register(t, "bob@example.com", "Bob")

	_, err := f.posts.Create(ctx, ana, CreatePostRequest{Text: "   "})
	wantKind(t, err, apperr.KindValidation)

	post, err := f.posts.Create(ctx, ana, CreatePostRequest{Text: "hello"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	like, err := f.posts.ToggleLike(ctx, bob, post.ID)
	if err != nil || !like.Liked || like.Likes != 1 {
		t.Fatalf("ToggleLike = %+v, %v", like, err)
	}
	like, err = f.posts.ToggleLike(ctx, bob, post.ID)
	if err != nil || like.Liked || like.Likes != 0 {
		t.Fatalf("second ToggleLike = %+v, %v", like, err)
	}

	c, err := f.posts.Comment(ctx, bob, post.ID, "nice")
	if err != nil {
		t.Fatalf("Comment: %v", err)
	}
	if c.Comments != 1 || c.Comment.Text != "nice" {
		t.Errorf("Comment = %+v", c)
	}

	if err := f.users.Block(ctx, bob, ana); err != nil {
		t.Fatalf("Block: %v", err)
	}
	feed, err := f.posts.List(ctx, bob)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(feed) != 0 {
		t.Errorf("feed shows %d posts of a blocked author", len(feed))
	}
}

package services

import (
	"context"
	"testing"
	"time"

	"meetmap-backend/internal/apperr"
	"meetmap-backend/internal/models"
)

func TestCreateEventValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ana, _ := f.register(t, "ana@example.com", "Ana")
	start := f.now.Add(time.Hour)
	before := start.Add(-time.Minute)

	tests := []struct {
		name string
		req  CreateEventRequest
	}{
		{"missing name", CreateEventRequest{Name: "  "}},
		{"unknown visibility", CreateEventRequest{Name: "x", Visibility: "secret"}},
		{"ends before start", CreateEventRequest{Name: "x", StartsAt: &start, EndsAt: &before}},
		{"recurrence without start", CreateEventRequest{Name: "x", Recurrence: &Recurrence{Frequency: "weekly", Count: 3}}},
		{"recurrence too long", CreateEventRequest{Name: "x", StartsAt: &start, Recurrence: &Recurrence{Frequency: "weekly", Count: 53}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.events.Create(ctx, ana, tt.req)
			wantKind(t, err, apperr.KindValidation)
		})
	}
}

func TestCreateEventDefaults(t *testing.T) {
	f := newFixture(t)
	ana, _ := f.register(t, "ana@example.com", "Ana")

	e := f.createEvent(t, ana, CreateEventRequest{Name: "Picnic", IsRecurring: true}, f.now.Add(time.Hour))
	if e.Version != 1 || e.Visibility != models.VisibilityPublic {
		t.Errorf("version %d visibility %q", e.Version, e.Visibility)
	}
	if id, ok := e.ExplicitSeriesID(); !ok || id != e.ID {
		t.Errorf("recurring event series id = %q, %v", id, ok)
	}
}

func TestJoinWithApproval(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	creator, _ := f.register(t, "ana@example.com", "Ana")
	guest, _ := f.register(t, "bob@example.com", "Bob")
	other, _ := f.register(t, "cid@example.com", "Cid")

	e := f.createEvent(t, creator, CreateEventRequest{RequiresApproval: true}, f.now.Add(24*time.Hour))

	for i := 0; i < 2; i++ {
		res, err := f.events.Join(ctx, guest, e.ID)
		if err != nil {
			t.Fatalf("Join: %v", err)
		}
		if res.Status != JoinStatusPending || res.Event != nil {
			t.Fatalf("Join #%d = %+v, want pending", i+1, res)
		}
	}

	stored := f.doc(t).FindEvent(e.ID)
	if len(stored.PendingRequestIDs) != 1 || stored.AttendeeIDs.Contains(guest) {
		t.Fatalf("pending %v attendees %v", stored.PendingRequestIDs, stored.AttendeeIDs)
	}

	notes, _ := f.notifications.List(ctx, creator)
	if len(notes) != 1 || notes[0].Kind != NotifyJoinRequest || notes[0].EventID != e.ID {
		t.Errorf("creator notifications = %+v", notes)
	}

	_, err := f.events.Approve(ctx, other, e.ID, guest)
	wantKind(t, err, apperr.KindForbidden)

	approved, err := f.events.Approve(ctx, creator, e.ID, guest)
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if !approved.AttendeeIDs.Contains(guest) || approved.PendingRequestIDs.Contains(guest) {
		t.Errorf("after approve: attendees %v pending %v", approved.AttendeeIDs, approved.PendingRequestIDs)
	}
	if approved.Attendees != 1 || len(approved.AttendeesList) != 1 || approved.AttendeesList[0].Name != "Bob" {
		t.Errorf("attendee projection = %d %+v", approved.Attendees, approved.AttendeesList)
	}

	notes, _ = f.notifications.List(ctx, guest)
	if len(notes) != 1 || notes[0].Kind != NotifyApproved {
		t.Errorf("guest notifications = %+v", notes)
	}

	again, err := f.events.Approve(ctx, creator, e.ID, other)
	if err != nil {
		t.Fatalf("Approve without request: %v", err)
	}
	if again.AttendeeIDs.Contains(other) {
		t.Error("approving a user without a request added them")
	}

	parts, err := f.events.Participations(ctx, guest, ParticipationFilter{})
	if err != nil {
		t.Fatalf("Participations: %v", err)
	}
	if parts.Stats.Total != 1 || parts.Stats.Approved != 1 || parts.Participations[0].Event.ID != e.ID {
		t.Errorf("participations = %+v", parts)
	}

	res, err := f.events.Join(ctx, guest, e.ID)
	if err != nil {
		t.Fatalf("Join after approval: %v", err)
	}
	if res.Status != JoinStatusJoined {
		t.Errorf("Join after approval = %s", res.Status)
	}
}

func TestJoinRejectsPastAndCancelledEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	creator, _ := f.register(t, "ana@example.com", "Ana")
	guest, _ := f.register(t, "bob@example.com", "Bob")

	past := f.createEvent(t, creator, CreateEventRequest{}, f.now.Add(-48*time.Hour))
	_, err := f.events.Join(ctx, guest, past.ID)
	wantKind(t, err, apperr.KindBusiness)

	pastRecurring := f.createEvent(t, creator, CreateEventRequest{IsRecurring: true}, f.now.Add(-48*time.Hour))
	if _, err := f.events.Join(ctx, guest, pastRecurring.ID); err != nil {
		t.Errorf("recurring events accept joins regardless of date: %v", err)
	}

	future := f.createEvent(t, creator, CreateEventRequest{IsRecurring: true}, f.now.Add(48*time.Hour))
	if err := f.events.CancelOccurrence(ctx, creator, future.ID); err != nil {
		t.Fatalf("CancelOccurrence: %v", err)
	}
	_, err = f.events.Join(ctx, guest, future.ID)
	wantKind(t, err, apperr.KindBusiness)
}

func TestEditVersionConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	creator, _ := f.register(t, "ana@example.com", "Ana")
	other, _ := f.register(t, "bob@example.com", "Bob")
	e := f.createEvent(t, creator, CreateEventRequest{Name: "Picnic"}, f.now.Add(time.Hour))

	v1, first, second := 1, "Picnic in the park", "Picnic at the beach"

	_, err := f.events.Edit(ctx, other, e.ID, EventPatch{Name: &first})
	wantKind(t, err, apperr.KindForbidden)

	edited, err := f.events.Edit(ctx, creator, e.ID, EventPatch{Version: &v1, Name: &first})
	if err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if edited.Version != 2 || edited.Name != first {
		t.Fatalf("edited = version %d name %q", edited.Version, edited.Name)
	}

	_, err = f.events.Edit(ctx, creator, e.ID, EventPatch{Version: &v1, Name: &second})
	wantKind(t, err, apperr.KindConflict)
	appErr, _ := apperr.As(err)
	conflict, ok := appErr.Current.(*VersionConflict)
	if !ok {
		t.Fatalf("conflict carries %T", appErr.Current)
	}
	if conflict.CurrentVersion != 2 || conflict.ClientVersion != 1 || conflict.CurrentEvent.Name != first {
		t.Errorf("conflict = %+v", conflict)
	}

	stored := f.doc(t).FindEvent(e.ID)
	if stored.Name != first || stored.Version != 2 {
		t.Errorf("rejected edit changed the event: %q v%d", stored.Name, stored.Version)
	}

	edited, err = f.events.Edit(ctx, creator, e.ID, EventPatch{Name: &second})
	if err != nil {
		t.Fatalf("Edit without version: %v", err)
	}
	if edited.Version != 3 {
		t.Errorf("version = %d, want 3", edited.Version)
	}
}

func TestCheckIn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	creator, _ := f.register(t, "ana@example.com", "Ana")
	guest, _ := f.register(t, "bob@example.com", "Bob")
	e := f.createEvent(t, creator, CreateEventRequest{}, f.now.Add(time.Hour))
	const photo = "https://cdn.example.com/uploads/bob/1.jpg"

	_, err := f.events.CheckIn(ctx, guest, e.ID, photo)
	wantKind(t, err, apperr.KindBusiness)

	if _, err := f.events.Join(ctx, guest, e.ID); err != nil {
		t.Fatalf("Join: %v", err)
	}

	_, err = f.events.CheckIn(ctx, guest, e.ID, "")
	wantKind(t, err, apperr.KindValidation)

	_, err = f.events.CheckIn(ctx, guest, e.ID, photo)
	wantKind(t, err, apperr.KindBusiness)

	f.advance(90 * time.Minute)
	res, err := f.events.CheckIn(ctx, guest, e.ID, photo)
	if err != nil {
		t.Fatalf("CheckIn: %v", err)
	}
	if !res.OK || res.Participation.Status != models.ParticipationCheckedIn || res.Participation.CheckedInAt == nil {
		t.Errorf("CheckIn = %+v", res)
	}

	media := f.doc(t).EventMedia[e.ID]
	if len(media) != 1 || !media[0].IsCheckIn || media[0].PhotoURL != photo || media[0].AuthorID != guest {
		t.Errorf("media = %+v", media)
	}
}

func TestEventVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	creator, _ := f.register(t, "ana@example.com", "Ana")
	friend, _ := f.register(t, "bob@example.com", "Bob")
	stranger, _ := f.register(t, "cid@example.com", "Cid")

	if _, err := f.users.Follow(ctx, friend, creator); err != nil {
		t.Fatalf("Follow: %v", err)
	}

	start := f.now.Add(time.Hour)
	public := f.createEvent(t, creator, CreateEventRequest{Name: "Public"}, start)
	friends := f.createEvent(t, creator, CreateEventRequest{Name: "Friends", Visibility: models.VisibilityFriends}, start)
	invite := f.createEvent(t, creator, CreateEventRequest{Name: "Invite", Visibility: models.VisibilityInviteOnly}, start)

	visible := func(viewer models.ID) map[models.ID]bool {
		t.Helper()
		events, err := f.events.List(ctx, viewer)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		out := map[models.ID]bool{}
		for _, e := range events {
			out[e.ID] = true
		}
		return out
	}

	tests := []struct {
		name   string
		viewer models.ID
		want   map[models.ID]bool
	}{
		{"anonymous", "", map[models.ID]bool{public.ID: true}},
		{"creator", creator, map[models.ID]bool{public.ID: true, friends.ID: true, invite.ID: true}},
		{"follower", friend, map[models.ID]bool{public.ID: true, friends.ID: true}},
		{"stranger", stranger, map[models.ID]bool{public.ID: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := visible(tt.viewer)
			if len(got) != len(tt.want) {
				t.Fatalf("visible = %v, want %v", got, tt.want)
			}
			for id := range tt.want {
				if !got[id] {
					t.Errorf("event %s not visible", id)
				}
			}
		})
	}

	if err := f.users.Block(ctx, stranger, creator); err != nil {
		t.Fatalf("Block: %v", err)
	}
	if got := visible(stranger); len(got) != 0 {
		t.Errorf("blocked creator's events visible: %v", got)
	}
	_, err := f.events.Get(ctx, stranger, public.ID)
	wantKind(t, err, apperr.KindNotFound)
}

func TestStrangerCanJoinAnyVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	creator, _ := f.register(t, "ana@example.com", "Ana")
	stranger, _ := f.register(t, "cid@example.com", "Cid")
	start := f.now.Add(24 * time.Hour)

	tests := []struct {
		name     string
		req      CreateEventRequest
		want     string
		attendee bool
	}{
		{"public", CreateEventRequest{}, JoinStatusJoined, true},
		{"friends", CreateEventRequest{Visibility: models.VisibilityFriends}, JoinStatusJoined, true},
		{"invite-only", CreateEventRequest{Visibility: models.VisibilityInviteOnly}, JoinStatusJoined, true},
		{"invite-only with approval", CreateEventRequest{Visibility: models.VisibilityInviteOnly, RequiresApproval: true}, JoinStatusPending, false},
		{"friends with approval", CreateEventRequest{Visibility: models.VisibilityFriends, RequiresApproval: true}, JoinStatusPending, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := f.createEvent(t, creator, tt.req, start)
			res, err := f.events.Join(ctx, stranger, e.ID)
			if err != nil {
				t.Fatalf("Join: %v", err)
			}
			if res.Status != tt.want {
				t.Errorf("status = %q, want %q", res.Status, tt.want)
			}
			stored := f.doc(t).FindEvent(e.ID)
			if got := stored.AttendeeIDs.Contains(stranger); got != tt.attendee {
				t.Errorf("attendee = %v, want %v", got, tt.attendee)
			}
			if got := stored.PendingRequestIDs.Contains(stranger); got == tt.attendee {
				t.Errorf("pending = %v, want %v", got, !tt.attendee)
			}
		})
	}

	// a block still conceals the event
	invite := f.createEvent(t, creator, CreateEventRequest{Visibility: models.VisibilityInviteOnly}, start)
	if err := f.users.Block(ctx, creator, stranger); err != nil {
		t.Fatalf("Block: %v", err)
	}
	_, err := f.events.Join(ctx, stranger, invite.ID)
	wantKind(t, err, apperr.KindNotFound)
}

func TestDeleteEventCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	creator, _ := f.register(t, "ana@example.com", "Ana")
	guest, _ := f.register(t, "bob@example.com", "Bob")
	e := f.createEvent(t, creator, CreateEventRequest{RequiresApproval: true}, f.now.Add(time.Hour))

	if _, err := f.events.Join(ctx, guest, e.ID); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if _, err := f.expenses.Add(ctx, creator, e.ID, ExpenseRequest{Title: "Snacks", Amount: 30}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := f.users.SetFavorites(ctx, guest, []models.ID{e.ID}); err != nil {
		t.Fatalf("SetFavorites: %v", err)
	}

	wantKind(t, f.events.Delete(ctx, guest, e.ID), apperr.KindForbidden)
	if err := f.events.Delete(ctx, creator, e.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	doc := f.doc(t)
	if doc.FindEvent(e.ID) != nil {
		t.Error("event still stored")
	}
	if len(doc.EventParticipations[e.ID]) != 0 || len(doc.Expenses) != 0 {
		t.Errorf("dependents left: participations %v expenses %v", doc.EventParticipations[e.ID], doc.Expenses)
	}
	if doc.UserFavorites[guest].Contains(e.ID) {
		t.Error("deleted event still a favorite")
	}
	wantKind(t, f.events.Delete(ctx, creator, e.ID), apperr.KindNotFound)
}

package bookmarks

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/dukerupert/marks/internal/bus"
	"github.com/dukerupert/marks/internal/database"
	"github.com/dukerupert/marks/internal/model"
	"github.com/dukerupert/marks/internal/store"
)

func setupViewModel(t *testing.T, userID string) (*ViewModel, *store.BookmarkStore, *bus.Bus) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	bs := store.NewBookmarkStore(db)
	b := bus.New()
	return New(userID, bs, b, slog.Default()), bs, b
}

func titles(list []model.Bookmark) []string {
	out := make([]string, len(list))
	for i, b := range list {
		out[i] = b.Title
	}
	return out
}

func TestFetchAllNewestFirst(t *testing.T) {
	vm, bs, _ := setupViewModel(t, "u1")

	bs.Create("B", "http://b", "u1")
	bs.Create("A", "http://a", "u1")
	bs.Create("Other", "http://x", "u2")

	vm.FetchAll(context.Background())

	got := vm.Snapshot()
	if len(got) != 2 {
		t.Fatalf("expected 2 bookmarks, got %d", len(got))
	}
	if got[0].Title != "A" || got[1].Title != "B" {
		t.Errorf("titles = %v, want [A B]", titles(got))
	}
}

func TestFetchAllEmptyOnNoRows(t *testing.T) {
	vm, _, _ := setupViewModel(t, "u1")

	vm.FetchAll(context.Background())

	if got := vm.Snapshot(); len(got) != 0 {
		t.Errorf("expected empty cache, got %d entries", len(got))
	}
}

func TestAddRejectsEmptyFields(t *testing.T) {
	vm, bs, _ := setupViewModel(t, "u1")

	if b := vm.Add(context.Background(), "", "http://a"); b != nil {
		t.Error("empty title must be a no-op")
	}
	if b := vm.Add(context.Background(), "A", ""); b != nil {
		t.Error("empty url must be a no-op")
	}
	if b := vm.Add(context.Background(), "   ", "http://a"); b != nil {
		t.Error("whitespace title must be a no-op")
	}

	if got := vm.Snapshot(); len(got) != 0 {
		t.Errorf("cache changed on rejected add: %v", titles(got))
	}
	list, _ := bs.ListByUser("u1")
	if len(list) != 0 {
		t.Error("rejected add must perform no insert")
	}
}

func TestAddPrependsOptimistically(t *testing.T) {
	vm, bs, _ := setupViewModel(t, "u1")

	bs.Create("Old", "http://old", "u1")
	vm.FetchAll(context.Background())

	added := vm.Add(context.Background(), "New", "http://new")
	if added == nil {
		t.Fatal("expected successful add")
	}
	if added.ID == 0 {
		t.Error("expected backend-assigned id")
	}

	got := vm.Snapshot()
	if len(got) != 2 {
		t.Fatalf("expected 2 cached entries, got %d", len(got))
	}
	if got[0].Title != "New" {
		t.Errorf("cache head = %q, want the new entry before any notification", got[0].Title)
	}
}

func TestAddPublishesInsertEvent(t *testing.T) {
	vm, _, b := setupViewModel(t, "u1")

	events, cancel := b.SubscribeChanges("u1")
	defer cancel()

	added := vm.Add(context.Background(), "A", "http://a")

	select {
	case ev := <-events:
		if ev.Action != model.ChangeInsert || ev.ID != added.ID {
			t.Errorf("event = %+v, want insert of id %d", ev, added.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a change notification")
	}
}

func TestDeleteLeavesCacheUntilNotification(t *testing.T) {
	vm, _, _ := setupViewModel(t, "u1")

	kept := vm.Add(context.Background(), "Keep", "http://keep")
	doomed := vm.Add(context.Background(), "Doomed", "http://doomed")

	vm.Delete(context.Background(), doomed.ID)

	// No local mutation on delete: the entry lingers until a re-fetch.
	if got := vm.Snapshot(); len(got) != 2 {
		t.Fatalf("cache mutated on delete: %v", titles(got))
	}

	vm.FetchAll(context.Background())
	got := vm.Snapshot()
	if len(got) != 1 || got[0].ID != kept.ID {
		t.Errorf("after re-fetch got %v, want only %q", titles(got), "Keep")
	}
}

func TestDeleteOfForeignRowPublishesNothing(t *testing.T) {
	vm, bs, b := setupViewModel(t, "u1")

	other, _ := bs.Create("Theirs", "http://theirs", "u2")

	events, cancel := b.SubscribeChanges("u1")
	defer cancel()

	vm.Delete(context.Background(), other.ID)

	select {
	case ev := <-events:
		t.Errorf("unexpected event %+v for a filtered-out delete", ev)
	case <-time.After(50 * time.Millisecond):
	}
	if got, _ := bs.GetByID(other.ID); got == nil {
		t.Error("ownership filter must protect the other user's row")
	}
}

func TestRunRefetchesOnAnyEvent(t *testing.T) {
	vm, bs, b := setupViewModel(t, "u1")

	bs.Create("A", "http://a", "u1")

	updates := make(chan []model.Bookmark, 8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		vm.Run(ctx, func(list []model.Bookmark) { updates <- list })
		close(done)
	}()

	// Mount-time fetch.
	select {
	case list := <-updates:
		if len(list) != 1 {
			t.Errorf("initial fetch got %v", titles(list))
		}
	case <-time.After(time.Second):
		t.Fatal("no initial fetch")
	}

	// A row added behind the view-model's back plus a notification.
	bs.Create("B", "http://b", "u1")
	b.PublishChange(model.ChangeEvent{Table: "bookmarks", Action: model.ChangeUpdate, UserID: "u1"})

	select {
	case list := <-updates:
		if len(list) != 2 {
			t.Errorf("after event got %v", titles(list))
		}
	case <-time.After(time.Second):
		t.Fatal("no re-fetch after change event")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on context cancel")
	}
}

func TestStaleFetchNeverOverwritesNewer(t *testing.T) {
	vm, bs, _ := setupViewModel(t, "u1")

	bs.Create("Current", "http://current", "u1")

	stale := vm.beginFetch()
	// A later fetch starts and lands first.
	vm.FetchAll(context.Background())

	// The earlier fetch now completes with pre-insert (empty) data.
	vm.applyFetch(stale, nil)

	got := vm.Snapshot()
	if len(got) != 1 || got[0].Title != "Current" {
		t.Errorf("stale result overwrote cache: %v", titles(got))
	}
}

func TestEndToEndScenario(t *testing.T) {
	vm, bs, b := setupViewModel(t, "U1")

	first, _ := bs.Create("B", "http://b", "U1") // older
	second, _ := bs.Create("A", "http://a", "U1")

	vm.FetchAll(context.Background())
	got := vm.Snapshot()
	if len(got) != 2 || got[0].ID != second.ID || got[1].ID != first.ID {
		t.Fatalf("fetch order = %v, want [A B]", titles(got))
	}

	added := vm.Add(context.Background(), "C", "http://c")
	if added == nil {
		t.Fatal("add failed")
	}
	got = vm.Snapshot()
	if len(got) != 3 || got[0].ID != added.ID {
		t.Fatalf("after add got %v, want C first", titles(got))
	}

	events, cancelSub := b.SubscribeChanges("U1")
	defer cancelSub()

	vm.Delete(context.Background(), second.ID)
	select {
	case <-events:
	case <-time.After(time.Second):
		t.Fatal("delete published no change notification")
	}

	vm.FetchAll(context.Background())
	got = vm.Snapshot()
	if len(got) != 2 || got[0].ID != added.ID || got[1].ID != first.ID {
		t.Errorf("final cache = %v, want [C B]", titles(got))
	}
}

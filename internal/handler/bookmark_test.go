package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dukerupert/marks/internal/auth"
	"github.com/dukerupert/marks/internal/bus"
	"github.com/dukerupert/marks/internal/database"
	"github.com/dukerupert/marks/internal/model"
	"github.com/dukerupert/marks/internal/store"
)

func setupBookmarkHandler(t *testing.T) (*BookmarkHandler, *store.BookmarkStore, *bus.Bus) {
	t.Helper()

	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	bs := store.NewBookmarkStore(db)
	b := bus.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewBookmarkHandler(bs, b, logger), bs, b
}

func authedRequest(method, target, body, userID string) *http.Request {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	ctx := auth.WithSession(req.Context(), &model.Session{
		AccessToken: "tok-" + userID,
		UserID:      userID,
		ExpiresAt:   time.Now().Add(time.Hour).UTC(),
	})
	return req.WithContext(ctx)
}

func TestListEmpty(t *testing.T) {
	h, _, _ := setupBookmarkHandler(t)

	rr := httptest.NewRecorder()
	h.List(rr, authedRequest("GET", "/api/bookmarks", "", "user-1"))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var list []model.Bookmark
	if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("expected empty list, got %d items", len(list))
	}
}

func TestCreateAndList(t *testing.T) {
	h, _, b := setupBookmarkHandler(t)
	events, cancel := b.SubscribeChanges("user-1")
	defer cancel()

	rr := httptest.NewRecorder()
	h.Create(rr, authedRequest("POST", "/api/bookmarks", `{"title":"Go","url":"https://go.dev"}`, "user-1"))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}

	var created model.Bookmark
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if created.Title != "Go" || created.URL != "https://go.dev" || created.UserID != "user-1" {
		t.Errorf("unexpected bookmark: %+v", created)
	}

	select {
	case ev := <-events:
		if ev.Action != model.ChangeInsert || ev.ID != created.ID {
			t.Errorf("unexpected change event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Error("expected an insert event")
	}

	rr = httptest.NewRecorder()
	h.List(rr, authedRequest("GET", "/api/bookmarks", "", "user-1"))
	var list []model.Bookmark
	if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if len(list) != 1 || list[0].ID != created.ID {
		t.Errorf("expected the created bookmark, got %+v", list)
	}
}

func TestCreateRejectsBlankFields(t *testing.T) {
	h, _, _ := setupBookmarkHandler(t)

	for _, body := range []string{
		`{"title":"  ","url":"https://go.dev"}`,
		`{"title":"Go","url":""}`,
		`not json`,
	} {
		rr := httptest.NewRecorder()
		h.Create(rr, authedRequest("POST", "/api/bookmarks", body, "user-1"))
		if rr.Code != http.StatusBadRequest {
			t.Errorf("body %q: expected 400, got %d", body, rr.Code)
		}
	}
}

func TestDeleteOwnBookmark(t *testing.T) {
	h, bs, b := setupBookmarkHandler(t)
	created, err := bs.Create("Go", "https://go.dev", "user-1")
	if err != nil {
		t.Fatalf("failed to create bookmark: %v", err)
	}

	events, cancel := b.SubscribeChanges("user-1")
	defer cancel()

	req := authedRequest("DELETE", "/api/bookmarks/1", "", "user-1")
	req.SetPathValue("id", "1")
	rr := httptest.NewRecorder()
	h.Delete(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	select {
	case ev := <-events:
		if ev.Action != model.ChangeDelete || ev.ID != created.ID {
			t.Errorf("unexpected change event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Error("expected a delete event")
	}
}

func TestDeleteForeignBookmark(t *testing.T) {
	h, bs, _ := setupBookmarkHandler(t)
	if _, err := bs.Create("Go", "https://go.dev", "user-2"); err != nil {
		t.Fatalf("failed to create bookmark: %v", err)
	}

	req := authedRequest("DELETE", "/api/bookmarks/1", "", "user-1")
	req.SetPathValue("id", "1")
	rr := httptest.NewRecorder()
	h.Delete(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rr.Code)
	}
}

func TestDeleteInvalidID(t *testing.T) {
	h, _, _ := setupBookmarkHandler(t)

	req := authedRequest("DELETE", "/api/bookmarks/abc", "", "user-1")
	req.SetPathValue("id", "abc")
	rr := httptest.NewRecorder()
	h.Delete(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rr.Code)
	}
}

func TestListScopedToUser(t *testing.T) {
	h, bs, _ := setupBookmarkHandler(t)
	if _, err := bs.Create("Mine", "https://a.test", "user-1"); err != nil {
		t.Fatalf("failed to create bookmark: %v", err)
	}
	if _, err := bs.Create("Theirs", "https://b.test", "user-2"); err != nil {
		t.Fatalf("failed to create bookmark: %v", err)
	}

	rr := httptest.NewRecorder()
	h.List(rr, authedRequest("GET", "/api/bookmarks", "", "user-1"))

	var list []model.Bookmark
	if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if len(list) != 1 || list[0].Title != "Mine" {
		t.Errorf("expected only user-1 bookmarks, got %+v", list)
	}
}

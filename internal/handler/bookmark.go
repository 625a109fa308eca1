package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/marks/internal/auth"
	"github.com/dukerupert/marks/internal/bus"
	"github.com/dukerupert/marks/internal/model"
	"github.com/dukerupert/marks/internal/store"
)

type BookmarkHandler struct {
	store  *store.BookmarkStore
	bus    *bus.Bus
	logger *slog.Logger
}

func NewBookmarkHandler(bs *store.BookmarkStore, b *bus.Bus, logger *slog.Logger) *BookmarkHandler {
	return &BookmarkHandler{store: bs, bus: b, logger: logger}
}

type bookmarkRequest struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

func (h *BookmarkHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	list, err := h.store.ListByUser(userID)
	if err != nil {
		// Reads degrade to an empty result set rather than failing the view.
		h.logger.Warn("list bookmarks", "error", err)
		list = nil
	}
	if list == nil {
		list = []model.Bookmark{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *BookmarkHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req bookmarkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	req.Title = strings.TrimSpace(req.Title)
	req.URL = strings.TrimSpace(req.URL)
	if req.Title == "" || req.URL == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "title and url are required"})
		return
	}

	b, err := h.store.Create(req.Title, req.URL, userID)
	if err != nil {
		h.logger.Error("create bookmark", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create bookmark"})
		return
	}

	h.bus.PublishChange(model.ChangeEvent{
		Table:  "bookmarks",
		Action: model.ChangeInsert,
		ID:     b.ID,
		UserID: userID,
	})

	writeJSON(w, http.StatusCreated, b)
}

func (h *BookmarkHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	deleted, err := h.store.Delete(id, userID)
	if err != nil {
		h.logger.Error("delete bookmark", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to delete bookmark"})
		return
	}
	if !deleted {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "bookmark not found"})
		return
	}

	h.bus.PublishChange(model.ChangeEvent{
		Table:  "bookmarks",
		Action: model.ChangeDelete,
		ID:     id,
		UserID: userID,
	})

	w.WriteHeader(http.StatusNoContent)
}

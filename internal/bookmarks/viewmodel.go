// Package bookmarks maintains one user's locally cached bookmark list,
// synchronized with the store through an initial fetch and a change
// notification subscription. The store stays the system of record; the
// cache is a projection rebuilt wholesale on every fetch.
package bookmarks

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/dukerupert/marks/internal/bus"
	"github.com/dukerupert/marks/internal/model"
	"github.com/dukerupert/marks/internal/store"
)

// ViewModel is bound to one non-empty user identifier for its whole life.
// A new identifier means a new ViewModel.
type ViewModel struct {
	userID string
	store  *store.BookmarkStore
	bus    *bus.Bus
	logger *slog.Logger

	mu    sync.RWMutex
	cache []model.Bookmark

	// fetchSeq hands out a monotonically increasing token per fetch;
	// applied records the newest token whose result reached the cache.
	// A fetch that completes after a later one started is discarded, so the
	// cache always reflects the most recently initiated fetch.
	fetchSeq uint64
	applied  uint64
}

func New(userID string, bs *store.BookmarkStore, b *bus.Bus, logger *slog.Logger) *ViewModel {
	return &ViewModel{
		userID: userID,
		store:  bs,
		bus:    b,
		logger: logger,
	}
}

// UserID returns the owning user identifier.
func (vm *ViewModel) UserID() string { return vm.userID }

// FetchAll replaces the cache with the user's rows, newest first. A read
// failure degrades to an empty cache; the error is logged, never surfaced.
func (vm *ViewModel) FetchAll(ctx context.Context) {
	token := vm.beginFetch()

	list, err := vm.store.ListByUser(vm.userID)
	if err != nil {
		vm.logger.Warn("fetch bookmarks", "error", err)
		list = nil
	}

	vm.applyFetch(token, list)
}

// beginFetch issues the next fetch token.
func (vm *ViewModel) beginFetch() uint64 {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.fetchSeq++
	return vm.fetchSeq
}

// applyFetch installs a fetch result unless a later fetch already landed.
func (vm *ViewModel) applyFetch(token uint64, list []model.Bookmark) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if token <= vm.applied {
		return
	}
	vm.applied = token
	vm.cache = list
}

// Snapshot returns a copy of the cached list.
func (vm *ViewModel) Snapshot() []model.Bookmark {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	out := make([]model.Bookmark, len(vm.cache))
	copy(out, vm.cache)
	return out
}

// Add inserts a bookmark and, on success, prepends the stored row to the
// cache ahead of any change notification. Empty fields make it a no-op; an
// insert failure leaves the cache untouched. The returned bookmark is nil
// in both failure modes.
func (vm *ViewModel) Add(ctx context.Context, title, url string) *model.Bookmark {
	title = strings.TrimSpace(title)
	url = strings.TrimSpace(url)
	if title == "" || url == "" {
		return nil
	}

	b, err := vm.store.Create(title, url, vm.userID)
	if err != nil {
		vm.logger.Warn("add bookmark", "error", err)
		return nil
	}

	vm.mu.Lock()
	vm.cache = append([]model.Bookmark{*b}, vm.cache...)
	vm.mu.Unlock()

	vm.bus.PublishChange(model.ChangeEvent{
		Table:  "bookmarks",
		Action: model.ChangeInsert,
		ID:     b.ID,
		UserID: vm.userID,
	})
	return b
}

// Delete removes the row. The cache is deliberately not touched here; the
// change notification triggers the re-fetch that drops the entry. A failed
// delete is silent — the row simply survives the next fetch.
func (vm *ViewModel) Delete(ctx context.Context, id int64) {
	deleted, err := vm.store.Delete(id, vm.userID)
	if err != nil {
		vm.logger.Warn("delete bookmark", "error", err)
		return
	}
	if !deleted {
		return
	}

	vm.bus.PublishChange(model.ChangeEvent{
		Table:  "bookmarks",
		Action: model.ChangeDelete,
		ID:     id,
		UserID: vm.userID,
	})
}

// Run performs the mount-time fetch, then re-fetches on every change event
// regardless of kind, until ctx ends. The subscription is released exactly
// once on return. onUpdate, if non-nil, fires after each cache replacement.
func (vm *ViewModel) Run(ctx context.Context, onUpdate func([]model.Bookmark)) {
	events, cancel := vm.bus.SubscribeChanges(vm.userID)
	defer cancel()

	notify := func() {
		if onUpdate != nil {
			onUpdate(vm.Snapshot())
		}
	}

	vm.FetchAll(ctx)
	notify()

	for {
		select {
		case _, ok := <-events:
			if !ok {
				return
			}
			// The event payload guarantees nothing beyond "something
			// changed" — always a full re-fetch, never an incremental patch.
			vm.FetchAll(ctx)
			notify()
		case <-ctx.Done():
			return
		}
	}
}

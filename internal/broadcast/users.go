// Package broadcast tracks known users and fans a payload out to all of them.
package broadcast

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

// UserStore is the persistence the user set writes through.
type UserStore interface {
	AddUser(ctx context.Context, id int64) error
	DeleteUser(ctx context.Context, id int64) error
	ListUsers(ctx context.Context) ([]int64, error)
}

// Users is the set of users that have interacted with the bot.
type Users struct {
	mu    sync.RWMutex
	ids   map[int64]struct{}
	store UserStore
	log   *slog.Logger
}

// NewUsers creates an empty user set backed by store.
func NewUsers(store UserStore, log *slog.Logger) *Users {
	return &Users{
		ids:   make(map[int64]struct{}),
		store: store,
		log:   log,
	}
}

// Load replaces the in-memory set with the stored users.
func (u *Users) Load(ctx context.Context) error {
	ids, err := u.store.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("load users: %w", err)
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	u.ids = make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		u.ids[id] = struct{}{}
	}
	u.log.Info("users loaded", "count", len(ids))
	return nil
}

// Touch registers id. It reports whether the user was new; only new users are
// written to the store.
func (u *Users) Touch(ctx context.Context, id int64) bool {
	u.mu.Lock()
	if _, ok := u.ids[id]; ok {
		u.mu.Unlock()
		return false
	}
	u.ids[id] = struct{}{}
	u.mu.Unlock()

	if err := u.store.AddUser(ctx, id); err != nil {
		u.log.Error("persist user", "user_id", id, "error", err)
	}
	return true
}

// Remove forgets id.
func (u *Users) Remove(ctx context.Context, id int64) {
	u.mu.Lock()
	delete(u.ids, id)
	u.mu.Unlock()

	if err := u.store.DeleteUser(ctx, id); err != nil {
		u.log.Error("delete user", "user_id", id, "error", err)
	}
}

// Contains reports whether id is known.
func (u *Users) Contains(id int64) bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	_, ok := u.ids[id]
	return ok
}

// Snapshot returns the known user IDs in ascending order.
func (u *Users) Snapshot() []int64 {
	u.mu.RLock()
	out := make([]int64, 0, len(u.ids))
	for id := range u.ids {
		out = append(out, id)
	}
	u.mu.RUnlock()
	slices.Sort(out)
	return out
}

// Count returns the number of known users.
func (u *Users) Count() int {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return len(u.ids)
}

// Package access decides who may talk to the assistant.
package access

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/xaenox/assistant-bot/internal/apperr"
	"github.com/xaenox/assistant-bot/internal/storage"
)

type Tier int

const (
	Anonymous Tier = iota
	Allowed
	Admin
)

func (t Tier) String() string {
	switch t {
	case Admin:
		return "admin"
	case Allowed:
		return "allowed"
	default:
		return "anonymous"
	}
}

// Guard combines the static authorization tiers with the ban set. The ban
// set mirrors the store and is loaded before any event is accepted.
type Guard struct {
	admins  map[int64]struct{}
	allowed map[int64]struct{}
	store   storage.BanStorage

	mu     sync.RWMutex
	banned map[int64]struct{}
}

func NewGuard(adminIDs, allowedIDs []int64, store storage.BanStorage) *Guard {
	g := &Guard{
		admins:  make(map[int64]struct{}, len(adminIDs)),
		allowed: make(map[int64]struct{}, len(allowedIDs)),
		store:   store,
		banned:  make(map[int64]struct{}),
	}
	for _, id := range adminIDs {
		g.admins[id] = struct{}{}
	}
	for _, id := range allowedIDs {
		g.allowed[id] = struct{}{}
	}
	return g
}

// Load replaces the in-memory ban set with the persisted one.
func (g *Guard) Load(ctx context.Context) error {
	ids, err := g.store.ListBans(ctx)
	if err != nil {
		return fmt.Errorf("failed to load bans: %w", err)
	}

	banned := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		banned[id] = struct{}{}
	}

	g.mu.Lock()
	g.banned = banned
	g.mu.Unlock()
	return nil
}

// Tier returns the authorization tier of userID. With an empty allow-list
// only admins get in.
func (g *Guard) Tier(userID int64) Tier {
	if _, ok := g.admins[userID]; ok {
		return Admin
	}
	if _, ok := g.allowed[userID]; ok {
		return Allowed
	}
	return Anonymous
}

func (g *Guard) IsAdmin(userID int64) bool {
	return g.Tier(userID) == Admin
}

func (g *Guard) IsBanned(userID int64) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	_, ok := g.banned[userID]
	return ok
}

// Check returns nil when userID may use the assistant.
func (g *Guard) Check(userID int64) error {
	tier := g.Tier(userID)
	if tier == Anonymous {
		return apperr.ErrUnauthorized
	}
	if tier != Admin && g.IsBanned(userID) {
		return apperr.ErrBanned
	}
	return nil
}

// Ban persists the ban and then adds it to the in-memory set.
func (g *Guard) Ban(ctx context.Context, userID int64) error {
	if g.IsAdmin(userID) {
		return apperr.ErrCannotBanAdmin
	}
	if err := g.store.AddBan(ctx, userID); err != nil {
		return err
	}

	g.mu.Lock()
	g.banned[userID] = struct{}{}
	g.mu.Unlock()
	return nil
}

func (g *Guard) Unban(ctx context.Context, userID int64) error {
	if err := g.store.RemoveBan(ctx, userID); err != nil {
		return err
	}

	g.mu.Lock()
	delete(g.banned, userID)
	g.mu.Unlock()
	return nil
}

// ClearBans empties the in-memory set after the store was wiped.
func (g *Guard) ClearBans() {
	g.mu.Lock()
	g.banned = make(map[int64]struct{})
	g.mu.Unlock()
}

// Admins returns the admin ids in ascending order.
func (g *Guard) Admins() []int64 {
	return sortedIDs(g.admins)
}

// Authorized returns every admin and allowed user id, deduplicated.
func (g *Guard) Authorized() []int64 {
	all := make(map[int64]struct{}, len(g.admins)+len(g.allowed))
	for id := range g.admins {
		all[id] = struct{}{}
	}
	for id := range g.allowed {
		all[id] = struct{}{}
	}
	return sortedIDs(all)
}

func sortedIDs(set map[int64]struct{}) []int64 {
	out := make([]int64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

package chat

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/talkroom/talkroom-server/internal/store"
)

// PresenceRegistry is the source of truth for which connections are live
// and which identities are online. Presence is reference-counted: an
// identity stays online while at least one of its connections remains
// registered, so multi-tab and multi-device sessions behave correctly.
type PresenceRegistry struct {
	mu     sync.Mutex
	conns  map[string]*Conn
	counts map[int64]int

	users store.UserStore
	log   *zerolog.Logger
}

// NewPresenceRegistry constructs an empty registry. The user store is
// updated as identities go online and offline.
func NewPresenceRegistry(users store.UserStore, logger *zerolog.Logger) *PresenceRegistry {
	return &PresenceRegistry{
		conns:  make(map[string]*Conn),
		counts: make(map[int64]int),
		users:  users,
		log:    logger,
	}
}

// Register inserts the connection. Idempotent per connection ID. The
// identity is marked online in the store on its first live connection.
// The lock is held across the store write so register/unregister for
// the same identity cannot interleave their side effects.
func (p *PresenceRegistry) Register(ctx context.Context, conn *Conn) error {
	identity := conn.Identity()

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.conns[conn.ID]; exists {
		p.conns[conn.ID] = conn
		return nil
	}
	p.conns[conn.ID] = conn
	p.counts[identity.ID]++

	if p.counts[identity.ID] == 1 {
		if err := p.users.SetOnline(ctx, identity.ID, true); err != nil {
			delete(p.conns, conn.ID)
			delete(p.counts, identity.ID)
			return err
		}
	}
	return nil
}

// Unregister removes the connection if present; unknown IDs are a no-op
// (disconnect before successful auth). The identity is marked offline
// only when its last live connection goes away.
func (p *PresenceRegistry) Unregister(ctx context.Context, connID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	conn, exists := p.conns[connID]
	if !exists {
		return
	}
	delete(p.conns, connID)

	uid := conn.Identity().ID
	p.counts[uid]--
	if p.counts[uid] > 0 {
		return
	}
	delete(p.counts, uid)

	if err := p.users.SetOnline(ctx, uid, false); err != nil {
		p.log.Warn().Err(err).Int64("user_id", uid).Msg("failed to mark user offline")
	}
}

// ListOnline returns a snapshot of the distinct online identities,
// deduplicated by user ID and sorted by ID for stable output.
func (p *PresenceRegistry) ListOnline() []store.User {
	p.mu.Lock()
	defer p.mu.Unlock()

	seen := make(map[int64]struct{}, len(p.counts))
	online := make([]store.User, 0, len(p.counts))
	for _, conn := range p.conns {
		identity := conn.Identity()
		if _, ok := seen[identity.ID]; ok {
			continue
		}
		seen[identity.ID] = struct{}{}
		u := *identity
		u.IsOnline = true
		online = append(online, u)
	}
	sort.Slice(online, func(i, j int) bool { return online[i].ID < online[j].ID })
	return online
}

// All returns every registered connection.
func (p *PresenceRegistry) All() []*Conn {
	p.mu.Lock()
	defer p.mu.Unlock()

	all := make([]*Conn, 0, len(p.conns))
	for _, conn := range p.conns {
		all = append(all, conn)
	}
	return all
}

// Get returns the connection registered under connID, if any.
func (p *PresenceRegistry) Get(connID string) (*Conn, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	conn, ok := p.conns[connID]
	return conn, ok
}

// ConnsOf returns all live connections bound to the given identity.
func (p *PresenceRegistry) ConnsOf(userID int64) []*Conn {
	p.mu.Lock()
	defer p.mu.Unlock()

	var conns []*Conn
	for _, conn := range p.conns {
		if conn.Identity().ID == userID {
			conns = append(conns, conn)
		}
	}
	return conns
}

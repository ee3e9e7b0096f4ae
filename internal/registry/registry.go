// Package registry holds the live backend handles of all open sessions.
package registry

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"kvconsole/internal/apperr"
	"kvconsole/internal/backend"
	"kvconsole/internal/vault"
)

// Descriptor is the non-secret description of a session's target.
type Descriptor struct {
	Host        string    `json:"host"`
	Port        int       `json:"port"`
	DB          int       `json:"db"`
	Name        string    `json:"name"`
	TLS         bool      `json:"tls"`
	ConnectedAt time.Time `json:"connected_at"`
}

// Address returns host:port/db.
func (d Descriptor) Address() string {
	return net.JoinHostPort(d.Host, strconv.Itoa(d.Port)) + "/" + strconv.Itoa(d.DB)
}

// Info is a Descriptor plus the registration time. Authenticated reports
// whether the vault holds credentials for the session; the credentials
// themselves never leave it.
type Info struct {
	Descriptor
	CreatedAt     time.Time `json:"created_at"`
	Authenticated bool      `json:"authenticated"`
}

type entry struct {
	conn      *backend.Conn
	desc      Descriptor
	createdAt time.Time
}

// Registry maps session ids to their handles. Each handle is owned by its
// entry and closed by Unregister or Shutdown. The lock is never held across
// network I/O.
type Registry struct {
	secrets vault.SecretStore
	log     zerolog.Logger
	now     func() time.Time

	mu      sync.RWMutex
	entries map[string]*entry
	closed  bool
}

func New(secrets vault.SecretStore, log zerolog.Logger) *Registry {
	return &Registry{
		secrets: secrets,
		log:     log.With().Str("component", "registry").Logger(),
		now:     time.Now,
		entries: make(map[string]*entry),
	}
}

// Register adds a session. A non-empty secret goes to the vault once the
// entry is in place.
func (r *Registry) Register(id string, conn *backend.Conn, desc Descriptor, secret *vault.Secret) error {
	const op = "registry.Register"

	if id == "" || conn == nil {
		return apperr.New(apperr.KindInvalidInput, op, "session id and handle are required")
	}

	e := &entry{conn: conn, desc: desc}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return apperr.New(apperr.KindInternal, op, "registry is shut down")
	}
	if _, exists := r.entries[id]; exists {
		r.mu.Unlock()
		return apperr.New(apperr.KindDuplicateSession, op, "session "+id+" is already registered")
	}
	e.createdAt = r.now()
	r.entries[id] = e
	r.mu.Unlock()

	if secret != nil && !secret.IsZero() {
		r.secrets.Store(id, *secret)

		// An Unregister that ran while the secret was being stored must not
		// leave it behind.
		r.mu.RLock()
		current, ok := r.entries[id]
		r.mu.RUnlock()
		if !ok || current != e {
			r.secrets.Remove(id)
		}
	}

	r.log.Debug().Str("connection_id", id).Str("target", desc.Address()).Bool("tls", desc.TLS).Msg("session registered")
	return nil
}

// Resolve returns the handle for id. Absent means unknown or expired.
func (r *Registry) Resolve(id string) (*backend.Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	return e.conn, true
}

func (r *Registry) Describe(id string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return Descriptor{}, false
	}
	return e.desc, true
}

func (r *Registry) Info(id string) (Info, bool) {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return Info{}, false
	}

	secret, stored := r.secrets.Retrieve(id)
	return Info{
		Descriptor:    e.desc,
		CreatedAt:     e.createdAt,
		Authenticated: stored && !secret.IsZero(),
	}, true
}

// Unregister removes the session and its secret, then closes the handle.
// It reports whether the session existed.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	e, ok := r.entries[id]
	if ok {
		delete(r.entries, id)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}

	r.secrets.Remove(id)
	r.closeHandle(id, e)
	return true
}

func (r *Registry) closeHandle(id string, e *entry) {
	if err := e.conn.Close(); err != nil {
		r.log.Warn().Err(err).Str("connection_id", id).Str("target", e.desc.Address()).Msg("handle close failed")
		return
	}
	r.log.Debug().Str("connection_id", id).Str("target", e.desc.Address()).Msg("session unregistered")
}

// ListIDs returns the registered ids, oldest first. The result is a snapshot.
func (r *Registry) ListIDs() []string {
	r.mu.RLock()
	type item struct {
		id string
		at time.Time
	}
	items := make([]item, 0, len(r.entries))
	for id, e := range r.entries {
		items = append(items, item{id: id, at: e.createdAt})
	}
	r.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool {
		if items[i].at.Equal(items[j].at) {
			return items[i].id < items[j].id
		}
		return items[i].at.Before(items[j].at)
	})

	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.id
	}
	return ids
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Summaries returns one debug line per session, oldest first.
func (r *Registry) Summaries() []string {
	ids := r.ListIDs()
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		info, ok := r.Info(id)
		if !ok {
			continue
		}
		out = append(out, fmt.Sprintf("%s: %s (%s)", id, info.Address(), info.CreatedAt.Format(time.RFC3339)))
	}
	return out
}

// handles snapshots the registered handles.
func (r *Registry) handles() map[string]*backend.Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*backend.Conn, len(r.entries))
	for id, e := range r.entries {
		out[id] = e.conn
	}
	return out
}

// Shutdown unregisters every session, closing handles concurrently. Later
// registrations fail. It returns ctx.Err() if ctx ends first.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	entries := r.entries
	r.entries = make(map[string]*entry)
	r.mu.Unlock()

	if len(entries) == 0 {
		return nil
	}

	var g errgroup.Group
	for id, e := range entries {
		g.Go(func() error {
			r.secrets.Remove(id)
			r.closeHandle(id, e)
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.log.Info().Int("sessions", len(entries)).Msg("🛑 All sessions closed")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Package audit keeps the bounded, most-recent-first journal of operator
// actions.
package audit

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"kvconsole/internal/config"
	"kvconsole/internal/constants"
)

type Entry struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	Action      string    `json:"action"`
	Description string    `json:"description"`
	SessionID   string    `json:"connection_id,omitempty"`
	IPAddress   string    `json:"ip_address"`
	External    bool      `json:"is_external"`
}

// Log is a fixed-capacity ring of entries. Record never fails.
type Log struct {
	mu      sync.Mutex
	ring    []Entry
	next    int
	size    int
	last    time.Time
	mirror  *fileMirror
	subs    map[int]chan Entry
	nextSub int
	now     func() time.Time
	log     zerolog.Logger
}

// New builds a Log. A configured mirror file that cannot be opened is an error.
func New(cfg config.AuditConfig, log zerolog.Logger) (*Log, error) {
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = constants.AuditCapacity
	}

	l := &Log{
		ring: make([]Entry, capacity),
		subs: make(map[int]chan Entry),
		now:  time.Now,
		log:  log.With().Str("component", "audit").Logger(),
	}

	if cfg.File != "" {
		mirror, err := openFileMirror(cfg.File)
		if err != nil {
			return nil, err
		}
		l.mirror = mirror
		l.log.Info().Str("path", mirror.path).Msg("📝 Audit mirror enabled")
	}
	return l, nil
}

// Record appends an entry. A nil origin marks the action as internal.
func (l *Log) Record(action, description, sessionID string, origin *Origin) Entry {
	entry := Entry{
		ID:          uuid.NewString(),
		Action:      action,
		Description: description,
		SessionID:   sessionID,
		IPAddress:   origin.Address(),
		External:    origin.External(action),
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	ts := l.now()
	if ts.Before(l.last) {
		ts = l.last
	}
	l.last = ts
	entry.Timestamp = ts

	l.ring[l.next] = entry
	l.next = (l.next + 1) % len(l.ring)
	if l.size < len(l.ring) {
		l.size++
	}

	if l.mirror != nil {
		if err := l.mirror.write(entry); err != nil {
			l.log.Warn().Err(err).Msg("audit mirror write failed")
		}
	}

	for _, ch := range l.subs {
		select {
		case ch <- entry:
		default:
		}
	}

	return entry
}

// Query returns a copy of the retained entries, most recent first. A non-empty
// sessionID keeps only entries for that session.
func (l *Log) Query(sessionID string) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Entry, 0, l.size)
	for i := 1; i <= l.size; i++ {
		e := l.ring[(l.next-i+len(l.ring))%len(l.ring)]
		if sessionID != "" && e.SessionID != sessionID {
			continue
		}
		out = append(out, e)
	}
	return out
}

func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.size
}

// Subscribe delivers every later entry on the returned channel. Entries are
// dropped for a subscriber whose buffer is full. cancel closes the channel.
func (l *Log) Subscribe(buffer int) (<-chan Entry, func()) {
	if buffer <= 0 {
		buffer = constants.AuditSubscriberBuffer
	}
	ch := make(chan Entry, buffer)

	l.mu.Lock()
	id := l.nextSub
	l.nextSub++
	l.subs[id] = ch
	l.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if _, ok := l.subs[id]; ok {
				delete(l.subs, id)
				close(ch)
			}
		})
	}
	return ch, cancel
}

// Close ends every subscription and releases the mirror file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for id, ch := range l.subs {
		delete(l.subs, id)
		close(ch)
	}
	if l.mirror != nil {
		err := l.mirror.close()
		l.mirror = nil
		return err
	}
	return nil
}

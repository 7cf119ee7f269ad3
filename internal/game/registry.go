// internal/game/registry.go
package game

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/crusty/internal/events"
	"github.com/sirupsen/logrus"
)

// Emitter receives committed events. Enqueue must not block.
type Emitter interface {
	Enqueue(ev events.Event)
}

// Handle wraps a session with the lock that serializes every command against it.
type Handle struct {
	ID uuid.UUID

	mu           sync.Mutex
	session      *Session
	lastActivity time.Time
	removed      bool

	snapshot atomic.Pointer[Snapshot]
	emitter  Emitter
	now      func() time.Time
}

// Exec runs fn with exclusive access to the session. On success the events fn
// produced get their sequence numbers and are handed to the emitter, and a new
// snapshot is published. On failure nothing is emitted. Exec fails with
// ErrNotFound once the session has been removed from the registry.
func (h *Handle) Exec(fn func(s *Session) error) (*Snapshot, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.removed {
		return nil, fmt.Errorf("%w: game %s", ErrNotFound, h.ID)
	}

	if err := fn(h.session); err != nil {
		h.session.rollback()
		return nil, err
	}
	return h.commitLocked(), nil
}

// Snapshot returns the latest published snapshot without taking the session lock.
func (h *Handle) Snapshot() *Snapshot {
	return h.snapshot.Load()
}

func (h *Handle) commitLocked() *Snapshot {
	evs := h.session.commit()
	snap := h.session.Snapshot()
	h.snapshot.Store(snap)
	h.lastActivity = h.now()
	for _, ev := range evs {
		h.emitter.Enqueue(ev)
	}
	return snap
}

// Registry is the directory of live sessions keyed by game id.
// The registry lock only guards the map; it is never held while a session lock is taken.
type Registry struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*Handle

	emitter     Emitter
	idleTimeout time.Duration
	now         func() time.Time
	log         *logrus.Entry
}

// NewRegistry creates an empty registry.
func NewRegistry(emitter Emitter, idleTimeout time.Duration, logger *logrus.Logger) *Registry {
	return &Registry{
		sessions:    make(map[uuid.UUID]*Handle),
		emitter:     emitter,
		idleTimeout: idleTimeout,
		now:         time.Now,
		log:         logger.WithField("component", "registry"),
	}
}

// GetOrCreate returns the handle for id, calling create to build the session
// if none exists. The check and insert happen under one lock, so concurrent
// first joins end up sharing a single session. The bool reports whether this
// call created it.
func (r *Registry) GetOrCreate(id uuid.UUID, create func() (*Session, error)) (*Handle, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if h, ok := r.sessions[id]; ok {
		return h, false, nil
	}

	s, err := create()
	if err != nil {
		return nil, false, err
	}
	if s.ID != id {
		return nil, false, fmt.Errorf("session id %s does not match game id %s", s.ID, id)
	}

	h := &Handle{
		ID:           id,
		session:      s,
		lastActivity: r.now(),
		emitter:      r.emitter,
		now:          r.now,
	}
	h.snapshot.Store(s.Snapshot())
	r.sessions[id] = h
	r.log.WithField("game_id", id).Info("session created")
	return h, true, nil
}

// Get returns the handle for id or ErrNotFound.
func (r *Registry) Get(id uuid.UUID) (*Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: game %s", ErrNotFound, id)
	}
	return h, nil
}

// Remove drops a session once any in-flight command on it has finished.
// It reports whether the session was present.
func (r *Registry) Remove(id uuid.UUID) bool {
	r.mu.Lock()
	h, ok := r.sessions[id]
	r.mu.Unlock()
	if !ok {
		return false
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	return r.removeLocked(h)
}

// removeLocked marks h removed and deletes it from the map. Assumes h.mu is held.
func (r *Registry) removeLocked(h *Handle) bool {
	if h.removed {
		return false
	}
	h.removed = true
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[h.ID] == h {
		delete(r.sessions, h.ID)
	}
	return true
}

// Len is the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// ForEach calls fn for every registered session until fn returns false.
// It iterates over a copy, so fn may call back into the registry.
func (r *Registry) ForEach(fn func(h *Handle) bool) {
	for _, h := range r.handles() {
		if !fn(h) {
			return
		}
	}
}

func (r *Registry) handles() []*Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Handle, 0, len(r.sessions))
	for _, h := range r.sessions {
		out = append(out, h)
	}
	return out
}

// Sweep removes sessions that are finished, or that have had no activity for
// longer than the idle timeout and have nobody connected. It returns how many
// sessions were removed.
func (r *Registry) Sweep(now time.Time) int {
	removed := 0
	r.ForEach(func(h *Handle) bool {
		h.mu.Lock()
		defer h.mu.Unlock()

		s := h.session
		idle := now.Sub(h.lastActivity) > r.idleTimeout && s.ConnectedCount() == 0
		if !s.Status.Terminal() && !idle {
			return true
		}
		if r.removeLocked(h) {
			removed++
			r.log.WithFields(logrus.Fields{
				"game_id": h.ID,
				"status":  s.Status,
				"idle":    idle,
			}).Info("session reclaimed")
		}
		return true
	})
	return removed
}

// RunSweeper sweeps every interval until ctx is cancelled.
func (r *Registry) RunSweeper(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := r.Sweep(r.now()); n > 0 {
				r.log.Debugf("idle sweep removed %d session(s), %d left", n, r.Len())
			}
		}
	}
}

// Shutdown abandons every open session, publishing the abandonment, and
// empties the registry.
func (r *Registry) Shutdown() {
	r.ForEach(func(h *Handle) bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		if h.removed {
			return true
		}
		h.session.Abandon("server shutting down")
		h.commitLocked()
		r.removeLocked(h)
		return true
	})
}

// Summary is the listing entry for one session.
type Summary struct {
	GameID      uuid.UUID `json:"game_id"`
	Name        string    `json:"name"`
	Status      Status    `json:"status"`
	Players     int       `json:"players"`
	MaxPlayers  int       `json:"max_players"`
	Round       int       `json:"round"`
	ScoreTarget int       `json:"score_target"`
	CreatedAt   time.Time `json:"created_at"`
}

// ListFilter narrows List results. Zero values match everything.
type ListFilter struct {
	Query        string  // case-insensitive substring of the game name
	MinFreeSeats int
	Status       Status
}

// List summarizes registered sessions from their latest snapshots, oldest first.
func (r *Registry) List(f ListFilter) []Summary {
	query := strings.ToLower(strings.TrimSpace(f.Query))
	out := []Summary{}
	r.ForEach(func(h *Handle) bool {
		snap := h.Snapshot()
		if snap == nil {
			return true
		}
		if query != "" && !strings.Contains(strings.ToLower(snap.Name), query) {
			return true
		}
		if f.Status != "" && snap.Status != f.Status {
			return true
		}
		if snap.Rules.MaxPlayers-len(snap.Players) < f.MinFreeSeats {
			return true
		}
		sum := Summary{
			GameID:      snap.GameID,
			Name:        snap.Name,
			Status:      snap.Status,
			Players:     len(snap.Players),
			MaxPlayers:  snap.Rules.MaxPlayers,
			ScoreTarget: snap.Rules.ScoreTarget,
			CreatedAt:   snap.CreatedAt,
		}
		if snap.Round != nil {
			sum.Round = snap.Round.Number
		}
		out = append(out, sum)
		return true
	})
	slices.SortFunc(out, func(a, b Summary) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.GameID.String(), b.GameID.String())
	})
	return out
}

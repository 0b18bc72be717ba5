package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fjod/go_cart/storefront/internal/kv"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultIdleTimeout is how long an untouched session stays in memory
	DefaultIdleTimeout = 30 * time.Minute

	// DefaultCleanupInterval is how often idle sessions are evicted
	DefaultCleanupInterval = time.Minute

	// DefaultMaxSessions caps the sessions held in memory
	DefaultMaxSessions = 10000
)

// Factory builds a Store backed by the given session-scoped KV.
type Factory func(store kv.Store) *Store

type RegistryOptions struct {
	IdleTimeout     time.Duration
	CleanupInterval time.Duration
	// MaxSessions bounds the in-memory sessions; the least recently seen one
	// is evicted to make room. Evicted sessions come back from the KV.
	MaxSessions int
	Now         func() time.Time
}

type entry struct {
	store    *Store
	lastSeen time.Time
}

// Registry keeps one Store per browser session.
type Registry struct {
	newStore Factory
	kv       kv.Store
	log      *logrus.Entry
	opts     RegistryOptions

	mu       sync.RWMutex
	sessions map[string]*entry
	sfg      singleflight.Group

	stopCleanup chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

func NewRegistry(newStore Factory, store kv.Store, log *logrus.Entry, opts RegistryOptions) *Registry {
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultIdleTimeout
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = DefaultCleanupInterval
	}
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = DefaultMaxSessions
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	r := &Registry{
		newStore:    newStore,
		kv:          store,
		log:         log,
		opts:        opts,
		sessions:    make(map[string]*entry),
		stopCleanup: make(chan struct{}),
	}

	r.wg.Add(1)
	go r.cleanupLoop()

	return r
}

// SessionPrefix is the KV namespace of one browser session.
func SessionPrefix(sessionID string) string {
	return "session:" + sessionID + ":"
}

func (r *Registry) sessionKV(sessionID string) kv.Store {
	return kv.WithPrefix(r.kv, SessionPrefix(sessionID))
}

// Create opens a new session under a fresh id.
func (r *Registry) Create(ctx context.Context) (string, *Store) {
	sessionID := uuid.NewString()
	s := r.newStore(r.sessionKV(sessionID))
	r.insert(sessionID, s)
	r.log.WithContext(ctx).WithField("session_id", sessionID).Debug("session created")
	return sessionID, s
}

// Lookup returns the Store of a session this registry handed out: one still
// held in memory or one with persisted state. Unknown ids are not adopted.
func (r *Registry) Lookup(ctx context.Context, sessionID string) (*Store, bool) {
	if s := r.touch(sessionID); s != nil {
		r.retryRestore(ctx, sessionID, s)
		return s, true
	}
	if !r.persisted(ctx, sessionID) {
		return nil, false
	}
	return r.Get(ctx, sessionID), true
}

// Get returns the Store for sessionID, creating and restoring it on first use.
// A Store whose restore failed for a transient reason is restored again.
func (r *Registry) Get(ctx context.Context, sessionID string) *Store {
	if s := r.touch(sessionID); s != nil {
		r.retryRestore(ctx, sessionID, s)
		return s
	}

	v, _, _ := r.sfg.Do(sessionID, func() (interface{}, error) {
		if s := r.touch(sessionID); s != nil {
			return s, nil
		}
		s := r.newStore(r.sessionKV(sessionID))
		r.restore(ctx, sessionID, s)
		r.insert(sessionID, s)
		return s, nil
	})
	return v.(*Store)
}

// restore runs detached from ctx cancellation: callers joined on the same
// session wait for its result.
func (r *Registry) restore(ctx context.Context, sessionID string, s *Store) {
	if err := s.Restore(context.WithoutCancel(ctx)); err != nil {
		r.log.WithContext(ctx).WithError(err).WithField("session_id", sessionID).Warn("session restore failed, continuing anonymous")
	}
}

func (r *Registry) retryRestore(ctx context.Context, sessionID string, s *Store) {
	if !s.RestorePending() {
		return
	}
	_, _, _ = r.sfg.Do("restore:"+sessionID, func() (interface{}, error) {
		if s.RestorePending() {
			r.restore(ctx, sessionID, s)
		}
		return nil, nil
	})
}

// persisted reports whether sessionID left anything in the KV. A KV failure
// counts as persisted so a live session is not replaced during an outage.
func (r *Registry) persisted(ctx context.Context, sessionID string) bool {
	store := r.sessionKV(sessionID)
	for _, key := range []string{KeyToken, KeyCart, KeyOrders} {
		_, err := store.Get(ctx, key)
		if err == nil {
			return true
		}
		if !errors.Is(err, kv.ErrKeyNotFound) {
			r.log.WithContext(ctx).WithError(err).WithField("session_id", sessionID).Warn("session lookup failed")
			return true
		}
	}
	return false
}

func (r *Registry) insert(sessionID string, s *Store) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[sessionID]; !ok && len(r.sessions) >= r.opts.MaxSessions {
		r.evictOldest()
	}
	r.sessions[sessionID] = &entry{store: s, lastSeen: r.opts.Now()}
}

// evictOldest requires r.mu held for writing.
func (r *Registry) evictOldest() {
	var (
		oldestID string
		oldest   time.Time
	)
	for id, e := range r.sessions {
		if oldestID == "" || e.lastSeen.Before(oldest) {
			oldestID, oldest = id, e.lastSeen
		}
	}
	if oldestID != "" {
		delete(r.sessions, oldestID)
		r.log.WithField("session_id", oldestID).Debug("session limit reached, evicted least recent")
	}
}

func (r *Registry) touch(sessionID string) *Store {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sessionID]
	if !ok {
		return nil
	}
	e.lastSeen = r.opts.Now()
	return e.store
}

// Drop forgets the in-memory Store; persisted keys are left alone.
func (r *Registry) Drop(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionID)
}

// Len is the number of sessions held in memory.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) cleanupLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.opts.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.evictIdle()
		case <-r.stopCleanup:
			return
		}
	}
}

func (r *Registry) evictIdle() int {
	cutoff := r.opts.Now().Add(-r.opts.IdleTimeout)

	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, e := range r.sessions {
		if e.lastSeen.Before(cutoff) {
			delete(r.sessions, id)
			n++
		}
	}
	if n > 0 {
		r.log.WithFields(logrus.Fields{"evicted": n, "remaining": len(r.sessions)}).Debug("evicted idle sessions")
	}
	return n
}

// Close stops the background cleanup and waits for it to finish.
func (r *Registry) Close() error {
	r.stopOnce.Do(func() { close(r.stopCleanup) })
	r.wg.Wait()
	return nil
}

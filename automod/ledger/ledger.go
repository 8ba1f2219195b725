// In-memory per-user violation state, keyed by (guild, user).
//
// Each record has its own FIFO lock, so updates for one user are applied strictly in the order they were
// requested, while different users never contend. Records are created on first use, optionally seeded from a
// violationstore.Store, and evicted after an idle period. Eviction and periodic flushes never wait on a busy
// record.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/swaffX/neuroviabot-website-sub003/automod/violationstore"
	"github.com/swaffX/neuroviabot-website-sub003/automod/window"

	"github.com/puzpuzpuz/xsync/v3"
)

var DefaultIdleTTL = 24 * time.Hour

// Mutable state for one (guild, user). Only accessed while the owning entry is locked.
type Record struct {
	GuildID string
	UserID  string
	// violations since the record was created or last reset
	Count           int
	Banned          bool
	LastSeenAt      time.Time
	LastViolationAt time.Time
	// recent message arrivals, for spam detection; never persisted
	Window *window.Window
	// set when Count or Banned changed since the last store write
	Dirty bool
}

// Copy of a record without the window, safe to hand out.
type Snapshot struct {
	GuildID         string
	UserID          string
	Count           int
	Banned          bool
	LastSeenAt      time.Time
	LastViolationAt time.Time
	WindowLen       int
}

func (r *Record) snapshot() Snapshot {
	s := Snapshot{
		GuildID:         r.GuildID,
		UserID:          r.UserID,
		Count:           r.Count,
		Banned:          r.Banned,
		LastSeenAt:      r.LastSeenAt,
		LastViolationAt: r.LastViolationAt,
	}
	if r.Window != nil {
		s.WindowLen = r.Window.Len()
	}
	return s
}

func (r *Record) state() violationstore.UserState {
	return violationstore.UserState{
		GuildID:         r.GuildID,
		UserID:          r.UserID,
		Count:           r.Count,
		Banned:          r.Banned,
		LastViolationAt: r.LastViolationAt,
	}
}

type entry struct {
	lock fifoLock
	rec  Record
	// record has been seeded from the store (or there is no store)
	loaded bool
	// removed from the map; holders of a stale pointer must look up again
	evicted bool
}

type Config struct {
	// optional durable store; nil keeps everything in memory
	Store   violationstore.Store
	IdleTTL time.Duration
	Logger  *slog.Logger
	// clock override for tests
	Now func() time.Time
}

type Ledger struct {
	entries *xsync.MapOf[string, *entry]
	store   violationstore.Store
	idleTTL time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

func New(cfg Config) *Ledger {
	l := &Ledger{
		entries: xsync.NewMapOf[string, *entry](),
		store:   cfg.Store,
		idleTTL: cfg.IdleTTL,
		logger:  cfg.Logger,
		now:     cfg.Now,
	}
	if l.idleTTL <= 0 {
		l.idleTTL = DefaultIdleTTL
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	if l.now == nil {
		l.now = time.Now
	}
	l.logger = l.logger.With("system", "ledger")
	return l
}

func recordKey(guildID, userID string) string {
	return guildID + "/" + userID
}

// Locks the entry for a user, creating it if needed. Retries if the entry was evicted while waiting.
func (l *Ledger) acquire(guildID, userID string) *entry {
	key := recordKey(guildID, userID)
	for {
		e, _ := l.entries.LoadOrCompute(key, func() *entry {
			return &entry{rec: Record{GuildID: guildID, UserID: userID}}
		})
		e.lock.Lock()
		if !e.evicted {
			return e
		}
		e.lock.Unlock()
	}
}

// Seeds a fresh entry from the store. Called with the entry locked. On error the entry stays unloaded, so the
// next caller tries again.
func (l *Ledger) load(ctx context.Context, e *entry) error {
	if e.loaded {
		return nil
	}
	if l.store == nil {
		e.loaded = true
		return nil
	}
	st, err := l.store.Load(ctx, e.rec.GuildID, e.rec.UserID)
	if errors.Is(err, violationstore.ErrNotFound) {
		e.loaded = true
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading violation record: %w", err)
	}
	e.rec.Count = st.Count
	e.rec.Banned = st.Banned
	e.rec.LastViolationAt = st.LastViolationAt
	e.loaded = true
	return nil
}

// Runs fn with exclusive access to the user's record. Calls for the same user run one at a time, in the order
// Update was called; calls for different users run concurrently. The record's LastSeenAt is bumped before fn runs.
//
// fn must not call back in to the ledger for the same user.
func (l *Ledger) Update(ctx context.Context, guildID, userID string, fn func(rec *Record) error) error {
	r := l.Reserve(guildID, userID)
	defer r.Release()
	return r.Update(ctx, fn)
}

// Holds a user's place in line. Obtained from Reserve; Release must be called exactly once.
type Reservation struct {
	l        *Ledger
	e        *entry
	released bool
}

// Locks the user's record without loading it or counting as activity. Later Reserve or Update calls for the same
// user wait until Release, and are granted in the order they were made. Use this to keep per-user ordering across
// work done before the record is needed.
func (l *Ledger) Reserve(guildID, userID string) *Reservation {
	return &Reservation{l: l, e: l.acquire(guildID, userID)}
}

// Loads the record if needed, bumps LastSeenAt and runs fn. May be called more than once before Release.
func (r *Reservation) Update(ctx context.Context, fn func(rec *Record) error) error {
	if r.released {
		return fmt.Errorf("ledger reservation for %s used after release", recordKey(r.e.rec.GuildID, r.e.rec.UserID))
	}
	if err := r.l.load(ctx, r.e); err != nil {
		return err
	}
	r.e.rec.LastSeenAt = r.l.now()
	return fn(&r.e.rec)
}

// Releases the lock. Safe to call more than once. An entry which was never loaded and has nobody waiting on it is
// dropped from the ledger.
func (r *Reservation) Release() {
	if r.released {
		return
	}
	r.released = true
	e := r.e
	if !e.loaded && e.lock.queued() == 0 {
		e.evicted = true
		r.l.entries.Compute(recordKey(e.rec.GuildID, e.rec.UserID), func(old *entry, loaded bool) (*entry, bool) {
			return old, loaded && old == e
		})
	}
	e.lock.Unlock()
}

// Returns a copy of the user's record, loading it from the store if it is not resident. Does not count as activity.
func (l *Ledger) Get(ctx context.Context, guildID, userID string) (Snapshot, bool, error) {
	key := recordKey(guildID, userID)
	if e, ok := l.entries.Load(key); ok {
		e.lock.Lock()
		if !e.evicted && e.loaded {
			s := e.rec.snapshot()
			e.lock.Unlock()
			return s, true, nil
		}
		e.lock.Unlock()
	}
	if l.store == nil {
		return Snapshot{}, false, nil
	}
	st, err := l.store.Load(ctx, guildID, userID)
	if errors.Is(err, violationstore.ErrNotFound) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("loading violation record: %w", err)
	}
	return Snapshot{
		GuildID:         guildID,
		UserID:          userID,
		Count:           st.Count,
		Banned:          st.Banned,
		LastViolationAt: st.LastViolationAt,
	}, true, nil
}

// Clears a user's violations and ban marker, both in memory and in the store. The spam window is kept.
func (l *Ledger) Reset(ctx context.Context, guildID, userID string) error {
	e := l.acquire(guildID, userID)
	defer e.lock.Unlock()

	e.rec.Count = 0
	e.rec.Banned = false
	e.rec.LastViolationAt = time.Time{}
	e.rec.Dirty = false
	e.loaded = true
	if l.store != nil {
		if err := l.store.Delete(ctx, guildID, userID); err != nil {
			return fmt.Errorf("clearing stored violations: %w", err)
		}
	}
	return nil
}

// Number of resident records.
func (l *Ledger) Len() int {
	return l.entries.Size()
}

func (l *Ledger) snapshotEntries() map[string]*entry {
	out := make(map[string]*entry, l.entries.Size())
	l.entries.Range(func(key string, e *entry) bool {
		out[key] = e
		return true
	})
	return out
}

func (l *Ledger) flushLocked(ctx context.Context, e *entry) error {
	if !e.rec.Dirty || l.store == nil {
		return nil
	}
	if err := l.store.Save(ctx, e.rec.state()); err != nil {
		return err
	}
	e.rec.Dirty = false
	return nil
}

type SweepStats struct {
	Evicted int
	Flushed int
	// entries skipped because they were locked
	Busy   int
	Failed int
}

// Evicts records idle for longer than the idle TTL, writing dirty ones to the store first. Records which are
// locked are skipped until the next sweep. A record whose write fails stays resident.
func (l *Ledger) Sweep(ctx context.Context) SweepStats {
	var stats SweepStats
	now := l.now()
	for key, e := range l.snapshotEntries() {
		if !e.lock.TryLock() {
			stats.Busy++
			continue
		}
		if e.evicted || now.Sub(e.rec.LastSeenAt) < l.idleTTL {
			e.lock.Unlock()
			continue
		}
		wasDirty := e.rec.Dirty
		if err := l.flushLocked(ctx, e); err != nil {
			l.logger.Warn("failed to persist idle violation record", "guild", e.rec.GuildID, "user", e.rec.UserID, "err", err)
			stats.Failed++
			e.lock.Unlock()
			continue
		}
		if wasDirty && l.store != nil {
			stats.Flushed++
		}
		e.evicted = true
		l.entries.Compute(key, func(old *entry, loaded bool) (*entry, bool) {
			return old, loaded && old == e
		})
		stats.Evicted++
		e.lock.Unlock()
	}
	return stats
}

// Writes every dirty, unlocked record to the store. Locked records are picked up by a later flush.
func (l *Ledger) Flush(ctx context.Context) SweepStats {
	var stats SweepStats
	if l.store == nil {
		return stats
	}
	for _, e := range l.snapshotEntries() {
		if !e.lock.TryLock() {
			stats.Busy++
			continue
		}
		if !e.evicted && e.rec.Dirty {
			if err := l.flushLocked(ctx, e); err != nil {
				l.logger.Warn("failed to persist violation record", "guild", e.rec.GuildID, "user", e.rec.UserID, "err", err)
				stats.Failed++
			} else {
				stats.Flushed++
			}
		}
		e.lock.Unlock()
	}
	return stats
}

// Flushes every dirty record, waiting for busy ones. Used on shutdown.
func (l *Ledger) Close(ctx context.Context) error {
	if l.store == nil {
		return nil
	}
	var errs []error
	for _, e := range l.snapshotEntries() {
		e.lock.Lock()
		if !e.evicted {
			if err := l.flushLocked(ctx, e); err != nil {
				errs = append(errs, err)
			}
		}
		e.lock.Unlock()
	}
	return errors.Join(errs...)
}

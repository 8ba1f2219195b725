package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/swaffX/neuroviabot-website-sub003/automod/violationstore"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newClock() *fakeClock {
	return &fakeClock{t: time.UnixMilli(1_700_000_000_000)}
}

func increment(rec *Record) error {
	rec.Count++
	rec.Dirty = true
	return nil
}

func TestLedgerBasics(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	l := New(Config{})

	_, ok, err := l.Get(ctx, "g1", "u1")
	assert.NoError(err)
	assert.False(ok)

	for i := 0; i < 3; i++ {
		assert.NoError(l.Update(ctx, "g1", "u1", increment))
	}
	assert.NoError(l.Update(ctx, "g2", "u1", increment))

	s, ok, err := l.Get(ctx, "g1", "u1")
	assert.NoError(err)
	assert.True(ok)
	assert.Equal(3, s.Count)
	assert.False(s.LastSeenAt.IsZero())

	s, _, _ = l.Get(ctx, "g2", "u1")
	assert.Equal(1, s.Count)
	assert.Equal(2, l.Len())

	assert.NoError(l.Reset(ctx, "g1", "u1"))
	s, _, _ = l.Get(ctx, "g1", "u1")
	assert.Equal(0, s.Count)

	boom := errors.New("boom")
	assert.ErrorIs(l.Update(ctx, "g1", "u1", func(rec *Record) error { return boom }), boom)
}

func TestLedgerLoadsFromStore(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	store := violationstore.NewMemStore()
	assert.NoError(store.Save(ctx, violationstore.UserState{GuildID: "g1", UserID: "u1", Count: 4, Banned: true}))
	l := New(Config{Store: store})

	// readable before the record is resident
	s, ok, err := l.Get(ctx, "g1", "u1")
	assert.NoError(err)
	assert.True(ok)
	assert.Equal(4, s.Count)
	assert.Equal(0, l.Len())

	assert.NoError(l.Update(ctx, "g1", "u1", func(rec *Record) error {
		assert.Equal(4, rec.Count)
		assert.True(rec.Banned)
		return nil
	}))

	assert.NoError(l.Reset(ctx, "g1", "u1"))
	_, err = store.Load(ctx, "g1", "u1")
	assert.ErrorIs(err, violationstore.ErrNotFound)
}

type failingStore struct {
	violationstore.MemStore
	fail bool
}

func (s *failingStore) Load(ctx context.Context, guildID, userID string) (*violationstore.UserState, error) {
	if s.fail {
		return nil, fmt.Errorf("connection refused")
	}
	return s.MemStore.Load(ctx, guildID, userID)
}

func (s *failingStore) Save(ctx context.Context, st violationstore.UserState) error {
	if s.fail {
		return fmt.Errorf("connection refused")
	}
	return s.MemStore.Save(ctx, st)
}

func TestLedgerStoreErrors(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	store := &failingStore{MemStore: violationstore.MemStore{Data: map[string]violationstore.UserState{}}, fail: true}
	clock := newClock()
	l := New(Config{Store: store, Now: clock.Now, IdleTTL: time.Hour})

	called := false
	err := l.Update(ctx, "g1", "u1", func(rec *Record) error {
		called = true
		return nil
	})
	assert.Error(err)
	assert.False(called)

	// recovers once the store does
	store.fail = false
	assert.NoError(l.Update(ctx, "g1", "u1", increment))

	// failed write keeps the record resident
	store.fail = true
	clock.Advance(2 * time.Hour)
	stats := l.Sweep(ctx)
	assert.Equal(1, stats.Failed)
	assert.Equal(0, stats.Evicted)
	assert.Equal(1, l.Len())

	store.fail = false
	stats = l.Sweep(ctx)
	assert.Equal(1, stats.Evicted)
	assert.Equal(1, stats.Flushed)
	assert.Equal(0, l.Len())
	st, err := store.Load(ctx, "g1", "u1")
	assert.NoError(err)
	assert.Equal(1, st.Count)
}

func TestLedgerSweep(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	store := violationstore.NewMemStore()
	clock := newClock()
	l := New(Config{Store: store, Now: clock.Now, IdleTTL: time.Hour})

	assert.NoError(l.Update(ctx, "g1", "idle", increment))
	assert.NoError(l.Update(ctx, "g1", "clean", func(rec *Record) error { return nil }))
	clock.Advance(30 * time.Minute)
	assert.NoError(l.Update(ctx, "g1", "active", increment))

	// nothing idle yet
	stats := l.Sweep(ctx)
	assert.Equal(0, stats.Evicted)
	assert.Equal(3, l.Len())

	clock.Advance(45 * time.Minute)
	stats = l.Sweep(ctx)
	assert.Equal(2, stats.Evicted)
	assert.Equal(1, stats.Flushed)
	assert.Equal(1, l.Len())
	assert.Equal(1, store.Len())

	// evicted count comes back from the store
	assert.NoError(l.Update(ctx, "g1", "idle", increment))
	s, _, _ := l.Get(ctx, "g1", "idle")
	assert.Equal(2, s.Count)
}

func TestLedgerSweepSkipsBusy(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	clock := newClock()
	l := New(Config{Now: clock.Now, IdleTTL: time.Minute})

	inside := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = l.Update(ctx, "g1", "u1", func(rec *Record) error {
			close(inside)
			<-release
			return increment(rec)
		})
	}()
	<-inside

	clock.Advance(time.Hour)
	stats := l.Sweep(ctx)
	assert.Equal(1, stats.Busy)
	assert.Equal(0, stats.Evicted)

	close(release)
	<-done
	s, ok, _ := l.Get(ctx, "g1", "u1")
	assert.True(ok)
	assert.Equal(1, s.Count)
}

func TestLedgerFlush(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	store := violationstore.NewMemStore()
	l := New(Config{Store: store})

	assert.NoError(l.Update(ctx, "g1", "u1", increment))
	assert.NoError(l.Update(ctx, "g1", "u2", func(rec *Record) error { return nil }))
	stats := l.Flush(ctx)
	assert.Equal(1, stats.Flushed)
	assert.Equal(1, store.Len())

	// clean records are not rewritten
	stats = l.Flush(ctx)
	assert.Equal(0, stats.Flushed)

	assert.NoError(l.Update(ctx, "g1", "u1", increment))
	assert.NoError(l.Close(ctx))
	st, err := store.Load(ctx, "g1", "u1")
	assert.NoError(err)
	assert.Equal(2, st.Count)
}

func TestLedgerFIFO(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	l := New(Config{})

	inside := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = l.Update(ctx, "g1", "u1", func(rec *Record) error {
			close(inside)
			<-release
			return nil
		})
	}()
	<-inside

	e, ok := l.entries.Load(recordKey("g1", "u1"))
	assert.True(ok)

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	n := 20
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = l.Update(ctx, "g1", "u1", func(rec *Record) error {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil
			})
		}(i)
		// wait for this caller to queue before starting the next one
		for e.lock.queued() < i+1 {
			time.Sleep(time.Millisecond)
		}
	}
	close(release)
	wg.Wait()

	expected := make([]int, n)
	for i := range expected {
		expected[i] = i
	}
	assert.Equal(expected, order)
}

func TestLedgerUsersDoNotContend(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	l := New(Config{})

	inside := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = l.Update(ctx, "g1", "slow", func(rec *Record) error {
			close(inside)
			<-release
			return nil
		})
	}()
	<-inside
	defer close(release)

	done := make(chan error)
	go func() {
		done <- l.Update(ctx, "g1", "fast", increment)
	}()
	select {
	case err := <-done:
		assert.NoError(err)
	case <-time.After(5 * time.Second):
		t.Fatal("update for one user blocked on another user")
	}
}

func TestLedgerConcurrentUpdates(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	clock := newClock()
	l := New(Config{Store: violationstore.NewMemStore(), Now: clock.Now, IdleTTL: time.Nanosecond})

	users := 20
	perUser := 50
	var wg sync.WaitGroup
	for u := 0; u < users; u++ {
		for i := 0; i < perUser; i++ {
			wg.Add(1)
			go func(u int) {
				defer wg.Done()
				_ = l.Update(ctx, "g1", fmt.Sprintf("u%d", u), increment)
			}(u)
		}
	}
	// sweeps and flushes race with the updates; neither may lose an increment
	stop := make(chan struct{})
	swept := make(chan struct{})
	go func() {
		defer close(swept)
		for {
			select {
			case <-stop:
				return
			default:
			}
			clock.Advance(time.Second)
			l.Sweep(ctx)
			l.Flush(ctx)
		}
	}()
	wg.Wait()
	close(stop)
	<-swept

	for u := 0; u < users; u++ {
		s, ok, err := l.Get(ctx, "g1", fmt.Sprintf("u%d", u))
		assert.NoError(err)
		assert.True(ok)
		assert.Equal(perUser, s.Count)
	}
}

func TestLedgerReservation(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	l := New(Config{})

	// reserved but never used: nothing stays resident
	r := l.Reserve("g1", "u1")
	assert.Equal(1, l.Len())
	r.Release()
	r.Release()
	assert.Equal(0, l.Len())
	assert.Error(r.Update(ctx, increment))

	first := l.Reserve("g1", "u1")
	e, ok := l.entries.Load(recordKey("g1", "u1"))
	assert.True(ok)

	seen := make(chan int, 1)
	go func() {
		_ = l.Update(ctx, "g1", "u1", func(rec *Record) error {
			seen <- rec.Count
			return increment(rec)
		})
	}()
	for e.lock.queued() < 1 {
		time.Sleep(time.Millisecond)
	}

	// the later Update waits for the reservation, however long it is held
	time.Sleep(10 * time.Millisecond)
	assert.Equal(0, len(seen))
	assert.NoError(first.Update(ctx, increment))
	first.Release()

	assert.Equal(1, <-seen)
	s, ok, err := l.Get(ctx, "g1", "u1")
	assert.NoError(err)
	assert.True(ok)
	assert.Equal(2, s.Count)
}

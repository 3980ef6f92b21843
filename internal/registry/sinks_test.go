package registry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastdata/cepbridge/internal/models"
)

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func newClock() *stepClock {
	return &stepClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func TestEventSinkRegistry_Create(t *testing.T) {
	r := NewEventSinkRegistry()
	ctx := context.Background()

	sink, err := r.Create(ctx, "alerts", "http://A/notify")
	require.NoError(t, err)

	assert.NotEmpty(t, sink.ID)
	assert.Equal(t, "alerts", sink.Name)
	assert.Equal(t, "http://a/notify", sink.URL)
	assert.True(t, sink.Enabled)
	assert.False(t, sink.CreatedAt.IsZero())

	got, err := r.Lookup("http://a/notify/")
	require.NoError(t, err)
	assert.Equal(t, sink, got)
}

func TestEventSinkRegistry_CreateDuplicate(t *testing.T) {
	r := NewEventSinkRegistry()
	ctx := context.Background()

	first, err := r.Create(ctx, "one", "http://a/notify")
	require.NoError(t, err)

	// Same normalized URL, different name.
	_, err = r.Create(ctx, "two", "HTTP://A/notify/")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAlreadyExists))
	assert.Contains(t, err.Error(), "cannot create it twice")

	sinks := r.List()
	require.Len(t, sinks, 1)
	assert.Equal(t, first, sinks[0], "existing entry must not be overwritten")
}

func TestEventSinkRegistry_CreateInvalidURL(t *testing.T) {
	r := NewEventSinkRegistry()

	for _, raw := range []string{"", "not a url", "ftp://a/x", "http://", "/relative"} {
		_, err := r.Create(context.Background(), "x", raw)
		assert.ErrorIs(t, err, ErrInvalidURL, raw)
	}
	assert.Equal(t, 0, r.Len())
}

func TestEventSinkRegistry_ConcurrentCreateSameURL(t *testing.T) {
	r := NewEventSinkRegistry()
	ctx := context.Background()

	const n = 64
	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		conflicts atomic.Int32
		start     = make(chan struct{})
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := r.Create(ctx, "racer", "http://race.example/notify")
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, ErrAlreadyExists):
				conflicts.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())
	assert.Equal(t, int32(n-1), conflicts.Load())
	assert.Len(t, r.List(), 1)
}

func TestEventSinkRegistry_DeleteThenCreate(t *testing.T) {
	clock := newClock()
	r := NewEventSinkRegistry(WithClock(clock.Now))
	ctx := context.Background()

	old, err := r.Create(ctx, "a", "http://a/notify")
	require.NoError(t, err)
	require.NoError(t, r.Disable(ctx, "http://a/notify"))
	require.NoError(t, r.Delete(ctx, "http://a/notify"))

	_, err = r.Lookup("http://a/notify")
	assert.ErrorIs(t, err, ErrNotFound)

	fresh, err := r.Create(ctx, "a2", "http://a/notify")
	require.NoError(t, err)
	assert.NotEqual(t, old.ID, fresh.ID)
	assert.True(t, fresh.CreatedAt.After(old.CreatedAt))
	assert.True(t, fresh.Enabled)
	assert.Equal(t, "a2", fresh.Name)
}

func TestEventSinkRegistry_NotFound(t *testing.T) {
	r := NewEventSinkRegistry()
	ctx := context.Background()

	assert.ErrorIs(t, r.Delete(ctx, "http://missing/x"), ErrNotFound)
	assert.ErrorIs(t, r.Enable(ctx, "http://missing/x"), ErrNotFound)
	assert.ErrorIs(t, r.Disable(ctx, "http://missing/x"), ErrNotFound)
	_, err := r.Lookup("http://missing/x")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEventSinkRegistry_EnableDisable(t *testing.T) {
	r := NewEventSinkRegistry()
	ctx := context.Background()

	_, err := r.Create(ctx, "a", "http://a/1")
	require.NoError(t, err)
	_, err = r.Create(ctx, "b", "http://b/1")
	require.NoError(t, err)

	require.NoError(t, r.Disable(ctx, "http://a/1"))
	enabled := r.Enabled()
	require.Len(t, enabled, 1)
	assert.Equal(t, "http://b/1", enabled[0].URL)

	// Disabling twice is not an error.
	require.NoError(t, r.Disable(ctx, "http://a/1"))

	require.NoError(t, r.Enable(ctx, "http://a/1"))
	assert.Len(t, r.Enabled(), 2)
}

func TestEventSinkRegistry_ListOrderAndSnapshot(t *testing.T) {
	r := NewEventSinkRegistry()
	ctx := context.Background()

	for _, u := range []string{"http://c/x", "http://a/x", "http://b/x"} {
		_, err := r.Create(ctx, "s", u)
		require.NoError(t, err)
	}
	require.NoError(t, r.Delete(ctx, "http://a/x"))
	_, err := r.Create(ctx, "s", "http://a/x")
	require.NoError(t, err)

	list := r.List()
	urls := make([]string, len(list))
	for i, s := range list {
		urls[i] = s.URL
	}
	assert.Equal(t, []string{"http://c/x", "http://b/x", "http://a/x"}, urls)

	// Mutating the snapshot leaves the registry untouched.
	list[0].Enabled = false
	got, err := r.Lookup("http://c/x")
	require.NoError(t, err)
	assert.True(t, got.Enabled)
}

type recordingSinkPersister struct {
	mu      sync.Mutex
	saved   []models.EventSink
	deleted []string
	err     error
}

func (p *recordingSinkPersister) SaveSink(_ context.Context, s models.EventSink) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.saved = append(p.saved, s)
	return p.err
}

func (p *recordingSinkPersister) DeleteSink(_ context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deleted = append(p.deleted, url)
	return p.err
}

func TestEventSinkRegistry_Persister(t *testing.T) {
	p := &recordingSinkPersister{}
	r := NewEventSinkRegistry(WithSinkPersister(p))
	ctx := context.Background()

	_, err := r.Create(ctx, "a", "http://a/1")
	require.NoError(t, err)
	require.NoError(t, r.Disable(ctx, "http://a/1"))
	require.NoError(t, r.Delete(ctx, "http://a/1"))

	require.Len(t, p.saved, 2)
	assert.True(t, p.saved[0].Enabled)
	assert.False(t, p.saved[1].Enabled)
	assert.Equal(t, []string{"http://a/1"}, p.deleted)
}

func TestEventSinkRegistry_PersisterErrorDoesNotFail(t *testing.T) {
	p := &recordingSinkPersister{err: errors.New("redis down")}
	r := NewEventSinkRegistry(WithSinkPersister(p))

	_, err := r.Create(context.Background(), "a", "http://a/1")
	require.NoError(t, err)
	assert.Equal(t, 1, r.Len())
}

func TestEventSinkRegistry_Restore(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r := NewEventSinkRegistry()

	n, err := r.Restore([]models.EventSink{
		{ID: "2", URL: "http://b/x", CreatedAt: base.Add(time.Minute), Enabled: false},
		{ID: "1", URL: "http://a/x", CreatedAt: base, Enabled: true},
		{ID: "3", URL: "ftp://bad", CreatedAt: base},
		{ID: "4", URL: "http://A/x/", CreatedAt: base.Add(time.Hour)},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, "1", list[0].ID)
	assert.Equal(t, "2", list[1].ID)
	assert.False(t, list[1].Enabled)

	_, err = r.Restore(nil)
	assert.Error(t, err, "restore into a populated registry")
}

func TestEventSinkRegistry_QueryDoesNotChangeIdentity(t *testing.T) {
	p := &recordingSinkPersister{}
	r := NewEventSinkRegistry(WithSinkPersister(p))
	ctx := context.Background()

	sink, err := r.Create(ctx, "a", "http://a/notify?token=1")
	require.NoError(t, err)
	assert.Equal(t, "http://a/notify?token=1", sink.URL, "delivery url keeps the query")

	_, err = r.Create(ctx, "b", "http://a/notify?token=2")
	assert.ErrorIs(t, err, ErrAlreadyExists)
	_, err = r.Create(ctx, "c", "http://a/notify/")
	assert.ErrorIs(t, err, ErrAlreadyExists)
	assert.Equal(t, 1, r.Len())

	got, err := r.Lookup("http://a/notify")
	require.NoError(t, err)
	assert.Equal(t, sink, got)

	require.NoError(t, r.Disable(ctx, "http://a/notify?other=x"))
	require.NoError(t, r.Delete(ctx, "http://a/notify"))
	assert.Equal(t, []string{"http://a/notify?token=1"}, p.deleted, "store field is the stored url")
}

// blockingSinkPersister holds SaveSink until release is closed.
type blockingSinkPersister struct {
	entered chan string
	release chan struct{}

	mu    sync.Mutex
	saved []models.EventSink
}

func (p *blockingSinkPersister) SaveSink(_ context.Context, s models.EventSink) error {
	p.entered <- s.URL
	<-p.release
	p.mu.Lock()
	p.saved = append(p.saved, s)
	p.mu.Unlock()
	return nil
}

func (p *blockingSinkPersister) DeleteSink(context.Context, string) error { return nil }

func TestEventSinkRegistry_SlowPersisterDoesNotBlockReads(t *testing.T) {
	p := &blockingSinkPersister{entered: make(chan string, 4), release: make(chan struct{})}
	r := NewEventSinkRegistry(WithSinkPersister(p))
	ctx := context.Background()

	created := make(chan error, 1)
	go func() {
		_, err := r.Create(ctx, "a", "http://a/notify")
		created <- err
	}()
	select {
	case <-p.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("persister never called")
	}

	// The write is stuck in the store; readers still see the new sink.
	reads := make(chan int, 1)
	go func() {
		_, _ = r.Lookup("http://a/notify")
		reads <- len(r.Enabled())
	}()
	select {
	case n := <-reads:
		assert.Equal(t, 1, n)
	case <-time.After(time.Second):
		t.Fatal("reads blocked behind the persister")
	}

	// A second mutation waits its turn so the store sees writes in order.
	disabled := make(chan error, 1)
	go func() { disabled <- r.Disable(ctx, "http://a/notify") }()

	close(p.release)
	require.NoError(t, <-created)
	require.NoError(t, <-disabled)

	p.mu.Lock()
	defer p.mu.Unlock()
	require.Len(t, p.saved, 2)
	assert.True(t, p.saved[0].Enabled)
	assert.False(t, p.saved[1].Enabled)
}

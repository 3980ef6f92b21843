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

func roomTemp(pattern string) models.AttributeIdentity {
	return models.AttributeIdentity{EntityType: "Room", EntityIDPattern: pattern, AttributeName: "temperature"}
}

func TestAttributeRegistry_Register(t *testing.T) {
	r := NewAttributeRegistry()

	attr, err := r.Register(context.Background(), roomTemp("Room1"), "high-temp")
	require.NoError(t, err)
	assert.Equal(t, models.StatePending, attr.State)
	assert.Equal(t, "high-temp", attr.StatementID)
	assert.Nil(t, attr.ActivatedAt)

	got, err := r.Lookup(roomTemp("Room1"))
	require.NoError(t, err)
	assert.Equal(t, attr, got)
}

func TestAttributeRegistry_RegisterTwice(t *testing.T) {
	r := NewAttributeRegistry()
	ctx := context.Background()

	first, err := r.Register(ctx, roomTemp("Room1"), "s1")
	require.NoError(t, err)

	_, err = r.Register(ctx, roomTemp("Room1"), "s2")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAlreadyExists)
	assert.Contains(t, err.Error(), "the attribute already exists")

	got, err := r.Lookup(roomTemp("Room1"))
	require.NoError(t, err)
	assert.Equal(t, first, got, "lookup must be unchanged")
	assert.Equal(t, 1, r.Len())
}

func TestAttributeRegistry_ConcurrentRegister(t *testing.T) {
	r := NewAttributeRegistry()
	var (
		wg    sync.WaitGroup
		wins  atomic.Int32
		start = make(chan struct{})
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := r.Register(context.Background(), roomTemp("Room1"), "s"); err == nil {
				wins.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestAttributeRegistry_RegisterInvalid(t *testing.T) {
	r := NewAttributeRegistry()
	ctx := context.Background()

	tests := []struct {
		name        string
		id          models.AttributeIdentity
		statementID string
	}{
		{"missing type", models.AttributeIdentity{EntityIDPattern: "R", AttributeName: "t"}, "s"},
		{"missing pattern", models.AttributeIdentity{EntityType: "Room", AttributeName: "t"}, "s"},
		{"missing attribute", models.AttributeIdentity{EntityType: "Room", EntityIDPattern: "R"}, "s"},
		{"missing statement", roomTemp("Room1"), ""},
		{"bad pattern", roomTemp("Room("), "s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Register(ctx, tt.id, tt.statementID)
			assert.ErrorIs(t, err, ErrInvalidIdentity)
		})
	}
	assert.Equal(t, 0, r.Len())
}

func TestAttributeRegistry_Activate(t *testing.T) {
	clock := newClock()
	r := NewAttributeRegistry(WithClock(clock.Now))
	ctx := context.Background()

	_, err := r.Register(ctx, roomTemp("Room1"), "s")
	require.NoError(t, err)

	active, err := r.Activate(ctx, roomTemp("Room1"))
	require.NoError(t, err)
	assert.Equal(t, models.StateActive, active.State)
	require.NotNil(t, active.ActivatedAt)
	activatedAt := *active.ActivatedAt

	// Second activation is a no-op.
	again, err := r.Activate(ctx, roomTemp("Room1"))
	require.NoError(t, err)
	assert.Equal(t, activatedAt, *again.ActivatedAt)

	_, err = r.Activate(ctx, roomTemp("Missing"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAttributeRegistry_Unregister(t *testing.T) {
	r := NewAttributeRegistry()
	ctx := context.Background()

	var notified []models.MonitoredAttribute
	r.OnUnregister(func(a models.MonitoredAttribute) {
		notified = append(notified, a)
	})

	_, err := r.Register(ctx, roomTemp("Room1"), "s")
	require.NoError(t, err)
	_, err = r.Register(ctx, roomTemp("Room2"), "s")
	require.NoError(t, err)
	_, err = r.Activate(ctx, roomTemp("Room2"))
	require.NoError(t, err)

	// Both pending and active entries can be removed.
	require.NoError(t, r.Unregister(ctx, roomTemp("Room1")))
	require.NoError(t, r.Unregister(ctx, roomTemp("Room2")))

	require.Len(t, notified, 2)
	assert.Equal(t, "Room1", notified[0].EntityIDPattern)
	assert.Equal(t, models.StateActive, notified[1].State)

	err = r.Unregister(ctx, roomTemp("Room1"))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Len(t, notified, 2, "no notification for missing entries")

	_, err = r.Lookup(roomTemp("Room1"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAttributeRegistry_ListenerMayReadRegistry(t *testing.T) {
	r := NewAttributeRegistry()
	ctx := context.Background()

	done := make(chan int, 1)
	r.OnUnregister(func(models.MonitoredAttribute) {
		done <- r.Len()
	})

	_, err := r.Register(ctx, roomTemp("Room1"), "s")
	require.NoError(t, err)
	require.NoError(t, r.Unregister(ctx, roomTemp("Room1")))

	select {
	case n := <-done:
		assert.Equal(t, 0, n)
	case <-time.After(time.Second):
		t.Fatal("listener deadlocked")
	}
}

func TestAttributeRegistry_Match(t *testing.T) {
	r := NewAttributeRegistry()
	ctx := context.Background()

	_, err := r.Register(ctx, roomTemp("Room1"), "exact")
	require.NoError(t, err)
	_, err = r.Register(ctx, roomTemp("Room.*"), "pattern")
	require.NoError(t, err)
	_, err = r.Register(ctx, models.AttributeIdentity{EntityType: "Room", EntityIDPattern: "Room1", AttributeName: "pressure"}, "other-attr")
	require.NoError(t, err)
	_, err = r.Register(ctx, models.AttributeIdentity{EntityType: "Car", EntityIDPattern: "Room1", AttributeName: "temperature"}, "other-type")
	require.NoError(t, err)

	matches := r.Match("Room", "Room1", "temperature")
	require.Len(t, matches, 2)
	assert.Equal(t, "exact", matches[0].StatementID)
	assert.Equal(t, "pattern", matches[1].StatementID)

	matches = r.Match("Room", "Room2", "temperature")
	require.Len(t, matches, 1)
	assert.Equal(t, "pattern", matches[0].StatementID)

	assert.Empty(t, r.Match("Room", "Kitchen", "temperature"))
	assert.Empty(t, r.Match("Room", "Room1", "humidity"))

	require.NoError(t, r.Unregister(ctx, roomTemp("Room.*")))
	assert.Len(t, r.Match("Room", "Room2", "temperature"), 0)
}

type recordingAttrPersister struct {
	saved   []models.MonitoredAttribute
	deleted []models.AttributeIdentity
}

func (p *recordingAttrPersister) SaveAttribute(_ context.Context, a models.MonitoredAttribute) error {
	p.saved = append(p.saved, a)
	return nil
}

func (p *recordingAttrPersister) DeleteAttribute(_ context.Context, id models.AttributeIdentity) error {
	p.deleted = append(p.deleted, id)
	return errors.New("ignored")
}

func TestAttributeRegistry_Persister(t *testing.T) {
	p := &recordingAttrPersister{}
	r := NewAttributeRegistry(WithAttributePersister(p))
	ctx := context.Background()

	_, err := r.Register(ctx, roomTemp("Room1"), "s")
	require.NoError(t, err)
	_, err = r.Activate(ctx, roomTemp("Room1"))
	require.NoError(t, err)
	require.NoError(t, r.Unregister(ctx, roomTemp("Room1")), "persister errors are logged, not returned")

	require.Len(t, p.saved, 2)
	assert.Equal(t, models.StatePending, p.saved[0].State)
	assert.Equal(t, models.StateActive, p.saved[1].State)
	assert.Equal(t, []models.AttributeIdentity{roomTemp("Room1")}, p.deleted)
}

func TestAttributeRegistry_Restore(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r := NewAttributeRegistry()

	n, err := r.Restore([]models.MonitoredAttribute{
		{AttributeIdentity: roomTemp("Room.*"), StatementID: "b", State: models.StateActive, CreatedAt: base.Add(time.Minute)},
		{AttributeIdentity: roomTemp("Room1"), StatementID: "a", State: "bogus", CreatedAt: base},
		{AttributeIdentity: roomTemp("Room("), StatementID: "bad", CreatedAt: base},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].StatementID)
	assert.Equal(t, models.StatePending, list[0].State)
	assert.Equal(t, models.StateActive, list[1].State)

	assert.Len(t, r.Match("Room", "Room1", "temperature"), 2)
}

func TestAttributeRegistry_UnregisterNotifiesEveryListener(t *testing.T) {
	r := NewAttributeRegistry()
	ctx := context.Background()

	var first, second []string
	r.OnUnregister(func(a models.MonitoredAttribute) { first = append(first, a.StatementID) })
	r.OnUnregister(func(a models.MonitoredAttribute) { second = append(second, a.StatementID) })

	_, err := r.Register(ctx, roomTemp("Room1"), "hot")
	require.NoError(t, err)
	require.NoError(t, r.Unregister(ctx, roomTemp("Room1")))

	assert.Equal(t, []string{"hot"}, first)
	assert.Equal(t, []string{"hot"}, second)
}

// blockingAttrPersister holds SaveAttribute until release is closed.
type blockingAttrPersister struct {
	entered chan struct{}
	release chan struct{}
}

func (p *blockingAttrPersister) SaveAttribute(context.Context, models.MonitoredAttribute) error {
	p.entered <- struct{}{}
	<-p.release
	return nil
}

func (p *blockingAttrPersister) DeleteAttribute(context.Context, models.AttributeIdentity) error {
	return nil
}

func TestAttributeRegistry_SlowPersisterDoesNotBlockMatch(t *testing.T) {
	p := &blockingAttrPersister{entered: make(chan struct{}, 1), release: make(chan struct{})}
	r := NewAttributeRegistry(WithAttributePersister(p))

	registered := make(chan error, 1)
	go func() {
		_, err := r.Register(context.Background(), roomTemp("Room1"), "s")
		registered <- err
	}()
	select {
	case <-p.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("persister never called")
	}

	matched := make(chan int, 1)
	go func() { matched <- len(r.Match("Room", "Room1", "temperature")) }()
	select {
	case n := <-matched:
		assert.Equal(t, 1, n)
	case <-time.After(time.Second):
		t.Fatal("Match blocked behind the persister")
	}

	close(p.release)
	require.NoError(t, <-registered)
}

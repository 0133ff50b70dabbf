package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PriceScanner/internal/domain"
	"PriceScanner/internal/infrastructure/storage"
	"PriceScanner/internal/ports"
)

type registration struct {
	id       string
	interval time.Duration
	offset   time.Duration
	callback func(time.Time)
}

type fakeTrigger struct {
	mu   sync.Mutex
	regs []registration
	next time.Time
}

func (f *fakeTrigger) Register(id string, interval, offset time.Duration, callback func(time.Time)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.regs = append(f.regs, registration{id: id, interval: interval, offset: offset, callback: callback})
	return nil
}

func (f *fakeTrigger) Start() {}

func (f *fakeTrigger) Stop(context.Context) error { return nil }

var _ ports.Trigger = (*fakeTrigger)(nil)

func (f *fakeTrigger) NextRun() (time.Time, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.next, !f.next.IsZero()
}

func newTestCoordinator(t *testing.T, f *orchestratorFixture, trigger *fakeTrigger) (*Coordinator, *storage.MemoryStore) {
	t.Helper()

	store := storage.NewMemoryStore()
	deps := CoordinatorDeps{
		Registry:     f.registry,
		Orchestrator: f.orchestrator,
		Reconciler:   newTestReconciler(t, store),
		Logs:         store,
		Clock:        func() time.Time { return fixedNow },
	}
	if trigger != nil {
		deps.Trigger = trigger
	}
	c := NewCoordinator(deps)
	return c, store
}

func TestTriggerIsMutuallyExclusive(t *testing.T) {
	t.Parallel()

	f := newOrchestratorFixture(t, staticRetailer("a", "gpu"))
	f.static.pages["https://a.example/c/gpu"] = gpuListing
	release := make(chan struct{})
	f.static.block = release

	c, store := newTestCoordinator(t, f, nil)
	ctx := context.Background()

	require.NoError(t, c.Trigger(ctx, "a"))
	assert.True(t, c.Status().IsRunning)

	assert.ErrorIs(t, c.Trigger(ctx, "a"), domain.ErrRunInProgress)
	assert.ErrorIs(t, c.Trigger(ctx, ""), domain.ErrRunInProgress)
	_, err := c.Run(ctx, "", SourceScheduled)
	assert.ErrorIs(t, err, domain.ErrRunInProgress)
	assert.True(t, c.Status().IsRunning)

	close(release)
	c.Wait()

	status := c.Status()
	assert.False(t, status.IsRunning)
	require.NotNil(t, status.LastRun)
	require.NotNil(t, status.LastResult)
	assert.True(t, status.LastResult.Success)
	assert.Equal(t, "a", status.LastResult.Retailer)
	assert.Equal(t, 3, status.LastResult.ProductsFound)
	assert.Equal(t, 3, status.LastResult.Inserted)
	assert.NotEmpty(t, status.LastResult.RunID)
	assert.Nil(t, status.NextRun)

	assert.Len(t, f.static.requests(), 1)
	assert.Equal(t, 3, store.ProductCount())

	logs := store.ScrapeLogs()
	require.Len(t, logs, 2)
	assert.Equal(t, "gpu", logs[0].Category)
	assert.Equal(t, 3, logs[0].ProductsFound)
	assert.Equal(t, 3, logs[0].ProductsUpdated)
	assert.Equal(t, "*", logs[1].Category)
	assert.Equal(t, 1, f.static.release)
}

func TestTriggerUnknownRetailer(t *testing.T) {
	t.Parallel()

	f := newOrchestratorFixture(t, staticRetailer("a", "gpu"))
	c, _ := newTestCoordinator(t, f, nil)

	err := c.Trigger(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrUnknownRetailer)

	status := c.Status()
	assert.False(t, status.IsRunning)
	assert.Nil(t, status.LastResult)
	assert.Empty(t, f.static.requests())
}

func TestRunTruncatesErrors(t *testing.T) {
	t.Parallel()

	categories := make([]string, 0, 12)
	for i := 0; i < 12; i++ {
		categories = append(categories, fmt.Sprintf("cat%02d", i))
	}
	f := newOrchestratorFixture(t, staticRetailer("a", categories...))
	for _, name := range categories {
		f.static.fail["https://a.example/c/"+name] = errors.New("timeout")
	}
	c, _ := newTestCoordinator(t, f, nil)

	summary, err := c.Run(context.Background(), "a", SourceManual)
	require.NoError(t, err)

	assert.False(t, summary.Success)
	assert.Equal(t, 12, summary.ErrorCount)
	assert.Len(t, summary.Errors, 10)
	assert.Equal(t, "a: cat00: timeout", summary.Errors[0])

	status := c.Status()
	require.NotNil(t, status.LastResult)
	assert.Len(t, status.LastResult.Errors, 10)
	assert.Equal(t, 12, status.LastResult.ErrorCount)
}

func TestRunAllRetailers(t *testing.T) {
	t.Parallel()

	f := newOrchestratorFixture(t, staticRetailer("a", "gpu"), staticRetailer("b", "gpu"))
	f.static.pages["https://a.example/c/gpu"] = gpuListing
	f.static.fail["https://b.example/c/gpu"] = errors.New("connection refused")
	c, store := newTestCoordinator(t, f, nil)

	summary, err := c.Run(context.Background(), "", SourceManual)
	require.NoError(t, err)

	assert.Empty(t, summary.Retailer)
	assert.False(t, summary.Success)
	assert.Equal(t, 3, summary.ProductsFound)
	assert.Equal(t, []string{"b: gpu: connection refused"}, summary.Errors)
	assert.Len(t, store.ScrapeLogs(), 4)
	assert.Equal(t, 1, f.static.release)
	assert.Equal(t, 1, f.rendered.release)
}

func TestScheduleStaggersRetailers(t *testing.T) {
	t.Parallel()

	f := newOrchestratorFixture(t, staticRetailer("a", "gpu"), staticRetailer("b", "gpu"), staticRetailer("c", "gpu"))
	f.static.pages["https://b.example/c/gpu"] = gpuListing
	next := fixedNow.Add(10 * time.Minute)
	trigger := &fakeTrigger{next: next}
	c, _ := newTestCoordinator(t, f, trigger)

	require.NoError(t, c.Schedule(context.Background(), time.Hour, 10*time.Minute))
	require.Len(t, trigger.regs, 3)
	for k, reg := range trigger.regs {
		assert.Equal(t, time.Hour, reg.interval)
		assert.Equal(t, time.Duration(k)*10*time.Minute, reg.offset)
	}
	assert.Equal(t, []string{"a", "b", "c"}, []string{trigger.regs[0].id, trigger.regs[1].id, trigger.regs[2].id})

	trigger.regs[1].callback(fixedNow)

	status := c.Status()
	require.NotNil(t, status.LastResult)
	assert.Equal(t, "b", status.LastResult.Retailer)
	assert.Equal(t, 3, status.LastResult.ProductsFound)
	require.NotNil(t, status.NextRun)
	assert.True(t, status.NextRun.Equal(next))
}

func TestStaggerOffset(t *testing.T) {
	t.Parallel()

	tests := []struct {
		k        int
		interval time.Duration
		stagger  time.Duration
		want     time.Duration
	}{
		{k: 0, interval: time.Hour, stagger: 10 * time.Minute, want: 0},
		{k: 3, interval: time.Hour, stagger: 10 * time.Minute, want: 30 * time.Minute},
		{k: 7, interval: time.Hour, stagger: 10 * time.Minute, want: 10 * time.Minute},
		{k: 2, interval: time.Hour, stagger: 0, want: 0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, StaggerOffset(tt.k, tt.interval, tt.stagger), "k=%d", tt.k)
	}
}

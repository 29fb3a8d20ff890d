package counter

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"replyguy/pkg/replyguy"
)

type memStore struct {
	mu    sync.Mutex
	st    replyguy.State
	init  bool
	saves int
}

func (m *memStore) Load(_ context.Context) (replyguy.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.init {
		return replyguy.State{}, errors.New("storage: object doesn't exist")
	}
	return m.st, nil
}

func (m *memStore) Save(_ context.Context, st replyguy.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st = st
	m.init = true
	m.saves++
	return nil
}

func (m *memStore) LoadOrInit(_ context.Context, today string) (replyguy.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.init {
		m.st = replyguy.State{
			LastResetDate:   today,
			RequiredReplies: replyguy.DefaultRequired,
		}
		m.init = true
	}
	return m.st, nil
}

func (m *memStore) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

type fakeBadge struct {
	mu      sync.Mutex
	last    replyguy.State
	updates int
}

func (b *fakeBadge) Update(st replyguy.State) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.last = st
	b.updates++
}

func (b *fakeBadge) lastState() replyguy.State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last
}

type fakeNotifier struct {
	mu         sync.Mutex
	roasts     []string
	quotaMet   int
	milestones []int
}

func (n *fakeNotifier) SendRoast(_ context.Context, roast string, _, _ int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.roasts = append(n.roasts, roast)
}

func (n *fakeNotifier) SendQuotaMet(_ context.Context, _, _ int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.quotaMet++
}

func (n *fakeNotifier) SendMilestone(_ context.Context, milestone, _ int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.milestones = append(n.milestones, milestone)
}

func (n *fakeNotifier) snapshot() (roasts []string, quotaMet int, milestones []int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.roasts...), n.quotaMet, append([]int(nil), n.milestones...)
}

func newTestCounter(t *testing.T, store *memStore) (*Counter, *fakeBadge, *fakeNotifier) {
	t.Helper()
	badge := &fakeBadge{}
	notifier := &fakeNotifier{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := New(store, badge, notifier, logger)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	c.Start(ctx)
	return c, badge, notifier
}

// drainEvent pulls one published event off a subscription without blocking
// the test forever on a miss.
func drainEvent(t *testing.T, ch <-chan replyguy.Event) (replyguy.Event, bool) {
	t.Helper()
	select {
	case ev := <-ch:
		return ev, true
	case <-time.After(time.Second):
		return replyguy.Event{}, false
	}
}

func TestIncrement(t *testing.T) {
	ctx := context.Background()
	c, badge, _ := newTestCounter(t, &memStore{})

	for want := 1; want <= 2; want++ {
		got, err := c.Increment(ctx)
		if err != nil {
			t.Fatalf("Increment() error = %v", err)
		}
		if got != want {
			t.Errorf("Increment() = %d, want %d", got, want)
		}
	}

	st, err := c.Status(ctx)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if st.Count != 2 {
		t.Errorf("Status().Count = %d, want 2", st.Count)
	}
	if st.RequiredReplies != replyguy.DefaultRequired {
		t.Errorf("Status().RequiredReplies = %d, want %d", st.RequiredReplies, replyguy.DefaultRequired)
	}

	if got := badge.lastState().Count; got != 2 {
		t.Errorf("badge last count = %d, want 2", got)
	}
	if got := badge.lastState().BadgeColor(); got != replyguy.BadgeColorPending {
		t.Errorf("badge color below quota = %q, want %q", got, replyguy.BadgeColorPending)
	}
}

func TestQuotaCelebrationFiresExactlyOnce(t *testing.T) {
	ctx := context.Background()
	c, badge, notifier := newTestCounter(t, &memStore{})
	events := c.Subscribe()

	for range replyguy.DefaultRequired {
		if _, err := c.Increment(ctx); err != nil {
			t.Fatalf("Increment() error = %v", err)
		}
	}

	ev, ok := drainEvent(t, events)
	if !ok {
		t.Fatal("no celebration published at quota")
	}
	if ev.Celebration == nil || !ev.Celebration.IsQuota {
		t.Fatalf("event = %+v, want quota celebration", ev)
	}
	if ev.Celebration.Milestone != replyguy.DefaultRequired || ev.Celebration.TotalCount != replyguy.DefaultRequired {
		t.Errorf("celebration = %+v, want milestone and total %d", ev.Celebration, replyguy.DefaultRequired)
	}

	if got := badge.lastState().BadgeColor(); got != replyguy.BadgeColorMet {
		t.Errorf("badge color at quota = %q, want %q", got, replyguy.BadgeColorMet)
	}

	// The fourth reply stays past quota and must not re-celebrate.
	if _, err := c.Increment(ctx); err != nil {
		t.Fatalf("Increment() error = %v", err)
	}
	_, quotaMet, _ := notifier.snapshot()
	if quotaMet != 1 {
		t.Errorf("quota notifications = %d, want 1", quotaMet)
	}
	if ev, ok := drainLeftover(events); ok {
		t.Errorf("unexpected extra event %+v", ev)
	}
}

func drainLeftover(ch <-chan replyguy.Event) (replyguy.Event, bool) {
	select {
	case ev := <-ch:
		return ev, true
	default:
		return replyguy.Event{}, false
	}
}

func TestMilestoneCelebration(t *testing.T) {
	ctx := context.Background()
	today := time.Now().Format(dateFormat)
	store := &memStore{
		st: replyguy.State{
			LastResetDate:           today,
			Count:                   49,
			RequiredReplies:         replyguy.DefaultRequired,
			LastCelebratedMilestone: 10,
			QuotaCelebratedToday:    true,
		},
		init: true,
	}
	c, _, notifier := newTestCounter(t, store)
	events := c.Subscribe()

	got, err := c.Increment(ctx)
	if err != nil {
		t.Fatalf("Increment() error = %v", err)
	}
	if got != 50 {
		t.Fatalf("Increment() = %d, want 50", got)
	}

	ev, ok := drainEvent(t, events)
	if !ok {
		t.Fatal("no milestone celebration published")
	}
	if ev.Celebration == nil || ev.Celebration.IsQuota {
		t.Fatalf("event = %+v, want non-quota celebration", ev)
	}
	if ev.Celebration.Milestone != 50 || ev.Celebration.TotalCount != 50 {
		t.Errorf("celebration = %+v, want milestone 50 at total 50", ev.Celebration)
	}

	_, _, milestones := notifier.snapshot()
	if len(milestones) != 1 || milestones[0] != 50 {
		t.Errorf("milestone notifications = %v, want [50]", milestones)
	}

	// 51 crosses nothing new.
	if _, err := c.Increment(ctx); err != nil {
		t.Fatalf("Increment() error = %v", err)
	}
	if ev, ok := drainLeftover(events); ok {
		t.Errorf("unexpected extra event %+v", ev)
	}
}

func TestNextMilestone(t *testing.T) {
	tests := []struct {
		count, lastCelebrated, want int
	}{
		{9, 0, 0},
		{10, 0, 10},
		{11, 10, 0},
		{50, 10, 50},
		{49, 10, 0},
		{1000, 500, 1000},
		{10, 10, 0},
	}
	for _, tt := range tests {
		if got := nextMilestone(tt.count, tt.lastCelebrated); got != tt.want {
			t.Errorf("nextMilestone(%d, %d) = %d, want %d", tt.count, tt.lastCelebrated, got, tt.want)
		}
	}
}

func TestDailyRollover(t *testing.T) {
	ctx := context.Background()
	store := &memStore{
		st: replyguy.State{
			LastResetDate:           "2026-08-30",
			Count:                   5,
			RequiredReplies:         4,
			LastCelebratedMilestone: 10,
			QuotaCelebratedToday:    true,
		},
		init: true,
	}
	badge := &fakeBadge{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := New(store, badge, &fakeNotifier{}, logger)
	c.nowFn = func() time.Time {
		return time.Date(2026, 8, 31, 9, 0, 0, 0, time.Local)
	}
	runCtx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	c.Start(runCtx)

	st, err := c.Status(ctx)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if st.Count != 0 {
		t.Errorf("Count after rollover = %d, want 0", st.Count)
	}
	if st.LastResetDate != "2026-08-31" {
		t.Errorf("LastResetDate = %q, want %q", st.LastResetDate, "2026-08-31")
	}
	if st.LastCelebratedMilestone != 0 || st.QuotaCelebratedToday {
		t.Error("celebration flags not cleared by rollover")
	}
	if st.RequiredReplies != 4 {
		t.Errorf("RequiredReplies = %d, rollover must not touch the quota", st.RequiredReplies)
	}

	// Same-day check is a no-op: no extra save.
	saves := store.saveCount()
	if _, err := c.Status(ctx); err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if got := store.saveCount(); got != saves {
		t.Errorf("second same-day check saved state (%d -> %d saves)", saves, got)
	}
}

func TestManualReset(t *testing.T) {
	ctx := context.Background()
	c, badge, _ := newTestCounter(t, &memStore{})

	for range 3 {
		if _, err := c.Increment(ctx); err != nil {
			t.Fatalf("Increment() error = %v", err)
		}
	}

	st, err := c.Reset(ctx)
	if err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if st.Count != 0 || st.QuotaCelebratedToday || st.LastCelebratedMilestone != 0 {
		t.Errorf("Reset() state = %+v, want zeroed count and flags", st)
	}
	if got := badge.lastState().Count; got != 0 {
		t.Errorf("badge count after reset = %d, want 0", got)
	}

	// Quota can be met again after a manual reset.
	for range replyguy.DefaultRequired {
		if _, err := c.Increment(ctx); err != nil {
			t.Fatalf("Increment() error = %v", err)
		}
	}
	st, _ = c.Status(ctx)
	if !st.QuotaCelebratedToday {
		t.Error("quota celebration suppressed after manual reset")
	}
}

func TestSetRequired(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newTestCounter(t, &memStore{})

	st, err := c.SetRequired(ctx, 5)
	if err != nil {
		t.Fatalf("SetRequired() error = %v", err)
	}
	if st.RequiredReplies != 5 {
		t.Errorf("RequiredReplies = %d, want 5", st.RequiredReplies)
	}

	st, err = c.SetRequired(ctx, 0)
	if err != nil {
		t.Fatalf("SetRequired() error = %v", err)
	}
	if st.RequiredReplies != 1 {
		t.Errorf("RequiredReplies after SetRequired(0) = %d, want 1", st.RequiredReplies)
	}
}

func TestUserLeftTab(t *testing.T) {
	ctx := context.Background()
	c, _, notifier := newTestCounter(t, &memStore{})
	events := c.Subscribe()

	if _, err := c.Increment(ctx); err != nil {
		t.Fatalf("Increment() error = %v", err)
	}
	if err := c.UserLeftTab(ctx); err != nil {
		t.Fatalf("UserLeftTab() error = %v", err)
	}

	roasts, _, _ := notifier.snapshot()
	if len(roasts) != 1 {
		t.Fatalf("roast notifications = %d, want 1", len(roasts))
	}

	ev, ok := drainEvent(t, events)
	if !ok {
		t.Fatal("no roast event published")
	}
	if ev.Roast == nil {
		t.Fatalf("event = %+v, want roast", ev)
	}
	if ev.Roast.Title != "(2 LEFT) DON'T LEAVE!" {
		t.Errorf("roast title = %q, want %q", ev.Roast.Title, "(2 LEFT) DON'T LEAVE!")
	}
	if ev.Roast.Count != 1 || ev.Roast.Required != replyguy.DefaultRequired {
		t.Errorf("roast = %+v, want count 1 of %d", ev.Roast, replyguy.DefaultRequired)
	}
}

func TestUserLeftTabQuotaMet(t *testing.T) {
	ctx := context.Background()
	c, _, notifier := newTestCounter(t, &memStore{})

	for range replyguy.DefaultRequired {
		if _, err := c.Increment(ctx); err != nil {
			t.Fatalf("Increment() error = %v", err)
		}
	}
	if err := c.UserLeftTab(ctx); err != nil {
		t.Fatalf("UserLeftTab() error = %v", err)
	}

	roasts, _, _ := notifier.snapshot()
	if len(roasts) != 0 {
		t.Errorf("roast sent with quota met: %v", roasts)
	}
}

func TestUnsubscribe(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newTestCounter(t, &memStore{})

	events := c.Subscribe()
	c.Unsubscribe(events)

	for range replyguy.DefaultRequired {
		if _, err := c.Increment(ctx); err != nil {
			t.Fatalf("Increment() error = %v", err)
		}
	}
	if ev, ok := drainLeftover(events); ok {
		t.Errorf("unsubscribed channel received %+v", ev)
	}
}

func TestRefreshBadge(t *testing.T) {
	ctx := context.Background()
	c, badge, _ := newTestCounter(t, &memStore{})

	if err := c.RefreshBadge(ctx); err != nil {
		t.Fatalf("RefreshBadge() error = %v", err)
	}
	if got := badge.lastState().RequiredReplies; got != replyguy.DefaultRequired {
		t.Errorf("badge required = %d, want %d", got, replyguy.DefaultRequired)
	}
}

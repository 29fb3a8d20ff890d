// Package counter owns the daily reply counter: a single-writer actor that
// serializes every state mutation, so concurrent increment requests cannot
// lose updates to a read-modify-write race.
package counter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"replyguy/notify"
	"replyguy/pkg/replyguy"
)

// Store persists counter state.
type Store interface {
	Load(ctx context.Context) (replyguy.State, error)
	Save(ctx context.Context, st replyguy.State) error
	LoadOrInit(ctx context.Context, today string) (replyguy.State, error)
}

// Badge reflects the current state on whatever badge surface exists.
type Badge interface {
	Update(st replyguy.State)
}

// Notifier delivers out-of-band nag and celebration messages.
type Notifier interface {
	SendRoast(ctx context.Context, roast string, count, required int)
	SendQuotaMet(ctx context.Context, count, required int)
	SendMilestone(ctx context.Context, milestone, total int)
}

// dateFormat is the local calendar day used for rollover comparison.
const dateFormat = "2006-01-02"

// defaultResetInterval is the backstop cadence for the daily-rollover check
// when no increments arrive for a long time.
const defaultResetInterval = 30 * time.Minute

type reqKind int

const (
	reqIncrement reqKind = iota
	reqReset
	reqSetRequired
	reqLeftTab
	reqRefreshBadge
	reqStatus
)

type request struct {
	ctx   context.Context
	kind  reqKind
	value int
	resp  chan response
}

type response struct {
	st  replyguy.State
	err error
}

// Counter is the authoritative counter process.
type Counter struct {
	store    Store
	badge    Badge
	notifier Notifier
	logger   *slog.Logger

	requests      chan request
	nowFn         func() time.Time
	resetInterval time.Duration

	subsMu sync.Mutex
	subs   []chan replyguy.Event
}

// New creates a counter. Call Start before issuing operations.
func New(store Store, badge Badge, notifier Notifier, logger *slog.Logger) *Counter {
	return &Counter{
		store:         store,
		badge:         badge,
		notifier:      notifier,
		logger:        logger,
		requests:      make(chan request),
		nowFn:         time.Now,
		resetInterval: defaultResetInterval,
	}
}

// Start launches the actor goroutine. It runs until ctx is cancelled.
func (c *Counter) Start(ctx context.Context) {
	go c.run(ctx)
}

func (c *Counter) run(ctx context.Context) {
	ticker := time.NewTicker(c.resetInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Counter stopping", "error", ctx.Err())
			return
		case <-ticker.C:
			// Backstop for long-lived execution with no traffic.
			if _, _, err := c.rolloverState(ctx); err != nil {
				c.logger.Warn("Periodic daily reset check failed", "error", err)
			}
		case req := <-c.requests:
			req.resp <- c.handle(req)
		}
	}
}

func (c *Counter) send(ctx context.Context, req request) (replyguy.State, error) {
	req.resp = make(chan response, 1)
	select {
	case c.requests <- req:
	case <-ctx.Done():
		return replyguy.State{}, fmt.Errorf("counter unavailable: %w", ctx.Err())
	}
	select {
	case res := <-req.resp:
		return res.st, res.err
	case <-ctx.Done():
		return replyguy.State{}, fmt.Errorf("counter unavailable: %w", ctx.Err())
	}
}

// Increment counts one confirmed reply and returns the new count.
func (c *Counter) Increment(ctx context.Context) (int, error) {
	st, err := c.send(ctx, request{ctx: ctx, kind: reqIncrement})
	if err != nil {
		return 0, err
	}
	return st.Count, nil
}

// Reset zeroes the counter and stamps today as the last reset date.
func (c *Counter) Reset(ctx context.Context) (replyguy.State, error) {
	return c.send(ctx, request{ctx: ctx, kind: reqReset})
}

// SetRequired updates the daily quota. Values below 1 are coerced to 1.
func (c *Counter) SetRequired(ctx context.Context, required int) (replyguy.State, error) {
	return c.send(ctx, request{ctx: ctx, kind: reqSetRequired, value: required})
}

// UserLeftTab runs the bullying path: below quota, it fires a roast
// notification and publishes a roast event for overlay renderers.
func (c *Counter) UserLeftTab(ctx context.Context) error {
	_, err := c.send(ctx, request{ctx: ctx, kind: reqLeftTab})
	return err
}

// RefreshBadge recomputes the badge from persisted state.
func (c *Counter) RefreshBadge(ctx context.Context) error {
	_, err := c.send(ctx, request{ctx: ctx, kind: reqRefreshBadge})
	return err
}

// Status returns the current state after a rollover check.
func (c *Counter) Status(ctx context.Context) (replyguy.State, error) {
	return c.send(ctx, request{ctx: ctx, kind: reqStatus})
}

func (c *Counter) handle(req request) response {
	switch req.kind {
	case reqIncrement:
		st, err := c.increment(req.ctx)
		return response{st: st, err: err}
	case reqReset:
		st, err := c.reset(req.ctx)
		return response{st: st, err: err}
	case reqSetRequired:
		st, err := c.setRequired(req.ctx, req.value)
		return response{st: st, err: err}
	case reqLeftTab:
		return response{err: c.leftTab(req.ctx)}
	case reqRefreshBadge:
		st, _, err := c.rolloverState(req.ctx)
		if err == nil {
			c.badge.Update(st)
		}
		return response{st: st, err: err}
	case reqStatus:
		st, _, err := c.rolloverState(req.ctx)
		return response{st: st, err: err}
	default:
		return response{err: errors.New("unknown request")}
	}
}

func (c *Counter) today() string {
	return c.nowFn().Format(dateFormat)
}

// rolloverState loads the state and applies the daily reset if the last
// reset date is not today. Idempotent: a second call the same day is a
// no-op. Returns the current state and whether a reset was applied.
func (c *Counter) rolloverState(ctx context.Context) (replyguy.State, bool, error) {
	today := c.today()
	st, err := c.store.LoadOrInit(ctx, today)
	if err != nil {
		return replyguy.State{}, false, fmt.Errorf("load state: %w", err)
	}
	if st.LastResetDate == today {
		return st, false, nil
	}

	c.logger.Info("Daily rollover",
		"previous_date", st.LastResetDate,
		"date", today,
		"final_count", st.Count)

	st.Count = 0
	st.LastResetDate = today
	st.LastCelebratedMilestone = 0
	st.QuotaCelebratedToday = false
	if err := c.store.Save(ctx, st); err != nil {
		return replyguy.State{}, false, fmt.Errorf("save reset state: %w", err)
	}
	c.badge.Update(st)
	return st, true, nil
}

// increment applies the rollover check, adds one reply, persists, updates
// the badge, and fires at-most-once threshold notifications.
func (c *Counter) increment(ctx context.Context) (replyguy.State, error) {
	st, _, err := c.rolloverState(ctx)
	if err != nil {
		return replyguy.State{}, err
	}

	st.Count++

	quotaJustMet := st.QuotaMet() && !st.QuotaCelebratedToday
	if quotaJustMet {
		st.QuotaCelebratedToday = true
	}

	milestone := nextMilestone(st.Count, st.LastCelebratedMilestone)
	if milestone > 0 {
		st.LastCelebratedMilestone = milestone
	}

	if err := c.store.Save(ctx, st); err != nil {
		return replyguy.State{}, fmt.Errorf("save state: %w", err)
	}
	c.badge.Update(st)

	c.logger.Info("Reply counted",
		"count", st.Count,
		"required", st.RequiredReplies,
		"quota_met", st.QuotaMet())

	if quotaJustMet {
		c.notifier.SendQuotaMet(ctx, st.Count, st.RequiredReplies)
		c.publish(replyguy.Event{Celebration: &replyguy.Celebration{
			Milestone:  st.RequiredReplies,
			TotalCount: st.Count,
			IsQuota:    true,
		}})
	}
	if milestone > 0 {
		c.notifier.SendMilestone(ctx, milestone, st.Count)
		c.publish(replyguy.Event{Celebration: &replyguy.Celebration{
			Milestone:  milestone,
			TotalCount: st.Count,
		}})
	}

	return st, nil
}

// nextMilestone returns the lowest threshold above lastCelebrated that
// count has reached, or 0. Thresholds at or below lastCelebrated stay
// suppressed until the next daily reset.
func nextMilestone(count, lastCelebrated int) int {
	for _, m := range replyguy.Milestones {
		if m <= lastCelebrated {
			continue
		}
		if count >= m {
			return m
		}
		break
	}
	return 0
}

func (c *Counter) reset(ctx context.Context) (replyguy.State, error) {
	today := c.today()
	st, err := c.store.LoadOrInit(ctx, today)
	if err != nil {
		return replyguy.State{}, fmt.Errorf("load state: %w", err)
	}

	st.Count = 0
	st.LastResetDate = today
	st.LastCelebratedMilestone = 0
	st.QuotaCelebratedToday = false
	if err := c.store.Save(ctx, st); err != nil {
		return replyguy.State{}, fmt.Errorf("save reset state: %w", err)
	}
	c.badge.Update(st)
	c.logger.Info("Counter manually reset", "date", today)
	return st, nil
}

func (c *Counter) setRequired(ctx context.Context, required int) (replyguy.State, error) {
	if required < 1 {
		required = 1
	}
	st, _, err := c.rolloverState(ctx)
	if err != nil {
		return replyguy.State{}, err
	}

	st.RequiredReplies = required
	if err := c.store.Save(ctx, st); err != nil {
		return replyguy.State{}, fmt.Errorf("save state: %w", err)
	}
	c.badge.Update(st)
	c.logger.Info("Required replies updated", "required", required)
	return st, nil
}

func (c *Counter) leftTab(ctx context.Context) error {
	st, _, err := c.rolloverState(ctx)
	if err != nil {
		return err
	}
	if st.QuotaMet() {
		return nil
	}

	roast := notify.RandomRoast()
	remaining := st.RequiredReplies - st.Count

	c.logger.Info("User left tab below quota",
		"count", st.Count,
		"required", st.RequiredReplies,
		"remaining", remaining)

	c.notifier.SendRoast(ctx, roast, st.Count, st.RequiredReplies)
	c.publish(replyguy.Event{Roast: &replyguy.Roast{
		Message:  roast,
		Title:    notify.TabTitle(remaining),
		Count:    st.Count,
		Required: st.RequiredReplies,
	}})
	return nil
}

// Subscribe returns a channel of celebration/roast events. Delivery is
// best-effort: a subscriber that is not draining gets skipped, never
// blocked on.
func (c *Counter) Subscribe() <-chan replyguy.Event {
	ch := make(chan replyguy.Event, 16)
	c.subsMu.Lock()
	c.subs = append(c.subs, ch)
	c.subsMu.Unlock()
	return ch
}

// Unsubscribe removes a subscription channel.
func (c *Counter) Unsubscribe(ch <-chan replyguy.Event) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	for i, sub := range c.subs {
		if sub == ch {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			return
		}
	}
}

func (c *Counter) publish(ev replyguy.Event) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	for _, ch := range c.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

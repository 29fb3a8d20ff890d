// Package track correlates reply-opener clicks with the composer that
// materializes afterwards, and watches attached composers for submits.
//
// The two-step flow (click a reply control, composer appears later, maybe in
// a modal, maybe inline) cannot be correlated synchronously, so an opener
// click mints a short-lived token that the next unmarked composer consumes.
package track

import (
	"context"
	"crypto/rand"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"replyguy/classify"
	"replyguy/page"
)

// Selectors for the host page's current markup. These drift with the host
// and are kept in one place so updates stay mechanical.
const (
	openerSelector = `[data-testid="reply"], [data-testid="replyButton"], div[aria-label*="Reply"], button[aria-label*="Reply"]`

	submitSelector = `button[data-testid="tweetButton"], button[data-testid="tweetButtonInline"], [data-testid="tweetButton"], [data-testid="tweetButtonInline"], div[role="button"][aria-label*="Post"], button[aria-label*="Post"]`

	candidateSelector = `div[role="dialog"], div[aria-label*="Reply"], div[data-testid="tweetTextarea_0"]`

	dialogSelector = `div[role="dialog"]`

	editableSelector = `[contenteditable="true"]`
)

// Counter receives increment requests for confirmed reply submissions.
type Counter interface {
	Increment(ctx context.Context) (newCount int, err error)
}

// Config holds the tracker's timing knobs. Production values tolerate the
// host UI's animation and render latency; tests shrink them.
type Config struct {
	ScanDelays   []time.Duration // Staggered composer scans after an opener click
	TokenTTL     time.Duration   // Live token expiry since last relevant activity
	ConfirmDelay time.Duration   // Wait after submit before requesting an increment
}

// DefaultConfig returns production timing.
func DefaultConfig() Config {
	return Config{
		ScanDelays:   []time.Duration{250 * time.Millisecond, 800 * time.Millisecond},
		TokenTTL:     1200 * time.Millisecond,
		ConfirmDelay: 500 * time.Millisecond,
	}
}

// Tracker owns attribution state for one page. All per-node state lives in
// side tables keyed by page.NodeID; host nodes are never mutated.
type Tracker struct {
	pg         *page.Page
	classifier *classify.Classifier
	counter    Counter
	logger     *slog.Logger
	cfg        Config

	ctx context.Context

	mu        sync.Mutex
	marks     map[page.NodeID]string // composer -> opener token (permanent once set)
	attached  map[page.NodeID]page.Node
	liveToken string
	expiry    *time.Timer
}

// New creates a tracker, subscribes it to the page's event stream, and runs
// the initial composer scan. ctx bounds the increment requests issued from
// timer callbacks.
func New(ctx context.Context, pg *page.Page, classifier *classify.Classifier, counter Counter, logger *slog.Logger, cfg Config) *Tracker {
	t := &Tracker{
		pg:         pg,
		classifier: classifier,
		counter:    counter,
		logger:     logger,
		cfg:        cfg,
		ctx:        ctx,
		marks:      make(map[page.NodeID]string),
		attached:   make(map[page.NodeID]page.Node),
	}
	pg.Subscribe(t.onEvent)
	t.scanAndMark("")
	return t
}

func (t *Tracker) onEvent(ev page.Event) {
	switch ev.Kind {
	case page.Mutation:
		t.onMutation(ev.Target)
	case page.Click:
		t.onClick(ev.Target)
	case page.Keydown:
		t.onKeydown(ev.Target, ev.Key, ev.Mod)
	}
}

// OpenerActivated mints a fresh token, makes it the single live one (the
// most recent reply click wins), and schedules the staggered scans.
func (t *Tracker) OpenerActivated() {
	entropy := ulid.Monotonic(rand.Reader, 0)
	token := ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()

	t.mu.Lock()
	t.liveToken = token
	t.armExpiryLocked()
	t.mu.Unlock()

	t.logger.Debug("Opener activated", "token", token)

	for _, d := range t.cfg.ScanDelays {
		time.AfterFunc(d, func() { t.scanAndMark(token) })
	}
}

// armExpiryLocked re-arms the token expiry timer. Called with t.mu held on
// opener activation and on every relevant mutation, so the token survives
// as long as the UI is still rendering the composer it opened.
func (t *Tracker) armExpiryLocked() {
	if t.expiry != nil {
		t.expiry.Stop()
	}
	t.expiry = time.AfterFunc(t.cfg.TokenTTL, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.liveToken != "" {
			t.logger.Debug("Opener token expired", "token", t.liveToken)
			t.liveToken = ""
		}
	})
}

// scanAndMark searches current candidate composer surfaces for the first
// one not yet marked that contains an editable region, and marks it with
// the given token. An empty token only attaches submit listeners. Safe to
// fire after its precondition lapsed; it no-ops.
func (t *Tracker) scanAndMark(token string) {
	for _, cand := range t.pg.Find(candidateSelector) {
		composer := cand
		if dlg, ok := cand.Closest(dialogSelector); ok {
			composer = dlg
		}
		if !composer.Has(editableSelector) {
			continue
		}

		t.mu.Lock()
		marked := t.markLocked(composer, token)
		t.attachLocked(composer)
		t.mu.Unlock()

		if marked {
			// First unmarked composer consumes the token.
			return
		}
	}
}

// onMutation covers composers that appear too late for the scheduled scans.
// Cheap containment checks run before anything else: the watcher sees every
// structural change the host page makes.
func (t *Tracker) onMutation(added page.Node) {
	if !added.Valid() {
		return
	}
	if !added.Has(editableSelector) && !added.Has(submitSelector) && !added.Is(editableSelector) {
		return
	}

	composer := added
	if dlg, ok := added.Closest(dialogSelector); ok {
		composer = dlg
	}

	t.mu.Lock()
	if t.liveToken != "" {
		t.markLocked(composer, t.liveToken)
		t.armExpiryLocked()
	}
	t.attachLocked(composer)
	t.mu.Unlock()
}

// markLocked records the composer as reply-originated. Once marked, a
// composer stays marked; re-marking is a no-op. Returns whether a new mark
// was written.
func (t *Tracker) markLocked(composer page.Node, token string) bool {
	if token == "" || !composer.Valid() {
		return false
	}
	id := composer.ID()
	if _, ok := t.marks[id]; ok {
		return false
	}
	t.marks[id] = token
	t.logger.Debug("Composer marked as reply-originated", "node", int(id), "token", token)
	return true
}

// attachLocked registers the composer for submit detection. Guarded per
// node so repeated registrations cannot double count.
func (t *Tracker) attachLocked(composer page.Node) {
	if !composer.Valid() {
		return
	}
	id := composer.ID()
	if _, ok := t.attached[id]; ok {
		return
	}
	t.attached[id] = composer
	t.logger.Debug("Submit listeners attached", "node", int(id))
}

// Marked reports whether the composer has been attributed to a reply open.
func (t *Tracker) Marked(composer page.Node) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.marks[composer.ID()]
	return ok
}

// Token returns the opener token assigned to the composer, if any.
func (t *Tracker) Token(composer page.Node) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tok, ok := t.marks[composer.ID()]
	return tok, ok
}

// LiveToken returns the currently live opener token, if any.
func (t *Tracker) LiveToken() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.liveToken, t.liveToken != ""
}

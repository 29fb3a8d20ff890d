package track

import (
	"context"
	"time"

	"replyguy/classify"
	"replyguy/page"
)

// onClick routes pointer activations: a reply-opener click mints a token, a
// submit-control click inside an attached composer starts the confirm path.
func (t *Tracker) onClick(target page.Node) {
	if !target.Valid() {
		return
	}

	if _, ok := target.Closest(openerSelector); ok {
		t.OpenerActivated()
		return
	}

	btn, ok := target.Closest(submitSelector)
	if !ok {
		return
	}
	composer, ok := t.enclosingAttached(btn)
	if !ok {
		return
	}
	t.submit(composer, "click")
}

// onKeydown handles the platform-modifier+Enter submit shortcut while focus
// is inside an editable region of an attached composer.
func (t *Tracker) onKeydown(target page.Node, key string, mod bool) {
	if !mod || key != "Enter" || !target.Valid() {
		return
	}
	if _, ok := target.Closest(editableSelector); !ok {
		return
	}
	composer, ok := t.enclosingAttached(target)
	if !ok {
		return
	}
	t.submit(composer, "keyboard")
}

// enclosingAttached finds the attached composer containing the node.
func (t *Tracker) enclosingAttached(nd page.Node) (page.Node, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, composer := range t.attached {
		if composer.Contains(nd) {
			return composer, true
		}
	}
	return page.Node{}, false
}

// submit classifies the composer at the moment of firing, not at attach
// time: the marked state can become true between the two. On a reply it
// waits out the confirm delay so the host page can process the submission,
// then requests exactly one increment.
func (t *Tracker) submit(composer page.Node, channel string) {
	snap := classify.Snapshot{
		Composer: composer,
		PageURL:  t.pg.URL(),
		Marked:   t.Marked(composer),
	}
	verdict, rule := t.classifier.Classify(snap)
	if verdict != classify.Reply {
		t.logger.Debug("Submit ignored, composer not a reply",
			"node", int(composer.ID()),
			"channel", channel,
			"verdict", verdict.String())
		return
	}

	t.logger.Info("Reply submit detected",
		"node", int(composer.ID()),
		"channel", channel,
		"rule", rule,
		"confirm_delay", t.cfg.ConfirmDelay.String())

	time.AfterFunc(t.cfg.ConfirmDelay, func() {
		ctx, cancel := context.WithTimeout(t.ctx, 10*time.Second)
		defer cancel()

		// Counting must never surface an error into the host page.
		newCount, err := t.counter.Increment(ctx)
		if err != nil {
			t.logger.Warn("Increment request failed", "error", err)
			return
		}
		t.logger.Info("Reply counted", "new_count", newCount)
	})
}

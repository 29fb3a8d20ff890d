// Package classify decides whether a compose surface is authoring a reply
// to another post or a standalone post.
//
// The rules are best-effort heuristics against a third-party page's current
// markup, so the rule set is versioned and replaceable configuration rather
// than logic baked into the attribution and counting code.
package classify

import (
	"regexp"
	"strings"

	"replyguy/page"
)

// Verdict is the outcome of classifying a composer snapshot.
type Verdict int

const (
	// Unknown means no rule fired. Counting code treats this as
	// not-a-reply: undercounting beats miscounting standalone posts.
	Unknown Verdict = iota
	// Reply means the composer is answering another post.
	Reply
	// Post means the composer is a standalone post. No current rule
	// produces it, but downstream code must handle it.
	Post
)

// String implements fmt.Stringer.
func (v Verdict) String() string {
	switch v {
	case Reply:
		return "reply"
	case Post:
		return "post"
	default:
		return "unknown"
	}
}

// Snapshot is the pure input to classification: the composer's current DOM
// state plus the attribution facts the tracker has recorded about it.
type Snapshot struct {
	Composer page.Node
	PageURL  string
	Marked   bool // Attribution tracker saw this composer open from a reply control
}

// Rule is a single heuristic. Rules fire in order; the first match wins.
type Rule struct {
	Name  string
	Match func(Snapshot) bool
}

// RuleSet is an ordered, versioned collection of heuristics.
type RuleSet struct {
	Version string
	Rules   []Rule
}

var replyingToRegex = regexp.MustCompile(`(?i)(replying\s+to|in\s+reply\s+to)`)

// DefaultRules returns the canonical rule set, ordered from high-confidence
// explicit signals down to incidental ones so the cheap certain checks
// short-circuit before fragile DOM queries run.
func DefaultRules() RuleSet {
	return RuleSet{
		Version: "2024-05",
		Rules: []Rule{
			{
				// The user clicked a reply control to open this
				// composer. Intent beats text inspection.
				Name: "attribution-mark",
				Match: func(s Snapshot) bool {
					return s.Marked
				},
			},
			{
				Name: "replying-to-text",
				Match: func(s Snapshot) bool {
					return replyingToRegex.MatchString(s.Composer.Text())
				},
			},
			{
				Name: "reply-context-element",
				Match: func(s Snapshot) bool {
					return s.Composer.Has(`[aria-label*="Replying"], [data-reply-context]`)
				},
			},
			{
				// On a single-post permalink page any nearby
				// composer is almost certainly a reply.
				Name: "permalink-page",
				Match: func(s Snapshot) bool {
					return strings.Contains(s.PageURL, "/status/")
				},
			},
			{
				// Quoted original rendered inline. Weakest signal:
				// any embedded card can trigger it.
				Name: "inline-article",
				Match: func(s Snapshot) bool {
					return s.Composer.Has("article")
				},
			},
		},
	}
}

// Classifier applies a rule set to composer snapshots.
type Classifier struct {
	rules RuleSet
}

// New creates a classifier with the given rule set.
func New(rules RuleSet) *Classifier {
	return &Classifier{rules: rules}
}

// Default creates a classifier with the canonical rule set.
func Default() *Classifier {
	return New(DefaultRules())
}

// Version returns the active rule set version.
func (c *Classifier) Version() string { return c.rules.Version }

// Classify evaluates the rules in order against the snapshot. It is a pure
// function of the snapshot's current state.
func (c *Classifier) Classify(s Snapshot) (Verdict, string) {
	if !s.Composer.Valid() && !s.Marked {
		return Unknown, ""
	}
	for _, r := range c.rules.Rules {
		if r.Match(s) {
			return Reply, r.Name
		}
	}
	return Unknown, ""
}

// IsReply reports whether the snapshot classifies as a reply. Unknown and
// Post both count as no.
func (c *Classifier) IsReply(s Snapshot) bool {
	v, _ := c.Classify(s)
	return v == Reply
}

// Package notify delivers the out-of-band nag and celebration messages via
// pluggable providers.
package notify

import (
	"context"
	"log/slog"
)

// Provider defines the interface for message delivery implementations.
type Provider interface {
	// Send delivers a message with the given subject and HTML body.
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// Sender sends quota notifications using a pluggable provider.
//
// Delivery failure is never fatal: the daemon logs it and moves on, since a
// missed nag must not take down the counter.
type Sender struct {
	provider Provider
	logger   *slog.Logger
	to       string // Recipient address
	fromAddr string // From address for providers that need one
}

// New creates a sender with the given provider.
func New(provider Provider, logger *slog.Logger, to, fromAddr string) *Sender {
	return &Sender{
		provider: provider,
		logger:   logger,
		to:       to,
		fromAddr: fromAddr,
	}
}

// SendRoast delivers the "you left the tab below quota" nag.
func (s *Sender) SendRoast(ctx context.Context, roast string, count, required int) {
	subject := "GET BACK TO WORK"
	body := s.formatRoastBody(roast, count, required)

	s.logger.Info("Sending roast notification",
		"to", s.to,
		"count", count,
		"required", required)

	if err := s.provider.Send(ctx, s.to, subject, body); err != nil {
		s.logger.Warn("Roast notification failed", "error", err)
	}
}

// SendQuotaMet delivers the quota-met congratulation.
func (s *Sender) SendQuotaMet(ctx context.Context, count, required int) {
	subject := "Daily reply quota met"
	body := s.formatQuotaBody(count, required)

	s.logger.Info("Sending quota-met notification", "to", s.to, "count", count)

	if err := s.provider.Send(ctx, s.to, subject, body); err != nil {
		s.logger.Warn("Quota-met notification failed", "error", err)
	}
}

// SendMilestone delivers a milestone celebration.
func (s *Sender) SendMilestone(ctx context.Context, milestone, total int) {
	subject := CelebrationHeadline(milestone)
	body := s.formatMilestoneBody(milestone, total)

	s.logger.Info("Sending milestone notification",
		"to", s.to,
		"milestone", milestone,
		"total", total)

	if err := s.provider.Send(ctx, s.to, subject, body); err != nil {
		s.logger.Warn("Milestone notification failed", "error", err)
	}
}

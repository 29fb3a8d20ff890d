package notify

import (
	"context"
	"log/slog"
)

// MockProvider logs messages instead of delivering them, for local runs.
type MockProvider struct {
	logger *slog.Logger
}

// NewMockProvider creates a mock provider.
func NewMockProvider(logger *slog.Logger) *MockProvider {
	return &MockProvider{logger: logger}
}

// Send logs the message instead of sending it.
func (m *MockProvider) Send(_ context.Context, to, subject, htmlBody string) error {
	m.logger.Info("MOCK NOTIFICATION",
		"to", to,
		"subject", subject,
		"body_length", len(htmlBody))
	return nil
}

// Package main runs the reply-quota background daemon: the authoritative
// counter process that page contexts report reply submissions to, and that
// drives the badge, the nag notifications, and the celebration events.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"replyguy/counter"
	"replyguy/notify"
	"replyguy/pkg/replyguy"
	"replyguy/server"
	"replyguy/storage"
)

func main() {
	ctx := context.Background()

	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Check for local development mode
	localStorage := os.Getenv("LOCAL_STORAGE")
	bucket := os.Getenv("STORAGE_BUCKET")

	// Default to local development mode if no bucket specified
	if bucket == "" && localStorage == "" {
		localStorage = "./data"
		logger.Info("No STORAGE_BUCKET set, defaulting to local development mode", "storage_path", localStorage)
	}

	var store *storage.Store
	if localStorage != "" {
		logger.Info("Running in local development mode", "storage_path", localStorage)
		if err := os.MkdirAll(localStorage, 0o755); err != nil {
			logger.Error("Failed to create local storage directory", "error", err)
			os.Exit(1)
		}
		store = storage.New(nil, "", localStorage, logger)
	} else {
		storageClient, err := gcs.NewClient(ctx)
		if err != nil {
			logger.Error("Failed to initialize Storage client", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := storageClient.Close(); err != nil {
				logger.Warn("Failed to close storage client", "error", err)
			}
		}()
		store = storage.New(storageClient, bucket, "", logger)
	}

	// Every persisted change re-renders the badge, so writes that bypass the
	// counter's own badge calls still surface.
	badge := &logBadge{logger: logger}
	store.OnChange(badge.Update)

	sender := notify.New(initProvider(ctx, logger), logger, notifyTo(), os.Getenv("NOTIFY_FROM"))

	cnt := counter.New(store, badge, sender, logger)
	cnt.Start(ctx)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	srv := server.New(cnt, logger)
	if err := srv.Start(port); err != nil {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

// logBadge mirrors the badge onto the log stream. The HTTP /badge endpoint
// is the surface real badge renderers poll.
type logBadge struct {
	logger *slog.Logger
}

func (b *logBadge) Update(st replyguy.State) {
	b.logger.Info("Badge updated",
		"text", st.Count,
		"color", st.BadgeColor(),
		"title", st.BadgeTitle())
}

func notifyTo() string {
	if to := os.Getenv("NOTIFY_TO"); to != "" {
		return to
	}
	return "you@localhost"
}

// initProvider picks the notification provider from the environment,
// falling back to the mock provider for local development.
func initProvider(ctx context.Context, logger *slog.Logger) notify.Provider {
	switch os.Getenv("NOTIFY_PROVIDER") {
	case "brevo":
		apiKey := os.Getenv("BREVO_API_KEY")
		if apiKey == "" {
			logger.Warn("NOTIFY_PROVIDER=brevo but no BREVO_API_KEY, using mock provider")
			return notify.NewMockProvider(logger)
		}
		return notify.NewBrevoProvider(apiKey, os.Getenv("NOTIFY_FROM"), "Reply Guy", logger)
	case "gmail":
		service, err := initGmailService(ctx)
		if err != nil {
			logger.Warn("Failed to initialize Gmail service, using mock provider", "error", err)
			return notify.NewMockProvider(logger)
		}
		return notify.NewGmailProvider(service, logger)
	default:
		logger.Info("Mock notification mode enabled (set NOTIFY_PROVIDER to brevo or gmail)")
		return notify.NewMockProvider(logger)
	}
}

// isCloudRun checks if we're running in a GCP environment by querying the metadata server.
func isCloudRun(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://metadata.google.internal/computeMetadata/v1/project/project-id", nil)
	if err != nil {
		return false
	}
	req.Header.Set("Metadata-Flavor", "Google")

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	return resp.StatusCode == http.StatusOK
}

func initGmailService(ctx context.Context) (*gmail.Service, error) {
	// Try explicit credentials first (for local development)
	credsJSON := os.Getenv("GOOGLE_CREDENTIALS_JSON")
	if credsJSON != "" {
		return gmail.NewService(ctx, option.WithCredentialsJSON([]byte(credsJSON)))
	}

	// In Cloud Run, Application Default Credentials carry the service
	// account; it needs the gmail.send scope.
	if isCloudRun(ctx) {
		return gmail.NewService(ctx)
	}

	return nil, errors.New("GOOGLE_CREDENTIALS_JSON required when not running in Cloud Run")
}

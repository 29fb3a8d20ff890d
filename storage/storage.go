// Package storage persists the daily counter state and notifies observers
// of changes, backed by either a local directory or a Cloud Storage bucket.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/storage"
	"github.com/codeGROOVE-dev/retry"

	"replyguy/pkg/replyguy"
)

// stateKey is the single object the whole system reads and writes.
const stateKey = "counter-state.json"

// Store handles counter-state persistence.
type Store struct {
	client    *storage.Client
	logger    *slog.Logger
	localPath string
	bucket    string

	mu       sync.Mutex
	onChange []func(replyguy.State)
}

// New creates a storage handler. When localPath is non-empty the store runs
// against the local filesystem; otherwise it uses the bucket.
func New(client *storage.Client, bucket, localPath string, logger *slog.Logger) *Store {
	return &Store{
		client:    client,
		logger:    logger,
		localPath: localPath,
		bucket:    bucket,
	}
}

// OnChange registers a callback invoked after every successful save. This is
// the change-notification surface options UIs watch for live count updates.
func (s *Store) OnChange(fn func(replyguy.State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = append(s.onChange, fn)
}

func (s *Store) notifyChange(st replyguy.State) {
	s.mu.Lock()
	callbacks := make([]func(replyguy.State), len(s.onChange))
	copy(callbacks, s.onChange)
	s.mu.Unlock()
	for _, fn := range callbacks {
		fn(st)
	}
}

// DefaultState returns the install-time state for the given local day.
func DefaultState(today string) replyguy.State {
	return replyguy.State{
		Count:           0,
		RequiredReplies: replyguy.DefaultRequired,
		LastResetDate:   today,
	}
}

// Save persists the state.
func (s *Store) Save(ctx context.Context, st replyguy.State) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	// Local filesystem storage
	if s.localPath != "" {
		filePath := filepath.Join(s.localPath, stateKey)
		if err := os.WriteFile(filePath, data, 0o600); err != nil {
			return fmt.Errorf("write to local storage: %w", err)
		}
		s.logger.Debug("State saved to local storage", "path", filePath, "count", st.Count)
		s.notifyChange(st)
		return nil
	}

	// Cloud Storage with retry logic for reliability
	err = retry.Do(
		func() error {
			w := s.client.Bucket(s.bucket).Object(stateKey).NewWriter(ctx)
			if _, writeErr := w.Write(data); writeErr != nil {
				if closeErr := w.Close(); closeErr != nil {
					s.logger.Warn("Failed to close writer after error", "error", closeErr)
				}
				return fmt.Errorf("write to storage: %w", writeErr)
			}
			if closeErr := w.Close(); closeErr != nil {
				return fmt.Errorf("close storage writer: %w", closeErr)
			}
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(2*time.Minute),
		retry.MaxJitter(10*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, retryErr error) {
			s.logger.Info("Retrying save operation after error", "attempt", n, "error", retryErr)
		}),
	)
	if err != nil {
		return fmt.Errorf("save after retries: %w", err)
	}

	s.logger.Debug("State saved", "key", stateKey, "count", st.Count)
	s.notifyChange(st)
	return nil
}

// Load reads the persisted state.
func (s *Store) Load(ctx context.Context) (replyguy.State, error) {
	var data []byte

	// Local filesystem storage
	if s.localPath != "" {
		var err error
		filePath := filepath.Join(s.localPath, stateKey)
		data, err = os.ReadFile(filePath)
		if err != nil {
			if os.IsNotExist(err) {
				return replyguy.State{}, errors.New("storage: object doesn't exist")
			}
			return replyguy.State{}, fmt.Errorf("read from local storage: %w", err)
		}
	} else {
		// Cloud Storage with retry logic for reliability
		var readData []byte
		err := retry.Do(
			func() error {
				r, openErr := s.client.Bucket(s.bucket).Object(stateKey).NewReader(ctx)
				if openErr != nil {
					// Don't retry on "not found" errors
					if errors.Is(openErr, storage.ErrObjectNotExist) {
						return retry.Unrecoverable(fmt.Errorf("open storage reader: %w", openErr))
					}
					return fmt.Errorf("open storage reader: %w", openErr)
				}
				defer func() {
					if closeErr := r.Close(); closeErr != nil {
						s.logger.Warn("Failed to close storage reader", "error", closeErr)
					}
				}()

				var readErr error
				readData, readErr = io.ReadAll(r)
				if readErr != nil {
					return fmt.Errorf("read from storage: %w", readErr)
				}
				return nil
			},
			retry.Attempts(3),
			retry.Delay(time.Second),
			retry.MaxDelay(2*time.Minute),
			retry.MaxJitter(10*time.Second),
			retry.Context(ctx),
			retry.OnRetry(func(n uint, retryErr error) {
				s.logger.Info("Retrying load operation after error", "attempt", n, "error", retryErr)
			}),
		)
		if err != nil {
			return replyguy.State{}, fmt.Errorf("load after retries: %w", err)
		}
		data = readData
	}

	var st replyguy.State
	if err := json.Unmarshal(data, &st); err != nil {
		return replyguy.State{}, fmt.Errorf("unmarshal state: %w", err)
	}
	if st.RequiredReplies < 1 {
		st.RequiredReplies = replyguy.DefaultRequired
	}
	return st, nil
}

// LoadOrInit reads the persisted state, creating and persisting the defaults
// on first run.
func (s *Store) LoadOrInit(ctx context.Context, today string) (replyguy.State, error) {
	st, err := s.Load(ctx)
	if err == nil {
		return st, nil
	}
	if !IsNotFound(err) {
		return replyguy.State{}, err
	}

	st = DefaultState(today)
	if saveErr := s.Save(ctx, st); saveErr != nil {
		return replyguy.State{}, fmt.Errorf("initialize state: %w", saveErr)
	}
	s.logger.Info("Initialized default state", "required_replies", st.RequiredReplies, "date", today)
	return st, nil
}

// IsNotFound checks if an error indicates the state object was not found.
func IsNotFound(err error) bool {
	return err != nil && strings.Contains(err.Error(), "storage: object doesn't exist")
}

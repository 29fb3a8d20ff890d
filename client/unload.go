package client

import (
	"context"
	"encoding/json"
	"time"
)

// UnloadPrompt is the confirm-leave text for a close attempt blocked below
// quota.
const UnloadPrompt = "You haven't hit your reply quota yet. Are you sure?"

// defaultQuotaPollInterval is how often the quota cache is refreshed when
// the caller does not pick an interval.
const defaultQuotaPollInterval = 30 * time.Second

type statusResponse struct {
	Count    int  `json:"count"`
	Required int  `json:"required"`
	QuotaMet bool `json:"quotaMet"`
}

// RefreshQuota fetches the daemon's quota standing into the synchronous
// cache. On failure the last known status is kept: a dead daemon must not
// flip the unload behavior.
func (c *Client) RefreshQuota(ctx context.Context) {
	resp, err := c.get(ctx, "/status")
	if err != nil {
		c.logger.Debug("Quota refresh dropped, daemon unavailable", "error", err)
		return
	}
	defer c.closeBody(resp)

	var out statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		c.logger.Debug("Quota status unusable", "error", err)
		return
	}

	c.quotaMu.Lock()
	c.quotaKnown = true
	c.quotaMet = out.QuotaMet
	c.quotaMu.Unlock()
}

// WatchQuota refreshes the quota cache once immediately, then on every tick
// until ctx is cancelled. Unload handlers read the cache through
// ShouldBlockUnload; the authoritative check is asynchronous and cannot run
// inside one.
func (c *Client) WatchQuota(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = defaultQuotaPollInterval
	}
	c.RefreshQuota(ctx)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.RefreshQuota(ctx)
			}
		}
	}()
}

// ShouldBlockUnload reports whether a close attempt should raise the native
// confirm-leave prompt: the last known quota status is unmet. An unknown
// status never blocks.
func (c *Client) ShouldBlockUnload() bool {
	c.quotaMu.Lock()
	defer c.quotaMu.Unlock()
	return c.quotaKnown && !c.quotaMet
}

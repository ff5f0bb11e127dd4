// sweeper/sweeper.go
package sweeper

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	logger "github.com/dealflowhq/dealflow/core/logging"
)

// Sweeper reconciles entries the TTL mechanism alone cannot remove:
// sessions and tokens written without an expiry (for example after a
// partial failure) whose payload says they are past due. It is
// non-critical; a failed sweep is logged and retried next cycle, never
// escalated.
type Sweeper struct {
	client   *redis.Client
	interval time.Duration
}

// recordPatterns covers every record the credential lifecycle writes.
var recordPatterns = []string{
	"tenant:*:session:*:record",
	"tenant:*:token:*:record",
	"tenant:*:tokenfamily:*:record",
}

type expirable struct {
	ExpiresAt time.Time `json:"expires_at"`
}

func New(client *redis.Client) *Sweeper {
	interval := viper.GetDuration("sweeper.interval")
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweeper{client: client, interval: interval}
}

// Start runs the sweep loop until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				removed, err := s.Sweep(ctx)
				if err != nil {
					logger.Warn("Sweep failed, will retry next cycle", zap.Error(err))
					continue
				}
				logger.Info("Sweep completed", zap.Int("removed", removed))
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Sweep scans for orphaned records and deletes the expired ones together
// with their sibling facets.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	removed := 0
	for _, pattern := range recordPatterns {
		n, err := s.sweepPattern(ctx, pattern)
		removed += n
		if err != nil {
			return removed, err
		}
	}
	return removed, nil
}

func (s *Sweeper) sweepPattern(ctx context.Context, pattern string) (int, error) {
	removed := 0
	iter := s.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()

		ttl, err := s.client.TTL(ctx, key).Result()
		if err != nil {
			logger.Debug("Skipping key, TTL lookup failed", zap.Error(err), zap.String("key", key))
			continue
		}
		// -1 means no expiry was set; anything with a TTL will reclaim
		// itself.
		if ttl != -1*time.Second {
			continue
		}

		payload, err := s.client.Get(ctx, key).Result()
		if err != nil {
			continue
		}
		var record expirable
		if err := json.Unmarshal([]byte(payload), &record); err != nil || record.ExpiresAt.IsZero() {
			continue
		}
		if time.Now().UTC().Before(record.ExpiresAt) {
			continue
		}

		base := strings.TrimSuffix(key, ":record")
		if err := s.client.Del(ctx, key, base+":state", base+":members").Err(); err != nil {
			logger.Warn("Failed to delete orphaned record", zap.Error(err), zap.String("key", key))
			continue
		}
		removed++
		logger.Debug("Removed orphaned record", zap.String("key", key))
	}
	if err := iter.Err(); err != nil {
		return removed, err
	}
	return removed, nil
}

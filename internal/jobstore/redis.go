package jobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JonMunkholm/custupload/internal/core"
)

var _ core.JobStore = (*Redis)(nil)

const redisKeyPrefix = "custupload:report:"

// Redis stores reports as JSON with a TTL so any instance can answer
// status queries.
type Redis struct {
	client redis.UniversalClient
}

// NewRedis creates a Redis-backed JobStore.
func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{client: client}
}

func reportKey(jobID string) string {
	return redisKeyPrefix + jobID
}

// Save writes report under its job id. A non-positive ttl keeps it until
// deleted.
func (r *Redis) Save(ctx context.Context, report *core.OutcomeReport, ttl time.Duration) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report %s: %w", report.JobID, err)
	}
	if ttl < 0 {
		ttl = 0
	}
	if err := r.client.Set(ctx, reportKey(report.JobID), data, ttl).Err(); err != nil {
		return fmt.Errorf("save report %s: %w", report.JobID, err)
	}
	return nil
}

// Get loads a report or returns core.ErrJobNotFound.
func (r *Redis) Get(ctx context.Context, jobID string) (*core.OutcomeReport, error) {
	data, err := r.client.Get(ctx, reportKey(jobID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, core.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load report %s: %w", jobID, err)
	}

	var report core.OutcomeReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", jobID, err)
	}
	return &report, nil
}

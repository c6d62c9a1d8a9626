package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/codebuildervaibhav/briefly/internal/types"
)

// DefaultRedisTTL bounds how long mirrored jobs live in redis.
const DefaultRedisTTL = 7 * 24 * time.Hour

// RedisConfig configures the redis mirror.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// RedisMirror mirrors job status into redis: one JSON document per job
// and a per-owner sorted set scored by update time.
type RedisMirror struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient opens a client and checks the connection.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return client, nil
}

// NewRedisMirror wraps an existing client.
func NewRedisMirror(client *redis.Client, ttl time.Duration) *RedisMirror {
	if ttl <= 0 {
		ttl = DefaultRedisTTL
	}
	return &RedisMirror{client: client, ttl: ttl}
}

func jobKey(jobID string) string {
	return fmt.Sprintf("job:%s", jobID)
}

func ownerKey(ownerID string) string {
	return fmt.Sprintf("owner:%s:jobs", ownerID)
}

// UpsertJob stores the status document and indexes it under the owner.
func (m *RedisMirror) UpsertJob(ctx context.Context, st types.JobStatus, ownerID string, updatedAt time.Time) error {
	rec, err := m.GetJob(ctx, st.JobID)
	if err != nil && !errors.Is(err, ErrJobNotFound) {
		return err
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = updatedAt
	}
	rec.JobID = st.JobID
	rec.OwnerID = ownerID
	if st.OwnerEmail != "" {
		rec.OwnerEmail = st.OwnerEmail
	}
	rec.Status = st.Status
	rec.Progress = st.Progress
	rec.Message = st.Message
	rec.Summary = st.Summary
	rec.UpdatedAt = updatedAt

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal job %s: %w", st.JobID, err)
	}

	_, err = m.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, jobKey(st.JobID), data, m.ttl)
		pipe.ZAdd(ctx, ownerKey(ownerID), redis.Z{Score: float64(updatedAt.UnixMilli()), Member: st.JobID})
		pipe.Expire(ctx, ownerKey(ownerID), m.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to mirror job %s: %w", st.JobID, err)
	}
	return nil
}

// GetJob reads one mirrored job.
func (m *RedisMirror) GetJob(ctx context.Context, jobID string) (JobRecord, error) {
	val, err := m.client.Get(ctx, jobKey(jobID)).Result()
	if errors.Is(err, redis.Nil) {
		return JobRecord{}, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	if err != nil {
		return JobRecord{}, fmt.Errorf("failed to get job %s: %w", jobID, err)
	}

	var rec JobRecord
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return JobRecord{}, fmt.Errorf("corrupt job document %s: %w", jobID, err)
	}
	return rec, nil
}

// ListJobs returns the owner's jobs, most recently updated first. Ids whose
// documents already expired are skipped.
func (m *RedisMirror) ListJobs(ctx context.Context, ownerID string, limit int) ([]JobRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	ids, err := m.client.ZRevRange(ctx, ownerKey(ownerID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	jobs := make([]JobRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := m.GetJob(ctx, id)
		if errors.Is(err, ErrJobNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, rec)
	}
	return jobs, nil
}

package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/meetscribe/api/internal/joberr"
	"github.com/meetscribe/api/internal/model"
)

// RedisJobStore keeps each job as a JSON value under job:<id>, with a
// per-owner sorted set (scored by creation time) for newest-first listing
// and a jobs:active:<ownerId> key as the admission slot.
type RedisJobStore struct {
	redis *redis.Client
}

func NewRedisJobStore(redisClient *redis.Client) *RedisJobStore {
	return &RedisJobStore{redis: redisClient}
}

func jobKey(id string) string        { return fmt.Sprintf("job:%s", id) }
func ownerKey(ownerID string) string { return fmt.Sprintf("jobs:owner:%s", ownerID) }
func activeKey(ownerID string) string {
	return fmt.Sprintf("jobs:active:%s", ownerID)
}

func (s *RedisJobStore) Upsert(ctx context.Context, job *model.TranscriptionJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	// Jobs are kept until explicitly deleted; no TTL.
	if err := s.redis.Set(ctx, jobKey(job.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	return s.redis.ZAdd(ctx, ownerKey(job.OwnerID), redis.Z{
		Score:  float64(job.CreatedAt.UnixNano()),
		Member: job.ID,
	}).Err()
}

func (s *RedisJobStore) Get(ctx context.Context, id string) (*model.TranscriptionJob, error) {
	data, err := s.redis.Get(ctx, jobKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, joberr.ErrJobNotFound
		}
		return nil, err
	}

	var job model.TranscriptionJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &job, nil
}

func (s *RedisJobStore) ListByOwner(ctx context.Context, ownerID string) ([]*model.TranscriptionJob, error) {
	ids, err := s.redis.ZRevRange(ctx, ownerKey(ownerID), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	jobs := make([]*model.TranscriptionJob, 0, len(ids))
	for _, id := range ids {
		job, err := s.Get(ctx, id)
		if err != nil {
			if err == joberr.ErrJobNotFound {
				// Index entry outlived the record; drop it.
				s.redis.ZRem(ctx, ownerKey(ownerID), id)
				continue
			}
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (s *RedisJobStore) ListByOwnerAndStatus(ctx context.Context, ownerID string, statuses ...model.JobStatus) ([]*model.TranscriptionJob, error) {
	all, err := s.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	var jobs []*model.TranscriptionJob
	for _, job := range all {
		for _, st := range statuses {
			if job.Status == st {
				jobs = append(jobs, job)
				break
			}
		}
	}
	return jobs, nil
}

func (s *RedisJobStore) Delete(ctx context.Context, id string) error {
	job, err := s.Get(ctx, id)
	if err != nil {
		if err == joberr.ErrJobNotFound {
			return nil
		}
		return err
	}
	if err := s.redis.Del(ctx, jobKey(id)).Err(); err != nil {
		return err
	}
	return s.redis.ZRem(ctx, ownerKey(job.OwnerID), id).Err()
}

func (s *RedisJobStore) AcquireActive(ctx context.Context, ownerID, jobID string) (bool, error) {
	return s.redis.SetNX(ctx, activeKey(ownerID), jobID, 0).Result()
}

func (s *RedisJobStore) ReleaseActive(ctx context.Context, ownerID, jobID string) error {
	holder, err := s.redis.Get(ctx, activeKey(ownerID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil
		}
		return err
	}
	if holder != jobID {
		return nil
	}
	return s.redis.Del(ctx, activeKey(ownerID)).Err()
}

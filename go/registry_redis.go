package slurmproxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisJobKeyPrefix  = "monitor:job:"
	redisUUIDKeyPrefix = "monitor:task:"
)

// RedisRegistry implements JobRegistry on a Redis server. The record is
// stored as JSON under the job-id key, with a secondary key mapping the task
// uuid back to the job id. A transactional watch on both keys keeps the
// uniqueness invariants under concurrent upserts.
type RedisRegistry struct {
	client *redis.Client
}

// NewRedisRegistry creates a new RedisRegistry instance from a redis URL.
func NewRedisRegistry(redisURL string) (*RedisRegistry, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, &PersistenceError{Op: "parse redis URL", Err: err}
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, &PersistenceError{Op: "connect", Err: err}
	}

	return &RedisRegistry{client: client}, nil
}

func redisJobKey(slurmJobID int) string {
	return fmt.Sprintf("%s%d", redisJobKeyPrefix, slurmJobID)
}

func redisUUIDKey(taskUUID string) string {
	return redisUUIDKeyPrefix + taskUUID
}

func (r *RedisRegistry) Upsert(record *JobRecord) error {
	ctx := context.Background()
	jobKey := redisJobKey(record.SlurmJobID)
	uuidKey := redisUUIDKey(record.Task.UUID)

	txf := func(tx *redis.Tx) error {
		existingJSON, err := tx.Get(ctx, jobKey).Result()
		if err == nil {
			var existing JobRecord
			if err := json.Unmarshal([]byte(existingJSON), &existing); err != nil {
				return &PersistenceError{Op: "decode record", Err: err}
			}
			if existing.Task.UUID == record.Task.UUID {
				return nil
			}
			return &DuplicateError{Field: "slurm_job_id", Value: strconv.Itoa(record.SlurmJobID)}
		}
		if !errors.Is(err, redis.Nil) {
			return &PersistenceError{Op: "upsert lookup", Err: err}
		}

		if _, err := tx.Get(ctx, uuidKey).Result(); err == nil {
			return &DuplicateError{Field: "task uuid", Value: record.Task.UUID}
		} else if !errors.Is(err, redis.Nil) {
			return &PersistenceError{Op: "upsert lookup", Err: err}
		}

		stored := *record
		if stored.CreatedAt.IsZero() {
			stored.CreatedAt = time.Now().UTC()
		}
		stored.UpdatedAt = stored.CreatedAt
		encoded, err := json.Marshal(&stored)
		if err != nil {
			return &PersistenceError{Op: "encode record", Err: err}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, jobKey, encoded, 0)
			pipe.Set(ctx, uuidKey, strconv.Itoa(record.SlurmJobID), 0)
			return nil
		})
		return err
	}

	if err := r.client.Watch(ctx, txf, jobKey, uuidKey); err != nil {
		var dup *DuplicateError
		var pe *PersistenceError
		if errors.As(err, &dup) || errors.As(err, &pe) {
			return err
		}
		return &PersistenceError{Op: "upsert", Err: err}
	}
	return nil
}

func (r *RedisRegistry) FindBySlurmJobID(slurmJobID int) (*JobRecord, error) {
	ctx := context.Background()
	encoded, err := r.client.Get(ctx, redisJobKey(slurmJobID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, &NotFoundError{Key: "slurm_job_id", Value: strconv.Itoa(slurmJobID)}
	}
	if err != nil {
		return nil, &PersistenceError{Op: "find by slurm_job_id", Err: err}
	}
	var record JobRecord
	if err := json.Unmarshal([]byte(encoded), &record); err != nil {
		return nil, &PersistenceError{Op: "decode record", Err: err}
	}
	return &record, nil
}

func (r *RedisRegistry) FindByTaskUUID(taskUUID string) (*JobRecord, error) {
	ctx := context.Background()
	jobIDStr, err := r.client.Get(ctx, redisUUIDKey(taskUUID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, &NotFoundError{Key: "task uuid", Value: taskUUID}
	}
	if err != nil {
		return nil, &PersistenceError{Op: "find by task uuid", Err: err}
	}
	slurmJobID, err := strconv.Atoi(jobIDStr)
	if err != nil {
		return nil, &PersistenceError{Op: "decode task uuid index", Err: err}
	}
	return r.FindBySlurmJobID(slurmJobID)
}

// scanAll walks every job key and decodes the records.
func (r *RedisRegistry) scanAll() ([]*JobRecord, error) {
	ctx := context.Background()
	var records []*JobRecord
	iter := r.client.Scan(ctx, 0, redisJobKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		encoded, err := r.client.Get(ctx, iter.Val()).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, &PersistenceError{Op: "scan", Err: err}
		}
		var record JobRecord
		if err := json.Unmarshal([]byte(encoded), &record); err != nil {
			return nil, &PersistenceError{Op: "decode record", Err: err}
		}
		records = append(records, &record)
	}
	if err := iter.Err(); err != nil {
		return nil, &PersistenceError{Op: "scan", Err: err}
	}
	return records, nil
}

func (r *RedisRegistry) FindByState(state string) ([]*JobRecord, error) {
	all, err := r.scanAll()
	if err != nil {
		return nil, err
	}
	var records []*JobRecord
	for _, record := range all {
		if record.SlurmJobState == state {
			records = append(records, record)
		}
	}
	return records, nil
}

func (r *RedisRegistry) UpdateState(slurmJobID int, state string) error {
	record, err := r.FindBySlurmJobID(slurmJobID)
	if err != nil {
		return err
	}
	record.SlurmJobState = state
	record.UpdatedAt = time.Now().UTC()
	encoded, err := json.Marshal(record)
	if err != nil {
		return &PersistenceError{Op: "encode record", Err: err}
	}
	if err := r.client.Set(context.Background(), redisJobKey(slurmJobID), encoded, 0).Err(); err != nil {
		return &PersistenceError{Op: "update state", Err: err}
	}
	return nil
}

func (r *RedisRegistry) Delete(slurmJobID int) (*JobRecord, error) {
	record, err := r.FindBySlurmJobID(slurmJobID)
	if err != nil {
		return nil, err
	}
	ctx := context.Background()
	if err := r.client.Del(ctx, redisJobKey(slurmJobID), redisUUIDKey(record.Task.UUID)).Err(); err != nil {
		return nil, &PersistenceError{Op: "delete", Err: err}
	}
	return record, nil
}

func (r *RedisRegistry) Scan(maxAge time.Duration) ([]*JobRecord, error) {
	all, err := r.scanAll()
	if err != nil {
		return nil, err
	}
	if maxAge <= 0 {
		return all, nil
	}
	cutoff := time.Now().UTC().Add(-maxAge)
	var records []*JobRecord
	for _, record := range all {
		if record.CreatedAt.Before(cutoff) {
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

func (r *RedisRegistry) Ping() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.client.Ping(ctx).Err(); err != nil {
		return &PersistenceError{Op: "ping", Err: err}
	}
	return nil
}

func (r *RedisRegistry) Close() error {
	return r.client.Close()
}

// assert that RedisRegistry implements JobRegistry at compile-time rather
// than run-time
var _ JobRegistry = (*RedisRegistry)(nil)

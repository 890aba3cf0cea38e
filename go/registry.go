package slurmproxy

import (
	"fmt"
	"strconv"
	"sync"
	"time"
)

// JobRegistry is the durable store of monitored jobs. Records are keyed both
// by the scheduler job id and by the client-supplied task uuid, and each key
// is unique across the registry. All mutating operations are atomic with
// respect to those uniqueness invariants.
type JobRegistry interface {
	// Upsert inserts the record if neither key exists yet. Re-inserting the
	// same (slurm_job_id, task uuid) pair is a no-op; a record that collides
	// with an existing one on only one of the two keys is a DuplicateError.
	Upsert(record *JobRecord) error

	// FindBySlurmJobID returns the record for the scheduler job id, or a
	// NotFoundError.
	FindBySlurmJobID(slurmJobID int) (*JobRecord, error)

	// FindByTaskUUID returns the record for the task uuid, or a NotFoundError.
	FindByTaskUUID(taskUUID string) (*JobRecord, error)

	// FindByState returns every record currently in the given state.
	FindByState(state string) ([]*JobRecord, error)

	// UpdateState sets the job state and refreshes the updated_at timestamp.
	// Writing the state a record already holds is a benign no-op beyond the
	// timestamp refresh.
	UpdateState(slurmJobID int, state string) error

	// Delete removes the record and returns it, or a NotFoundError.
	Delete(slurmJobID int) (*JobRecord, error)

	// Scan returns records created within the trailing maxAge window, for
	// the poller. A maxAge <= 0 returns every record.
	Scan(maxAge time.Duration) ([]*JobRecord, error)

	// Ping verifies the backend is reachable.
	Ping() error

	// Close releases the backend connection.
	Close() error
}

// NewJobRegistry constructs the registry backend selected by the
// configuration.
func NewJobRegistry(config RegistryConfig) (JobRegistry, error) {
	switch config.Backend {
	case "mongodb":
		return NewMongoRegistry(config)
	case "sqlite":
		return NewSQLiteRegistry(config.SQLitePath)
	case "redis":
		return NewRedisRegistry(config.RedisURL)
	case "memory":
		return NewInMemoryRegistry(), nil
	}
	return nil, &PersistenceError{
		Op:  "select backend",
		Err: fmt.Errorf("unknown registry backend: %s", config.Backend),
	}
}

// InMemoryRegistry implements JobRegistry with mutex-protected maps. It is
// intended for tests and local development; state does not survive restarts.
type InMemoryRegistry struct {
	mu     sync.RWMutex
	byID   map[int]*JobRecord
	byUUID map[string]*JobRecord
}

// NewInMemoryRegistry creates a new InMemoryRegistry instance.
func NewInMemoryRegistry() *InMemoryRegistry {
	return &InMemoryRegistry{
		byID:   make(map[int]*JobRecord),
		byUUID: make(map[string]*JobRecord),
	}
}

func (r *InMemoryRegistry) Upsert(record *JobRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existingByID, haveID := r.byID[record.SlurmJobID]
	_, haveUUID := r.byUUID[record.Task.UUID]
	if haveID && existingByID.Task.UUID == record.Task.UUID {
		return nil
	}
	if haveID {
		return &DuplicateError{Field: "slurm_job_id", Value: strconv.Itoa(record.SlurmJobID)}
	}
	if haveUUID {
		return &DuplicateError{Field: "task uuid", Value: record.Task.UUID}
	}

	stored := *record
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	stored.UpdatedAt = stored.CreatedAt
	r.byID[stored.SlurmJobID] = &stored
	r.byUUID[stored.Task.UUID] = &stored
	return nil
}

func (r *InMemoryRegistry) FindBySlurmJobID(slurmJobID int) (*JobRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.byID[slurmJobID]
	if !ok {
		return nil, &NotFoundError{Key: "slurm_job_id", Value: strconv.Itoa(slurmJobID)}
	}
	copied := *record
	return &copied, nil
}

func (r *InMemoryRegistry) FindByTaskUUID(taskUUID string) (*JobRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.byUUID[taskUUID]
	if !ok {
		return nil, &NotFoundError{Key: "task uuid", Value: taskUUID}
	}
	copied := *record
	return &copied, nil
}

func (r *InMemoryRegistry) FindByState(state string) ([]*JobRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var records []*JobRecord
	for _, record := range r.byID {
		if record.SlurmJobState == state {
			copied := *record
			records = append(records, &copied)
		}
	}
	return records, nil
}

func (r *InMemoryRegistry) UpdateState(slurmJobID int, state string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.byID[slurmJobID]
	if !ok {
		return &NotFoundError{Key: "slurm_job_id", Value: strconv.Itoa(slurmJobID)}
	}
	record.SlurmJobState = state
	record.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *InMemoryRegistry) Delete(slurmJobID int) (*JobRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.byID[slurmJobID]
	if !ok {
		return nil, &NotFoundError{Key: "slurm_job_id", Value: strconv.Itoa(slurmJobID)}
	}
	delete(r.byID, slurmJobID)
	delete(r.byUUID, record.Task.UUID)
	return record, nil
}

func (r *InMemoryRegistry) Scan(maxAge time.Duration) ([]*JobRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cutoff := time.Time{}
	if maxAge > 0 {
		cutoff = time.Now().UTC().Add(-maxAge)
	}
	var records []*JobRecord
	for _, record := range r.byID {
		if record.CreatedAt.Before(cutoff) {
			continue
		}
		copied := *record
		records = append(records, &copied)
	}
	return records, nil
}

func (r *InMemoryRegistry) Ping() error {
	return nil
}

func (r *InMemoryRegistry) Close() error {
	return nil
}

// assert that InMemoryRegistry implements JobRegistry at compile-time rather
// than run-time
var _ JobRegistry = (*InMemoryRegistry)(nil)

package slurmproxy

import (
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteRegistry implements JobRegistry on a local SQLite database. The task
// is stored as a JSON column; uniqueness of both keys is enforced by the
// schema.
type SQLiteRegistry struct {
	db *sql.DB
}

// NewSQLiteRegistry opens (or creates) the database at the given path and
// prepares the jobs table.
func NewSQLiteRegistry(dbPath string) (*SQLiteRegistry, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, &PersistenceError{Op: "open database", Err: err}
	}

	createTableSQL := `
	CREATE TABLE IF NOT EXISTS jobs (
		slurm_job_id INTEGER PRIMARY KEY,
		task_uuid TEXT NOT NULL UNIQUE,
		slurm_username TEXT NOT NULL,
		slurm_job_state TEXT NOT NULL,
		task_json TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_jobs_state ON jobs(slurm_job_state);
	CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs(created_at);
	`
	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, &PersistenceError{Op: "create table", Err: err}
	}

	return &SQLiteRegistry{db: db}, nil
}

func (r *SQLiteRegistry) Upsert(record *JobRecord) error {
	tx, err := r.db.Begin()
	if err != nil {
		return &PersistenceError{Op: "begin upsert", Err: err}
	}
	defer tx.Rollback()

	var existingUUID string
	err = tx.QueryRow("SELECT task_uuid FROM jobs WHERE slurm_job_id = ?", record.SlurmJobID).Scan(&existingUUID)
	if err == nil {
		if existingUUID == record.Task.UUID {
			return nil
		}
		return &DuplicateError{Field: "slurm_job_id", Value: strconv.Itoa(record.SlurmJobID)}
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return &PersistenceError{Op: "upsert lookup", Err: err}
	}

	var count int
	if err := tx.QueryRow("SELECT COUNT(*) FROM jobs WHERE task_uuid = ?", record.Task.UUID).Scan(&count); err != nil {
		return &PersistenceError{Op: "upsert lookup", Err: err}
	}
	if count > 0 {
		return &DuplicateError{Field: "task uuid", Value: record.Task.UUID}
	}

	taskJSON, err := json.Marshal(record.Task)
	if err != nil {
		return &PersistenceError{Op: "encode task", Err: err}
	}
	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err = tx.Exec(
		"INSERT INTO jobs (slurm_job_id, task_uuid, slurm_username, slurm_job_state, task_json, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		record.SlurmJobID, record.Task.UUID, record.SlurmUsername, record.SlurmJobState, string(taskJSON), createdAt, createdAt,
	)
	if err != nil {
		return &PersistenceError{Op: "insert", Err: err}
	}
	if err := tx.Commit(); err != nil {
		return &PersistenceError{Op: "commit upsert", Err: err}
	}
	return nil
}

// scanRecord decodes one jobs row into a JobRecord.
func scanRecord(scanner interface {
	Scan(dest ...interface{}) error
}) (*JobRecord, error) {
	var record JobRecord
	var taskJSON string
	err := scanner.Scan(
		&record.SlurmJobID,
		&record.SlurmUsername,
		&record.SlurmJobState,
		&taskJSON,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(taskJSON), &record.Task); err != nil {
		return nil, err
	}
	return &record, nil
}

const selectColumns = "slurm_job_id, slurm_username, slurm_job_state, task_json, created_at, updated_at"

func (r *SQLiteRegistry) FindBySlurmJobID(slurmJobID int) (*JobRecord, error) {
	row := r.db.QueryRow("SELECT "+selectColumns+" FROM jobs WHERE slurm_job_id = ?", slurmJobID)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Key: "slurm_job_id", Value: strconv.Itoa(slurmJobID)}
	}
	if err != nil {
		return nil, &PersistenceError{Op: "find by slurm_job_id", Err: err}
	}
	return record, nil
}

func (r *SQLiteRegistry) FindByTaskUUID(taskUUID string) (*JobRecord, error) {
	row := r.db.QueryRow("SELECT "+selectColumns+" FROM jobs WHERE task_uuid = ?", taskUUID)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Key: "task uuid", Value: taskUUID}
	}
	if err != nil {
		return nil, &PersistenceError{Op: "find by task uuid", Err: err}
	}
	return record, nil
}

func (r *SQLiteRegistry) queryMany(query string, args ...interface{}) ([]*JobRecord, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, &PersistenceError{Op: "query", Err: err}
	}
	defer rows.Close()

	var records []*JobRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, &PersistenceError{Op: "decode record", Err: err}
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, &PersistenceError{Op: "iterate records", Err: err}
	}
	return records, nil
}

func (r *SQLiteRegistry) FindByState(state string) ([]*JobRecord, error) {
	return r.queryMany("SELECT "+selectColumns+" FROM jobs WHERE slurm_job_state = ?", state)
}

func (r *SQLiteRegistry) UpdateState(slurmJobID int, state string) error {
	result, err := r.db.Exec(
		"UPDATE jobs SET slurm_job_state = ?, updated_at = ? WHERE slurm_job_id = ?",
		state, time.Now().UTC(), slurmJobID,
	)
	if err != nil {
		return &PersistenceError{Op: "update state", Err: err}
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return &PersistenceError{Op: "update state", Err: err}
	}
	if affected == 0 {
		return &NotFoundError{Key: "slurm_job_id", Value: strconv.Itoa(slurmJobID)}
	}
	return nil
}

func (r *SQLiteRegistry) Delete(slurmJobID int) (*JobRecord, error) {
	record, err := r.FindBySlurmJobID(slurmJobID)
	if err != nil {
		return nil, err
	}
	if _, err := r.db.Exec("DELETE FROM jobs WHERE slurm_job_id = ?", slurmJobID); err != nil {
		return nil, &PersistenceError{Op: "delete", Err: err}
	}
	return record, nil
}

func (r *SQLiteRegistry) Scan(maxAge time.Duration) ([]*JobRecord, error) {
	if maxAge <= 0 {
		return r.queryMany("SELECT " + selectColumns + " FROM jobs")
	}
	cutoff := time.Now().UTC().Add(-maxAge)
	return r.queryMany("SELECT "+selectColumns+" FROM jobs WHERE created_at >= ?", cutoff)
}

func (r *SQLiteRegistry) Ping() error {
	if err := r.db.Ping(); err != nil {
		return &PersistenceError{Op: "ping", Err: err}
	}
	return nil
}

func (r *SQLiteRegistry) Close() error {
	return r.db.Close()
}

// assert that SQLiteRegistry implements JobRegistry at compile-time rather
// than run-time
var _ JobRegistry = (*SQLiteRegistry)(nil)

package slurmproxy

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MongoRegistry implements JobRegistry on a MongoDB collection. This is the
// primary backend: one document per monitored job, with unique indexes on
// slurm_job_id and task.uuid so the uniqueness invariants hold even across
// concurrent upserts.
type MongoRegistry struct {
	client     *mongo.Client
	collection *mongo.Collection
	timeout    time.Duration
}

// NewMongoRegistry connects to MongoDB and prepares the jobs collection,
// creating the unique indexes if they do not exist yet.
func NewMongoRegistry(config RegistryConfig) (*MongoRegistry, error) {
	timeout := config.MongoTimeout
	if timeout == 0 {
		timeout = time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(config.MongoURI).
		SetServerSelectionTimeout(timeout))
	if err != nil {
		return nil, &PersistenceError{Op: "connect", Err: err}
	}

	collection := client.Database(config.MongoDatabase).Collection(config.MongoCollection)
	registry := &MongoRegistry{
		client:     client,
		collection: collection,
		timeout:    timeout,
	}

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "slurm_job_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "task.uuid", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}
	if _, err := collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return nil, &PersistenceError{Op: "create indexes", Err: err}
	}

	return registry, nil
}

// ctx returns a bounded context for one backend operation.
func (r *MongoRegistry) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), r.timeout)
}

func (r *MongoRegistry) Upsert(record *JobRecord) error {
	ctx, cancel := r.ctx()
	defer cancel()

	var existing JobRecord
	err := r.collection.FindOne(ctx, bson.M{"slurm_job_id": record.SlurmJobID}).Decode(&existing)
	if err == nil {
		if existing.Task.UUID == record.Task.UUID {
			return nil
		}
		return &DuplicateError{Field: "slurm_job_id", Value: strconv.Itoa(record.SlurmJobID)}
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return &PersistenceError{Op: "upsert lookup", Err: err}
	}

	stored := *record
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	stored.UpdatedAt = stored.CreatedAt
	if _, err := r.collection.InsertOne(ctx, &stored); err != nil {
		// The unique indexes reject a concurrent insert of either key.
		if mongo.IsDuplicateKeyError(err) {
			return &DuplicateError{Field: "task uuid", Value: record.Task.UUID}
		}
		return &PersistenceError{Op: "insert", Err: err}
	}
	return nil
}

func (r *MongoRegistry) findOne(filter bson.M, key, value string) (*JobRecord, error) {
	ctx, cancel := r.ctx()
	defer cancel()

	var record JobRecord
	err := r.collection.FindOne(ctx, filter).Decode(&record)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, &NotFoundError{Key: key, Value: value}
	}
	if err != nil {
		return nil, &PersistenceError{Op: fmt.Sprintf("find by %s", key), Err: err}
	}
	return &record, nil
}

func (r *MongoRegistry) FindBySlurmJobID(slurmJobID int) (*JobRecord, error) {
	return r.findOne(bson.M{"slurm_job_id": slurmJobID}, "slurm_job_id", strconv.Itoa(slurmJobID))
}

func (r *MongoRegistry) FindByTaskUUID(taskUUID string) (*JobRecord, error) {
	return r.findOne(bson.M{"task.uuid": taskUUID}, "task uuid", taskUUID)
}

func (r *MongoRegistry) FindByState(state string) ([]*JobRecord, error) {
	return r.findMany(bson.M{"slurm_job_state": state})
}

func (r *MongoRegistry) findMany(filter bson.M) ([]*JobRecord, error) {
	ctx, cancel := r.ctx()
	defer cancel()

	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, &PersistenceError{Op: "find", Err: err}
	}
	defer cursor.Close(ctx)

	var records []*JobRecord
	for cursor.Next(ctx) {
		var record JobRecord
		if err := cursor.Decode(&record); err != nil {
			return nil, &PersistenceError{Op: "decode record", Err: err}
		}
		records = append(records, &record)
	}
	if err := cursor.Err(); err != nil {
		return nil, &PersistenceError{Op: "iterate records", Err: err}
	}
	return records, nil
}

func (r *MongoRegistry) UpdateState(slurmJobID int, state string) error {
	ctx, cancel := r.ctx()
	defer cancel()

	result, err := r.collection.UpdateOne(ctx,
		bson.M{"slurm_job_id": slurmJobID},
		bson.M{"$set": bson.M{
			"slurm_job_state": state,
			"updated_at":      time.Now().UTC(),
		}},
	)
	if err != nil {
		return &PersistenceError{Op: "update state", Err: err}
	}
	if result.MatchedCount == 0 {
		return &NotFoundError{Key: "slurm_job_id", Value: strconv.Itoa(slurmJobID)}
	}
	// MatchedCount > 0 with ModifiedCount == 0 means the state was already
	// current, which is a benign no-op.
	return nil
}

func (r *MongoRegistry) Delete(slurmJobID int) (*JobRecord, error) {
	ctx, cancel := r.ctx()
	defer cancel()

	var record JobRecord
	err := r.collection.FindOneAndDelete(ctx, bson.M{"slurm_job_id": slurmJobID}).Decode(&record)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, &NotFoundError{Key: "slurm_job_id", Value: strconv.Itoa(slurmJobID)}
	}
	if err != nil {
		return nil, &PersistenceError{Op: "delete", Err: err}
	}
	return &record, nil
}

func (r *MongoRegistry) Scan(maxAge time.Duration) ([]*JobRecord, error) {
	filter := bson.M{}
	if maxAge > 0 {
		filter["created_at"] = bson.M{"$gte": time.Now().UTC().Add(-maxAge)}
	}
	return r.findMany(filter)
}

func (r *MongoRegistry) Ping() error {
	ctx, cancel := r.ctx()
	defer cancel()

	if err := r.client.Ping(ctx, readpref.Primary()); err != nil {
		return &PersistenceError{Op: "ping", Err: err}
	}
	return nil
}

func (r *MongoRegistry) Close() error {
	ctx, cancel := r.ctx()
	defer cancel()
	return r.client.Disconnect(ctx)
}

// assert that MongoRegistry implements JobRegistry at compile-time rather
// than run-time
var _ JobRegistry = (*MongoRegistry)(nil)

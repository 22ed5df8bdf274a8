package repositories

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"crawler-api/internal/models"
	apperrors "crawler-api/pkg/errors"
)

// JobRepository persists Job records in the "jobs" collection.
type JobRepository struct {
	coll *mongo.Collection
}

func NewJobRepository(db *mongo.Database) *JobRepository {
	return &JobRepository{coll: db.Collection("jobs")}
}

func parseID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, apperrors.ErrNotFound
	}
	return oid, nil
}

// Create inserts a new queued job and assigns its id.
func (r *JobRepository) Create(ctx context.Context, job *models.Job) error {
	now := time.Now().UTC()
	job.ID = primitive.NewObjectID()
	job.Status = models.JobStatusQueued
	job.Progress = models.Progress{Stage: models.StageStarting, Percentage: 0}
	job.CreatedAt = now
	job.UpdatedAt = now

	_, err := r.coll.InsertOne(ctx, job)
	return err
}

func (r *JobRepository) FindByID(ctx context.Context, id string) (*models.Job, error) {
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	return r.findOne(ctx, bson.M{"_id": oid})
}

// FindForOwner looks a job up scoped to its owning user.
func (r *JobRepository) FindForOwner(ctx context.Context, id, owner string) (*models.Job, error) {
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	return r.findOne(ctx, bson.M{"_id": oid, "owner": owner})
}

func (r *JobRepository) findOne(ctx context.Context, filter bson.M) (*models.Job, error) {
	var job models.Job
	if err := r.coll.FindOne(ctx, filter).Decode(&job); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &job, nil
}

// ListByOwner returns the user's jobs, newest first.
func (r *JobRepository) ListByOwner(ctx context.Context, owner string) ([]models.Job, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cursor, err := r.coll.Find(ctx, bson.M{"owner": owner}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	jobs := []models.Job{}
	if err := cursor.All(ctx, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// UpdateProgress records per-stage progress reported by the executor. The
// first progress event moves the job into processing.
func (r *JobRepository) UpdateProgress(ctx context.Context, id string, p models.Progress, attempts int) error {
	oid, err := parseID(id)
	if err != nil {
		return err
	}
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": bson.M{
		"status":    models.JobStatusProcessing,
		"progress":  p,
		"attempts":  attempts,
		"updatedAt": time.Now().UTC(),
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// MarkCompleted finalizes a job and returns the updated record.
func (r *JobRepository) MarkCompleted(ctx context.Context, id string) (*models.Job, error) {
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}

	update := bson.M{"$set": bson.M{
		"status":              models.JobStatusCompleted,
		"progress.stage":      models.StageCompleted,
		"progress.percentage": 100,
		"updatedAt":           time.Now().UTC(),
	}}

	var job models.Job
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	if err := r.coll.FindOneAndUpdate(ctx, bson.M{"_id": oid}, update, opts).Decode(&job); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &job, nil
}

// MarkFailed records the terminal failure and returns the updated record.
func (r *JobRepository) MarkFailed(ctx context.Context, id, reason string, attempts int) (*models.Job, error) {
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}

	update := bson.M{"$set": bson.M{
		"status":    models.JobStatusFailed,
		"error":     reason,
		"attempts":  attempts,
		"updatedAt": time.Now().UTC(),
	}}

	var job models.Job
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	if err := r.coll.FindOneAndUpdate(ctx, bson.M{"_id": oid}, update, opts).Decode(&job); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &job, nil
}

// ResetForRetry re-arms a failed job for a fresh enqueue. The status filter
// makes the reset conditional, so a concurrent transition loses cleanly.
func (r *JobRepository) ResetForRetry(ctx context.Context, id string) error {
	oid, err := parseID(id)
	if err != nil {
		return err
	}

	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": oid, "status": models.JobStatusFailed},
		bson.M{
			"$set": bson.M{
				"status":    models.JobStatusQueued,
				"progress":  models.Progress{Stage: models.StageRequeued, Percentage: 0},
				"attempts":  0,
				"updatedAt": time.Now().UTC(),
			},
			"$unset": bson.M{"error": ""},
			"$inc":   bson.M{"manualRetries": 1},
		})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return apperrors.ErrInvalidState
	}
	return nil
}

// AttachResult links a persisted result to its job.
func (r *JobRepository) AttachResult(ctx context.Context, id string, ref primitive.ObjectID, kind models.ResultKind) error {
	oid, err := parseID(id)
	if err != nil {
		return err
	}
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": bson.M{
		"resultRef":  ref,
		"resultKind": kind,
		"updatedAt":  time.Now().UTC(),
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// Delete removes a job owned by the given user.
func (r *JobRepository) Delete(ctx context.Context, id, owner string) error {
	oid, err := parseID(id)
	if err != nil {
		return err
	}
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": oid, "owner": owner})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

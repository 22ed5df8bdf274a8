package repositories

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"crawler-api/internal/models"
	apperrors "crawler-api/pkg/errors"
)

// ResultRepository persists crawl results in the "results" collection.
type ResultRepository struct {
	coll *mongo.Collection
}

func NewResultRepository(db *mongo.Database) *ResultRepository {
	return &ResultRepository{coll: db.Collection("results")}
}

// Save stores a complete result and returns its id. Exactly one variant must
// be populated, matching the kind tag; a result is only ever written whole.
func (r *ResultRepository) Save(ctx context.Context, result *models.Result) (primitive.ObjectID, error) {
	switch result.Kind {
	case models.ResultKindHTML:
		if result.HTML == nil || result.PDF != nil {
			return primitive.NilObjectID, fmt.Errorf("html result variant not populated")
		}
	case models.ResultKindPDF:
		if result.PDF == nil || result.HTML != nil {
			return primitive.NilObjectID, fmt.Errorf("pdf result variant not populated")
		}
	default:
		return primitive.NilObjectID, fmt.Errorf("unknown result kind %q", result.Kind)
	}

	result.ID = primitive.NewObjectID()
	if _, err := r.coll.InsertOne(ctx, result); err != nil {
		return primitive.NilObjectID, err
	}
	return result.ID, nil
}

func (r *ResultRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Result, error) {
	var result models.Result
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&result); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &result, nil
}

// Delete removes a result; deleting an already-missing result is a no-op.
func (r *ResultRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	_, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	return err
}

package mongostore

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/serviciomed/serviciomed/internal/models"
	"github.com/serviciomed/serviciomed/internal/store"
)

func newestFirst() *options.FindOptions {
	return options.Find().SetSort(bson.D{{Key: "submittedAt", Value: -1}, {Key: "_id", Value: -1}})
}

type surveyRepository struct {
	col *mongo.Collection
}

func (r *surveyRepository) Create(ctx context.Context, s *models.SurveyResponse) error {
	s.ID = primitive.NewObjectID().Hex()
	if _, err := r.col.InsertOne(ctx, s); err != nil {
		s.ID = ""
		return wrap("insert survey response", err)
	}
	return nil
}

func (r *surveyRepository) ListByRecordNumber(ctx context.Context, recordNumber string) ([]*models.SurveyResponse, error) {
	cur, err := r.col.Find(ctx, bson.M{"recordNumber": recordNumber}, newestFirst())
	if err != nil {
		return nil, wrap("find survey responses", err)
	}
	var out []*models.SurveyResponse
	if err := cur.All(ctx, &out); err != nil {
		return nil, wrap("decode survey responses", err)
	}
	return out, nil
}

type examRepository struct {
	col *mongo.Collection
}

func (r *examRepository) Create(ctx context.Context, e *models.ExamSubmission) error {
	e.ID = primitive.NewObjectID().Hex()
	if _, err := r.col.InsertOne(ctx, e); err != nil {
		e.ID = ""
		return wrap("insert exam submission", err)
	}
	return nil
}

func (r *examRepository) FindByDocument(ctx context.Context, recordNumber, document string) (*models.ExamSubmission, error) {
	var e models.ExamSubmission
	err := r.col.FindOne(ctx, bson.M{"recordNumber": recordNumber, "document": document}).Decode(&e)
	if err != nil {
		return nil, wrap("find exam submission", err)
	}
	return &e, nil
}

func (r *examRepository) ListByRecordNumber(ctx context.Context, recordNumber string) ([]*models.ExamSubmission, error) {
	cur, err := r.col.Find(ctx, bson.M{"recordNumber": recordNumber}, newestFirst())
	if err != nil {
		return nil, wrap("find exam submissions", err)
	}
	var out []*models.ExamSubmission
	if err := cur.All(ctx, &out); err != nil {
		return nil, wrap("decode exam submissions", err)
	}
	return out, nil
}

type uploadRepository struct {
	col *mongo.Collection
}

func (r *uploadRepository) Create(ctx context.Context, d *models.UploadedDocument) error {
	d.ID = primitive.NewObjectID().Hex()
	if _, err := r.col.InsertOne(ctx, d); err != nil {
		d.ID = ""
		return wrap("insert uploaded document", err)
	}
	return nil
}

func (r *uploadRepository) FindByID(ctx context.Context, id string) (*models.UploadedDocument, error) {
	if !primitive.IsValidObjectID(id) {
		return nil, store.ErrNotFound
	}
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *uploadRepository) FindByStoredName(ctx context.Context, storedName string) (*models.UploadedDocument, error) {
	return r.findOne(ctx, bson.M{"storedName": storedName})
}

func (r *uploadRepository) findOne(ctx context.Context, filter bson.M) (*models.UploadedDocument, error) {
	var d models.UploadedDocument
	if err := r.col.FindOne(ctx, filter).Decode(&d); err != nil {
		return nil, wrap("find uploaded document", err)
	}
	return &d, nil
}

func (r *uploadRepository) ListByRecordNumber(ctx context.Context, recordNumber string) ([]*models.UploadedDocument, error) {
	cur, err := r.col.Find(ctx, bson.M{"recordNumber": recordNumber}, newestFirst())
	if err != nil {
		return nil, wrap("find uploaded documents", err)
	}
	var out []*models.UploadedDocument
	if err := cur.All(ctx, &out); err != nil {
		return nil, wrap("decode uploaded documents", err)
	}
	return out, nil
}

package mongostore

import (
	"context"
	"regexp"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/serviciomed/serviciomed/internal/models"
	"github.com/serviciomed/serviciomed/internal/store"
)

type userRepository struct {
	col *mongo.Collection
}

func (r *userRepository) Create(ctx context.Context, u *models.User) error {
	if u.ID == "" {
		u.ID = primitive.NewObjectID().Hex()
	}
	if _, err := r.col.InsertOne(ctx, u); err != nil {
		u.ID = ""
		return wrap("insert user", err)
	}
	return nil
}

func (r *userRepository) FindByName(ctx context.Context, name string) ([]*models.User, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := r.col.Find(ctx, bson.M{"name": name}, opts)
	if err != nil {
		return nil, wrap("find users", err)
	}
	var out []*models.User
	if err := cur.All(ctx, &out); err != nil {
		return nil, wrap("decode users", err)
	}
	return out, nil
}

func (r *userRepository) FindByNameAndProgram(ctx context.Context, name, program string) (*models.User, error) {
	return r.findOne(ctx, bson.M{"name": name, "program": program})
}

func (r *userRepository) FindByRecordNumber(ctx context.Context, recordNumber string) (*models.User, error) {
	return r.findOne(ctx, bson.M{"recordNumber": recordNumber})
}

func (r *userRepository) findOne(ctx context.Context, filter bson.M) (*models.User, error) {
	var u models.User
	if err := r.col.FindOne(ctx, filter).Decode(&u); err != nil {
		return nil, wrap("find user", err)
	}
	return &u, nil
}

// LatestRecordNumber fetches every record number of the prefix and picks the
// highest one; Mongo cannot order by string length.
func (r *userRepository) LatestRecordNumber(ctx context.Context, prefix string) (string, error) {
	filter := bson.M{"recordNumber": bson.M{"$regex": recordPattern(prefix)}}
	opts := options.Find().SetProjection(bson.M{"recordNumber": 1})
	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return "", wrap("find record numbers", err)
	}
	var rows []struct {
		RecordNumber string `bson:"recordNumber"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return "", wrap("decode record numbers", err)
	}

	latest := ""
	for _, row := range rows {
		if recordLess(latest, row.RecordNumber) {
			latest = row.RecordNumber
		}
	}
	if latest == "" {
		return "", store.ErrNotFound
	}
	return latest, nil
}

func recordPattern(prefix string) string {
	return "^" + regexp.QuoteMeta(prefix) + "[0-9]+$"
}

// recordLess orders record numbers of one prefix by length, then lexically.
func recordLess(a, b string) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}

package services

import (
	"context"
	"crypto/tls"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/listhub/editor-backend/internal/models"
)

var ErrDraftNotFound = errors.New("draft not found")

type MongoDraftService struct {
	client    *mongo.Client
	db        *mongo.Database
	draftsCol *mongo.Collection
}

func NewMongoDraftService(ctx context.Context, mongoURI, dbName string) (*MongoDraftService, error) {
	// Atlas occasionally fails TLS negotiation in some environments unless we force TLS 1.2.
	tlsCfg := &tls.Config{
		MinVersion: tls.VersionTLS12,
		MaxVersion: tls.VersionTLS12,
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURI).SetTLSConfig(tlsCfg))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}

	db := client.Database(dbName)
	col := db.Collection("drafts")

	// Best-effort index for the expiry sweep.
	_, _ = col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "updated_at", Value: 1}},
	})

	return &MongoDraftService{
		client:    client,
		db:        db,
		draftsCol: col,
	}, nil
}

func (s *MongoDraftService) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoDraftService) Save(ctx context.Context, draft *models.DraftSnapshot) error {
	if draft.UpdatedAt.IsZero() {
		draft.UpdatedAt = time.Now()
	}

	opts := options.Replace().SetUpsert(true)
	_, err := s.draftsCol.ReplaceOne(ctx, bson.M{"_id": draft.SessionID}, draft, opts)
	return err
}

func (s *MongoDraftService) Get(ctx context.Context, sessionID string) (*models.DraftSnapshot, error) {
	var draft models.DraftSnapshot
	if err := s.draftsCol.FindOne(ctx, bson.M{"_id": sessionID}).Decode(&draft); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrDraftNotFound
		}
		return nil, err
	}
	return &draft, nil
}

func (s *MongoDraftService) Delete(ctx context.Context, sessionID string) error {
	_, err := s.draftsCol.DeleteOne(ctx, bson.M{"_id": sessionID})
	return err
}

func (s *MongoDraftService) ListExpired(ctx context.Context, olderThan time.Time) ([]models.DraftSnapshot, error) {
	cur, err := s.draftsCol.Find(ctx, bson.M{"updated_at": bson.M{"$lt": olderThan}})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var drafts []models.DraftSnapshot
	if err := cur.All(ctx, &drafts); err != nil {
		return nil, err
	}
	return drafts, nil
}

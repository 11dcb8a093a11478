package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/atef1995/sayarat-sub000/internal/db"
	"github.com/atef1995/sayarat-sub000/internal/models"
	"github.com/atef1995/sayarat-sub000/internal/pipeline"
)

const collectionName = "submission_attempts"

// IAttemptJournal persists the audit trail of concluded submission attempts.
type IAttemptJournal interface {
	RecordAttempt(ctx context.Context, rec pipeline.AttemptRecord) error
	RecentAttempts(ctx context.Context, sessionID string, limit int64) ([]pipeline.AttemptRecord, error)
	EnsureIndexes(ctx context.Context) error
}

type attemptJournal struct {
	col *mongo.Collection
}

// NewAttemptJournal creates a journal over the submission_attempts collection.
func NewAttemptJournal(database *mongo.Database) IAttemptJournal {
	return &attemptJournal{col: database.Collection(collectionName)}
}

type attemptDoc struct {
	ID         string    `bson:"_id"`
	SessionID  string    `bson:"session_id"`
	AccountID  string    `bson:"account_id"`
	FinalState string    `bson:"final_state"`
	ErrorKind  string    `bson:"error_kind,omitempty"`
	Message    string    `bson:"message,omitempty"`
	ListingID  string    `bson:"listing_id,omitempty"`
	StartedAt  time.Time `bson:"started_at"`
	FinishedAt time.Time `bson:"finished_at"`
}

func toDoc(rec pipeline.AttemptRecord) attemptDoc {
	return attemptDoc{
		SessionID:  rec.SessionID,
		AccountID:  rec.AccountID,
		FinalState: rec.FinalState,
		ErrorKind:  string(rec.ErrorKind),
		Message:    rec.Message,
		ListingID:  rec.ListingID,
		StartedAt:  rec.StartedAt.UTC(),
		FinishedAt: rec.FinishedAt.UTC(),
	}
}

func fromDoc(doc attemptDoc) pipeline.AttemptRecord {
	return pipeline.AttemptRecord{
		SessionID:  doc.SessionID,
		AccountID:  doc.AccountID,
		FinalState: doc.FinalState,
		ErrorKind:  models.ErrorKind(doc.ErrorKind),
		Message:    doc.Message,
		ListingID:  doc.ListingID,
		StartedAt:  doc.StartedAt,
		FinishedAt: doc.FinishedAt,
	}
}

func (j *attemptJournal) RecordAttempt(ctx context.Context, rec pipeline.AttemptRecord) error {
	doc := toDoc(rec)
	err := db.Try(func() error {
		doc.ID = uuid.NewString()
		_, insertErr := j.col.InsertOne(ctx, doc)
		return insertErr
	})
	if err != nil {
		return fmt.Errorf("failed to record submission attempt: %w", err)
	}
	return nil
}

func (j *attemptJournal) RecentAttempts(ctx context.Context, sessionID string, limit int64) ([]pipeline.AttemptRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "finished_at", Value: -1}}).
		SetLimit(limit)
	cursor, err := j.col.Find(ctx, bson.M{"session_id": sessionID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query submission attempts: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []attemptDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode submission attempts: %w", err)
	}
	recs := make([]pipeline.AttemptRecord, 0, len(docs))
	for _, doc := range docs {
		recs = append(recs, fromDoc(doc))
	}
	return recs, nil
}

func (j *attemptJournal) EnsureIndexes(ctx context.Context) error {
	_, err := j.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "session_id", Value: 1}, {Key: "finished_at", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create submission_attempts indexes: %w", err)
	}
	return nil
}

package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"

	"cloud.google.com/go/firestore"
	"github.com/Lllllllleong/documentnarrator/internal/models"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreStore keeps one document per record. The document ID is derived
// from the source key, so Create enforces uniqueness without a transaction.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
}

// NewFirestoreStore returns a store writing to the named collection.
func NewFirestoreStore(client *firestore.Client, collection string) *FirestoreStore {
	return &FirestoreStore{client: client, collection: collection}
}

// Load returns every record in the collection. Query failures fail open like
// the file store.
func (s *FirestoreStore) Load(ctx context.Context) ([]models.ProcessingRecord, error) {
	it := s.client.Collection(s.collection).Documents(ctx)
	defer it.Stop()

	var records []models.ProcessingRecord
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			slog.Warn("Failed to list records; treating store as empty.", "collection", s.collection, "error", err)
			return nil, nil
		}
		var rec models.ProcessingRecord
		if err := snap.DataTo(&rec); err != nil {
			slog.Warn("Skipping undecodable record.", "docId", snap.Ref.ID, "error", err)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// Find looks the record up by its derived document ID.
func (s *FirestoreStore) Find(ctx context.Context, sourceKey string) (*models.ProcessingRecord, error) {
	snap, err := s.client.Collection(s.collection).Doc(DocumentID(sourceKey)).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		slog.Warn("Record lookup failed; treating as not processed.", "sourceKey", sourceKey, "error", err)
		return nil, nil
	}

	var rec models.ProcessingRecord
	if err := snap.DataTo(&rec); err != nil {
		slog.Warn("Stored record undecodable; treating as not processed.", "sourceKey", sourceKey, "error", err)
		return nil, nil
	}
	return &rec, nil
}

// Append creates the record document; an existing document yields ErrRecordExists.
func (s *FirestoreStore) Append(ctx context.Context, rec models.ProcessingRecord) error {
	_, err := s.client.Collection(s.collection).Doc(DocumentID(rec.SourceKey)).Create(ctx, rec)
	if status.Code(err) == codes.AlreadyExists {
		return ErrRecordExists
	}
	if err != nil {
		return fmt.Errorf("failed to create record document: %w", err)
	}
	return nil
}

// DocumentID hashes a source key into a valid Firestore document ID; raw links
// contain slashes, which Firestore treats as path separators.
func DocumentID(sourceKey string) string {
	sum := sha256.Sum256([]byte(sourceKey))
	return hex.EncodeToString(sum[:])
}

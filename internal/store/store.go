// Package store holds the deduplicated record log of completed narrations.
package store

import (
	"context"
	"errors"

	"github.com/Lllllllleong/documentnarrator/internal/models"
)

// ErrRecordExists is returned by Append when a record with the same source
// key is already stored. Records are never updated in place.
var ErrRecordExists = errors.New("record already exists for source key")

// Store is an append-only collection of ProcessingRecords keyed by source key.
type Store interface {
	Load(ctx context.Context) ([]models.ProcessingRecord, error)
	// Find returns nil, nil when no record matches.
	Find(ctx context.Context, sourceKey string) (*models.ProcessingRecord, error)
	Append(ctx context.Context, rec models.ProcessingRecord) error
}

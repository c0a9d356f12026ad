package maillist

import (
	"context"

	"emailthing/internal/model"
)

// Store is the storage collaborator the list query reads through.
// Implementations must order FindMany results by q.Sort DESC, id DESC and
// must leave rows with a NULL group value out of GroupByCount.
type Store interface {
	FindMany(ctx context.Context, q Query) ([]model.Record, error)
	Count(ctx context.Context, p Predicate) (int, error)
	GroupByCount(ctx context.Context, p Predicate, field GroupField) (map[string]int, error)
}

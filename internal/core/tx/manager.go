// Package tx provides transaction management abstractions.
// Domain services depend on these interfaces, the pgx implementation
// lives in infrastructure/storage/postgres.
package tx

import (
	"context"
)

// Manager runs fn inside a database transaction.
// A non-nil error from fn rolls the transaction back, otherwise it commits.
// Nested calls reuse the transaction already carried by ctx.
type Manager interface {
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

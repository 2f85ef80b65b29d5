package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/pdv-backend/internal/domain/auth"
)

const getOperatorByCodeHashSQL = `SELECT id, name, email, code_hash, active
	FROM operators WHERE code_hash = $1`

var _ auth.Repository = (*OperatorRepository)(nil)

// OperatorRepository provides operator lookups backed by PostgreSQL.
type OperatorRepository struct {
	db DB
}

// NewOperatorRepository returns an OperatorRepository that uses db.
func NewOperatorRepository(db DB) *OperatorRepository {
	return &OperatorRepository{db: db}
}

// FindByCodeHash looks up an operator by the HMAC-SHA256 hash of its PDV
// code. Inactive operators are returned too; the authenticator rejects them.
func (r *OperatorRepository) FindByCodeHash(ctx context.Context, hash string) (*auth.Operator, error) {
	var op auth.Operator
	err := r.db.QueryRow(ctx, getOperatorByCodeHashSQL, hash).Scan(
		&op.ID, &op.Name, &op.Email, &op.CodeHash, &op.Active,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrNotFound
		}
		return nil, errors.Wrap(err, "find operator by code hash")
	}
	return &op, nil
}

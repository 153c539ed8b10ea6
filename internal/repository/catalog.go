package repository

import (
	"context"
	"fmt"

	"pagoda/harvester/internal/domain"

	"github.com/jackc/pgx/v5/pgxpool"
)

// CatalogRepository is the incremental persistence sink: merged records are
// upserted as they arrive so a crash loses at most the in-flight keyword.
type CatalogRepository interface {
	SaveRecord(ctx context.Context, rec domain.ProductRecord) error
}

type catalogRepository struct {
	db *pgxpool.Pool
}

func NewCatalogRepository(db *pgxpool.Pool) CatalogRepository {
	return &catalogRepository{
		db: db,
	}
}

func (r *catalogRepository) SaveRecord(ctx context.Context, rec domain.ProductRecord) error {
	query := `
	INSERT INTO products (id, data)
	VALUES ($1, $2)
	ON CONFLICT (id)
	DO UPDATE SET data = $2`
	_, err := r.db.Exec(ctx, query, rec.ProductID, rec)
	if err != nil {
		return fmt.Errorf("failed to save product %s: %w", rec.ProductID, err)
	}

	return nil
}

package vectorstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PgVectorStore persists chunk vectors in Postgres with the pgvector
// extension. Collections are a column, not separate tables, so one tenant's
// writes never require DDL.
type PgVectorStore struct {
	db *pgxpool.Pool
}

func NewPgVectorStore(db *pgxpool.Pool) *PgVectorStore {
	return &PgVectorStore{db: db}
}

func (s *PgVectorStore) EnsureCollection(ctx context.Context, name string, metadata map[string]string) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO collections (name, metadata) VALUES ($1, $2)
		 ON CONFLICT (name) DO NOTHING`,
		name, metadata,
	)
	if err != nil {
		return fmt.Errorf("ensure collection %s: %w", name, errors.Join(ErrUnavailable, err))
	}
	return nil
}

func (s *PgVectorStore) Upsert(ctx context.Context, collection string, records []Record) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", errors.Join(ErrUnavailable, err))
	}
	defer tx.Rollback(ctx)

	for _, rec := range records {
		embedding := pgvector.NewVector(rec.Embedding)
		_, err := tx.Exec(ctx,
			`INSERT INTO chunks (id, collection, content, embedding, metadata)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (id) DO UPDATE SET
			   collection = $2, content = $3, embedding = $4, metadata = $5`,
			rec.ID, collection, rec.Content, embedding, rec.Metadata,
		)
		if err != nil {
			return fmt.Errorf("upsert chunk %s: %w", rec.ID, errors.Join(ErrUnavailable, err))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit upsert: %w", errors.Join(ErrUnavailable, err))
	}
	return nil
}

func (s *PgVectorStore) Get(ctx context.Context, collection, id string) (*Record, error) {
	var rec Record
	var embedding pgvector.Vector
	err := s.db.QueryRow(ctx,
		`SELECT id, content, embedding, metadata FROM chunks
		 WHERE collection = $1 AND id = $2`,
		collection, id,
	).Scan(&rec.ID, &rec.Content, &embedding, &rec.Metadata)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("chunk %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get chunk %s: %w", id, errors.Join(ErrUnavailable, err))
	}
	rec.Embedding = embedding.Slice()
	return &rec, nil
}

func (s *PgVectorStore) Search(ctx context.Context, collection string, query []float32, opts SearchOptions) ([]Hit, error) {
	if opts.Limit <= 0 {
		opts.Limit = 10
	}

	args := []interface{}{collection}
	where, err := compileSQL(opts.Filter, &args)
	if err != nil {
		return nil, fmt.Errorf("compile filter: %w", err)
	}

	var sql string
	if query == nil {
		// Match-all listing: stable recency order, no distance.
		args = append(args, opts.Limit, opts.Offset)
		sql = fmt.Sprintf(
			`SELECT id, content, metadata, 0::float8 AS distance
			 FROM chunks
			 WHERE collection = $1 AND %s
			 ORDER BY created_at DESC, id
			 LIMIT $%d OFFSET $%d`,
			where, len(args)-1, len(args))
	} else {
		args = append(args, pgvector.NewVector(query), opts.Limit, opts.Offset)
		sql = fmt.Sprintf(
			`SELECT id, content, metadata, embedding <=> $%d AS distance
			 FROM chunks
			 WHERE collection = $1 AND %s
			 ORDER BY distance
			 LIMIT $%d OFFSET $%d`,
			len(args)-2, where, len(args)-1, len(args))
	}

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", errors.Join(ErrUnavailable, err))
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.ID, &h.Content, &h.Metadata, &h.Distance); err != nil {
			return nil, fmt.Errorf("scan hit: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

func (s *PgVectorStore) Count(ctx context.Context, collection string, filter Filter) (int, error) {
	args := []interface{}{collection}
	where, err := compileSQL(filter, &args)
	if err != nil {
		return 0, fmt.Errorf("compile filter: %w", err)
	}

	var count int
	err = s.db.QueryRow(ctx,
		fmt.Sprintf(`SELECT count(*) FROM chunks WHERE collection = $1 AND %s`, where),
		args...,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count matches: %w", errors.Join(ErrUnavailable, err))
	}
	return count, nil
}

func (s *PgVectorStore) Delete(ctx context.Context, collection string, filter Filter) error {
	args := []interface{}{collection}
	where, err := compileSQL(filter, &args)
	if err != nil {
		return fmt.Errorf("compile filter: %w", err)
	}

	_, err = s.db.Exec(ctx,
		fmt.Sprintf(`DELETE FROM chunks WHERE collection = $1 AND %s`, where),
		args...,
	)
	if err != nil {
		return fmt.Errorf("delete chunks: %w", errors.Join(ErrUnavailable, err))
	}
	return nil
}

func (s *PgVectorStore) UpdateMetadata(ctx context.Context, collection string, filter Filter, patch map[string]interface{}) error {
	args := []interface{}{collection}
	where, err := compileSQL(filter, &args)
	if err != nil {
		return fmt.Errorf("compile filter: %w", err)
	}

	args = append(args, patch)
	_, err = s.db.Exec(ctx,
		fmt.Sprintf(`UPDATE chunks SET metadata = metadata || $%d WHERE collection = $1 AND %s`,
			len(args), where),
		args...,
	)
	if err != nil {
		return fmt.Errorf("update metadata: %w", errors.Join(ErrUnavailable, err))
	}
	return nil
}

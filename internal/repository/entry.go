package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/domain"
	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/similarity"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

const similarLimit = 10

// EntryRepository stores knowledge entries in Postgres. Similarity uses pgvector
// cosine distance when an embedder is set and pg_trgm trigram similarity otherwise.
type EntryRepository struct {
	db       dbtx
	embedder similarity.Embedder
}

func NewEntryRepository(pool *pgxpool.Pool, embedder similarity.Embedder) *EntryRepository {
	return &EntryRepository{db: pool, embedder: embedder}
}

const entryColumns = `id, collection, unique_id, content_hash, content, metadata`

func (r *EntryRepository) Insert(ctx context.Context, e *domain.StoredEntry) error {
	md, err := json.Marshal(e.Metadata)
	if err != nil {
		return domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "metadata is not serializable", err)
	}

	var embedding *pgvector.Vector
	if r.embedder != nil {
		vec, err := r.embedder.GenerateEmbedding(ctx, e.Content)
		if err != nil {
			return fmt.Errorf("embed entry: %w", err)
		}
		v := pgvector.NewVector(vec)
		embedding = &v
	}

	knowledgeType, _ := domain.StringField(e.Metadata, domain.FieldType)
	_, err = r.db.Exec(ctx,
		`INSERT INTO knowledge_entries (id, collection, unique_id, knowledge_type, content_hash, content, metadata, embedding)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.Collection, nullableString(e.UniqueID), nullableString(knowledgeType), e.ContentHash, e.Content, md, embedding,
	)
	return err
}

func (r *EntryRepository) FindByHash(ctx context.Context, hash string) (*domain.StoredEntry, error) {
	return r.findOne(ctx, `SELECT `+entryColumns+` FROM knowledge_entries WHERE content_hash = $1 ORDER BY created_at LIMIT 1`, hash)
}

func (r *EntryRepository) FindByUniqueID(ctx context.Context, uniqueID string) (*domain.StoredEntry, error) {
	return r.findOne(ctx, `SELECT `+entryColumns+` FROM knowledge_entries WHERE unique_id = $1 ORDER BY created_at LIMIT 1`, uniqueID)
}

func (r *EntryRepository) findOne(ctx context.Context, query string, arg any) (*domain.StoredEntry, error) {
	e, err := scanEntry(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrEntryNotFound
		}
		return nil, err
	}
	return e, nil
}

func (r *EntryRepository) FindSimilar(ctx context.Context, content string, threshold float64) ([]domain.SimilarMatch, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if r.embedder != nil {
		vec, embedErr := r.embedder.GenerateEmbedding(ctx, content)
		if embedErr != nil {
			return nil, fmt.Errorf("embed candidate: %w", embedErr)
		}
		rows, err = r.db.Query(ctx,
			`SELECT id, collection, unique_id, 1 - (embedding <=> $1) AS score
			 FROM knowledge_entries
			 WHERE embedding IS NOT NULL AND 1 - (embedding <=> $1) >= $2
			 ORDER BY embedding <=> $1
			 LIMIT $3`,
			pgvector.NewVector(vec), threshold, similarLimit,
		)
	} else {
		rows, err = r.db.Query(ctx,
			`SELECT id, collection, unique_id, similarity(content, $1) AS score
			 FROM knowledge_entries
			 WHERE similarity(content, $1) >= $2
			 ORDER BY score DESC
			 LIMIT $3`,
			content, threshold, similarLimit,
		)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	matches := make([]domain.SimilarMatch, 0)
	for rows.Next() {
		var m domain.SimilarMatch
		var uniqueID *string
		if err := rows.Scan(&m.EntryID, &m.Collection, &uniqueID, &m.Score); err != nil {
			return nil, err
		}
		if uniqueID != nil {
			m.UniqueID = *uniqueID
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

func (r *EntryRepository) List(ctx context.Context, collection string, limit int) ([]*domain.StoredEntry, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+entryColumns+` FROM knowledge_entries WHERE collection = $1 ORDER BY created_at, id LIMIT $2`,
		collection, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]*domain.StoredEntry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *EntryRepository) Delete(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.Exec(ctx,
		`DELETE FROM knowledge_entries WHERE collection = $1 AND id = ANY($2::uuid[])`,
		collection, ids,
	)
	return err
}

func (r *EntryRepository) Count(ctx context.Context, collection string) (int64, error) {
	var n int64
	err := r.db.QueryRow(ctx, `SELECT count(*) FROM knowledge_entries WHERE collection = $1`, collection).Scan(&n)
	return n, err
}

func scanEntry(row pgx.Row) (*domain.StoredEntry, error) {
	var e domain.StoredEntry
	var uniqueID *string
	var md []byte
	if err := row.Scan(&e.ID, &e.Collection, &uniqueID, &e.ContentHash, &e.Content, &md); err != nil {
		return nil, err
	}
	if uniqueID != nil {
		e.UniqueID = *uniqueID
	}
	if err := json.Unmarshal(md, &e.Metadata); err != nil {
		return nil, fmt.Errorf("decode metadata of %s: %w", e.ID, err)
	}
	return &e, nil
}

package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-attempt-engine/internal/model"
)

const examDefinitionColumns = `id, version, title, duration_seconds, passing_threshold,
	        flags, questions, updated_at`

// ExamRepository reads published exam definitions from PostgreSQL.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

// GetByID returns the latest published version of an exam.
func (r *ExamRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.ExamDefinition, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+examDefinitionColumns+`
		 FROM exam_definitions
		 WHERE id = $1 AND published
		 ORDER BY version DESC
		 LIMIT 1`, id)

	def, err := scanDefinition(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get exam definition %s: %w", id, err)
	}
	return def, nil
}

// ListPublished returns the latest published version of every exam.
// Used for cache prewarming on application startup.
func (r *ExamRepository) ListPublished(ctx context.Context) ([]model.ExamDefinition, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT ON (id) `+examDefinitionColumns+`
		 FROM exam_definitions
		 WHERE published
		 ORDER BY id, version DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var defs []model.ExamDefinition
	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			return nil, err
		}
		defs = append(defs, *def)
	}
	return defs, rows.Err()
}

func scanDefinition(row pgx.Row) (*model.ExamDefinition, error) {
	def := &model.ExamDefinition{}
	// flags and questions are jsonb; pgx decodes them through encoding/json.
	err := row.Scan(&def.ID, &def.Version, &def.Title, &def.DurationSeconds,
		&def.PassingThreshold, &def.Flags, &def.Questions, &def.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return def, nil
}

// Publish stores def as the next version of its exam and marks it published.
// def.Version and def.UpdatedAt are set from the inserted row. Earlier
// versions stay readable for attempts already bound to them.
func (r *ExamRepository) Publish(ctx context.Context, def *model.ExamDefinition) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin publish: %w", err)
	}
	defer tx.Rollback(ctx)

	// Serialise concurrent publishes of the same exam.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, def.ID.String()); err != nil {
		return fmt.Errorf("lock exam %s: %w", def.ID, err)
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO exam_definitions
		    (id, version, title, duration_seconds, passing_threshold, flags, questions, published)
		 SELECT $1::uuid, COALESCE(MAX(version), 0) + 1, $2::text, $3::int, $4::numeric, $5::jsonb, $6::jsonb, TRUE
		 FROM exam_definitions WHERE id = $1
		 RETURNING version, updated_at`,
		def.ID, def.Title, def.DurationSeconds, def.PassingThreshold, def.Flags, def.Questions,
	).Scan(&def.Version, &def.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert exam definition %s: %w", def.ID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit publish: %w", err)
	}
	return nil
}

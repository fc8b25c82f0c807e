package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt-engine/internal/config"
	"github.com/stemsi/exstem-attempt-engine/internal/model"
	"github.com/stemsi/exstem-attempt-engine/internal/repository"
)

// ExamProvider supplies the definition an attempt binds to.
type ExamProvider interface {
	GetExamDefinition(ctx context.Context, examID uuid.UUID) (*model.ExamDefinition, error)
}

// ExamSource is the durable store of published definitions.
type ExamSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.ExamDefinition, error)
	ListPublished(ctx context.Context) ([]model.ExamDefinition, error)
}

// ExamService serves exam definitions from Redis, falling back to PostgreSQL.
type ExamService struct {
	source ExamSource
	rdb    *redis.Client
	ttl    time.Duration
	log    zerolog.Logger
}

// NewExamService creates a new ExamService.
func NewExamService(source ExamSource, rdb *redis.Client, cfg *config.Config, log zerolog.Logger) *ExamService {
	return &ExamService{
		source: source,
		rdb:    rdb,
		ttl:    cfg.ExamCacheTTL,
		log:    log.With().Str("component", "exam_service").Logger(),
	}
}

// GetExamDefinition returns the current published definition, cache first.
func (s *ExamService) GetExamDefinition(ctx context.Context, examID uuid.UUID) (*model.ExamDefinition, error) {
	key := config.CacheKey.ExamDefinitionKey(examID.String())

	data, err := s.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var def model.ExamDefinition
		if err := json.Unmarshal(data, &def); err == nil {
			return &def, nil
		}
		s.log.Warn().Str("exam_id", examID.String()).Msg("Corrupt cached definition, reloading")
	} else if !errors.Is(err, redis.Nil) {
		// Redis trouble should not block attempts; read through to PostgreSQL.
		s.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Definition cache read failed")
	}

	def, err := s.source.GetByID(ctx, examID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrExamNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load exam definition: %w", err)
	}

	if err := s.cache(ctx, def); err != nil {
		s.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Failed to cache definition")
	}
	return def, nil
}

// RefreshCache re-caches the latest published definition of an exam.
// Called by admins after a new version is published.
func (s *ExamService) RefreshCache(ctx context.Context, examID uuid.UUID) (*model.ExamDefinition, error) {
	def, err := s.source.GetByID(ctx, examID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrExamNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load exam definition: %w", err)
	}

	if err := s.WarmExamCache(ctx, def); err != nil {
		return nil, err
	}

	s.log.Info().Str("exam_id", examID.String()).Int("version", def.Version).Msg("Cache refreshed")
	return def, nil
}

// WarmExamCache validates a definition and stores it in Redis.
func (s *ExamService) WarmExamCache(ctx context.Context, def *model.ExamDefinition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	if err := s.cache(ctx, def); err != nil {
		return err
	}

	s.log.Debug().
		Str("exam_id", def.ID.String()).
		Int("version", def.Version).
		Int("questions", len(def.Questions)).
		Msg("Cache warmed")
	return nil
}

func (s *ExamService) cache(ctx context.Context, def *model.ExamDefinition) error {
	data, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("marshal definition: %w", err)
	}
	if err := s.rdb.Set(ctx, config.CacheKey.ExamDefinitionKey(def.ID.String()), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("cache to redis: %w", err)
	}
	return nil
}

// PrewarmAllCaches loads all published exams into Redis on application startup.
// This prevents any lazy-loading race conditions under thundering herd traffic.
func (s *ExamService) PrewarmAllCaches(ctx context.Context) error {
	defs, err := s.source.ListPublished(ctx)
	if err != nil {
		return fmt.Errorf("list published exams: %w", err)
	}

	if len(defs) == 0 {
		s.log.Info().Msg("No published exams to prewarm")
		return nil
	}

	s.log.Info().Int("count", len(defs)).Msg("Prewarming published exams...")

	warmed := 0
	for i := range defs {
		if err := s.WarmExamCache(ctx, &defs[i]); err != nil {
			s.log.Warn().
				Err(err).
				Str("exam_id", defs[i].ID.String()).
				Msg("Failed to warm exam, skipping")
			continue
		}
		warmed++
	}

	s.log.Info().
		Int("warmed", warmed).
		Int("total", len(defs)).
		Msg("Prewarming complete")
	return nil
}

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-attempt-engine/internal/config"
	"github.com/stemsi/exstem-attempt-engine/internal/database"
	"github.com/stemsi/exstem-attempt-engine/internal/logger"
	"github.com/stemsi/exstem-attempt-engine/internal/model"
	"github.com/stemsi/exstem-attempt-engine/internal/repository"
	"github.com/stemsi/exstem-attempt-engine/internal/service"
)

// seed-exam publishes an exam definition from a JSON file as a new version
// and warms the Redis cache so attempts can start immediately.
func main() {
	var file string
	flag.StringVar(&file, "file", "", "Path to an exam definition JSON file")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if file == "" {
		log.Fatal().Msg("-file is required")
	}
	data, err := os.ReadFile(file)
	if err != nil {
		log.Fatal().Err(err).Str("file", file).Msg("Failed to read definition")
	}

	var def model.ExamDefinition
	if err := json.Unmarshal(data, &def); err != nil {
		log.Fatal().Err(err).Str("file", file).Msg("Failed to parse definition")
	}
	if def.ID == uuid.Nil {
		def.ID = uuid.New()
	}
	if err := def.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Definition rejected")
	}

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	examRepo := repository.NewExamRepository(pool)
	examService := service.NewExamService(examRepo, rdb, cfg, log)

	if err := examRepo.Publish(ctx, &def); err != nil {
		log.Fatal().Err(err).Msg("Failed to publish definition")
	}
	if err := examService.WarmExamCache(ctx, &def); err != nil {
		log.Warn().Err(err).Msg("Published, but cache warm failed; the next read will load it")
	}

	fmt.Printf("Published exam %s version %d (%d questions)\n", def.ID, def.Version, len(def.Questions))
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/PabloGalante/travel-agent/internal/adapters/lipsync"
	"github.com/PabloGalante/travel-agent/internal/adapters/llm"
	"github.com/PabloGalante/travel-agent/internal/adapters/places"
	"github.com/PabloGalante/travel-agent/internal/adapters/speech"
	firestorestore "github.com/PabloGalante/travel-agent/internal/adapters/storage/firestore"
	memstore "github.com/PabloGalante/travel-agent/internal/adapters/storage/memory"
	"github.com/PabloGalante/travel-agent/internal/adapters/storage/postgres"
	"github.com/PabloGalante/travel-agent/internal/app/conversation"
	"github.com/PabloGalante/travel-agent/internal/app/dialogue"
	"github.com/PabloGalante/travel-agent/internal/app/grounding"
	"github.com/PabloGalante/travel-agent/internal/app/report"
	"github.com/PabloGalante/travel-agent/internal/app/session"
	"github.com/PabloGalante/travel-agent/internal/app/synth"
	"github.com/PabloGalante/travel-agent/internal/config"
	"github.com/PabloGalante/travel-agent/internal/domain"
	"github.com/PabloGalante/travel-agent/internal/observability"
)

type app struct {
	conversation *conversation.Service
	sessions     *session.Service
	reports      *report.Service
	sweeper      *session.Sweeper
	voices       domain.VoiceCatalog
	close        func()
}

func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	llmClient, err := newLLM(ctx, cfg)
	if err != nil {
		closeStore()
		return nil, err
	}

	tempDir := cfg.LipSync.TempDir
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		closeStore()
		return nil, fmt.Errorf("creating temp dir: %w", err)
	}

	speechClient := speech.NewClient(cfg.Speech.APIKey, cfg.Speech.BaseURL, cfg.Speech.ModelID, &http.Client{})
	placesClient := places.NewClient(cfg.Places.APIKey, cfg.Places.BaseURL, &http.Client{})

	convSvc := conversation.NewService(
		store,
		grounding.NewEnricher(placesClient, cfg.Places.Timeout),
		dialogue.NewEngine(llmClient, cfg.LLM.Timeout),
		synth.NewSynthesizer(
			speechClient,
			lipsync.NewExtractor(cfg.LipSync.FFmpegPath, cfg.LipSync.RhubarbPath),
			synth.Options{Concurrency: cfg.Synth.Concurrency, SegmentTimeout: cfg.Synth.SegmentTimeout},
		),
		conversation.Options{
			DefaultVoice:       cfg.Speech.DefaultVoice,
			TempDir:            tempDir,
			MissingCredentials: cfg.MissingCredentials,
		},
	)

	var generator domain.ReportGenerator
	if cfg.Report.APIKey != "" {
		rc, err := llm.NewReportClient(cfg.Report.APIKey, cfg.Report.BaseURL, cfg.Report.Model)
		if err != nil {
			closeStore()
			return nil, err
		}
		generator = rc
	} else {
		observability.Logger().Warn("report API key not set, report generation disabled")
	}

	var voices domain.VoiceCatalog
	if cfg.Speech.APIKey != "" {
		voices = speechClient
	}

	return &app{
		conversation: convSvc,
		sessions:     session.NewService(store),
		reports:      report.NewService(store, generator, cfg.Report.Timeout),
		sweeper:      newSweeper(store, cfg),
		voices:       voices,
		close:        closeStore,
	}, nil
}

func newSweeper(store domain.SessionStore, cfg *config.Config) *session.Sweeper {
	return session.NewSweeper(store, cfg.Session.IdleThreshold, cfg.Session.SweepInterval)
}

// openStore returns the configured session store and a func releasing it.
func openStore(ctx context.Context, cfg *config.Config) (domain.SessionStore, func(), error) {
	log := observability.Logger()

	switch cfg.Storage.Backend {
	case "firestore":
		log.Info("using Firestore storage", "project", cfg.Storage.GCPProject)
		store, err := firestorestore.NewStore(ctx, cfg.Storage.GCPProject)
		if err != nil {
			return nil, nil, fmt.Errorf("initializing Firestore store: %w", err)
		}
		return store, func() { _ = store.Close() }, nil

	case "postgres":
		log.Info("using PostgreSQL storage")
		store, err := postgres.NewStore(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		if cfg.Storage.AutoMigrate {
			if err := postgres.Migrate(ctx, store.Pool()); err != nil {
				store.Close()
				return nil, nil, err
			}
		}
		return store, store.Close, nil

	default:
		log.Info("using in-memory storage")
		return memstore.NewSessionStore(), func() {}, nil
	}
}

func newLLM(ctx context.Context, cfg *config.Config) (domain.LLMClient, error) {
	switch {
	case cfg.LLM.Backend == "mock":
		observability.Logger().Info("using mock LLM client")
		return llm.NewMockLLM(), nil
	case cfg.LLM.Backend == "gemini" && cfg.LLM.APIKey == "":
		// Turns are rejected by the credential check before reaching this client.
		return llm.NewFailingLLM(errors.New("GEMINI_API_KEY is not set")), nil
	}

	client, err := llm.NewGeminiClient(ctx, llm.GeminiConfig{
		Backend:     cfg.LLM.Backend,
		APIKey:      cfg.LLM.APIKey,
		Project:     cfg.LLM.Project,
		Location:    cfg.LLM.Location,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing %s LLM client: %w", cfg.LLM.Backend, err)
	}
	observability.Logger().Info("using Gemini LLM client", "backend", cfg.LLM.Backend, "model", cfg.LLM.Model)
	return client, nil
}

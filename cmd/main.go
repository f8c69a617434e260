package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/futenglish/coach/adapters/archive"
	"github.com/futenglish/coach/adapters/llm"
	"github.com/futenglish/coach/adapters/telegram"
	"github.com/futenglish/coach/adapters/tts"
	"github.com/futenglish/coach/domain/entities"
	"github.com/futenglish/coach/domain/repositories"
	"github.com/futenglish/coach/internal/api"
	"github.com/futenglish/coach/internal/auth"
	"github.com/futenglish/coach/internal/catalog"
	"github.com/futenglish/coach/internal/composer"
	"github.com/futenglish/coach/internal/config"
	"github.com/futenglish/coach/internal/engine"
	"github.com/futenglish/coach/internal/langtag"
	"github.com/futenglish/coach/internal/lesson"
	"github.com/futenglish/coach/internal/speech"
	"github.com/futenglish/coach/internal/store"
	"github.com/futenglish/coach/internal/websocket"
)

func main() {
	godotenv.Load()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.Load(os.Getenv("COACH_CONFIG"))
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	cat, err := catalog.Load(cfg.Catalog.Path, logger)
	if err != nil {
		logger.Fatal("Failed to load vocabulary catalog", zap.Error(err))
	}

	sessions := store.NewMemoryStore(logger)
	lessons := lesson.NewEngine(cat, sessions, logger)

	generator := buildGenerator(logger)
	comp := composer.New(sessions, lessons, generator, cfg.Generate.Timeout(), logger)

	synthesizer := buildSynthesizer(logger)
	pipeline := speech.NewPipeline(synthesizer, map[entities.Language]repositories.Voice{
		entities.LanguageNative: {ID: cfg.Speech.NativeVoice.ID, Locale: cfg.Speech.NativeVoice.Locale},
		entities.LanguageTarget: {ID: cfg.Speech.TargetVoice.ID, Locale: cfg.Speech.TargetVoice.Locale},
	}, speech.PipelineConfig{
		Timeout:     cfg.Speech.Timeout(),
		MaxRetries:  cfg.Speech.MaxRetries,
		BackoffBase: cfg.Speech.Backoff(),
	}, logger)

	var transcripts repositories.TranscriptArchive
	var mongoClient *archive.Client
	if cfg.Archive.Enabled {
		mongoClient, err = archive.NewClient(archive.ClientConfig{
			URI:         cfg.Archive.URI,
			Database:    cfg.Archive.Database,
			MaxPoolSize: cfg.Archive.MaxPoolSize,
			MinPoolSize: cfg.Archive.MinPoolSize,
		}, logger)
		if err != nil {
			logger.Fatal("Failed to connect to transcript archive", zap.Error(err))
		}
		transcripts = archive.NewTranscriptRepository(mongoClient.Database)
	}

	eng := engine.New(sessions, comp, langtag.New(cat), pipeline, transcripts, logger)

	// Periodic idle-session eviction
	scheduler := gocron.NewScheduler(time.UTC)
	scheduler.Every(cfg.Session.EvictEvery()).Do(func() {
		if evicted := eng.EvictIdle(cfg.Session.IdleTTL()); evicted > 0 {
			logger.Info("Evicted idle sessions", zap.Int("count", evicted))
		}
	})
	scheduler.StartAsync()

	rootCtx, stopTransports := context.WithCancel(context.Background())

	if cfg.Telegram.Enabled {
		bot, err := telegram.New(cfg.Telegram.Token, eng, logger)
		if err != nil {
			logger.Fatal("Failed to start Telegram transport", zap.Error(err))
		}
		go bot.Run(rootCtx)
	}

	// HTTP + WebSocket transport
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	hub := websocket.NewHub(eng, logger)
	issuer := auth.NewIssuer(cfg.Server.JWTSecret)
	api.InitRoutes(e, hub, issuer, logger)

	port := strconv.Itoa(cfg.Server.Port)
	go func() {
		if err := e.Start(":" + port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Server started",
		zap.String("port", port),
		zap.Bool("telegram", cfg.Telegram.Enabled),
		zap.Bool("archive", cfg.Archive.Enabled))

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Server is shutting down...")

	stopTransports()
	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}
	if mongoClient != nil {
		mongoClient.Close(ctx)
	}

	logger.Info("Server exited")
}

// buildGenerator wires the Gemini backend, falling back to the canned
// generator when no API key is configured so local development works
// offline.
func buildGenerator(logger *zap.Logger) repositories.Generator {
	cfg := llm.NewGeminiConfigFromEnv()
	if cfg.APIKey == "" {
		logger.Warn("GEMINI_API_KEY not set, using mock generator")
		return &llm.MockGenerator{}
	}
	generator, err := llm.NewGeminiGenerator(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create Gemini generator", zap.Error(err))
	}
	return generator
}

// buildSynthesizer wires Eleven Labs, falling back to the canned
// synthesizer when no API key is configured.
func buildSynthesizer(logger *zap.Logger) repositories.SpeechSynthesizer {
	cfg := tts.NewElevenLabsConfigFromEnv()
	if cfg.APIKey == "" {
		logger.Warn("ELEVEN_LABS_API_KEY not set, using mock synthesizer")
		return &tts.MockSynthesizer{}
	}
	synthesizer, err := tts.NewElevenLabsTTS(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create Eleven Labs synthesizer", zap.Error(err))
	}
	return synthesizer
}

package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hwgrader/internal/api"
	"hwgrader/internal/config"
	"hwgrader/internal/extract"
	"hwgrader/internal/extract/tesseract"
	"hwgrader/internal/logger"
	"hwgrader/internal/redis"
	"hwgrader/internal/service/ai"
	"hwgrader/internal/service/assistant"
	"hwgrader/internal/session"
	"hwgrader/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("load .env: %v", err)
	}

	cfgPath := os.Getenv("HWGRADER_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logr := logger.SetupLogger(cfg.BasicConfig.Env)
	slog.SetDefault(logr)
	logr.Info("starting hwgrader", "env", cfg.BasicConfig.Env, "provider", cfg.LLM.Provider, "model", cfg.LLM.Model)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chatModel, err := ai.NewChatModel(ctx, cfg.LLM, "", cfg.LLMTimeout())
	if err != nil {
		log.Fatalf("init chat model: %v", err)
	}

	extractor, err := newExtractor(ctx, cfg, logr)
	if err != nil {
		log.Fatalf("init extractor: %v", err)
	}

	var (
		sessions    session.Store
		healthCheck func(context.Context) error
	)
	if cfg.Redis.Enabled {
		rdb, err := redis.NewRedisClient(cfg.Redis)
		if err != nil {
			log.Fatalf("create redis client: %v", err)
		}
		defer rdb.Close()
		sessions = session.NewRedisStore(rdb)
		healthCheck = rdb.Ping
	} else {
		mem := session.NewMemoryStore()
		go mem.RunSweeper(ctx, time.Minute)
		sessions = mem
	}

	assistantService, err := assistant.NewService(assistant.Deps{
		Extractor: extractor,
		Grader: ai.NewGrader(chatModel, ai.GraderOptions{
			MaxScore:        cfg.BasicConfig.MaxScore,
			MinStudentChars: cfg.BasicConfig.MinStudentChars,
			Timeout:         cfg.LLMTimeout(),
			Logger:          logr,
		}),
		Tutor:      ai.NewTutor(chatModel, cfg.LLMTimeout(), logr),
		Sessions:   sessions,
		SessionTTL: cfg.SessionTTL(),
		Logger:     logr,
	})
	if err != nil {
		log.Fatalf("init assistant service: %v", err)
	}

	dispatcher := worker.NewDispatcher(worker.Config{
		MinWorkers: cfg.BasicConfig.MinWorkers,
		MaxWorkers: cfg.BasicConfig.MaxWorkers,
		QueueSize:  cfg.BasicConfig.QueueSize,
		Logger:     logr,
	})
	defer dispatcher.Close()

	handlers := api.NewHandler(assistantService, dispatcher, api.Options{
		MaxUploadBytes: cfg.BasicConfig.MaxUploadBytes,
		Logger:         logr,
		HealthCheck:    healthCheck,
	})

	if cfg.BasicConfig.Env == logger.EnvProd {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	handlers.RegisterRoutes(router)

	addr := cfg.BasicConfig.ServerAddress
	if addr == "" {
		addr = ":8090"
	}
	srv := &http.Server{Addr: addr, Handler: router}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logr.Error("shutdown", "err", err)
		}
	}()

	logr.Info("listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logr.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

// newExtractor builds the OCR engines once; they are shared by every request.
func newExtractor(ctx context.Context, cfg *config.Config, logr *slog.Logger) (*extract.Extractor, error) {
	tessOpts := tesseract.Options{
		Languages:      cfg.OCR.Languages,
		TessdataPrefix: cfg.OCR.TessdataPrefix,
		DPI:            cfg.OCR.DPI,
	}

	var handwriting extract.PageRecognizer = tesseract.NewHandwriting(tessOpts)
	if cfg.OCR.HandwritingEngine == config.HandwritingVision {
		visionModel, err := ai.NewChatModel(ctx, cfg.LLM, cfg.OCR.VisionModel, cfg.LLMTimeout())
		if err != nil {
			return nil, err
		}
		vision, err := extract.NewVisionRecognizer(visionModel)
		if err != nil {
			return nil, err
		}
		handwriting = vision
	}

	rasterizer := extract.NewPopplerRasterizer(cfg.OCR.PdftoppmPath, cfg.OCR.DPI)
	if !rasterizer.Available() {
		logr.Warn("pdftoppm not found; PDF uploads will fail", "binary", rasterizer.Binary)
	}

	return extract.New(extract.Options{
		Printed:         tesseract.NewPrinted(tessOpts),
		Handwriting:     handwriting,
		Rasterizer:      rasterizer,
		TextLayer:       extract.PDFTextLayer{},
		PreferTextLayer: cfg.OCR.PreferTextLayer,
		Logger:          logr,
	}), nil
}

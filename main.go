package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/example/nutriscan/internal/advice"
	"github.com/example/nutriscan/internal/auth"
	"github.com/example/nutriscan/internal/awsocr"
	"github.com/example/nutriscan/internal/config"
	"github.com/example/nutriscan/internal/extraction"
	"github.com/example/nutriscan/internal/grpcclient"
	"github.com/example/nutriscan/internal/handlers"
	"github.com/example/nutriscan/internal/llm"
	"github.com/example/nutriscan/internal/logging"
	"github.com/example/nutriscan/internal/ocr"
	"github.com/example/nutriscan/internal/usecase"
)

func main() {
	if err := config.LoadDotenv(); err != nil {
		panic(err)
	}
	cfg, err := config.Load(os.Getenv(config.PathEnv))
	if err != nil {
		panic(err)
	}

	logger, err := logging.NewLogger(cfg.Log.Level)
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	reader, closeReader, err := initReader(ctx, cfg.OCR, logger)
	if err != nil {
		logger.Fatal("failed to initialize OCR reader", zap.String("provider", cfg.OCR.Provider), zap.Error(err))
	}
	defer closeReader()

	var cache usecase.Cache
	if cfg.Redis.Enabled {
		redisCtx, redisCancel := context.WithTimeout(ctx, 5*time.Second)
		redisClient := initRedis(redisCtx, cfg.Redis, logger)
		redisCancel()
		defer redisClient.Close()
		cache = usecase.NewRedisCache(redisClient)
	}

	completer := llm.NewClient(llm.Config{
		BaseURL:       cfg.LLM.BaseURL,
		APIKey:        cfg.LLM.APIKey,
		Model:         cfg.LLM.Model,
		Timeout:       cfg.LLM.Timeout,
		RetryAttempts: cfg.LLM.RetryAttempts,
	}, nil, logger)

	uc := usecase.NewAnalysisUseCase(
		reader,
		extraction.NewExtractor(completer, logger),
		advice.NewAdviser(completer, logger),
		cache,
		cfg.Redis.TTL,
		logger,
	)

	r := gin.Default()
	r.MaxMultipartMemory = handlers.MaxUploadSize

	authMiddleware := auth.Middleware(cfg.Auth.JWTSecret, cfg.Auth.JWTAudience)
	if cfg.Auth.JWTSecret == "" {
		logger.Warn("JWT secret not configured, API is unauthenticated")
	}

	handlers.RegisterRoutes(r, uc, authMiddleware, logger)

	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: r,
	}

	logger.Info("nutriscan API listening", zap.String("addr", cfg.Server.Addr), zap.String("ocr_provider", cfg.OCR.Provider))
	if err := serveHTTPServer(server, cfg.Server.ShutdownTimeout, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func initReader(ctx context.Context, cfg config.OCRConfig, logger *zap.Logger) (ocr.Reader, func(), error) {
	noop := func() {}
	switch cfg.Provider {
	case config.OCRProviderGRPC:
		reader, conn, err := grpcclient.DialTextReader(ctx, cfg.Addr, cfg.MinConfidence, logger)
		if err != nil {
			return nil, noop, err
		}
		return ocr.WithTimeout(reader, cfg.Timeout), func() { conn.Close() }, nil
	case config.OCRProviderRekognition:
		reader, err := awsocr.NewReader(ctx, cfg.Region, cfg.MinConfidence, logger)
		if err != nil {
			return nil, noop, err
		}
		return ocr.WithTimeout(reader, cfg.Timeout), noop, nil
	default:
		logger.Warn("OCR disabled, image analysis will be unavailable")
		return nil, noop, nil
	}
}

func initRedis(ctx context.Context, cfg config.RedisConfig, zapLogger *zap.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		zapLogger.Fatal("redis connection failed", zap.Error(err))
	}
	return client
}

func serveHTTPServer(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	return serveHTTPServerWithOptions(server, shutdownTimeout, logger, nil, nil)
}

func serveHTTPServerWithOptions(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if listener != nil {
			err = server.Serve(listener)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	var (
		sigCh       <-chan os.Signal
		stopSignals func()
	)

	if signalCh != nil {
		sigCh = signalCh
		stopSignals = func() {}
	} else {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		sigCh = ch
		stopSignals = func() {
			signal.Stop(ch)
		}
	}
	defer stopSignals()

	select {
	case err := <-errCh:
		return err
	case sig, ok := <-sigCh:
		if !ok {
			return <-errCh
		}
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}

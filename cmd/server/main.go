// Package main initializes and starts the SiteKeeper remote store server,
// setting up configuration, logging, database, token sessions, object
// storage, realtime hub, repositories, services and handlers.
package main

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	nethttp "net/http"

	"github.com/atinyakov/SiteKeeper/internal/config"
	"github.com/atinyakov/SiteKeeper/internal/db"
	"github.com/atinyakov/SiteKeeper/internal/logger"
	"github.com/atinyakov/SiteKeeper/internal/objectstore"
	"github.com/atinyakov/SiteKeeper/internal/realtime"
	"github.com/atinyakov/SiteKeeper/internal/repository"
	"github.com/atinyakov/SiteKeeper/internal/server/handler/http"
	"github.com/atinyakov/SiteKeeper/internal/service"
	"github.com/atinyakov/SiteKeeper/internal/session"
	"go.uber.org/zap"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

func main() {
	options, err := config.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	fmt.Printf("Build version: %s\n", cmp.Or(version, "N/A"))
	fmt.Printf("Build date: %s\n", cmp.Or(buildDate, "N/A"))

	log := logger.New()
	defer func() { _ = log.Log.Sync() }()
	if err := log.Init(options.LogLevel); err != nil {
		fmt.Fprintln(os.Stderr, "failed to init logger:", err)
		os.Exit(1)
	}
	zapLogger := log.Log

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	postgresDB, err := db.InitPostgres(options.DatabaseDSN)
	if err != nil {
		zapLogger.Fatal("cannot init database", zap.Error(err))
	}
	defer postgresDB.Close()

	db.StartSoftDeleteCleaner(ctx, postgresDB, time.Hour, options.Retention, zapLogger)

	tokens, err := session.NewRedisStore(options.RedisURL)
	if err != nil {
		zapLogger.Fatal("cannot connect to redis", zap.Error(err))
	}
	defer tokens.Close()

	hub := realtime.NewHub(64, zapLogger)

	authService := service.NewAuthService(repository.NewPostgresAuthRepository(postgresDB), tokens, options.TokenTTL)
	tableService := service.NewTableService(repository.NewPostgresTableRepository(postgresDB), hub)

	handlers := http.Handlers{
		Auth:     &http.AuthHandler{AuthService: authService},
		Rest:     &http.RestHandler{Tables: tableService, Log: zapLogger},
		Realtime: http.NewRealtimeHandler(hub, zapLogger),
		Health:   &http.HealthHandler{DB: postgresDB, Tokens: tokens},
	}

	if options.MinioEndpoint != "" {
		objects, err := objectstore.NewMinioStore(ctx, objectstore.Config{
			Endpoint:  options.MinioEndpoint,
			AccessKey: options.MinioAccessKey,
			SecretKey: options.MinioSecretKey,
			Bucket:    options.MinioBucket,
			UseSSL:    options.MinioUseSSL,
		})
		if err != nil {
			zapLogger.Fatal("cannot init object storage", zap.Error(err))
		}
		handlers.Storage = &http.StorageHandler{Objects: objects, Log: zapLogger}
	} else {
		zapLogger.Warn("object storage disabled: no minio endpoint configured")
	}

	server := &nethttp.Server{
		Addr:              options.Port,
		Handler:           http.NewRouter(handlers, authService, zapLogger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			zapLogger.Error("graceful shutdown failed", zap.Error(err))
		}
	}()

	if options.TLSCert != "" && options.TLSKey != "" {
		zapLogger.Info("starting HTTPS server", zap.String("addr", options.Port))
		err = server.ListenAndServeTLS(options.TLSCert, options.TLSKey)
	} else {
		zapLogger.Info("starting HTTP server", zap.String("addr", options.Port))
		err = server.ListenAndServe()
	}
	if err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
		zapLogger.Fatal("server stopped", zap.Error(err))
	}
}

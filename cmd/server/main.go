package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bayou-chat/internal/chat"
	"bayou-chat/internal/config"
	"bayou-chat/internal/handlers"
	"bayou-chat/internal/media"
	"bayou-chat/internal/middleware"
	"bayou-chat/internal/store"
	"bayou-chat/internal/utils"
	"bayou-chat/internal/websocket"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/lmittmann/tint"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: logLevel(cfg.LogLevel)}))
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := utils.NewMetricsCollector()

	messageStore, userStore, cleanup, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	uploader, err := media.NewDiskStore(cfg.MediaDir, cfg.MediaBaseURL)
	if err != nil {
		return err
	}

	hub := websocket.NewHub(log, metrics)
	go hub.Run()

	system := actor.NewActorSystem()
	fanout := chat.NewFanout(system, hub, log, metrics)

	service := chat.NewService(messageStore, uploader, fanout, log, metrics)
	auth := middleware.NewAuthenticator(cfg.JWTSecret, cfg.TokenTTL)
	server := handlers.NewServer(service, userStore, hub, auth, metrics, log, cfg.AllowedOrigins)

	root := http.NewServeMux()
	root.Handle("/media/", http.StripPrefix("/media/", http.FileServer(http.Dir(cfg.MediaDir))))
	root.Handle("/", server.Routes())

	httpServer := &http.Server{
		Addr:    cfg.Addr(),
		Handler: root,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", "addr", cfg.Addr(), "store", cfg.StoreBackend)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// openStores builds the configured message/user store backend and returns a
// cleanup to run at exit.
func openStores(ctx context.Context, cfg *config.Config, log *slog.Logger) (store.MessageStore, store.UserStore, func(), error) {
	switch cfg.StoreBackend {
	case "mongo":
		mongoStore, err := store.NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, nil, nil, err
		}
		cleanup := func() {
			disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := mongoStore.Close(disconnectCtx); err != nil {
				log.Error("failed to close mongo store", "error", err)
			}
		}
		return mongoStore, mongoStore, cleanup, nil

	case "postgres":
		postgresStore, err := store.NewPostgresStore(cfg.PostgresURI)
		if err != nil {
			return nil, nil, nil, err
		}
		cleanup := func() {
			if err := postgresStore.Close(); err != nil {
				log.Error("failed to close postgres store", "error", err)
			}
		}
		return postgresStore, postgresStore, cleanup, nil

	case "badger":
		badgerStore, err := store.NewBadgerStore(cfg.BadgerPath, log)
		if err != nil {
			return nil, nil, nil, err
		}
		cleanup := func() {
			if err := badgerStore.Close(); err != nil {
				log.Error("failed to close badger store", "error", err)
			}
		}
		return badgerStore, badgerStore, cleanup, nil

	case "memory":
		memoryStore := store.NewMemoryStore()
		return memoryStore, memoryStore, func() {}, nil

	default:
		return nil, nil, nil, fmt.Errorf("unsupported store backend %q", cfg.StoreBackend)
	}
}

func logLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

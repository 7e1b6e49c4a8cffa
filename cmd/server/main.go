package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"gorm.io/gorm/logger"

	"github.com/Tyrowin/streamchat/internal/auth"
	"github.com/Tyrowin/streamchat/internal/chat"
	"github.com/Tyrowin/streamchat/internal/server"
	"github.com/Tyrowin/streamchat/internal/storage"
)

func main() {
	log.SetPrefix("[CHAT] ")
	log.Println("Starting StreamChat server...")

	config, err := server.NewConfigFromEnv()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := storage.Open(config.DatabasePath, logger.Warn)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	store := storage.NewStore(db)

	tokens := auth.NewTokenManager(config.AuthConfig())
	deps := chat.Deps{
		Auth:     auth.NewResolver(tokens, store),
		Streams:  store,
		Messages: store,
		Users:    store,
		Blocks:   store,
	}

	service := server.NewService(*config, deps)
	httpServer := server.CreateServer(config.Port, service.Mux)

	go func() {
		if err := server.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// Connections must be gone before the database closes, so a single
	// operation runs the steps in order.
	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		config.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"chat-server": func(_ context.Context) error {
				log.Println("Graceful shutdown initiated...")
				return errors.Join(
					server.ShutdownServer(httpServer, config.ShutdownTimeout),
					service.Shutdown(config.ShutdownTimeout),
					store.Close(),
				)
			},
		},
	)

	exitCode := <-wait
	log.Printf("Server exited with code: %d", exitCode)
	os.Exit(exitCode)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/the-vishh/flashchat/internal/server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	fmt.Println("Starting FlashChat server...")

	cfg := server.NewConfigFromEnv()

	hub := server.NewHub(cfg)
	go hub.Run()

	handlers := server.NewHandlers(hub)
	mux := server.SetupRoutes(handlers)
	httpServer := server.CreateServer(cfg.Port, mux)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.StartServer(httpServer)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	case <-ctx.Done():
		log.Println("Shutdown signal received")
		if err := server.ShutdownServer(httpServer, shutdownTimeout); err != nil {
			log.Printf("HTTP shutdown returned error: %v", err)
		}
		if err := hub.Shutdown(shutdownTimeout); err != nil {
			log.Printf("Hub shutdown returned error: %v", err)
		}
	}
}

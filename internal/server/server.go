package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/Tyrowin/streamchat/internal/chat"
	"github.com/Tyrowin/streamchat/internal/room"
)

// registryBuffer is the depth of the room registry's request queue.
const registryBuffer = 1024

// Service is a running chat server: the room registry actor, the connection
// hub and the routes that expose them.
type Service struct {
	Config   Config
	Registry *room.Registry
	Hub      *Hub
	Handlers *Handlers
	Mux      *http.ServeMux

	stopRegistry context.CancelFunc
}

// NewService starts the registry and the hub for cfg and deps. Call
// Shutdown to stop them.
func NewService(cfg Config, deps chat.Deps) *Service {
	cfg = cfg.Sanitized()

	registryCtx, stopRegistry := context.WithCancel(context.Background())
	registry := room.NewRegistry(registryBuffer)
	go registry.Run(registryCtx)
	log.Println("Room registry started")

	hub := NewHub(cfg, registry, deps)
	go hub.Run()
	log.Println("Hub started and ready to manage WebSocket connections")

	handlers := NewHandlers(hub)
	return &Service{
		Config:       cfg,
		Registry:     registry,
		Hub:          hub,
		Handlers:     handlers,
		Mux:          SetupRoutes(handlers),
		stopRegistry: stopRegistry,
	}
}

// Shutdown closes every connection, letting each session leave its room,
// and then stops the registry.
func (s *Service) Shutdown(timeout time.Duration) error {
	hubErr := s.Hub.Shutdown(timeout)

	s.stopRegistry()
	select {
	case <-s.Registry.Done():
	case <-time.After(timeout):
		return errors.Join(hubErr, fmt.Errorf("room registry did not stop within %s", timeout))
	}
	log.Println("Room registry stopped")
	return hubErr
}

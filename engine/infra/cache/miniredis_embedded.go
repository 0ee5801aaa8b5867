package cache

import (
	"context"
	"fmt"
	"sync"

	"github.com/alicebob/miniredis/v2"
	"github.com/compozy/statusstream/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// MiniredisEmbedded runs an in-process Redis server for standalone mode.
// State lives in memory only and is lost on shutdown.
type MiniredisEmbedded struct {
	server *miniredis.Miniredis
	client *redis.Client
	once   sync.Once
}

// NewMiniredisEmbedded starts the embedded server and connects a client to it.
func NewMiniredisEmbedded(ctx context.Context) (*MiniredisEmbedded, error) {
	log := logger.FromContext(ctx).With("component", "miniredis")
	server := miniredis.NewMiniRedis()
	if err := server.Start(); err != nil {
		return nil, fmt.Errorf("starting embedded redis: %w", err)
	}
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		server.Close()
		return nil, fmt.Errorf("pinging embedded redis: %w", err)
	}
	log.Info("Embedded Redis started", "addr", server.Addr())
	return &MiniredisEmbedded{server: server, client: client}, nil
}

// Client returns the client connected to the embedded server.
func (m *MiniredisEmbedded) Client() redis.UniversalClient {
	return m.client
}

// Addr returns the listen address of the embedded server.
func (m *MiniredisEmbedded) Addr() string {
	return m.server.Addr()
}

// Server exposes the underlying miniredis instance.
func (m *MiniredisEmbedded) Server() *miniredis.Miniredis {
	return m.server
}

// Close stops the client and the server. Safe to call more than once.
func (m *MiniredisEmbedded) Close(ctx context.Context) error {
	var err error
	m.once.Do(func() {
		err = m.client.Close()
		m.server.Close()
		logger.FromContext(ctx).Debug("Embedded Redis stopped")
	})
	return err
}

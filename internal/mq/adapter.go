package mq

import (
	"context"
	"log/slog"

	"github.com/sitobox/queuerouter/internal/classconfig"
)

// Adapter is the broker adapter facade: the single object router, delay and
// dbqueue components depend on, combining connection management, topology
// declaration, publish and multi-queue consume under one handle.
type Adapter struct {
	*Connection
	*Publisher
}

// NewAdapter wires a Connection and a Publisher over it into one Adapter.
func NewAdapter(url string, logger *slog.Logger) (*Adapter, error) {
	conn, err := NewConnection(url, logger)
	if err != nil {
		return nil, err
	}
	return &Adapter{Connection: conn, Publisher: NewPublisher(conn, logger)}, nil
}

// Declare is a convenience wrapping DeclareTopology for callers that only
// have a class registry handy.
func (a *Adapter) Declare(ctx context.Context, classes *classconfig.Registry) error {
	return a.Connection.DeclareTopology(ctx, classes)
}

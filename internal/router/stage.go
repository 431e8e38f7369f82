package router

import (
	"context"

	"github.com/sitobox/queuerouter/internal/packet"
)

// StageFunc is one stage's business logic: given the packet as delivered
// to its queue, mutate cargo/settings in place and report success or a
// StageError carrying the sito_return to feed publishAbort. Stage bodies
// live outside this package; they are registered per class name by the
// daemon composing Core.
type StageFunc func(ctx context.Context, pkt *packet.MessagePacket) error

// StageRegistry maps exchange-class names to their stage implementation.
type StageRegistry struct {
	stages map[string]StageFunc
}

// NewStageRegistry builds an empty registry.
func NewStageRegistry() *StageRegistry {
	return &StageRegistry{stages: map[string]StageFunc{}}
}

// Register assigns fn as the stage body for className, overwriting any
// previous registration.
func (r *StageRegistry) Register(className string, fn StageFunc) {
	r.stages[className] = fn
}

// Lookup returns the stage registered for className, if any.
func (r *StageRegistry) Lookup(className string) (StageFunc, bool) {
	fn, ok := r.stages[className]
	return fn, ok
}

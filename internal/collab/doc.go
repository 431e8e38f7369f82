// Package collab declares the external collaborator contracts the router
// core consumes but never implements: stage-specific business logic, the
// macro-expansion text engine's lookup side, and the handful of lookup
// services a stage may call out to. Implementations live outside this
// repository; tests inject fakes.
package collab

import "context"

// MessageTextSource looks up a named message template, optionally scoped
// by system/carrier/language, for publishAbort's message_name path.
type MessageTextSource interface {
	Lookup(ctx context.Context, name string, bindings map[string]any, systemID, carrier, language string) (string, error)
}

// SystemDirectory resolves a system id or name to its full identity.
type SystemDirectory interface {
	Lookup(ctx context.Context, systemID, systemName string) (id, name, csc string, err error)
}

// TimeZoneService maps wall-clock values to epochs and converts between
// zones, kept outside the router core per the injected-clock design note.
type TimeZoneService interface {
	MapToEpoch(ctx context.Context, epoch int64, zone string, granularity string) (int64, error)
	ConvertZone(ctx context.Context, epoch int64, fromTZ, toTZ string) (int64, error)
}

// ApiBridge posts out-of-band notifications for notify-class stages.
type ApiBridge interface {
	PostRequest(ctx context.Context, args map[string]any) error
}

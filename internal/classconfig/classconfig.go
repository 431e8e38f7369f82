package classconfig

// Kind is the category a class belongs to.
type Kind string

const (
	KindWork     Kind = "work"
	KindExchange Kind = "exchange"
	KindNotify   Kind = "notify"
)

// ClassConfig holds the per-class configuration loaded from the settings
// store (see config.Loader). Fields not relevant to a class's kind are left
// at their zero value.
type ClassConfig struct {
	Kind Kind `json:"kind"`

	// Exchange is used by every kind.
	Exchange string `json:"exchange"`

	// Queue and RouteKey apply to work/exchange classes; notify classes
	// may leave Queue empty (externally owned queue).
	Queue    string `json:"queue,omitempty"`
	RouteKey string `json:"route_key,omitempty"`

	// ConsumePM is the consumer-callback identifier from configuration.
	// router.StageRegistry looks stages up by class name, not by this value.
	ConsumePM string `json:"consume_pm,omitempty"`

	// ConsumeLib is an optional load path, kept for configuration
	// fidelity; the registry resolves callbacks statically regardless.
	ConsumeLib string `json:"consume_lib,omitempty"`

	// ProcessRoute is the default ordered class list a work class
	// assigns on publishStart.
	ProcessRoute []string `json:"process_route,omitempty"`

	// AbortRoute overrides the global default abort sequence
	// ([]string{"RequestResults"}) for this class.
	AbortRoute []string `json:"abort_route,omitempty"`

	// RetryMax and RetrySeconds bound and delay retries; meaningful for
	// exchange-kind classes only.
	RetryMax     int `json:"retry_max,omitempty"`
	RetrySeconds int `json:"retry_seconds,omitempty"`

	// DefaultCommon carries class-local defaults merged into a packet's
	// settings at publishStart.
	DefaultCommon map[string]any `json:"default_common,omitempty"`

	// MinDelay is the threshold (seconds) at or below which the delay
	// scheduler publishes immediately rather than scheduling a hop.
	MinDelay int `json:"min_delay,omitempty"`
}

// DefaultAbortRoute is the global fallback abort_route when neither the
// failing class nor the caller supplies one.
var DefaultAbortRoute = []string{"RequestResults"}

// Registry groups ClassConfig values by name, assembled by config.Loader.
type Registry struct {
	classes map[string]ClassConfig
}

// NewRegistry builds a Registry from a name -> ClassConfig map.
func NewRegistry(classes map[string]ClassConfig) *Registry {
	reg := &Registry{classes: make(map[string]ClassConfig, len(classes))}
	for name, cfg := range classes {
		reg.classes[name] = cfg
	}
	return reg
}

// Lookup returns the class config for name and whether it was found.
func (r *Registry) Lookup(name string) (ClassConfig, bool) {
	cfg, ok := r.classes[name]
	return cfg, ok
}

// MustWork looks up name and verifies it is a work class.
func (r *Registry) MustWork(name string) (ClassConfig, error) {
	cfg, ok := r.classes[name]
	if !ok || cfg.Kind != KindWork {
		return ClassConfig{}, ErrUnknownWorkClass
	}
	return cfg, nil
}

// MustNotify looks up name and verifies it is a notify class.
func (r *Registry) MustNotify(name string) (ClassConfig, error) {
	cfg, ok := r.classes[name]
	if !ok || cfg.Kind != KindNotify {
		return ClassConfig{}, ErrUnknownNotifyClass
	}
	return cfg, nil
}

// MustExchange looks up name and verifies it is an exchange class (the kind
// every ordinary stage in a process route belongs to) or a work class;
// notify classes and unknown names fail with ErrNotExchangeClass.
func (r *Registry) MustExchange(name string) (ClassConfig, error) {
	cfg, ok := r.classes[name]
	if !ok {
		return ClassConfig{}, ErrNotExchangeClass
	}
	if cfg.Kind != KindExchange && cfg.Kind != KindWork {
		return ClassConfig{}, ErrNotExchangeClass
	}
	return cfg, nil
}

// Exchanges returns the set of distinct exchange names referenced by any
// class, for topology declaration.
func (r *Registry) Exchanges() []string {
	seen := make(map[string]bool)
	var out []string
	for _, cfg := range r.classes {
		if cfg.Exchange == "" {
			continue
		}
		if !seen[cfg.Exchange] {
			seen[cfg.Exchange] = true
			out = append(out, cfg.Exchange)
		}
	}
	return out
}

// Queues returns (queue, exchange, routeKey) triples for every class that
// owns a queue, skipping notify classes with no queue declared.
type QueueBinding struct {
	Queue      string
	Exchange   string
	RoutingKey string
}

func (r *Registry) Queues() []QueueBinding {
	var out []QueueBinding
	for _, cfg := range r.classes {
		if cfg.Queue == "" {
			continue
		}
		rk := cfg.RouteKey
		if rk == "" {
			rk = cfg.Queue
		}
		out = append(out, QueueBinding{Queue: cfg.Queue, Exchange: cfg.Exchange, RoutingKey: rk})
	}
	return out
}

// AbortRouteFor returns the configured abort route for class, falling back
// to the global default when the class declares none.
func (r *Registry) AbortRouteFor(name string) []string {
	if cfg, ok := r.classes[name]; ok && len(cfg.AbortRoute) > 0 {
		return append([]string(nil), cfg.AbortRoute...)
	}
	return append([]string(nil), DefaultAbortRoute...)
}

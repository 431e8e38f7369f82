package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	consulapi "github.com/hashicorp/consul/api"

	"github.com/sitobox/queuerouter/internal/classconfig"
)

// root is the mandatory configuration section key (§6).
const root = "QueueRouter"

// Config is the loaded, validated router configuration.
type Config struct {
	CargoKey    string
	SettingsKey string
	Classes     *classconfig.Registry

	// OptionalPublishExchange mirrors AMQP_Publish_exchange.optional —
	// present only when operators have opted a deployment into it.
	OptionalPublishExchange string
}

// Loader fetches router configuration from Consul's KV store.
type Loader struct {
	kv *consulapi.KV
}

// NewLoader builds a Loader against the Consul agent at addr. addr falling
// back to CONSUL_ADDR then the client library's own default
// (127.0.0.1:8500) when empty.
func NewLoader(addr string) (*Loader, error) {
	cfg := consulapi.DefaultConfig()
	if addr != "" {
		cfg.Address = addr
	} else if env := os.Getenv("CONSUL_ADDR"); env != "" {
		cfg.Address = env
	}

	client, err := consulapi.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("new consul client: %w", err)
	}

	return &Loader{kv: client.KV()}, nil
}

// Load fetches and validates the QueueRouter/ subtree, returning an
// assembled class registry. Fails with ErrMissingConfig if any mandatory
// key (exchange_class, work_class, cargo_key, settings_key) is absent.
func (l *Loader) Load() (*Config, error) {
	pairs, _, err := l.kv.List(root+"/", nil)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", root, err)
	}
	if len(pairs) == 0 {
		return nil, fmt.Errorf("%w: %s section absent", classconfig.ErrMissingConfig, root)
	}

	entries := make(map[string][]byte, len(pairs))
	for _, p := range pairs {
		key := strings.TrimPrefix(p.Key, root+"/")
		entries[key] = p.Value
	}

	cargoKey, ok := stringValue(entries, "cargo_key")
	if !ok {
		return nil, fmt.Errorf("%w: cargo_key", classconfig.ErrMissingConfig)
	}
	settingsKey, ok := stringValue(entries, "settings_key")
	if !ok {
		return nil, fmt.Errorf("%w: settings_key", classconfig.ErrMissingConfig)
	}

	classes := make(map[string]classconfig.ClassConfig)
	haveExchange, haveWork := false, false

	for key, value := range entries {
		kind, name, ok := splitClassKey(key)
		if !ok {
			continue
		}

		var cfg classconfig.ClassConfig
		if err := json.Unmarshal(value, &cfg); err != nil {
			return nil, fmt.Errorf("decode class %s/%s: %w", kind, name, err)
		}
		cfg.Kind = classconfig.Kind(kind)
		classes[name] = cfg

		switch cfg.Kind {
		case classconfig.KindExchange:
			haveExchange = true
		case classconfig.KindWork:
			haveWork = true
		}
	}

	if !haveExchange {
		return nil, fmt.Errorf("%w: exchange_class", classconfig.ErrMissingConfig)
	}
	if !haveWork {
		return nil, fmt.Errorf("%w: work_class", classconfig.ErrMissingConfig)
	}

	optional, _ := stringValue(entries, "AMQP_Publish_exchange.optional")

	return &Config{
		CargoKey:                cargoKey,
		SettingsKey:             settingsKey,
		Classes:                 classconfig.NewRegistry(classes),
		OptionalPublishExchange: optional,
	}, nil
}

func stringValue(entries map[string][]byte, key string) (string, bool) {
	v, ok := entries[key]
	if !ok || len(v) == 0 {
		return "", false
	}
	return string(v), true
}

// splitClassKey recognizes keys shaped "<kind>_class/<name>" where kind is
// exchange, work or notify, and returns the singular kind token used as
// classconfig.Kind plus the class name.
func splitClassKey(key string) (kind, name string, ok bool) {
	for _, k := range []string{"exchange_class/", "work_class/", "notify_class/"} {
		if strings.HasPrefix(key, k) {
			return strings.TrimSuffix(k, "_class/"), strings.TrimPrefix(key, k), true
		}
	}
	return "", "", false
}

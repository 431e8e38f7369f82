package packet

import "encoding/json"

// SitoReturn is the structured error set on abort: a short code plus a long
// description, carried onward in settings.sito_return.
type SitoReturn struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// RetryEvent records one retry attempt for a class.
type RetryEvent struct {
	Attempt int    `json:"attempt"`
	Reason  string `json:"reason,omitempty"`
	AtEpoch int64  `json:"at_epoch"`
}

// PublishArgs names the exchange and routing key a hop publishes to,
// possibly still containing unresolved %%ident%% macro tokens.
type PublishArgs struct {
	Exchange   string `json:"exchange"`
	RoutingKey string `json:"routing_key"`
}

// Settings is the router-managed metadata riding alongside cargo. Known
// fields match §3 of the packet data model; anything else survives in
// Extras so round-tripping is lossless.
type Settings struct {
	ProcessRoute []string               `json:"process_route"`
	History      []string               `json:"history"`
	RouteArgs    map[string]PublishArgs `json:"route_args,omitempty"`
	PublishArgs  map[string]PublishArgs `json:"publish_args,omitempty"`

	RecordID  string `json:"record_id,omitempty"`
	TaskStart int64  `json:"task_start,omitempty"`
	BatchID   string `json:"batch_id,omitempty"`

	RetryReady   bool                    `json:"retry_ready"`
	RetryCount   map[string]int          `json:"retry_count,omitempty"`
	RetryHistory map[string][]RetryEvent `json:"retry_history,omitempty"`

	SitoReturn *SitoReturn `json:"sito_return,omitempty"`

	RequestStatus       string   `json:"request_status,omitempty"`
	RequestStatusDetail string   `json:"request_status_detail,omitempty"`
	AbortStatus         string   `json:"abort_status,omitempty"`
	AbortRoute          []string `json:"abort_route,omitempty"`

	// Extras holds settings keys the router core does not interpret
	// itself but which a stage callback may have set (e.g. per-work-class
	// fields merged in at publishStart from ClassConfig.DefaultCommon).
	Extras map[string]any `json:"-"`
}

// MessagePacket is the single unit that flows end-to-end through the
// router. Cargo is opaque to the router core; stages read/modify it.
type MessagePacket struct {
	Cargo    any      `json:"-"`
	Settings Settings `json:"-"`
}

// settingsAlias avoids infinite recursion in (Un)MarshalJSON by reusing
// Settings' field tags without its custom marshaling hooks.
type settingsAlias Settings

// MarshalJSON flattens Extras alongside the known fields.
func (s Settings) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal(settingsAlias(s))
	if err != nil {
		return nil, err
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(known, &merged); err != nil {
		return nil, err
	}

	for k, v := range s.Extras {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		if _, exists := merged[k]; !exists {
			merged[k] = raw
		}
	}

	return json.Marshal(merged)
}

// UnmarshalJSON populates known fields and stashes everything else in
// Extras.
func (s *Settings) UnmarshalJSON(data []byte) error {
	var alias settingsAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	*s = Settings(alias)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	known := knownSettingsKeys()
	extras := make(map[string]any)
	for k, v := range raw {
		if known[k] {
			continue
		}
		var val any
		if err := json.Unmarshal(v, &val); err != nil {
			return err
		}
		extras[k] = val
	}
	if len(extras) > 0 {
		s.Extras = extras
	}
	return nil
}

func knownSettingsKeys() map[string]bool {
	return map[string]bool{
		"process_route": true, "history": true, "route_args": true,
		"publish_args": true, "record_id": true, "task_start": true,
		"batch_id": true, "retry_ready": true, "retry_count": true,
		"retry_history": true, "sito_return": true, "request_status": true,
		"request_status_detail": true, "abort_status": true, "abort_route": true,
	}
}

// Encode serializes a packet using the given cargo/settings top-level key
// names (see config.Loader's cargo_key/settings_key).
func Encode(p MessagePacket, cargoKey, settingsKey string) ([]byte, error) {
	cargoRaw, err := json.Marshal(p.Cargo)
	if err != nil {
		return nil, err
	}
	settingsRaw, err := json.Marshal(p.Settings)
	if err != nil {
		return nil, err
	}

	env := map[string]json.RawMessage{
		cargoKey:    cargoRaw,
		settingsKey: settingsRaw,
	}
	return json.Marshal(env)
}

// Decode parses a packet previously produced by Encode.
func Decode(data []byte, cargoKey, settingsKey string) (MessagePacket, error) {
	var env map[string]json.RawMessage
	if err := json.Unmarshal(data, &env); err != nil {
		return MessagePacket{}, err
	}

	var p MessagePacket
	if raw, ok := env[cargoKey]; ok {
		if err := json.Unmarshal(raw, &p.Cargo); err != nil {
			return MessagePacket{}, err
		}
	}
	if raw, ok := env[settingsKey]; ok {
		if err := json.Unmarshal(raw, &p.Settings); err != nil {
			return MessagePacket{}, err
		}
	}
	return p, nil
}

// Clone deep-copies a packet via its own wire format, so the copy shares no
// mutable history/route slices with the original.
func Clone(p MessagePacket) (MessagePacket, error) {
	data, err := Encode(p, "cargo", "settings")
	if err != nil {
		return MessagePacket{}, err
	}
	return Decode(data, "cargo", "settings")
}

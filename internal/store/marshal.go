package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/enginesim/internal/config"
	"github.com/roach88/enginesim/internal/ir"
)

// marshalJSON encodes v as compact JSON TEXT. Struct field order is fixed,
// so equal values always produce identical text.
func marshalJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	// Encoder adds a trailing newline, remove it
	return strings.TrimSpace(buf.String()), nil
}

// marshalConfig converts an EngineConfig to JSON TEXT for storage.
func marshalConfig(cfg config.EngineConfig) (string, error) {
	data, err := marshalJSON(cfg)
	if err != nil {
		return "", fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// unmarshalConfig parses JSON TEXT to an EngineConfig.
func unmarshalConfig(data string) (config.EngineConfig, error) {
	var cfg config.EngineConfig
	if err := json.Unmarshal([]byte(data), &cfg); err != nil {
		return config.EngineConfig{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// marshalStats converts a StatsSnapshot to JSON TEXT for storage.
func marshalStats(stats ir.StatsSnapshot) (string, error) {
	data, err := marshalJSON(stats)
	if err != nil {
		return "", fmt.Errorf("marshal stats: %w", err)
	}
	return data, nil
}

// unmarshalStats parses JSON TEXT to a StatsSnapshot.
func unmarshalStats(data string) (ir.StatsSnapshot, error) {
	var stats ir.StatsSnapshot
	if err := json.Unmarshal([]byte(data), &stats); err != nil {
		return ir.StatsSnapshot{}, fmt.Errorf("unmarshal stats: %w", err)
	}
	return stats, nil
}

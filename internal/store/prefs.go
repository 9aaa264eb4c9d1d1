package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"
)

// Preference keys. Only these may be stored.
const (
	KeySelectedRegion = "selected_region"
	KeyMapView        = "map_view"
)

var prefKeys = []string{KeySelectedRegion, KeyMapView}

// ErrUnknownKey is returned for preference keys outside the fixed set.
var ErrUnknownKey = errors.New("unknown preference key")

// ValidPrefKey reports whether key may be stored.
func ValidPrefKey(key string) bool {
	return slices.Contains(prefKeys, key)
}

// GetPref decodes the stored JSON value of key into dst.
func (db *DB) GetPref(ctx context.Context, key string, dst any) error {
	raw, err := db.GetPrefRaw(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("failed to decode preference %s: %w", key, err)
	}
	return nil
}

// GetPrefRaw returns the stored JSON value of key.
func (db *DB) GetPrefRaw(ctx context.Context, key string) (json.RawMessage, error) {
	if !ValidPrefKey(key) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}

	var value string
	err := db.QueryRowContext(ctx, `SELECT value FROM prefs WHERE key = ?`, key).Scan(&value)
	if err != nil {
		return nil, notFound(err, "preference "+key)
	}
	return json.RawMessage(value), nil
}

// PutPref stores v as JSON under key.
func (db *DB) PutPref(ctx context.Context, key string, v any) error {
	if !ValidPrefKey(key) {
		return fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode preference %s: %w", key, err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO prefs (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, string(data), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to store preference %s: %w", key, err)
	}
	return nil
}

// DeletePref removes key. Removing an absent key is not an error.
func (db *DB) DeletePref(ctx context.Context, key string) error {
	if !ValidPrefKey(key) {
		return fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	_, err := db.ExecContext(ctx, `DELETE FROM prefs WHERE key = ?`, key)
	return err
}

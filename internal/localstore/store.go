package localstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jsa498/digitalmarketing/internal/model"
)

// Store persists the local cart snapshot across restarts.
// A missing snapshot loads as an empty cart, not an error.
type Store interface {
	// Load returns the last saved snapshot.
	Load(ctx context.Context) ([]model.CartLineItem, error)

	// Save replaces the saved snapshot.
	Save(ctx context.Context, items []model.CartLineItem) error

	// Close releases the backend.
	Close() error
}

// ErrCorrupt is returned when a saved snapshot cannot be decoded.
var ErrCorrupt = errors.New("local cart snapshot is corrupt")

// snapshotVersion is bumped when the envelope layout changes.
const snapshotVersion = 0

// envelope mirrors the browser storage layout: {"state":{"items":[...]},"version":0}.
type envelope struct {
	State struct {
		Items []model.CartLineItem `json:"items"`
	} `json:"state"`
	Version int `json:"version"`
}

func encode(items []model.CartLineItem) ([]byte, error) {
	var env envelope
	env.State.Items = items
	if env.State.Items == nil {
		env.State.Items = []model.CartLineItem{}
	}
	env.Version = snapshotVersion
	return json.Marshal(env)
}

func decode(data []byte) ([]model.CartLineItem, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if env.Version != snapshotVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, env.Version)
	}
	return env.State.Items, nil
}

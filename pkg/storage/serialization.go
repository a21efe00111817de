// Package storage - Serialization helpers for BadgerDB.
package storage

import (
	"encoding/json"
	"fmt"

	"github.com/orneryd/rhizome/pkg/encryption"
	"github.com/orneryd/rhizome/pkg/growth"
)

// serializeRun converts a Run to JSON bytes for BadgerDB storage.
func serializeRun(run *Run) ([]byte, error) {
	return json.Marshal(run)
}

// deserializeRun converts JSON bytes back to a Run.
func deserializeRun(data []byte) (*Run, error) {
	var run Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("unmarshaling run: %w", err)
	}
	return &run, nil
}

// encodeSnapshot marshals snap and seals it under key when sealer is set.
func encodeSnapshot(snap *growth.Snapshot, sealer *encryption.Sealer, key []byte) ([]byte, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("marshaling snapshot: %w", err)
	}
	if sealer == nil {
		return data, nil
	}
	return sealer.Seal(data, key)
}

// decodeSnapshot opens sealed payloads and unmarshals the snapshot. Plain
// payloads are accepted with or without a sealer.
func decodeSnapshot(data []byte, sealer *encryption.Sealer, key []byte) (growth.Snapshot, error) {
	if encryption.IsSealed(data) {
		if sealer == nil {
			return growth.Snapshot{}, ErrSealed
		}
		plain, err := sealer.Open(data, key)
		if err != nil {
			return growth.Snapshot{}, fmt.Errorf("opening snapshot: %w", err)
		}
		data = plain
	}

	var snap growth.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return growth.Snapshot{}, fmt.Errorf("%w: unmarshaling snapshot: %w", ErrInvalidData, err)
	}
	return snap, nil
}

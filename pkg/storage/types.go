package storage

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/orneryd/rhizome/pkg/growth"
)

// Common errors
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidRunID  = errors.New("invalid run id")
	ErrInvalidData   = errors.New("invalid data")
	ErrSealed        = errors.New("snapshot is sealed and no passphrase was given")
	ErrStorageClosed = errors.New("storage closed")
)

// Run describes one growth run and its stored snapshots.
type Run struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Seed      int64     `json:"seed"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Engine is the configuration the run was grown with, when recorded.
	Engine *growth.Config `json:"engine,omitempty"`

	// Latest saved state.
	Generation int  `json:"generation"`
	Nodes      int  `json:"nodes"`
	Snapshots  int  `json:"snapshots"`
	Sealed     bool `json:"sealed"`
}

// NewRunID returns a fresh random run ID.
func NewRunID() string {
	return uuid.NewString()
}

// validRunID rejects empty IDs and IDs containing the key separator.
func validRunID(id string) bool {
	if id == "" {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] == 0x00 {
			return false
		}
	}
	return true
}

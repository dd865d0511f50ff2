package workflow

import (
	"github.com/google/uuid"
)

// IDGenerator produces request ids for new processes.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 request ids.
//
// UUIDv7 embeds a timestamp in the most significant bits, so request ids
// sort by creation time in the log.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate returns a new hyphenated UUIDv7.
// Panics if the random source fails.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

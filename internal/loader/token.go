package loader

import "github.com/google/uuid"

// TokenGenerator mints request tokens correlating a load with its log
// entries and load record.
// Implemented by UUIDv7Tokens (production) and testutil.SequentialTokens.
type TokenGenerator interface {
	Generate() string
}

// UUIDv7Tokens generates time-sortable UUIDv7 request tokens.
//
// Thread-safety: stateless, safe for concurrent use.
type UUIDv7Tokens struct{}

// Generate returns a hyphenated UUIDv7. Panics if the system random source
// fails.
func (UUIDv7Tokens) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

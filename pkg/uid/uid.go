package uid

import (
	"strings"

	"github.com/google/uuid"
)

const (
	// SessionPrefix marks client session ids.
	SessionPrefix = "sess"

	// SubscriptionPrefix marks change subscription handles.
	SubscriptionPrefix = "sub"
)

// New generates a new unique identifier.
func New() string {
	return uuid.New().String()
}

// IsValid checks if a string is a valid UUID.
func IsValid(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// WithPrefix returns prefix + "_" + a dashless UUID, e.g. "sess_3f2a...".
// The result is safe in Kafka group ids and Redis keys.
func WithPrefix(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.New().String(), "-", "")
}

// HasPrefix reports whether id was made by WithPrefix(prefix).
func HasPrefix(id, prefix string) bool {
	rest, ok := strings.CutPrefix(id, prefix+"_")
	if !ok || len(rest) != 32 {
		return false
	}
	_, err := uuid.Parse(rest)
	return err == nil
}

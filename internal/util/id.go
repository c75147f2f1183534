package util

import "github.com/google/uuid"

// NewID returns a random UUIDv4. Ids are opaque and unique across the tree.
func NewID() string {
	return uuid.NewString()
}

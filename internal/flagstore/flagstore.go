// Package flagstore persists flag artifacts: small objects whose mere
// presence carries a boolean signal between isolated pipeline steps.
package flagstore

import (
	"context"
	"fmt"
)

// Store is a keyed object store for flag artifacts.
type Store interface {
	// Put writes data under key, replacing existing content.
	Put(ctx context.Context, key string, data []byte) error
	// Exists reports whether key is present. Absence is not an error.
	Exists(ctx context.Context, key string) (bool, error)
	// Delete removes key. Deleting an absent key succeeds.
	Delete(ctx context.Context, key string) error
	// Location describes where key lives, for logs.
	Location(key string) string
}

// FlagName returns the flag artifact name for a model: <model>_register.flag.
func FlagName(model string) string {
	return fmt.Sprintf("%s_register.flag", model)
}

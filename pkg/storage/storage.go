package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/levenlabs/go-lflag"
	"github.com/raterudder/esplus/pkg/types"
)

var ErrEntryNotFound = errors.New("config entry not found")

// Store persists config entries.
type Store interface {
	// ListEntries returns every entry ordered by id.
	ListEntries(ctx context.Context) ([]types.ConfigEntry, error)
	GetEntry(ctx context.Context, id string) (types.ConfigEntry, error)
	// PutEntry creates or replaces the entry with the same id.
	PutEntry(ctx context.Context, entry types.ConfigEntry) error
	DeleteEntry(ctx context.Context, id string) error

	// Lifecycle
	Close() error
}

// Configured sets up the Store based on flags.
func Configured() Store {
	provider := lflag.String("storage-provider", "file", "Storage provider to use (available: firestore, file)")
	key := lflag.String("credentials-encryption-key", "", "32 byte key used to encrypt stored passwords (firestore only)")

	var p struct{ Store }

	fs := configuredFirestore()
	file := configuredFile()

	lflag.Do(func() {
		switch *provider {
		case "firestore":
			fs.key = []byte(*key)
			if err := fs.Validate(); err != nil {
				panic(fmt.Sprintf("firestore validation failed: %v", err))
			}
			if err := fs.Init(context.Background()); err != nil {
				panic(fmt.Sprintf("firestore init failed: %v", err))
			}
			p.Store = fs
		case "file":
			if err := file.Validate(); err != nil {
				panic(fmt.Sprintf("file validation failed: %v", err))
			}
			if err := file.Init(context.Background()); err != nil {
				panic(fmt.Sprintf("file init failed: %v", err))
			}
			p.Store = file
		default:
			panic(fmt.Sprintf("unknown storage provider: %s", *provider))
		}
	})

	return &p
}

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"cloud.google.com/go/firestore"
	"github.com/levenlabs/go-lflag"
	"github.com/raterudder/esplus/pkg/log"
	"github.com/raterudder/esplus/pkg/types"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const entriesCollection = "config_entries"

// FirestoreProvider implements Store using Google Cloud Firestore. Each entry
// is a document holding the entry as JSON without its password and the
// password encrypted with AES-GCM.
type FirestoreProvider struct {
	client    *firestore.Client
	projectID string
	database  string
	key       []byte
}

var _ Store = (*FirestoreProvider)(nil)

// configuredFirestore sets up the Firestore provider.
// It registers flags for configuration.
func configuredFirestore() *FirestoreProvider {
	projectID := lflag.String("firestore-project-id", "", "Google Cloud Project ID for Firestore")
	database := lflag.String("firestore-database", "", "Google Cloud Firestore Database")
	emulator := lflag.String("firestore-emulator", "", "Use Firestore emulator")

	f := &FirestoreProvider{}

	lflag.Do(func() {
		f.projectID = *projectID
		f.database = *database

		// set this because that's how firestore client expects it
		if *emulator != "" {
			os.Setenv("FIRESTORE_EMULATOR_HOST", *emulator)
		}
	})

	return f
}

// Validate checks if the provider is properly configured.
func (f *FirestoreProvider) Validate() error {
	if len(f.key) != 32 {
		return errors.New("credentials-encryption-key must be 32 bytes")
	}
	return nil
}

// Init initializes the Firestore client.
// This must be called before using the provider methods.
func (f *FirestoreProvider) Init(ctx context.Context) error {
	projectID := f.projectID
	if projectID == "" {
		projectID = firestore.DetectProjectID
	}
	database := f.database
	if database == "" {
		database = firestore.DefaultDatabaseID
	}
	client, err := firestore.NewClientWithDatabase(ctx, projectID, database)
	if err != nil {
		return fmt.Errorf("failed to create firestore client (project=%s, database=%s): %w", projectID, database, err)
	}
	f.client = client
	return nil
}

// Close closes the Firestore client connection.
func (f *FirestoreProvider) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}

func (f *FirestoreProvider) decodeEntry(ctx context.Context, doc *firestore.DocumentSnapshot) (types.ConfigEntry, error) {
	val, err := doc.DataAt("json")
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "entry doc missing json", slog.String("entryID", doc.Ref.ID))
		return types.ConfigEntry{}, fmt.Errorf("entry %s missing json: %w", doc.Ref.ID, err)
	}
	jsonStr, ok := val.(string)
	if !ok {
		log.Ctx(ctx).WarnContext(ctx, "entry doc json not string", slog.String("entryID", doc.Ref.ID))
		return types.ConfigEntry{}, fmt.Errorf("entry %s json not string", doc.Ref.ID)
	}

	var entry types.ConfigEntry
	if err := json.Unmarshal([]byte(jsonStr), &entry); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to unmarshal entry", slog.String("entryID", doc.Ref.ID), slog.Any("err", err))
		return types.ConfigEntry{}, fmt.Errorf("failed to unmarshal entry %s: %w", doc.Ref.ID, err)
	}

	if v, err := doc.DataAt("password"); err == nil {
		encrypted, _ := v.([]byte)
		password, err := decryptPassword(f.key, encrypted)
		if err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to decrypt entry password", slog.String("entryID", doc.Ref.ID), slog.Any("error", err))
			return types.ConfigEntry{}, fmt.Errorf("entry %s: %w", doc.Ref.ID, err)
		}
		entry.Password = password
	}
	entry.ID = doc.Ref.ID
	return entry, nil
}

// ListEntries returns every entry. Malformed documents are skipped.
func (f *FirestoreProvider) ListEntries(ctx context.Context) ([]types.ConfigEntry, error) {
	iter := f.client.Collection(entriesCollection).Documents(ctx)
	defer iter.Stop()

	var entries []types.ConfigEntry
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error iterating entries: %w", err)
		}
		entry, err := f.decodeEntry(ctx, doc)
		if err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].ID < entries[j].ID
	})
	return entries, nil
}

// GetEntry returns the entry with the given id.
func (f *FirestoreProvider) GetEntry(ctx context.Context, id string) (types.ConfigEntry, error) {
	if id == "" {
		return types.ConfigEntry{}, fmt.Errorf("entry id cannot be empty")
	}
	doc, err := f.client.Collection(entriesCollection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return types.ConfigEntry{}, fmt.Errorf("%w: %s", ErrEntryNotFound, id)
		}
		return types.ConfigEntry{}, fmt.Errorf("failed to get entry %s: %w", id, err)
	}
	return f.decodeEntry(ctx, doc)
}

// PutEntry creates or replaces an entry.
func (f *FirestoreProvider) PutEntry(ctx context.Context, entry types.ConfigEntry) error {
	if entry.ID == "" {
		return fmt.Errorf("entry id cannot be empty")
	}
	encrypted, err := encryptPassword(f.key, entry.Password)
	if err != nil {
		return fmt.Errorf("failed to encrypt password of entry %s: %w", entry.ID, err)
	}
	entry.Password = ""
	entryJSON, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal entry %s: %w", entry.ID, err)
	}
	_, err = f.client.Collection(entriesCollection).Doc(entry.ID).Set(ctx, map[string]interface{}{
		"json":     string(entryJSON),
		"password": encrypted,
		"key":      entry.Key(),
	})
	if err != nil {
		return fmt.Errorf("failed to save entry %s: %w", entry.ID, err)
	}
	return nil
}

// DeleteEntry removes an entry. Deleting a missing entry is not an error.
func (f *FirestoreProvider) DeleteEntry(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("entry id cannot be empty")
	}
	if _, err := f.client.Collection(entriesCollection).Doc(id).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete entry %s: %w", id, err)
	}
	return nil
}

package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/levenlabs/go-lflag"
	"github.com/raterudder/esplus/pkg/log"
	"github.com/raterudder/esplus/pkg/storage"
	"github.com/raterudder/esplus/pkg/types"
)

// seed writes a config entry into the configured store, by default the
// firestore emulator, so a local server has something to load.
func main() {
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		os.Setenv("FIRESTORE_EMULATOR_HOST", "127.0.0.1:8087")
	}
	s := storage.Configured()

	id := lflag.String("seed-id", "", "ID of the seeded entry, random when empty")
	branch := lflag.String("seed-branch", "ul", "Branch code of the seeded entry")
	username := lflag.String("seed-username", "", "Username of the seeded entry")
	password := lflag.String("seed-password", "", "Password of the seeded entry")
	loginType := lflag.String("seed-login-type", "", "Login type of the seeded entry (account, contact)")
	lang := lflag.String("seed-lang", "", "Language of the seeded entry (en, ru)")
	accounts := lflag.String("seed-accounts", "", "Comma-delimited account numbers to enable, all accounts when empty")

	lflag.Configure()

	ctx := context.Background()
	defer s.Close()

	entry := types.ConfigEntry{
		ID:        *id,
		Branch:    *branch,
		Username:  *username,
		Password:  *password,
		LoginType: *loginType,
		Lang:      types.Lang(*lang),
		Default:   types.AccountConfig{Options: types.DefaultOptions()},
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if *accounts != "" {
		// only the listed accounts are enabled
		entry.Default.Disabled = true
		entry.Accounts = make(map[string]types.AccountConfig)
		for _, number := range strings.Split(*accounts, ",") {
			if number = strings.TrimSpace(number); number != "" {
				entry.Accounts[number] = types.AccountConfig{Options: types.DefaultOptions()}
			}
		}
	}

	existing, err := s.ListEntries(ctx)
	if err != nil {
		fail(ctx, fmt.Errorf("failed to list entries: %w", err))
	}
	all := []types.ConfigEntry{entry}
	for _, e := range existing {
		if e.ID != entry.ID {
			all = append(all, e)
		}
	}
	if err := types.ValidateEntries(all); err != nil {
		fail(ctx, err)
	}

	if err := s.PutEntry(ctx, entry); err != nil {
		fail(ctx, fmt.Errorf("failed to save entry: %w", err))
	}
	log.Ctx(ctx).InfoContext(ctx, "seeded config entry", "entry", entry.ID, log.Masked("username", entry.Username))
}

func fail(ctx context.Context, err error) {
	log.Ctx(ctx).ErrorContext(ctx, "seed failed", "error", err)
	os.Exit(1)
}

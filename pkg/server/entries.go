package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/raterudder/esplus/pkg/log"
	"github.com/raterudder/esplus/pkg/storage"
	"github.com/raterudder/esplus/pkg/types"
	"github.com/raterudder/esplus/pkg/updater"
)

const (
	entryStateLoaded   = "loaded"
	entryStatePending  = "pending"
	entryStateUnloaded = "unloaded"
)

type entryResponse struct {
	Entry types.ConfigEntry `json:"entry"`
	State string            `json:"state"`
}

func (s *Server) entryState(id string) string {
	if _, ok := s.manager.Session(id); ok {
		return entryStateLoaded
	}
	for _, p := range s.manager.Pending() {
		if p == id {
			return entryStatePending
		}
	}
	return entryStateUnloaded
}

func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	entries, err := s.storage.ListEntries(ctx)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to list entries", slog.Any("error", err))
		writeJSONError(w, "failed to list entries", http.StatusInternalServerError)
		return
	}
	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryResponse{Entry: e.Redacted(), State: s.entryState(e.ID)})
	}
	writeJSON(w, out)
}

func (s *Server) handleCreateEntry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var entry types.ConfigEntry
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		var cerr *types.ConfigurationError
		if errors.As(err, &cerr) {
			writeJSONError(w, cerr.Error(), http.StatusBadRequest)
			return
		}
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if err := entry.Validate(); err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	existing, err := s.storage.ListEntries(ctx)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to list entries", slog.Any("error", err))
		writeJSONError(w, "failed to list entries", http.StatusInternalServerError)
		return
	}
	all := []types.ConfigEntry{entry}
	for _, e := range existing {
		if e.ID != entry.ID {
			all = append(all, e)
		}
	}
	if err := types.ValidateEntries(all); err != nil {
		writeJSONError(w, err.Error(), http.StatusConflict)
		return
	}

	ctx = log.With(ctx, log.Ctx(ctx).With(slog.String("entry", entry.ID), log.Masked("username", entry.Username)))
	if err := s.manager.NewPortal(entry).Authenticate(ctx); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "test login failed", slog.Any("error", err))
		writeJSONError(w, "login failed: "+err.Error(), http.StatusUnauthorized)
		return
	}

	if err := s.storage.PutEntry(ctx, entry); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to save entry", slog.Any("error", err))
		writeJSONError(w, "failed to save entry", http.StatusInternalServerError)
		return
	}

	code := http.StatusCreated
	if err := s.manager.Setup(ctx, entry); err != nil {
		if errors.Is(err, updater.ErrAccountConflict) {
			if err := s.storage.DeleteEntry(ctx, entry.ID); err != nil {
				log.Ctx(ctx).ErrorContext(ctx, "failed to delete conflicting entry", slog.Any("error", err))
			}
			writeJSONError(w, err.Error(), http.StatusConflict)
			return
		}
		if !errors.Is(err, updater.ErrNotReady) {
			log.Ctx(ctx).ErrorContext(ctx, "failed to set up entry", slog.Any("error", err))
			writeJSONError(w, "failed to set up entry", http.StatusInternalServerError)
			return
		}
		log.Ctx(ctx).WarnContext(ctx, "entry not ready, will retry", slog.Any("error", err))
		code = http.StatusAccepted
	}
	writeJSONStatus(w, entryResponse{Entry: entry.Redacted(), State: s.entryState(entry.ID)}, code)
}

func (s *Server) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")
	if err := s.storage.DeleteEntry(ctx, id); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to delete entry", slog.String("entry", id), slog.Any("error", err))
		writeJSONError(w, "failed to delete entry", http.StatusInternalServerError)
		return
	}
	s.manager.Unload(id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReloadEntry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")
	entry, err := s.storage.GetEntry(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrEntryNotFound) {
			writeJSONError(w, "entry not found", http.StatusNotFound)
			return
		}
		log.Ctx(ctx).ErrorContext(ctx, "failed to get entry", slog.String("entry", id), slog.Any("error", err))
		writeJSONError(w, "failed to get entry", http.StatusInternalServerError)
		return
	}

	code := http.StatusOK
	if err := s.manager.Reload(ctx, entry); err != nil {
		if errors.Is(err, updater.ErrAccountConflict) {
			writeJSONError(w, err.Error(), http.StatusConflict)
			return
		}
		if !errors.Is(err, updater.ErrNotReady) {
			log.Ctx(ctx).ErrorContext(ctx, "failed to reload entry", slog.String("entry", id), slog.Any("error", err))
			writeJSONError(w, "failed to reload entry", http.StatusInternalServerError)
			return
		}
		code = http.StatusAccepted
	}
	writeJSONStatus(w, entryResponse{Entry: entry.Redacted(), State: s.entryState(id)}, code)
}

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/raterudder/esplus/pkg/esplus"
	"github.com/raterudder/esplus/pkg/log"
	"github.com/raterudder/esplus/pkg/updater"
)

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	entryID := r.URL.Query().Get("entry")
	if err := s.manager.Update(ctx, entryID); err != nil {
		if errors.Is(err, updater.ErrUnknownEntry) {
			writeJSONError(w, "unknown entry", http.StatusNotFound)
			return
		}
		log.Ctx(ctx).ErrorContext(ctx, "update failed", slog.String("entry", entryID), slog.Any("error", err))
		writeJSONError(w, "update failed", http.StatusBadGateway)
		return
	}
	writeJSON(w, map[string]bool{"success": true})
}

// indicationValues accepts either a zone to value mapping or a list of
// values for t1..tN.
type indicationValues map[string]float64

func (v *indicationValues) UnmarshalJSON(b []byte) error {
	var list []float64
	if err := json.Unmarshal(b, &list); err == nil {
		*v = esplus.IndicationsFromList(list)
		return nil
	}
	var m map[string]float64
	if err := json.Unmarshal(b, &m); err != nil {
		return fmt.Errorf("indications must be a list or a mapping of numbers: %w", err)
	}
	*v = m
	return nil
}

type indicationsRequest struct {
	Entry       string           `json:"entry"`
	Account     string           `json:"account"`
	Meter       string           `json:"meter"`
	Indications indicationValues `json:"indications"`
	esplus.SubmitOptions
	DryRun bool `json:"dry_run"`
}

func (s *Server) handleIndications(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req indicationsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Account == "" || req.Meter == "" {
		writeJSONError(w, "account and meter are required", http.StatusBadRequest)
		return
	}
	if len(req.Indications) == 0 {
		writeJSONError(w, "indications are required", http.StatusBadRequest)
		return
	}

	var session *updater.Session
	if req.Entry != "" {
		var ok bool
		session, ok = s.manager.Session(req.Entry)
		if !ok {
			writeJSONError(w, "unknown entry", http.StatusNotFound)
			return
		}
	} else {
		sessions := s.manager.Sessions()
		if len(sessions) != 1 {
			writeJSONError(w, "entry is required", http.StatusBadRequest)
			return
		}
		session = sessions[0]
	}

	submit := updater.SubmitRequest{
		Account:     req.Account,
		Meter:       req.Meter,
		Indications: req.Indications,
		Options:     req.SubmitOptions,
	}
	var ev updater.Event
	var err error
	if req.DryRun {
		ev, err = session.CalculateIndications(ctx, submit)
	} else {
		ev, err = session.SubmitIndications(ctx, submit)
	}
	if err != nil {
		var verr *esplus.ValidationError
		switch {
		case errors.As(err, &verr):
			writeJSONError(w, verr.Error(), http.StatusBadRequest)
		case errors.Is(err, updater.ErrUnknownAccount), errors.Is(err, updater.ErrUnknownMeter):
			writeJSONError(w, err.Error(), http.StatusNotFound)
		default:
			log.Ctx(ctx).ErrorContext(
				ctx,
				"failed to handle indications",
				slog.String("entry", session.Entry().ID),
				slog.Bool("dryRun", req.DryRun),
				slog.Any("error", err),
			)
			writeJSONError(w, "failed to submit indications", http.StatusBadGateway)
		}
		return
	}
	writeJSON(w, ev)
}

package server

import (
	"log/slog"
	"net/http"
	"sort"

	"github.com/raterudder/esplus/pkg/entity"
	"github.com/raterudder/esplus/pkg/esplus"
	"github.com/raterudder/esplus/pkg/log"
)

func (s *Server) handleListEntities(w http.ResponseWriter, r *http.Request) {
	platforms := entity.Platforms
	if p := r.URL.Query().Get("platform"); p != "" {
		switch entity.Platform(p) {
		case entity.PlatformSensor, entity.PlatformBinarySensor:
			platforms = []entity.Platform{entity.Platform(p)}
		default:
			writeJSONError(w, "unknown platform", http.StatusBadRequest)
			return
		}
	}
	entryID := r.URL.Query().Get("entry")

	entities := []entity.Entity{}
	for _, p := range platforms {
		for _, e := range s.manager.Registry().List(p) {
			if entryID != "" && e.EntryID != entryID {
				continue
			}
			entities = append(entities, e)
		}
	}
	sort.Slice(entities, func(i, j int) bool {
		return entities[i].EntityID < entities[j].EntityID
	})
	writeJSON(w, entities)
}

func (s *Server) handleGetEntity(w http.ResponseWriter, r *http.Request) {
	e, ok := s.manager.Registry().Get(r.PathValue("uniqueID"))
	if !ok {
		writeJSONError(w, "entity not found", http.StatusNotFound)
		return
	}
	writeJSON(w, e)
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.manager.Events().List(r.URL.Query().Get("entry")))
}

func (s *Server) handleListBranches(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	branches, err := s.branches.Branches(ctx)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to list branches", slog.Any("error", err))
		writeJSONError(w, "failed to list branches", http.StatusBadGateway)
		return
	}
	if branches == nil {
		branches = []esplus.Branch{}
	}
	writeJSON(w, branches)
}

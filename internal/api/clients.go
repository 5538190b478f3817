package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ashgrove-media/mediafleet/internal/client"
	"github.com/ashgrove-media/mediafleet/internal/modulestore"
)

// handleListClients returns every fleet member the module store knows about,
// created or not.
func (s *Server) handleListClients(w http.ResponseWriter, r *http.Request) {
	infos, err := s.fleet.ClientInfos(r.Context())
	if err != nil {
		s.logger.Error("listing clients", "error", err)
		writeInternalError(w, "failed to list clients")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"clients": infos,
		"created": s.fleet.CreatedClientCount(),
	})
}

// handleRefreshClients reconciles the fleet against the module store.
func (s *Server) handleRefreshClients(w http.ResponseWriter, r *http.Request) {
	if err := s.fleet.UpdateClients(r.Context()); err != nil {
		s.logger.Error("refreshing clients", "error", err)
		writeInternalError(w, "failed to refresh clients")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"created": s.fleet.CreatedClientCount(),
	})
}

// handleRestartClient schedules a restart for one fleet member.
func (s *Server) handleRestartClient(w http.ResponseWriter, r *http.Request) {
	moduleID := chi.URLParam(r, "moduleID")
	instanceRaw := chi.URLParam(r, "instanceID")

	instanceID, err := strconv.ParseUint(instanceRaw, 10, 32)
	if err != nil {
		writeBadRequest(w, "instance ID must be a non-negative integer")
		return
	}

	if err := s.fleet.RequestRestart(moduleID, modulestore.InstanceID(instanceID)); err != nil {
		if errors.Is(err, client.ErrRegistryStopped) || errors.Is(err, client.ErrQueueFull) {
			writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "registry cannot accept restarts right now")
			return
		}
		s.logger.Error("requesting client restart", "module", moduleID, "instance", instanceID, "error", err)
		writeInternalError(w, "failed to request restart")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"module_id":   moduleID,
		"instance_id": instanceID,
	})
}

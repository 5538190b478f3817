package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ashgrove-media/mediafleet/internal/client"
)

// fanoutResponse is the envelope for fan-out reads: the merged items, the
// aggregate outcome, and the clients that failed to contribute.
type fanoutResponse struct {
	Items         any    `json:"items"`
	Status        string `json:"status"`
	FailedClients []int  `json:"failed_clients"`
}

// writeFanout writes a fan-out result. Items are always returned, even when
// some clients failed; the caller inspects status and failed_clients.
func writeFanout(w http.ResponseWriter, items any, status client.Status, failed []int) {
	if failed == nil {
		failed = []int{}
	}
	writeJSON(w, http.StatusOK, fanoutResponse{
		Items:         items,
		Status:        status.String(),
		FailedClients: failed,
	})
}

// boolQuery reads a boolean query parameter; absent reads as false.
func boolQuery(r *http.Request, name string) bool {
	return r.URL.Query().Get(name) == "true"
}

// handleGetChannels merges channels from every created client.
// ?radio=true selects radio channels.
func (s *Server) handleGetChannels(w http.ResponseWriter, r *http.Request) {
	items, status, failed := s.fleet.GetChannels(r.Context(), boolQuery(r, "radio"))
	writeFanout(w, items, status, failed)
}

// handleGetChannelGroups merges channel groups from every created client.
func (s *Server) handleGetChannelGroups(w http.ResponseWriter, r *http.Request) {
	items, status, failed := s.fleet.GetChannelGroups(r.Context(), boolQuery(r, "radio"))
	writeFanout(w, items, status, failed)
}

// handleGetTimers merges timers from clients that support them.
func (s *Server) handleGetTimers(w http.ResponseWriter, r *http.Request) {
	items, status, failed := s.fleet.GetTimers(r.Context())
	writeFanout(w, items, status, failed)
}

// handleGetRecordings merges recordings from clients that support them.
// ?deleted=true lists the trash folder instead.
func (s *Server) handleGetRecordings(w http.ResponseWriter, r *http.Request) {
	items, status, failed := s.fleet.GetRecordings(r.Context(), boolQuery(r, "deleted"))
	writeFanout(w, items, status, failed)
}

// handleEmptyTrash asks every capable client to empty its trash folder.
func (s *Server) handleEmptyTrash(w http.ResponseWriter, r *http.Request) {
	status, failed := s.fleet.DeleteAllRecordingsFromTrash(r.Context())
	writeFanout(w, nil, status, failed)
}

// handleGetProviders merges content providers from clients that support them.
func (s *Server) handleGetProviders(w http.ResponseWriter, r *http.Request) {
	items, status, failed := s.fleet.GetProviders(r.Context())
	writeFanout(w, items, status, failed)
}

// handleGetBackends collects backend properties from every created client.
func (s *Server) handleGetBackends(w http.ResponseWriter, r *http.Request) {
	items, status, failed := s.fleet.GetBackendProperties(r.Context())
	writeFanout(w, items, status, failed)
}

// handleCapabilities summarises what the fleet as a whole can do.
func (s *Server) handleCapabilities(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{
		"epg":               s.fleet.AnyClientSupportingEPG(),
		"recordings":        s.fleet.AnyClientSupportingRecordings(),
		"recordings_delete": s.fleet.AnyClientSupportingRecordingsDelete(),
	})
}

// epgWindowRequest is the body for PUT /epg/window. Either field may be
// omitted to leave that side of the window untouched.
type epgWindowRequest struct {
	PastDays   *int `json:"past_days"`
	FutureDays *int `json:"future_days"`
}

// handleSetEPGWindow pushes the guide retention window to every capable client.
func (s *Server) handleSetEPGWindow(w http.ResponseWriter, r *http.Request) {
	var req epgWindowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.PastDays == nil && req.FutureDays == nil {
		writeBadRequest(w, "past_days or future_days is required")
		return
	}
	if (req.PastDays != nil && *req.PastDays < 0) || (req.FutureDays != nil && *req.FutureDays < 0) {
		writeBadRequest(w, "EPG window days must be non-negative")
		return
	}

	result := map[string]any{}
	if req.PastDays != nil {
		status, failed := s.fleet.SetEPGMaxPastDays(r.Context(), *req.PastDays)
		if failed == nil {
			failed = []int{}
		}
		result["past"] = map[string]any{"status": status.String(), "failed_clients": failed}
	}
	if req.FutureDays != nil {
		status, failed := s.fleet.SetEPGMaxFutureDays(r.Context(), *req.FutureDays)
		if failed == nil {
			failed = []int{}
		}
		result["future"] = map[string]any{"status": status.String(), "failed_clients": failed}
	}

	writeJSON(w, http.StatusOK, result)
}

// handleSystemEvent relays a host power management event to the fleet.
// Outcomes are fire-and-forget; connectors that cannot act simply report
// not implemented.
func (s *Server) handleSystemEvent(w http.ResponseWriter, r *http.Request) {
	event := chi.URLParam(r, "event")

	switch event {
	case "sleep":
		// Tell the clients while they are still callable, then suspend them.
		s.fleet.OnSystemSleep(r.Context())
		s.fleet.StopAll(r.Context())
	case "wake":
		// Mirror image: resume first so the wake notification can land.
		s.fleet.ContinueAll(r.Context())
		s.fleet.OnSystemWake(r.Context())
	case "power-saving-on":
		s.fleet.OnPowerSavingActivated(r.Context())
	case "power-saving-off":
		s.fleet.OnPowerSavingDeactivated(r.Context())
	default:
		writeNotFound(w, "unknown system event: "+event)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"event": event})
}

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/nordvolt/wallbox-core/internal/executor"
	"github.com/nordvolt/wallbox-core/internal/supervisor"
	"github.com/nordvolt/wallbox-core/internal/wallbox"
)

// statusResponse is the response body for GET /status.
type statusResponse struct {
	Data              map[string]any `json:"data"`
	LastUpdateSuccess bool           `json:"last_update_success"`
}

// handleStatus returns the current charger snapshot.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	data, ok := s.charger.Status()
	writeJSON(w, http.StatusOK, statusResponse{
		Data:              data,
		LastUpdateSuccess: ok,
	})
}

// handleRefresh requests an immediate status refresh. The refresh runs
// asynchronously; clients observe the result via /status or the
// WebSocket stream.
func (s *Server) handleRefresh(w http.ResponseWriter, _ *http.Request) {
	s.charger.RequestRefresh()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "refresh requested"})
}

// handleStartCharging begins a charging session using the first
// registered RFID tag.
func (s *Server) handleStartCharging(w http.ResponseWriter, r *http.Request) {
	if err := s.charger.StartCharging(r.Context()); err != nil {
		s.writeActionError(w, r, "start charging", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "charging started"})
}

// handleStopCharging ends the active charging session.
func (s *Server) handleStopCharging(w http.ResponseWriter, r *http.Request) {
	if err := s.charger.StopCharging(r.Context()); err != nil {
		s.writeActionError(w, r, "stop charging", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "charging stopped"})
}

// maxCurrentRequest is the request body for PUT /max-current.
type maxCurrentRequest struct {
	Amperes int `json:"amperes"`
}

// handleSetMaxCurrent updates the charger's current limit. Values are
// clamped to the installation's safe range by the supervisor.
func (s *Server) handleSetMaxCurrent(w http.ResponseWriter, r *http.Request) {
	var req maxCurrentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Amperes <= 0 {
		writeBadRequest(w, "amperes must be positive")
		return
	}

	if err := s.charger.SetMaxCurrent(r.Context(), req.Amperes); err != nil {
		s.writeActionError(w, r, "set max current", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "max current updated"})
}

// handleRestart reboots the charger. The device drops its network
// connection mid-reboot, so the supervisor treats that as success.
func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	if err := s.charger.Restart(r.Context()); err != nil {
		s.writeActionError(w, r, "restart", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "restart requested"})
}

// rfidTagResponse is one tag in the GET /rfid response.
type rfidTagResponse struct {
	TagID []int  `json:"tag_id"`
	Hex   string `json:"hex"`
	Name  string `json:"name"`
}

// handleListTags returns the registered RFID tags.
func (s *Server) handleListTags(w http.ResponseWriter, r *http.Request) {
	tags, err := s.charger.ListTags(r.Context())
	if err != nil {
		s.writeActionError(w, r, "list tags", err)
		return
	}

	out := make([]rfidTagResponse, 0, len(tags))
	for _, tag := range tags {
		out = append(out, rfidTagResponse{
			TagID: tag.TagID,
			Hex:   wallbox.TagIDToHex(tag.TagID),
			Name:  tag.Name,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"tags": out})
}

// handleScanTag puts the charger into scan mode and returns the tag it reads.
func (s *Server) handleScanTag(w http.ResponseWriter, r *http.Request) {
	tagID, err := s.charger.ScanTag(r.Context())
	if err != nil {
		s.writeActionError(w, r, "scan tag", err)
		return
	}
	writeJSON(w, http.StatusOK, rfidTagResponse{
		TagID: tagID,
		Hex:   wallbox.TagIDToHex(tagID),
	})
}

// tagRequest is the request body for POST /rfid and DELETE /rfid.
type tagRequest struct {
	TagID []int  `json:"tag_id"`
	Name  string `json:"name,omitempty"`
}

// handleAddTag registers an RFID tag with the charger.
func (s *Server) handleAddTag(w http.ResponseWriter, r *http.Request) {
	var req tagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if len(req.TagID) == 0 {
		writeBadRequest(w, "tag_id is required")
		return
	}

	if err := s.charger.AddTag(r.Context(), req.TagID, req.Name); err != nil {
		s.writeActionError(w, r, "add tag", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "tag added"})
}

// handleDeleteTag removes an RFID tag from the charger.
func (s *Server) handleDeleteTag(w http.ResponseWriter, r *http.Request) {
	var req tagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if len(req.TagID) == 0 {
		writeBadRequest(w, "tag_id is required")
		return
	}

	if err := s.charger.DeleteTag(r.Context(), req.TagID); err != nil {
		s.writeActionError(w, r, "delete tag", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "tag deleted"})
}

// transactionResponse is one completed session in GET /transactions.
type transactionResponse struct {
	ID        int64   `json:"id"`
	StartTime string  `json:"start_time"`
	EndTime   string  `json:"end_time"`
	EnergyKWh float64 `json:"energy_kwh"`
}

// handleTransactions returns recent completed charging sessions.
func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	if s.hist == nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "transaction history not enabled")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeBadRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	entries, err := s.hist.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("transaction history query failed", "error", err)
		writeInternalError(w, "failed to query transaction history")
		return
	}

	out := make([]transactionResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, transactionResponse{
			ID:        e.ID,
			StartTime: e.StartTime.Format("2006-01-02T15:04:05Z07:00"),
			EndTime:   e.EndTime.Format("2006-01-02T15:04:05Z07:00"),
			EnergyKWh: e.EnergyKWh,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": out})
}

// writeActionError maps charger action failures to HTTP responses.
//
// Connectivity failures and queue timeouts are 503: the charger is
// temporarily unreachable and the request may succeed later. Device
// errors are 502: the charger answered but refused. Everything else
// is a 500.
func (s *Server) writeActionError(w http.ResponseWriter, r *http.Request, action string, err error) {
	s.logger.Warn("charger action failed",
		"action", action,
		"error", err,
		"request_id", r.Context().Value(ctxKeyRequestID),
	)

	switch {
	case errors.Is(err, supervisor.ErrNoRFIDTags):
		writeError(w, http.StatusConflict, ErrCodeConflict, "no RFID tags registered on the charger")
	case wallbox.IsConnectivity(err), errors.Is(err, executor.ErrCallTimeout):
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnreachable, "charger is unreachable")
	default:
		var devErr *wallbox.DeviceError
		if errors.As(err, &devErr) {
			writeError(w, http.StatusBadGateway, ErrCodeDeviceError, devErr.Error())
			return
		}
		writeInternalError(w, "action failed")
	}
}

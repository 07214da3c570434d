package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/lance0/prefixd-sub000/internal/domain"
	"github.com/lance0/prefixd-sub000/internal/perr"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	if pe, ok := perr.As(err); ok {
		resp := errorResponse{Error: pe.Message}
		if pe.Kind == perr.KindRateLimited {
			secs := pe.RetryAfterSeconds
			resp.RetryAfterSeconds = &secs
		}
		writeJSON(w, pe.StatusCode(), resp)
		return
	}
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
}

func (s *Server) handleIngestEvent(w http.ResponseWriter, r *http.Request) {
	if s.isShuttingDown() {
		writeError(w, perr.New(perr.KindShuttingDown, "shutting down"))
		return
	}

	var input domain.AttackEventInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, perr.New(perr.KindInvalidRequest, "invalid JSON body"))
		return
	}
	if input.Source == "" || input.VictimIP == "" || !input.Vector.Valid() {
		writeError(w, perr.New(perr.KindInvalidRequest, "source, victim_ip, and a valid vector are required"))
		return
	}

	resp, err := s.orchestrator.Ingest(r.Context(), input)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, resp)
}

func (s *Server) handleListMitigations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var statusFilter []domain.MitigationStatus
	if raw := q.Get("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			statusFilter = append(statusFilter, domain.MitigationStatus(strings.TrimSpace(part)))
		}
	}

	var customerID *string
	if cid := q.Get("customer_id"); cid != "" {
		customerID = &cid
	}

	limit := parseUintDefault(q.Get("limit"), 100)
	offset := parseUintDefault(q.Get("offset"), 0)

	mitigations, err := s.repo.ListMitigations(r.Context(), statusFilter, customerID, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]mitigationResponse, len(mitigations))
	for i, m := range mitigations {
		out[i] = newMitigationResponse(m)
	}
	writeJSON(w, http.StatusOK, mitigationsListResponse{Mitigations: out, Total: len(out)})
}

func (s *Server) handleGetMitigation(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	m, err := s.repo.GetMitigation(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if m == nil {
		writeError(w, perr.New(perr.KindMitigationNotFound, "mitigation not found: "+id))
		return
	}
	writeJSON(w, http.StatusOK, newMitigationResponse(*m))
}

func (s *Server) handleCreateMitigation(w http.ResponseWriter, r *http.Request) {
	var req createMitigationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, perr.New(perr.KindInvalidRequest, "invalid JSON body"))
		return
	}

	var protocol *uint8
	switch req.Protocol {
	case "udp":
		p := uint8(17)
		protocol = &p
	case "tcp":
		p := uint8(6)
		protocol = &p
	case "icmp":
		p := uint8(1)
		protocol = &p
	}

	var actionType domain.ActionType
	switch req.Action {
	case "police":
		actionType = domain.ActionPolice
	case "discard":
		actionType = domain.ActionDiscard
	default:
		writeError(w, perr.New(perr.KindInvalidRequest, "invalid action: "+req.Action))
		return
	}

	var customerID *string
	if ctx := s.inventory.LookupIP(req.VictimIP); ctx != nil {
		customerID = &ctx.CustomerID
	}

	intent := domain.MitigationIntent{
		CustomerID: customerID,
		POP:        s.settings.POP,
		MatchCriteria: domain.MatchCriteria{
			DstPrefix: req.VictimIP + "/32",
			Protocol:  protocol,
			DstPorts:  req.DstPorts,
		},
		ActionType:   actionType,
		ActionParams: domain.ActionParams{RateBPS: req.RateBPS},
		TTLSeconds:   req.TTLSeconds,
		Reason:       req.Reason,
	}

	m, err := s.orchestrator.CreateManual(r.Context(), intent, req.VictimIP, domain.VectorUnknown, req.OperatorID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newMitigationResponse(*m))
}

func (s *Server) handleWithdrawMitigation(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req withdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, perr.New(perr.KindInvalidRequest, "invalid JSON body"))
		return
	}

	m, err := s.orchestrator.Withdraw(r.Context(), id, req.Reason, req.OperatorID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newMitigationResponse(*m))
}

func (s *Server) handleSafelist(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		entries, err := s.repo.ListSafelist(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		out := make([]safelistEntryResponse, len(entries))
		for i, e := range entries {
			out[i] = newSafelistEntryResponse(e)
		}
		writeJSON(w, http.StatusOK, out)

	case http.MethodPost:
		var req addSafelistRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, perr.New(perr.KindInvalidRequest, "invalid JSON body"))
			return
		}
		if err := s.repo.InsertSafelist(r.Context(), req.Prefix, req.OperatorID, req.Reason); err != nil {
			writeError(w, err)
			return
		}
		s.logger.Info("safelist entry added", zap.String("prefix", req.Prefix), zap.String("operator_id", req.OperatorID))
		writeJSON(w, http.StatusCreated, map[string]bool{"ok": true})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleRemoveSafelist(w http.ResponseWriter, r *http.Request) {
	prefix := mux.Vars(r)["prefix"]
	removed, err := s.repo.RemoveSafelist(r.Context(), prefix)
	if err != nil {
		writeError(w, err)
		return
	}
	if !removed {
		writeError(w, perr.New(perr.KindNotFound, "safelist entry not found: "+prefix))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	sessions, _ := s.announcer.SessionStatus(r.Context())
	active, _ := s.repo.CountActiveGlobal(r.Context())

	bgpMap := make(map[string]string, len(sessions))
	for _, sess := range sessions {
		bgpMap[sess.Name] = string(sess.State)
	}

	writeJSON(w, http.StatusOK, healthResponse{
		Status:            "healthy",
		BGPSessions:       bgpMap,
		ActiveMitigations: active,
	})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	s.hub.handleWS(w, r)
}

func parseUintDefault(raw string, def uint32) uint32 {
	if raw == "" {
		return def
	}
	v, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return def
	}
	return uint32(v)
}

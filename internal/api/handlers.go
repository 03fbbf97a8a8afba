// Package api exposes HTTP handlers for the reconciliation service.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"example.com/reconciliation/internal/auth"
	"example.com/reconciliation/internal/domain"
	"example.com/reconciliation/internal/observability"
	"example.com/reconciliation/internal/persistence"
)

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	service *domain.Service
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/reconciliation/run", h.runReconciliation)
	mux.HandleFunc("/v1/conflicts", h.listConflicts)
	mux.HandleFunc("/v1/conflicts/unresolved", h.unresolvedConflicts)
	mux.HandleFunc("/v1/conflicts/requires-review", h.conflictsRequiringReview)
	mux.HandleFunc("/v1/conflicts/", h.conflictByID)
	mux.HandleFunc("/v1/rules/precedence", h.precedenceRule)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) runReconciliation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeReconciliationWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope reconciliation:write required")
		return
	}

	var req RunReconciliationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if strings.TrimSpace(req.AthleteID) == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "athlete_id is required")
		return
	}

	result, err := h.service.Run(r.Context(), claims.TenantID, req.AthleteID, req.Records)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	types := make([]string, 0, len(result.Conflicts))
	for _, conflict := range result.Conflicts {
		types = append(types, string(conflict.Type))
	}
	observability.RecordRun(types, result.AutoResolved, result.RequiresReview, result.SkippedRecords)

	writeJSON(w, http.StatusOK, toRunView(result))
}

func (h *Handler) listConflicts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := requireReadScope(w, r)
	if !ok {
		return
	}

	athleteID := r.URL.Query().Get("athlete_id")
	if athleteID == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "missing athlete_id parameter")
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	cursor, err := persistence.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	conflicts, next, err := h.service.ListConflicts(r.Context(), claims.TenantID, athleteID, cursor, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	resp := ListConflictsResponse{
		Items:      toConflictViews(conflicts),
		NextCursor: persistence.EncodeCursor(next),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) unresolvedConflicts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := requireReadScope(w, r)
	if !ok {
		return
	}

	athleteID := r.URL.Query().Get("athlete_id")
	if athleteID == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "missing athlete_id parameter")
		return
	}

	conflicts, err := h.service.UnresolvedConflicts(r.Context(), claims.TenantID, athleteID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ListConflictsResponse{Items: toConflictViews(conflicts)})
}

func (h *Handler) conflictsRequiringReview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := requireReadScope(w, r)
	if !ok {
		return
	}

	conflicts, err := h.service.ConflictsRequiringReview(r.Context(), claims.TenantID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ListConflictsResponse{Items: toConflictViews(conflicts)})
}

func (h *Handler) conflictByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/conflicts/")
	if rest == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing conflict id")
		return
	}

	if id, found := strings.CutSuffix(rest, "/resolve"); found {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
			return
		}
		h.resolveConflict(w, r, id)
		return
	}

	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	h.getConflict(w, r, rest)
}

func (h *Handler) getConflict(w http.ResponseWriter, r *http.Request, id string) {
	claims, ok := requireReadScope(w, r)
	if !ok {
		return
	}

	conflict, err := h.service.Conflict(r.Context(), claims.TenantID, id)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownConflict) {
			writeError(w, http.StatusNotFound, "not_found", "conflict not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toConflictView(*conflict))
}

func (h *Handler) resolveConflict(w http.ResponseWriter, r *http.Request, id string) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeReconciliationWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope reconciliation:write required")
		return
	}

	var req ResolveConflictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if strings.TrimSpace(req.PrimaryPlatform) == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "primary_platform is required")
		return
	}

	conflict, err := h.service.ResolveConflict(r.Context(), claims.TenantID, id, req.PrimaryPlatform, req.RetainedSources, req.Note, claims.Subject)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrUnknownConflict):
			writeError(w, http.StatusNotFound, "not_found", "conflict not found")
		case errors.Is(err, domain.ErrAlreadyResolved):
			writeError(w, http.StatusConflict, "already_resolved", "conflict resolution is one-way; the first resolution stands")
		default:
			writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		}
		return
	}

	observability.RecordManualResolution()
	writeJSON(w, http.StatusOK, toConflictView(*conflict))
}

func (h *Handler) precedenceRule(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPut:
		h.setPrecedenceRule(w, r)
	case http.MethodGet:
		h.getPrecedenceRule(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) setPrecedenceRule(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeRulesWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope rules:write required")
		return
	}

	var req SetPrecedenceRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	rule, err := h.service.SetPrecedenceRule(r.Context(), claims.TenantID, req.AthleteID, req.RuleName, req.PlatformPrecedence)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidPrecedence) {
			writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toRuleView(*rule))
}

func (h *Handler) getPrecedenceRule(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireReadScope(w, r)
	if !ok {
		return
	}

	athleteID := r.URL.Query().Get("athlete_id")
	if athleteID == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "missing athlete_id parameter")
		return
	}

	rule, err := h.service.GetPrecedenceRule(r.Context(), claims.TenantID, athleteID)
	if err != nil {
		if errors.Is(err, domain.ErrRuleNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "no precedence rule for athlete")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toRuleView(*rule))
}

func requireReadScope(w http.ResponseWriter, r *http.Request) (*auth.Claims, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	if !claims.HasScope(auth.ScopeReconciliationRead) && !claims.HasScope(auth.ScopeReconciliationWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope reconciliation:read required")
		return nil, false
	}
	return claims, true
}

// RunReconciliationRequest is the payload for POST /v1/reconciliation/run.
type RunReconciliationRequest struct {
	AthleteID string             `json:"athlete_id"`
	Records   []domain.RawRecord `json:"records"`
}

// ResolveConflictRequest is the payload for POST /v1/conflicts/{id}/resolve.
type ResolveConflictRequest struct {
	PrimaryPlatform string   `json:"primary_platform"`
	RetainedSources []string `json:"retained_sources,omitempty"`
	Note            string   `json:"note,omitempty"`
}

// SetPrecedenceRuleRequest is the payload for PUT /v1/rules/precedence.
type SetPrecedenceRuleRequest struct {
	AthleteID          string         `json:"athlete_id"`
	RuleName           string         `json:"rule_name"`
	PlatformPrecedence map[string]int `json:"platform_precedence"`
}

// RecordView exposes one normalized record inside a conflict.
type RecordView struct {
	Platform       string    `json:"platform"`
	ExternalID     string    `json:"external_id"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	DurationSec    int       `json:"duration_sec"`
	DistanceMeters *float64  `json:"distance_m,omitempty"`
	AvgPower       *float64  `json:"avg_power,omitempty"`
	AvgHeartRate   *float64  `json:"avg_heart_rate,omitempty"`
}

// ResolutionView exposes how a conflict was settled.
type ResolutionView struct {
	PrimaryPlatform string    `json:"primary_platform"`
	RetainedSources []string  `json:"retained_sources"`
	Note            string    `json:"note"`
	ResolvedBy      *string   `json:"resolved_by,omitempty"`
	ResolvedAt      time.Time `json:"resolved_at"`
}

// ConflictView exposes full details about a conflict.
type ConflictView struct {
	ConflictID         string                `json:"conflict_id"`
	TenantID           string                `json:"tenant_id"`
	AthleteID          string                `json:"athlete_id"`
	ActivityDate       string                `json:"activity_date"`
	ConflictType       string                `json:"conflict_type"`
	Status             string                `json:"status"`
	ConflictingRecords map[string]RecordView `json:"conflicting_records"`
	Resolution         *ResolutionView       `json:"resolution,omitempty"`
	DetectedAt         time.Time             `json:"detected_at"`
}

// ListConflictsResponse packages list results.
type ListConflictsResponse struct {
	Items      []ConflictView `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// RunReconciliationResponse summarises one pipeline run.
type RunReconciliationResponse struct {
	AthleteID         string         `json:"athlete_id"`
	ConflictsDetected int            `json:"conflicts_detected"`
	AutoResolved      int            `json:"auto_resolved"`
	RequiresReview    int            `json:"requires_review"`
	SkippedRecords    int            `json:"skipped_records"`
	Conflicts         []ConflictView `json:"conflicts"`
}

// RuleView exposes an athlete's precedence rule.
type RuleView struct {
	RuleID             string         `json:"rule_id"`
	TenantID           string         `json:"tenant_id"`
	AthleteID          string         `json:"athlete_id"`
	RuleName           string         `json:"rule_name"`
	PlatformPrecedence map[string]int `json:"platform_precedence"`
	CreatedAt          time.Time      `json:"created_at"`
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func toConflictView(conflict domain.DataConflict) ConflictView {
	records := make(map[string]RecordView, len(conflict.ConflictingRecords))
	for platform, rec := range conflict.ConflictingRecords {
		records[platform] = RecordView{
			Platform:       rec.Platform,
			ExternalID:     rec.ExternalID,
			StartTime:      rec.StartTime,
			EndTime:        rec.EndTime,
			DurationSec:    rec.DurationSec,
			DistanceMeters: rec.DistanceMeters,
			AvgPower:       rec.AvgPower,
			AvgHeartRate:   rec.AvgHeartRate,
		}
	}

	view := ConflictView{
		ConflictID:         conflict.ID,
		TenantID:           conflict.TenantID,
		AthleteID:          conflict.AthleteID,
		ActivityDate:       conflict.ActivityDate.Format("2006-01-02"),
		ConflictType:       string(conflict.Type),
		Status:             string(conflict.Status),
		ConflictingRecords: records,
		DetectedAt:         conflict.DetectedAt,
	}
	if conflict.Resolution != nil {
		view.Resolution = &ResolutionView{
			PrimaryPlatform: conflict.Resolution.PrimaryPlatform,
			RetainedSources: conflict.Resolution.RetainedSources,
			Note:            conflict.Resolution.Note,
			ResolvedBy:      conflict.Resolution.ResolvedBy,
			ResolvedAt:      conflict.Resolution.ResolvedAt,
		}
	}
	return view
}

func toConflictViews(conflicts []domain.DataConflict) []ConflictView {
	views := make([]ConflictView, 0, len(conflicts))
	for _, conflict := range conflicts {
		views = append(views, toConflictView(conflict))
	}
	return views
}

func toRunView(result *domain.ReconciliationResult) RunReconciliationResponse {
	return RunReconciliationResponse{
		AthleteID:         result.AthleteID,
		ConflictsDetected: result.ConflictsDetected,
		AutoResolved:      result.AutoResolved,
		RequiresReview:    result.RequiresReview,
		SkippedRecords:    result.SkippedRecords,
		Conflicts:         toConflictViews(result.Conflicts),
	}
}

func toRuleView(rule domain.PrecedenceRule) RuleView {
	return RuleView{
		RuleID:             rule.ID,
		TenantID:           rule.TenantID,
		AthleteID:          rule.AthleteID,
		RuleName:           rule.RuleName,
		PlatformPrecedence: rule.PlatformPrecedence,
		CreatedAt:          rule.CreatedAt,
	}
}

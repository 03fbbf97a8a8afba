package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"example.com/reconciliation/internal/auth"
	"example.com/reconciliation/internal/domain"
)

var testDay = time.Date(2025, time.June, 14, 0, 0, 0, 0, time.UTC)

func newTestHandler(conflicts *fakeConflictRepo, rules *fakeRuleRepo) *Handler {
	service := domain.NewService(conflicts, rules, &fakeRecordStore{}, domain.DefaultThresholds())
	return NewHandler(service)
}

func writerClaims() *auth.Claims {
	return &auth.Claims{
		Subject:  "coach-1",
		TenantID: "tenant-1",
		Scopes: map[string]struct{}{
			auth.ScopeReconciliationWrite: {},
			auth.ScopeRulesWrite:          {},
		},
		ExpiresAt: time.Now().Add(time.Hour),
	}
}

func readerClaims() *auth.Claims {
	return &auth.Claims{
		Subject:  "viewer-1",
		TenantID: "tenant-1",
		Scopes: map[string]struct{}{
			auth.ScopeReconciliationRead: {},
		},
		ExpiresAt: time.Now().Add(time.Hour),
	}
}

func TestRunReconciliationAutoResolves(t *testing.T) {
	conflicts := newFakeConflictRepo()
	rules := &fakeRuleRepo{}
	rules.seed(t, "tenant-1", "ath-1", "coach-defaults", map[string]int{
		domain.PlatformStrava: 1,
		domain.PlatformGarmin: 2,
	})
	handler := newTestHandler(conflicts, rules)

	body, err := json.Marshal(RunReconciliationRequest{
		AthleteID: "ath-1",
		Records: []domain.RawRecord{
			{Platform: domain.PlatformStrava, ExternalID: "s-1", AthleteID: "ath-1", StartTime: testDay.Add(8 * time.Hour), DurationSec: 3600},
			{Platform: domain.PlatformGarmin, ExternalID: "g-1", AthleteID: "ath-1", StartTime: testDay.Add(8*time.Hour + time.Minute), DurationSec: 3600},
			{Platform: domain.PlatformWhoop, ExternalID: "bad", AthleteID: "ath-1"},
		},
	})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/reconciliation/run", bytes.NewReader(body))
	req = req.WithContext(auth.WithClaims(req.Context(), writerClaims()))

	rr := httptest.NewRecorder()
	handler.runReconciliation(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}

	var resp RunReconciliationResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if resp.ConflictsDetected != 1 {
		t.Fatalf("expected 1 conflict got %d", resp.ConflictsDetected)
	}
	if resp.AutoResolved != 1 {
		t.Fatalf("expected 1 auto-resolved got %d", resp.AutoResolved)
	}
	if resp.SkippedRecords != 1 {
		t.Fatalf("expected 1 skipped record got %d", resp.SkippedRecords)
	}
	if len(resp.Conflicts) != 1 {
		t.Fatalf("expected 1 conflict in body got %d", len(resp.Conflicts))
	}
	conflict := resp.Conflicts[0]
	if conflict.ConflictType != string(domain.ConflictDuplicate) {
		t.Fatalf("expected DUPLICATE got %s", conflict.ConflictType)
	}
	if conflict.Status != string(domain.StatusResolved) {
		t.Fatalf("expected RESOLVED got %s", conflict.Status)
	}
	if conflict.Resolution == nil || conflict.Resolution.PrimaryPlatform != domain.PlatformStrava {
		t.Fatalf("expected strava as primary, got %+v", conflict.Resolution)
	}
}

func TestRunReconciliationRequiresWriteScope(t *testing.T) {
	handler := newTestHandler(newFakeConflictRepo(), &fakeRuleRepo{})

	req := httptest.NewRequest(http.MethodPost, "/v1/reconciliation/run", bytes.NewReader([]byte(`{"athlete_id":"ath-1"}`)))
	req = req.WithContext(auth.WithClaims(req.Context(), readerClaims()))

	rr := httptest.NewRecorder()
	handler.runReconciliation(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", rr.Code)
	}
}

func TestResolveConflictSetsPrimary(t *testing.T) {
	conflicts := newFakeConflictRepo()
	conflicts.conflicts["c-1"] = sampleConflict("c-1", domain.StatusRequiresReview)
	handler := newTestHandler(conflicts, &fakeRuleRepo{})

	body := []byte(`{"primary_platform":"garmin","note":"garmin has power data"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/conflicts/c-1/resolve", bytes.NewReader(body))
	req = req.WithContext(auth.WithClaims(req.Context(), writerClaims()))

	rr := httptest.NewRecorder()
	handler.conflictByID(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}

	var resp ConflictView
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != string(domain.StatusResolved) {
		t.Fatalf("expected RESOLVED got %s", resp.Status)
	}
	if resp.Resolution == nil || resp.Resolution.PrimaryPlatform != domain.PlatformGarmin {
		t.Fatalf("expected garmin as primary, got %+v", resp.Resolution)
	}
	if resp.Resolution.ResolvedBy == nil || *resp.Resolution.ResolvedBy != "coach-1" {
		t.Fatalf("expected resolved_by coach-1, got %+v", resp.Resolution.ResolvedBy)
	}
}

func TestResolveConflictAlreadyResolved(t *testing.T) {
	conflicts := newFakeConflictRepo()
	conflicts.conflicts["c-1"] = sampleConflict("c-1", domain.StatusResolved)
	handler := newTestHandler(conflicts, &fakeRuleRepo{})

	body := []byte(`{"primary_platform":"strava"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/conflicts/c-1/resolve", bytes.NewReader(body))
	req = req.WithContext(auth.WithClaims(req.Context(), writerClaims()))

	rr := httptest.NewRecorder()
	handler.conflictByID(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestResolveConflictUnknownID(t *testing.T) {
	handler := newTestHandler(newFakeConflictRepo(), &fakeRuleRepo{})

	body := []byte(`{"primary_platform":"strava"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/conflicts/missing/resolve", bytes.NewReader(body))
	req = req.WithContext(auth.WithClaims(req.Context(), writerClaims()))

	rr := httptest.NewRecorder()
	handler.conflictByID(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rr.Code)
	}
}

func TestResolveConflictRejectsForeignPlatform(t *testing.T) {
	conflicts := newFakeConflictRepo()
	conflicts.conflicts["c-1"] = sampleConflict("c-1", domain.StatusUnresolved)
	handler := newTestHandler(conflicts, &fakeRuleRepo{})

	body := []byte(`{"primary_platform":"whoop"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/conflicts/c-1/resolve", bytes.NewReader(body))
	req = req.WithContext(auth.WithClaims(req.Context(), writerClaims()))

	rr := httptest.NewRecorder()
	handler.conflictByID(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestSetPrecedenceRuleRejectsDuplicateRanks(t *testing.T) {
	handler := newTestHandler(newFakeConflictRepo(), &fakeRuleRepo{})

	body := []byte(`{"athlete_id":"ath-1","rule_name":"broken","platform_precedence":{"strava":1,"garmin":1}}`)
	req := httptest.NewRequest(http.MethodPut, "/v1/rules/precedence", bytes.NewReader(body))
	req = req.WithContext(auth.WithClaims(req.Context(), writerClaims()))

	rr := httptest.NewRecorder()
	handler.precedenceRule(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestGetPrecedenceRuleNotFound(t *testing.T) {
	handler := newTestHandler(newFakeConflictRepo(), &fakeRuleRepo{})

	req := httptest.NewRequest(http.MethodGet, "/v1/rules/precedence?athlete_id=ath-1", nil)
	req = req.WithContext(auth.WithClaims(req.Context(), readerClaims()))

	rr := httptest.NewRecorder()
	handler.precedenceRule(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rr.Code)
	}
}

func TestUnresolvedConflictsFiltersResolved(t *testing.T) {
	conflicts := newFakeConflictRepo()
	conflicts.conflicts["c-1"] = sampleConflict("c-1", domain.StatusUnresolved)
	conflicts.conflicts["c-2"] = sampleConflict("c-2", domain.StatusResolved)
	conflicts.conflicts["c-3"] = sampleConflict("c-3", domain.StatusRequiresReview)
	handler := newTestHandler(conflicts, &fakeRuleRepo{})

	req := httptest.NewRequest(http.MethodGet, "/v1/conflicts/unresolved?athlete_id=ath-1", nil)
	req = req.WithContext(auth.WithClaims(req.Context(), readerClaims()))

	rr := httptest.NewRecorder()
	handler.unresolvedConflicts(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}

	var resp ListConflictsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Items) != 2 {
		t.Fatalf("expected 2 unresolved conflicts got %d", len(resp.Items))
	}
	for _, item := range resp.Items {
		if item.Status == string(domain.StatusResolved) {
			t.Fatalf("resolved conflict leaked into unresolved listing: %s", item.ConflictID)
		}
	}
}

func TestListConflictsMissingAuth(t *testing.T) {
	handler := newTestHandler(newFakeConflictRepo(), &fakeRuleRepo{})

	req := httptest.NewRequest(http.MethodGet, "/v1/conflicts?athlete_id=ath-1", nil)
	rr := httptest.NewRecorder()
	handler.listConflicts(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rr.Code)
	}
}

func sampleConflict(id string, status domain.ConflictStatus) domain.DataConflict {
	conflict := domain.DataConflict{
		ID:           id,
		TenantID:     "tenant-1",
		AthleteID:    "ath-1",
		ActivityDate: testDay,
		Type:         domain.ConflictOverlap,
		Status:       status,
		ConflictingRecords: map[string]domain.NormalizedRecord{
			domain.PlatformStrava: {
				Platform: domain.PlatformStrava, ExternalID: "s-" + id, AthleteID: "ath-1",
				Date: testDay, StartTime: testDay.Add(8 * time.Hour), EndTime: testDay.Add(9 * time.Hour), DurationSec: 3600,
			},
			domain.PlatformGarmin: {
				Platform: domain.PlatformGarmin, ExternalID: "g-" + id, AthleteID: "ath-1",
				Date: testDay, StartTime: testDay.Add(8*time.Hour + 30*time.Minute), EndTime: testDay.Add(9*time.Hour + 30*time.Minute), DurationSec: 3600,
			},
		},
		DetectedAt: testDay.Add(10 * time.Hour),
	}
	if status == domain.StatusResolved {
		conflict.Resolution = &domain.Resolution{
			PrimaryPlatform: domain.PlatformStrava,
			RetainedSources: []string{domain.PlatformStrava, domain.PlatformGarmin},
			Note:            "seeded",
			ResolvedAt:      testDay.Add(11 * time.Hour),
		}
	}
	return conflict
}

type fakeConflictRepo struct {
	conflicts map[string]domain.DataConflict
	dedupe    map[string]string
}

func newFakeConflictRepo() *fakeConflictRepo {
	return &fakeConflictRepo{
		conflicts: make(map[string]domain.DataConflict),
		dedupe:    make(map[string]string),
	}
}

func (f *fakeConflictRepo) Create(_ context.Context, conflict domain.DataConflict) (*domain.DataConflict, error) {
	if existingID, seen := f.dedupe[conflict.DedupeKey()]; seen {
		existing := f.conflicts[existingID]
		return &existing, nil
	}
	f.dedupe[conflict.DedupeKey()] = conflict.ID
	f.conflicts[conflict.ID] = conflict
	copied := conflict
	return &copied, nil
}

func (f *fakeConflictRepo) Get(_ context.Context, tenantID, conflictID string) (*domain.DataConflict, error) {
	conflict, ok := f.conflicts[conflictID]
	if !ok || conflict.TenantID != tenantID {
		return nil, nil
	}
	out := conflict
	return &out, nil
}

func (f *fakeConflictRepo) MarkResolved(_ context.Context, tenantID, conflictID string, res domain.Resolution) error {
	conflict, ok := f.conflicts[conflictID]
	if !ok || conflict.TenantID != tenantID {
		return domain.ErrUnknownConflict
	}
	if conflict.Resolved() {
		return domain.ErrAlreadyResolved
	}
	conflict.Status = domain.StatusResolved
	conflict.Resolution = &res
	f.conflicts[conflictID] = conflict
	return nil
}

func (f *fakeConflictRepo) ListByAthlete(_ context.Context, tenantID, athleteID string, _ *domain.Cursor, limit int) ([]domain.DataConflict, *domain.Cursor, error) {
	out := f.filter(tenantID, func(c domain.DataConflict) bool { return c.AthleteID == athleteID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil, nil
}

func (f *fakeConflictRepo) FindUnresolved(_ context.Context, tenantID, athleteID string) ([]domain.DataConflict, error) {
	return f.filter(tenantID, func(c domain.DataConflict) bool {
		return c.AthleteID == athleteID && c.Status != domain.StatusResolved
	}), nil
}

func (f *fakeConflictRepo) FindRequiringReview(_ context.Context, tenantID string) ([]domain.DataConflict, error) {
	return f.filter(tenantID, func(c domain.DataConflict) bool {
		return c.Status == domain.StatusRequiresReview
	}), nil
}

func (f *fakeConflictRepo) filter(tenantID string, keep func(domain.DataConflict) bool) []domain.DataConflict {
	out := make([]domain.DataConflict, 0)
	for _, conflict := range f.conflicts {
		if conflict.TenantID == tenantID && keep(conflict) {
			out = append(out, conflict)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type fakeRuleRepo struct {
	rules map[string]domain.PrecedenceRule
}

func (f *fakeRuleRepo) seed(t *testing.T, tenantID, athleteID, name string, precedence map[string]int) {
	t.Helper()
	rule, err := domain.NewPrecedenceRule(tenantID, athleteID, name, precedence, time.Now())
	if err != nil {
		t.Fatalf("seed rule: %v", err)
	}
	if err := f.Save(context.Background(), rule); err != nil {
		t.Fatalf("save rule: %v", err)
	}
}

func (f *fakeRuleRepo) Save(_ context.Context, rule domain.PrecedenceRule) error {
	if f.rules == nil {
		f.rules = make(map[string]domain.PrecedenceRule)
	}
	f.rules[rule.TenantID+"|"+rule.AthleteID] = rule
	return nil
}

func (f *fakeRuleRepo) FindByAthlete(_ context.Context, tenantID, athleteID string) (*domain.PrecedenceRule, error) {
	rule, ok := f.rules[tenantID+"|"+athleteID]
	if !ok {
		return nil, nil
	}
	out := rule
	return &out, nil
}

type fakeRecordStore struct {
	records []domain.NormalizedRecord
}

func (f *fakeRecordStore) Save(_ context.Context, _ string, record domain.NormalizedRecord) error {
	f.records = append(f.records, record)
	return nil
}

func (f *fakeRecordStore) FindByDate(_ context.Context, _, athleteID string, date time.Time) ([]domain.NormalizedRecord, error) {
	out := make([]domain.NormalizedRecord, 0)
	for _, rec := range f.records {
		if rec.AthleteID == athleteID && rec.Date.Equal(date) {
			out = append(out, rec)
		}
	}
	return out, nil
}

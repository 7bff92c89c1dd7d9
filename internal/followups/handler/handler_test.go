package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"followup_backend/internal/events"
	"followup_backend/internal/followups/dedup"
	"followup_backend/internal/followups/domain"
	"followup_backend/internal/followups/engine"
	"followup_backend/internal/followups/service"
	"followup_backend/internal/followups/transport"
	"followup_backend/platform/apperr"
	"followup_backend/platform/httpkit"
	"followup_backend/platform/logger"
	"followup_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const orgPath = "/api/v1/organizations/7b0c7f5e-0000-4000-8000-000000000001"

type memRepo struct {
	rules map[uuid.UUID]domain.Rule
}

func (m *memRepo) GetByID(_ context.Context, organizationID, id uuid.UUID) (domain.Rule, error) {
	r, ok := m.rules[id]
	if !ok || r.OrganizationID() != organizationID {
		return domain.Rule{}, apperr.NotFound("follow-up rule not found")
	}
	return r, nil
}

func (m *memRepo) List(_ context.Context, organizationID uuid.UUID) ([]domain.Rule, error) {
	var out []domain.Rule
	for _, r := range m.rules {
		if r.OrganizationID() == organizationID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memRepo) Create(_ context.Context, rule domain.Rule) (domain.Rule, error) {
	m.rules[rule.ID()] = rule
	return rule, nil
}

func (m *memRepo) Update(_ context.Context, rule domain.Rule) (domain.Rule, error) {
	m.rules[rule.ID()] = rule
	return rule, nil
}

func (m *memRepo) SetActive(ctx context.Context, organizationID, id uuid.UUID, isActive bool) (domain.Rule, error) {
	r, err := m.GetByID(ctx, organizationID, id)
	if err != nil {
		return domain.Rule{}, err
	}
	m.rules[id] = r.WithActive(isActive)
	return m.rules[id], nil
}

func (m *memRepo) Delete(ctx context.Context, organizationID, id uuid.UUID) error {
	if _, err := m.GetByID(ctx, organizationID, id); err != nil {
		return err
	}
	delete(m.rules, id)
	return nil
}

func (m *memRepo) ActiveRules(context.Context, uuid.UUID) ([]domain.Rule, error) { return nil, nil }

func (m *memRepo) OrganizationsWithActiveRules(context.Context) ([]uuid.UUID, error) { return nil, nil }

type stubRunner struct{}

func (stubRunner) RunPass(_ context.Context, in engine.PassInput) (engine.PassReport, error) {
	return engine.PassReport{OrganizationID: in.OrganizationID}, nil
}

func newRouter(t *testing.T) (*gin.Engine, *memRepo) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := &memRepo{rules: map[uuid.UUID]domain.Rule{}}
	bus := events.NewInMemoryBus(logger.Discard())
	svc := service.New(repo, stubRunner{}, dedup.NewMemoryTracker(), nil, bus, logger.Discard())
	h := New(svc, validator.New())

	engine := gin.New()
	org := engine.Group("/api/v1/organizations/:orgId", httpkit.OrganizationScope())
	org.GET("/followup-rules", h.List)
	org.POST("/followup-rules", h.Create)
	org.POST("/followup-rules/preview-send-time", h.PreviewSendTime)
	org.GET("/followup-rules/:id", h.Get)
	org.PATCH("/followup-rules/:id/toggle", h.Toggle)
	org.DELETE("/followup-rules/:id", h.Delete)
	org.POST("/followups/run", h.Run)
	org.POST("/leads/:leadId/replied", h.MarkReplied)
	return engine, repo
}

func do(engine *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func ruleBody() map[string]any {
	return map[string]any{
		"name":     "Sem resposta 24h",
		"priority": 1,
		"trigger":  map[string]any{"kind": "no_response", "delayHours": 24, "maxFollowups": 2},
		"schedule": map[string]any{
			"restrictToBusinessHours": true,
			"windowStart":             "09:00",
			"windowEnd":               "18:00",
			"allowedWeekdays":         []string{"mon", "tue", "wed", "thu", "fri"},
			"timezone":                "America/Sao_Paulo",
		},
	}
}

func TestCreateGetToggleDelete(t *testing.T) {
	engine, _ := newRouter(t)

	rec := do(engine, http.MethodPost, orgPath+"/followup-rules", ruleBody())
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}
	var created transport.RuleResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.Schedule.Timezone != "America/Sao_Paulo" || created.Behavior.ContextLookbackDays != 7 {
		t.Fatalf("unexpected rule %+v", created)
	}

	rec = do(engine, http.MethodGet, orgPath+"/followup-rules/"+created.ID.String(), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}

	rec = do(engine, http.MethodPatch, orgPath+"/followup-rules/"+created.ID.String()+"/toggle", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("toggle status = %d", rec.Code)
	}

	rec = do(engine, http.MethodDelete, orgPath+"/followup-rules/"+created.ID.String(), nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec = do(engine, http.MethodGet, orgPath+"/followup-rules/"+created.ID.String(), nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete status = %d", rec.Code)
	}
}

func TestCreateValidation(t *testing.T) {
	engine, repo := newRouter(t)

	tests := []struct {
		name   string
		mutate func(map[string]any)
		status int
		code   string
	}{
		{name: "bad timezone tag", mutate: func(b map[string]any) {
			b["schedule"].(map[string]any)["timezone"] = "Mars/Base"
		}, status: http.StatusBadRequest},
		{name: "bad clock tag", mutate: func(b map[string]any) {
			b["schedule"].(map[string]any)["windowStart"] = "9am"
		}, status: http.StatusBadRequest},
		{name: "unknown trigger", mutate: func(b map[string]any) {
			b["trigger"] = map[string]any{"kind": "whenever", "maxFollowups": 1}
		}, status: http.StatusBadRequest},
		{name: "window inverted", mutate: func(b map[string]any) {
			b["schedule"].(map[string]any)["windowStart"] = "19:00"
		}, status: http.StatusUnprocessableEntity, code: string(apperr.CodeInvalidRuleConfig)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := ruleBody()
			tt.mutate(body)
			rec := do(engine, http.MethodPost, orgPath+"/followup-rules", body)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.status, rec.Body.String())
			}
			var resp httpkit.ErrorResponse
			_ = json.Unmarshal(rec.Body.Bytes(), &resp)
			if resp.Code != tt.code {
				t.Fatalf("code = %q, want %q", resp.Code, tt.code)
			}
		})
	}
	if len(repo.rules) != 0 {
		t.Fatal("no rule should be stored")
	}
}

func TestInvalidIDs(t *testing.T) {
	engine, _ := newRouter(t)

	if rec := do(engine, http.MethodGet, orgPath+"/followup-rules/nope", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad rule id status = %d", rec.Code)
	}
	if rec := do(engine, http.MethodGet, "/api/v1/organizations/nope/followup-rules", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad org id status = %d", rec.Code)
	}
}

func TestRunWithoutBody(t *testing.T) {
	engine, _ := newRouter(t)

	req := httptest.NewRequest(http.MethodPost, orgPath+"/followups/run", nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp transport.RunResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.OrganizationID.String() != "7b0c7f5e-0000-4000-8000-000000000001" {
		t.Fatalf("unexpected org %s", resp.OrganizationID)
	}
}

func TestPreviewSendTime(t *testing.T) {
	engine, _ := newRouter(t)

	body := map[string]any{
		"qualifiedAt": "2024-06-15T13:00:00Z",
		"schedule":    ruleBody()["schedule"],
	}
	rec := do(engine, http.MethodPost, orgPath+"/followup-rules/preview-send-time", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp transport.PreviewSendTimeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.SendAt.UTC().Format("2006-01-02T15:04Z") != "2024-06-17T12:00Z" {
		t.Fatalf("sendAt = %v", resp.SendAt)
	}
}

func TestMarkReplied(t *testing.T) {
	engine, _ := newRouter(t)

	rec := do(engine, http.MethodPost, orgPath+"/leads/"+uuid.NewString()+"/replied", map[string]any{})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
}

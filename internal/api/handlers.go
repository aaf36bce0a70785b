package api

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/griphq/retention-engine/internal/domain"
	"github.com/griphq/retention-engine/internal/pkg/httputil"
	"github.com/griphq/retention-engine/internal/plan"
	"github.com/griphq/retention-engine/internal/repository/postgres"
	"github.com/griphq/retention-engine/internal/service/enrollment"
	"github.com/griphq/retention-engine/internal/service/outreach"
	"github.com/griphq/retention-engine/internal/worker"
)

// MemberStore is the member read surface the handlers need.
type MemberStore interface {
	Get(ctx context.Context, id string) (*domain.Member, error)
	List(ctx context.Context, communityID string, limit, offset int) ([]domain.Member, error)
}

// CommunityStore resolves communities for plan gating and dispatch.
type CommunityStore interface {
	Get(ctx context.Context, id string) (*domain.Community, error)
}

// RiskStore is the risk read surface for member detail and dashboards.
type RiskStore interface {
	GetForMember(ctx context.Context, memberID string) (*domain.RiskScore, error)
	CountByLevel(ctx context.Context, communityID string) (map[domain.RiskLevel]int, error)
}

// OutreachStore lists a member's outreach history.
type OutreachStore interface {
	ListForMember(ctx context.Context, memberID string, limit int) ([]domain.OutreachLogEntry, error)
}

// PlaybookStore manages the playbook catalog.
type PlaybookStore interface {
	List(ctx context.Context, communityID string) ([]domain.Playbook, error)
	SeedSystemPlaybooks(ctx context.Context, communityID string) (int, error)
	SetActive(ctx context.Context, id string, active bool) error
}

// Enroller enrolls members into playbooks.
type Enroller interface {
	Enroll(ctx context.Context, playbookID, memberID string) (*enrollment.EnrollResult, error)
}

// StepRunner executes due playbook steps on demand.
type StepRunner interface {
	RunDueSteps(ctx context.Context, batchSize int) (worker.SweepResult, error)
}

// RiskRunner recalculates risk scores on demand.
type RiskRunner interface {
	Recalculate(ctx context.Context) (worker.RecalcResult, error)
}

// SyncRunner pulls a community's memberships from the platform.
type SyncRunner interface {
	SyncCommunity(ctx context.Context, community *domain.Community) (worker.SyncResult, error)
}

// Sender routes manual outreach through the channel dispatcher.
type Sender interface {
	Dispatch(ctx context.Context, community *domain.Community, member *domain.Member, content domain.OutreachContent, opts outreach.SendOptions) domain.DispatchResult
}

// Handlers holds the HTTP handlers and their dependencies.
type Handlers struct {
	members     MemberStore
	communities CommunityStore
	risk        RiskStore
	outreachLog OutreachStore
	playbooks   PlaybookStore
	enroller    Enroller
	steps       StepRunner
	riskRunner  RiskRunner
	syncRunner  SyncRunner
	sender      Sender
	renderer    *outreach.Renderer
}

// NewHandlers creates the handler set.
func NewHandlers(
	members MemberStore,
	communities CommunityStore,
	risk RiskStore,
	outreachLog OutreachStore,
	playbooks PlaybookStore,
	enroller Enroller,
	steps StepRunner,
	riskRunner RiskRunner,
	syncRunner SyncRunner,
	sender Sender,
	renderer *outreach.Renderer,
) *Handlers {
	return &Handlers{
		members:     members,
		communities: communities,
		risk:        risk,
		outreachLog: outreachLog,
		playbooks:   playbooks,
		enroller:    enroller,
		steps:       steps,
		riskRunner:  riskRunner,
		syncRunner:  syncRunner,
		sender:      sender,
		renderer:    renderer,
	}
}

// HealthCheck reports service liveness.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]string{"status": "ok"})
}

// GetCommunity returns a community with its risk-level breakdown.
func (h *Handlers) GetCommunity(w http.ResponseWriter, r *http.Request) {
	community, ok := h.loadCommunity(w, r)
	if !ok {
		return
	}
	counts, err := h.risk.CountByLevel(r.Context(), community.ID)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{
		"community":   community,
		"risk_counts": counts,
		"plan":        plan.For(community.PlanTier),
	})
}

// ListMembers returns a page of a community's members.
func (h *Handlers) ListMembers(w http.ResponseWriter, r *http.Request) {
	communityID := chi.URLParam(r, "communityID")
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	members, err := h.members.List(r.Context(), communityID, limit, offset)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{
		"members": members,
		"count":   len(members),
	})
}

// GetMember returns a member with its risk score and outreach history.
func (h *Handlers) GetMember(w http.ResponseWriter, r *http.Request) {
	memberID := chi.URLParam(r, "memberID")
	member, err := h.members.Get(r.Context(), memberID)
	if errors.Is(err, postgres.ErrMemberNotFound) {
		httputil.NotFound(w, "member not found")
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}

	risk, err := h.risk.GetForMember(r.Context(), memberID)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	history, err := h.outreachLog.ListForMember(r.Context(), memberID, 20)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{
		"member":   member,
		"risk":     risk,
		"outreach": history,
	})
}

// SyncCommunity pulls the community's memberships from the platform now.
func (h *Handlers) SyncCommunity(w http.ResponseWriter, r *http.Request) {
	community, ok := h.loadCommunity(w, r)
	if !ok {
		return
	}
	result, err := h.syncRunner.SyncCommunity(r.Context(), community)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, result)
}

// ListPlaybooks returns a community's playbook catalog.
func (h *Handlers) ListPlaybooks(w http.ResponseWriter, r *http.Request) {
	communityID := chi.URLParam(r, "communityID")
	playbooks, err := h.playbooks.List(r.Context(), communityID)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"playbooks": playbooks})
}

// SeedPlaybooks installs the built-in playbooks for a community.
func (h *Handlers) SeedPlaybooks(w http.ResponseWriter, r *http.Request) {
	communityID := chi.URLParam(r, "communityID")
	seeded, err := h.playbooks.SeedSystemPlaybooks(r.Context(), communityID)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]int{"seeded": seeded})
}

// ActivatePlaybook turns a playbook on, enforcing the community's plan limits.
func (h *Handlers) ActivatePlaybook(w http.ResponseWriter, r *http.Request) {
	community, ok := h.loadCommunity(w, r)
	if !ok {
		return
	}
	playbookID := chi.URLParam(r, "playbookID")

	playbooks, err := h.playbooks.List(r.Context(), community.ID)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	var target *domain.Playbook
	activeCount := 0
	for i := range playbooks {
		if playbooks[i].Active {
			activeCount++
		}
		if playbooks[i].ID == playbookID {
			target = &playbooks[i]
		}
	}
	if target == nil {
		httputil.NotFound(w, "playbook not found")
		return
	}
	if target.Active {
		httputil.OK(w, map[string]any{"active": true})
		return
	}
	if !plan.MeetsMinTier(community.PlanTier, target.MinTier) {
		httputil.Error(w, http.StatusForbidden,
			"playbook requires the "+string(target.MinTier)+" plan or above")
		return
	}
	if !plan.CanActivatePlaybook(community.PlanTier, activeCount) {
		upgrade := plan.UpgradeTier(community.PlanTier)
		msg := "active playbook limit reached for your plan"
		if upgrade != "" {
			msg += ", upgrade to " + string(upgrade) + " for more"
		}
		httputil.Error(w, http.StatusForbidden, msg)
		return
	}

	if err := h.playbooks.SetActive(r.Context(), playbookID, true); err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"active": true})
}

// DeactivatePlaybook turns a playbook off.
func (h *Handlers) DeactivatePlaybook(w http.ResponseWriter, r *http.Request) {
	playbookID := chi.URLParam(r, "playbookID")
	err := h.playbooks.SetActive(r.Context(), playbookID, false)
	if errors.Is(err, sql.ErrNoRows) {
		httputil.NotFound(w, "playbook not found")
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"active": false})
}

type enrollRequest struct {
	MemberID string `json:"member_id"`
}

// EnrollMember enrolls a member into a playbook.
func (h *Handlers) EnrollMember(w http.ResponseWriter, r *http.Request) {
	playbookID := chi.URLParam(r, "playbookID")
	var req enrollRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.MemberID == "" {
		httputil.BadRequest(w, "member_id is required")
		return
	}

	result, err := h.enroller.Enroll(r.Context(), playbookID, req.MemberID)
	switch {
	case errors.Is(err, enrollment.ErrPlaybookNotFound):
		httputil.NotFound(w, "playbook not found")
	case errors.Is(err, enrollment.ErrAlreadyEnrolled):
		httputil.Conflict(w, err.Error())
	case err != nil:
		httputil.InternalError(w, err)
	default:
		httputil.Created(w, result)
	}
}

type executeRequest struct {
	BatchSize int `json:"batch_size"`
}

// ExecuteSteps runs due playbook steps immediately instead of waiting for
// the next sweep.
func (h *Handlers) ExecuteSteps(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if r.ContentLength > 0 && !httputil.Decode(w, r, &req) {
		return
	}
	result, err := h.steps.RunDueSteps(r.Context(), req.BatchSize)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, result)
}

// RecalculateRisk rescore every community's members immediately.
func (h *Handlers) RecalculateRisk(w http.ResponseWriter, r *http.Request) {
	result, err := h.riskRunner.Recalculate(r.Context())
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, result)
}

// ListTemplates returns the built-in outreach templates.
func (h *Handlers) ListTemplates(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]any{"templates": outreach.Templates()})
}

type sendRequest struct {
	CommunityID string         `json:"community_id"`
	MemberID    string         `json:"member_id"`
	TemplateID  string         `json:"template_id"`
	Vars        map[string]any `json:"vars"`
}

// SendOutreach sends a one-off templated message to a member, gated by the
// community's plan.
func (h *Handlers) SendOutreach(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.CommunityID == "" || req.MemberID == "" || req.TemplateID == "" {
		httputil.BadRequest(w, "community_id, member_id and template_id are required")
		return
	}

	community, err := h.communities.Get(r.Context(), req.CommunityID)
	if errors.Is(err, postgres.ErrCommunityNotFound) {
		httputil.NotFound(w, "community not found")
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if !plan.CanSendManualEmail(community.PlanTier) {
		httputil.Error(w, http.StatusForbidden, "manual outreach requires a paid plan")
		return
	}

	member, err := h.members.Get(r.Context(), req.MemberID)
	if errors.Is(err, postgres.ErrMemberNotFound) {
		httputil.NotFound(w, "member not found")
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}

	vars := req.Vars
	if vars == nil {
		vars = map[string]any{}
	}
	if _, ok := vars["first_name"]; !ok && member.FirstName != nil {
		vars["first_name"] = *member.FirstName
	}
	content, err := h.renderer.Render(req.TemplateID, vars)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	templateID := req.TemplateID
	result := h.sender.Dispatch(r.Context(), community, member, content,
		outreach.SendOptions{TemplateID: &templateID})
	if !result.Success && result.Channel == domain.ChannelNone {
		httputil.JSON(w, http.StatusUnprocessableEntity, result)
		return
	}
	httputil.OK(w, result)
}

func (h *Handlers) loadCommunity(w http.ResponseWriter, r *http.Request) (*domain.Community, bool) {
	communityID := chi.URLParam(r, "communityID")
	community, err := h.communities.Get(r.Context(), communityID)
	if errors.Is(err, postgres.ErrCommunityNotFound) {
		httputil.NotFound(w, "community not found")
		return nil, false
	}
	if err != nil {
		httputil.InternalError(w, err)
		return nil, false
	}
	return community, true
}

func queryInt(r *http.Request, key string, fallback int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return fallback
}

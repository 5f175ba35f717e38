package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/example/appointment-desk/internal/application"
	"github.com/example/appointment-desk/internal/scheduler"
)

type ruleService interface {
	ListRules(ctx context.Context) ([]application.AvailabilityRule, error)
	CreateRule(ctx context.Context, params application.CreateRuleParams) (application.AvailabilityRule, error)
	UpdateRule(ctx context.Context, params application.UpdateRuleParams) (application.AvailabilityRule, error)
	DeleteRule(ctx context.Context, principal application.Principal, ruleID string) error
}

type RuleHandler struct {
	service   ruleService
	responder responder
	logger    *slog.Logger
}

func NewRuleHandler(service ruleService, logger *slog.Logger) *RuleHandler {
	base := defaultLogger(logger)
	return &RuleHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *RuleHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "RuleHandler", operation, attrs...)
}

func (h *RuleHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	rules, err := h.service.ListRules(r.Context())
	if err != nil {
		h.log(r.Context(), "List").ErrorContext(r.Context(), "rule list failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	dtos := make([]ruleDTO, 0, len(rules))
	for _, rule := range rules {
		dtos = append(dtos, toRuleDTO(rule))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listRulesResponse{Rules: dtos})
}

func (h *RuleHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())

	var req ruleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Create", "principal_id", principal.UserID, "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode rule request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Create", "principal_id", principal.UserID, "rule_type", req.Type)

	rule, err := h.service.CreateRule(r.Context(), application.CreateRuleParams{
		Principal: principal,
		Input:     req.toInput(),
	})
	if err != nil {
		logger.WarnContext(r.Context(), "rule creation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("rule_id", rule.ID).InfoContext(r.Context(), "rule created")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, ruleResponse{Rule: toRuleDTO(rule)})
}

// Update patches the reason, hours and closed flag of a rule.
func (h *RuleHandler) Update(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	ruleID, ok := pathID(r)
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidRuleID)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())

	var req rulePatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Update", "principal_id", principal.UserID, "rule_id", ruleID, "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode rule update", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Update", "principal_id", principal.UserID, "rule_id", ruleID)

	rule, err := h.service.UpdateRule(r.Context(), application.UpdateRuleParams{
		Principal: principal,
		RuleID:    ruleID,
		Patch: application.RulePatch{
			Reason:    req.Reason,
			StartTime: req.StartTime,
			EndTime:   req.EndTime,
			IsClosed:  req.IsClosed,
		},
	})
	if err != nil {
		logger.WarnContext(r.Context(), "rule update failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "rule updated")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, ruleResponse{Rule: toRuleDTO(rule)})
}

func (h *RuleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	ruleID, ok := pathID(r)
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidRuleID)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	logger := h.log(r.Context(), "Delete", "principal_id", principal.UserID, "rule_id", ruleID)
	if err := h.service.DeleteRule(r.Context(), principal, ruleID); err != nil {
		logger.WarnContext(r.Context(), "rule delete failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "rule deleted")
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

type ruleRequest struct {
	Type      string `json:"type"`
	Value     string `json:"value"`
	Reason    string `json:"reason"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	IsClosed  bool   `json:"is_closed"`
}

func (r ruleRequest) toInput() application.RuleInput {
	return application.RuleInput{
		Type:      scheduler.RuleType(r.Type),
		Value:     r.Value,
		Reason:    r.Reason,
		StartTime: r.StartTime,
		EndTime:   r.EndTime,
		IsClosed:  r.IsClosed,
	}
}

type rulePatchRequest struct {
	Reason    *string `json:"reason"`
	StartTime *string `json:"start_time"`
	EndTime   *string `json:"end_time"`
	IsClosed  *bool   `json:"is_closed"`
}

type ruleResponse struct {
	Rule ruleDTO `json:"rule"`
}

type listRulesResponse struct {
	Rules []ruleDTO `json:"rules"`
}

type ruleDTO struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Value     string `json:"value"`
	Reason    string `json:"reason,omitempty"`
	StartTime string `json:"start_time,omitempty"`
	EndTime   string `json:"end_time,omitempty"`
	IsClosed  bool   `json:"is_closed"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func toRuleDTO(rule application.AvailabilityRule) ruleDTO {
	return ruleDTO{
		ID:        rule.ID,
		Type:      string(rule.Type),
		Value:     rule.Value,
		Reason:    rule.Reason,
		StartTime: rule.StartTime,
		EndTime:   rule.EndTime,
		IsClosed:  rule.IsClosed,
		CreatedAt: formatTimestamp(rule.CreatedAt),
		UpdatedAt: formatTimestamp(rule.UpdatedAt),
	}
}

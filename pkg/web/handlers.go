package web

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/flowgrid/flowgrid/pkg/engine"
	"github.com/flowgrid/flowgrid/pkg/models"
	"github.com/flowgrid/flowgrid/pkg/store"
	"github.com/flowgrid/flowgrid/pkg/triggers"
)

// Handlers exposes the trigger manager and the engine's resume surface over
// HTTP.
type Handlers struct {
	manager   *triggers.Manager
	engine    *engine.Engine
	store     store.Store
	validator *validator.Validate
	logger    *slog.Logger
}

func NewHandlers(
	logger *slog.Logger,
	manager *triggers.Manager,
	eng *engine.Engine,
	st store.Store,
) *Handlers {
	return &Handlers{
		manager:   manager,
		engine:    eng,
		store:     st,
		validator: validator.New(validator.WithRequiredStructEnabled()),
		logger:    logger.With("module", "web"),
	}
}

// TriggerManual starts a workflow from its manual trigger node.
func (h *Handlers) TriggerManual(c fiber.Ctx) error {
	workflowID := c.Params("id")
	if workflowID == "" {
		return badRequest(c, "workflow id is required")
	}

	var req ManualTriggerRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "invalid JSON body")
		}
	}

	payload := make(map[string]any, len(req.Payload)+1)
	for k, v := range req.Payload {
		payload[k] = v
	}

	if req.UserID != "" {
		payload["user_id"] = req.UserID
	}

	state, err := h.manager.TriggerManual(c.Context(), workflowID, payload, req.Confirmed)
	if err != nil {
		if errors.Is(err, triggers.ErrConfirmationRequired) {
			return confirmationRequired(c, workflowID, req)
		}

		return handleDispatchError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(executionResult(state, "execution started"))
}

// TriggerWebhook starts a workflow from its webhook trigger node. The full
// request is packaged as the trigger payload.
func (h *Handlers) TriggerWebhook(c fiber.Ctx) error {
	workflowID := c.Params("id")
	if workflowID == "" {
		return badRequest(c, "workflow id is required")
	}

	headers := make(map[string]string)
	for name, values := range c.GetReqHeaders() {
		if len(values) > 0 {
			headers[name] = values[0]
		}
	}

	req := triggers.WebhookRequest{
		Method:     c.Method(),
		Path:       c.Path(),
		Headers:    headers,
		Query:      c.Queries(),
		RemoteAddr: c.IP(),
		Body:       c.Body(),
	}

	state, err := h.manager.TriggerWebhook(c.Context(), workflowID, req)
	if err != nil {
		return handleDispatchError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(executionResult(state, "execution started"))
}

// GitHubEvents dispatches a GitHub delivery to every matching registration.
// Matching runs across all activated workflows; each match is reported
// individually.
func (h *Handlers) GitHubEvents(c fiber.Ctx) error {
	var req GitHubEventRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}

	if req.EventType == "" {
		req.EventType = c.Get("X-GitHub-Event")
	}

	if req.DeliveryID == "" {
		req.DeliveryID = c.Get("X-GitHub-Delivery")
	}

	if req.EventType == "" {
		return badRequest(c, "event_type is required")
	}

	installationID, repository, ok := githubRouting(req.Payload)
	if !ok {
		return badRequest(c, "payload must carry installation.id and repository.full_name")
	}

	payload := req.Payload
	payload["delivery_id"] = req.DeliveryID

	results, err := h.manager.TriggerGitHub(c.Context(), installationID, repository, req.EventType, payload)
	if err != nil {
		return handleDispatchError(c, err)
	}

	return c.JSON(dispatchResults(results, "execution started"))
}

// EmailMessages dispatches an inbound email to every matching registration.
func (h *Handlers) EmailMessages(c fiber.Ctx) error {
	var req EmailRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	results, err := h.manager.TriggerEmail(c.Context(), triggers.EmailMessage{
		To:      req.To,
		From:    req.From,
		Subject: req.Subject,
		Body:    req.Body,
	})
	if err != nil {
		return handleDispatchError(c, err)
	}

	return c.JSON(dispatchResults(results, "execution started"))
}

// ResumeNode injects user input into a node waiting for a human decision.
func (h *Handlers) ResumeNode(c fiber.Ctx) error {
	executionID := c.Params("id")
	nodeID := c.Params("nodeId")

	if executionID == "" || nodeID == "" {
		return badRequest(c, "execution id and node id are required")
	}

	var req ResumeRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "invalid JSON body")
		}
	}

	suspension, err := h.store.Suspension(c.Context(), executionID, nodeID, models.SuspensionKindHumanInput)
	if err != nil {
		return handleDispatchError(c, err)
	}

	state, err := h.engine.ResumeWithUserInput(c.Context(), suspension.CorrelationKey, req.Input)
	if err != nil {
		return handleDispatchError(c, err)
	}

	return c.JSON(executionResult(state, "execution resumed"))
}

// ExternalCallback resumes a node waiting on an external signal, addressed by
// its correlation key.
func (h *Handlers) ExternalCallback(c fiber.Ctx) error {
	correlationKey := c.Params("key")
	if correlationKey == "" {
		return badRequest(c, "correlation key is required")
	}

	var req ResumeRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "invalid JSON body")
		}
	}

	state, err := h.engine.ResumeExternal(c.Context(), correlationKey, req.Input)
	if err != nil {
		return handleDispatchError(c, err)
	}

	return c.JSON(executionResult(state, "execution resumed"))
}

// CancelExecution cancels a non-terminal execution.
func (h *Handlers) CancelExecution(c fiber.Ctx) error {
	executionID := c.Params("id")
	if executionID == "" {
		return badRequest(c, "execution id is required")
	}

	state, err := h.engine.Cancel(c.Context(), executionID)
	if err != nil {
		return handleDispatchError(c, err)
	}

	return c.JSON(executionResult(state, "execution canceled"))
}

// GetExecution returns the persisted state of one execution.
func (h *Handlers) GetExecution(c fiber.Ctx) error {
	executionID := c.Params("id")
	if executionID == "" {
		return badRequest(c, "execution id is required")
	}

	state, err := h.store.ExecutionByID(c.Context(), executionID)
	if err != nil {
		return handleDispatchError(c, err)
	}

	return c.JSON(state)
}

// TriggerStatus lists the trigger registrations of a workflow.
func (h *Handlers) TriggerStatus(c fiber.Ctx) error {
	workflowID := c.Params("id")
	if workflowID == "" {
		return badRequest(c, "workflow id is required")
	}

	registrations, err := h.manager.Status(c.Context(), workflowID)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{
		"workflow_id": workflowID,
		"triggers":    registrations,
	})
}

// HealthCheck reports whether the dispatch layer can reach its store.
func (h *Handlers) HealthCheck(c fiber.Ctx) error {
	status := "healthy"
	message := "flowgrid is healthy"
	httpStatus := http.StatusOK

	var storeCheck string

	if err := h.manager.Health(c.Context()); err != nil {
		status = "unhealthy"
		message = "flowgrid is unhealthy"
		httpStatus = http.StatusInternalServerError
		storeCheck = err.Error()
	} else {
		storeCheck = "ok"
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"store": storeCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

func dispatchResults(results []triggers.DispatchResult, message string) []ExecutionResult {
	out := make([]ExecutionResult, 0, len(results))

	for _, result := range results {
		entry := ExecutionResult{
			WorkflowID:  result.WorkflowID,
			NodeID:      result.NodeID,
			ExecutionID: result.ExecutionID,
			Message:     message,
		}

		if result.Err != nil {
			entry.Message = "dispatch failed"
			entry.Error = result.Err.Error()
		}

		out = append(out, entry)
	}

	return out
}

// githubRouting pulls the routing fields out of a GitHub webhook payload.
func githubRouting(payload map[string]any) (int64, string, bool) {
	installation, ok := payload["installation"].(map[string]any)
	if !ok {
		return 0, "", false
	}

	id, ok := installation["id"].(float64)
	if !ok {
		return 0, "", false
	}

	repository, ok := payload["repository"].(map[string]any)
	if !ok {
		return 0, "", false
	}

	fullName, ok := repository["full_name"].(string)
	if !ok {
		return 0, "", false
	}

	return int64(id), fullName, true
}

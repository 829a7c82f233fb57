package web

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/flowgrid/flowgrid/pkg/engine"
	"github.com/flowgrid/flowgrid/pkg/store"
	"github.com/flowgrid/flowgrid/pkg/triggers"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// confirmationRequired is the 403-equivalent signal for manual triggers: the
// client is expected to re-submit with confirmed=true.
func confirmationRequired(c fiber.Ctx, workflowID string, req ManualTriggerRequest) error {
	problem := problems.NewStatusProblem(403).
		WithInstance(c.Path()).
		WithType("confirmation_required").
		WithDetail("this trigger requires confirmation before it runs")

	return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
		"problem": problem,
		"pending_trigger": fiber.Map{
			"workflow_id": workflowID,
			"user_id":     req.UserID,
			"payload":     req.Payload,
		},
	})
}

// handleDispatchError maps trigger and engine errors onto problem responses.
func handleDispatchError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, triggers.ErrWorkflowNotActive):
		return notFound(c, "workflow is not active")

	case errors.Is(err, triggers.ErrNoMatchingTrigger):
		return notFound(c, "no matching trigger registration")

	case errors.Is(err, store.ErrExecutionNotFound):
		return notFound(c, "execution not found")

	case errors.Is(err, store.ErrSuspensionNotFound):
		return notFound(c, "no pending suspension matches this request")

	case engine.IsValidationError(err):
		return badRequest(c, err.Error())

	case errors.Is(err, engine.ErrNotResumable):
		problem := problems.NewStatusProblem(409).
			WithInstance(c.Path()).
			WithType("not_resumable").
			WithDetail("execution is not in a resumable state")

		return c.Status(fiber.StatusConflict).JSON(problem)

	case errors.Is(err, engine.ErrNotCancelable):
		problem := problems.NewStatusProblem(409).
			WithInstance(c.Path()).
			WithType("not_cancelable").
			WithDetail("execution already reached a terminal state")

		return c.Status(fiber.StatusConflict).JSON(problem)

	default:
		return internalError(c, err)
	}
}

package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-dispatch/internal/service"
)

// AssignmentsHandler dispatches selected tickets to the coding agent.
type AssignmentsHandler struct {
	service *service.AssignmentService
}

// NewAssignmentsHandler constructs handler.
func NewAssignmentsHandler(assignments *service.AssignmentService) *AssignmentsHandler {
	return &AssignmentsHandler{service: assignments}
}

// Assign POST /missions/:id/assign. Blocks until every selected ticket has an outcome.
func (h *AssignmentsHandler) Assign(c *fiber.Ctx) error {
	report, err := h.service.AssignSelected(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": report})
}

// Results GET /missions/:id/assignments.
func (h *AssignmentsHandler) Results(c *fiber.Ctx) error {
	report, err := h.service.AssignmentResults(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": report})
}

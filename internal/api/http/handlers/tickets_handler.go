package handlers

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-dispatch/internal/api/dto"
	"github.com/spec-kit/ticket-dispatch/internal/domain"
	"github.com/spec-kit/ticket-dispatch/internal/repository"
	"github.com/spec-kit/ticket-dispatch/internal/service"
	apperrors "github.com/spec-kit/ticket-dispatch/pkg/util/errorutil"
)

// TicketsHandler serves mission ticket listing and selection.
type TicketsHandler struct {
	missions  *service.MissionService
	selection *service.SelectionService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(missions *service.MissionService, selection *service.SelectionService) *TicketsHandler {
	return &TicketsHandler{missions: missions, selection: selection}
}

// List GET /missions/:id/tickets.
func (h *TicketsHandler) List(c *fiber.Ctx) error {
	filter, err := parseTicketFilter(c)
	if err != nil {
		return err
	}
	tickets, err := h.missions.Tickets(c.UserContext(), c.Params("id"), filter)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponses(tickets)})
}

// UpdateSelection PUT /missions/:id/selection.
func (h *TicketsHandler) UpdateSelection(c *fiber.Ctx) error {
	var req dto.SelectionRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	n, err := h.selection.SetSelection(c.UserContext(), c.Params("id"), req.TicketIDs)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.SelectionResponse{MissionID: c.Params("id"), Selected: n}})
}

// History GET /missions/:id/tickets/:ticketId/history.
func (h *TicketsHandler) History(c *fiber.Ctx) error {
	entries, err := h.missions.TicketHistory(c.UserContext(), c.Params("id"), c.Params("ticketId"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": historyResponses(entries)})
}

func parseTicketFilter(c *fiber.Ctx) (repository.TicketFilter, error) {
	filter := repository.TicketFilter{}
	if raw := c.Query("selected"); raw != "" {
		selected, err := strconv.ParseBool(raw)
		if err != nil {
			return filter, apperrors.NewValidationError("selected must be a boolean", nil)
		}
		filter.Selected = &selected
	}
	if raw := c.Query("category"); raw != "" {
		category := domain.ComplexityCategory(strings.ToLower(raw))
		switch category {
		case domain.ComplexityLow, domain.ComplexityMedium, domain.ComplexityHigh:
			filter.Category = &category
		default:
			return filter, apperrors.NewValidationError("unknown category", map[string]any{"category": raw})
		}
	}
	if raw := c.Query("assignment_status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			filter.AssignmentStatuses = append(filter.AssignmentStatuses, domain.AssignmentStatus(strings.TrimSpace(part)))
		}
	}
	return filter, nil
}

func ticketResponses(tickets []domain.Ticket) []dto.TicketResponse {
	resp := make([]dto.TicketResponse, 0, len(tickets))
	for i := range tickets {
		resp = append(resp, ticketResponse(&tickets[i]))
	}
	return resp
}

func ticketResponse(t *domain.Ticket) dto.TicketResponse {
	return dto.TicketResponse{
		ID:                   t.ID,
		MissionID:            t.MissionID,
		Key:                  t.Key,
		Summary:              t.Summary,
		Description:          t.Description,
		Status:               t.Status,
		Priority:             t.Priority,
		Assignee:             t.Assignee,
		Labels:               t.Labels,
		IssueType:            t.IssueType(),
		JiraCreatedAt:        t.JiraCreatedAt,
		ComplexityScore:      t.ComplexityScore,
		ComplexityCategory:   t.ComplexityCategory,
		ComplexityFactors:    t.ComplexityFactors,
		AnalyzedAt:           t.AnalyzedAt,
		Selected:             t.Selected,
		SelectedAt:           t.SelectedAt,
		AssignmentStatus:     t.AssignmentStatus,
		AssignmentError:      t.AssignmentError,
		AssignmentRetryCount: t.AssignmentRetryCount,
		SessionID:            t.SessionID,
		SessionURL:           t.SessionURL,
		AssignedAt:           t.AssignedAt,
		CreatedAt:            t.CreatedAt,
		UpdatedAt:            t.UpdatedAt,
	}
}

func historyResponses(entries []domain.TicketHistory) []dto.TicketHistoryResponse {
	resp := make([]dto.TicketHistoryResponse, 0, len(entries))
	for _, entry := range entries {
		resp = append(resp, dto.TicketHistoryResponse{
			ID:         entry.ID,
			ChangeType: entry.ChangeType,
			OldValue:   entry.OldValue,
			NewValue:   entry.NewValue,
			CreatedAt:  entry.CreatedAt,
		})
	}
	return resp
}

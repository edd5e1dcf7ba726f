package handlers

import (
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-dispatch/internal/api/dto"
	"github.com/spec-kit/ticket-dispatch/internal/domain"
	"github.com/spec-kit/ticket-dispatch/internal/jira"
	"github.com/spec-kit/ticket-dispatch/internal/service"
	apperrors "github.com/spec-kit/ticket-dispatch/pkg/util/errorutil"
)

// MissionsHandler serves mission lifecycle endpoints.
type MissionsHandler struct {
	missions *service.MissionService
	analysis *service.AnalysisService
}

// NewMissionsHandler constructs handler.
func NewMissionsHandler(missions *service.MissionService, analysis *service.AnalysisService) *MissionsHandler {
	return &MissionsHandler{missions: missions, analysis: analysis}
}

// List GET /missions.
func (h *MissionsHandler) List(c *fiber.Ctx) error {
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 20)
	missions, err := h.missions.List(c.UserContext(), pageSize, (page-1)*pageSize)
	if err != nil {
		return err
	}
	items := make([]dto.MissionResponse, 0, len(missions))
	for i := range missions {
		items = append(items, missionResponse(&missions[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Create POST /missions.
func (h *MissionsHandler) Create(c *fiber.Ctx) error {
	mission, err := h.missions.Create(c.UserContext())
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": missionResponse(mission)})
}

// Get GET /missions/:id.
func (h *MissionsHandler) Get(c *fiber.Ctx) error {
	mission, err := h.missions.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": missionResponse(mission)})
}

// SaveQuery PUT /missions/:id/query.
func (h *MissionsHandler) SaveQuery(c *fiber.Ctx) error {
	var req dto.SaveQueryRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	mission, validation, err := h.missions.SaveQuery(c.UserContext(), c.Params("id"), req.JQLQuery)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.SaveQueryResponse{
		Mission:    missionResponse(mission),
		Validation: validation,
	}})
}

// ValidateJQL POST /jql/validate. Always 200; the verdict is in the body.
func (h *MissionsHandler) ValidateJQL(c *fiber.Ctx) error {
	var req dto.JQLRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	return c.JSON(fiber.Map{"data": jira.ValidateJQL(req.JQLQuery)})
}

// PreviewJQL POST /jql/preview.
func (h *MissionsHandler) PreviewJQL(c *fiber.Ctx) error {
	var req dto.JQLRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	result, validation, err := h.missions.PreviewQuery(c.UserContext(), req.JQLQuery)
	if err != nil {
		return err
	}
	previews := make([]dto.TicketPreview, 0, len(result.Tickets))
	for _, t := range result.Tickets {
		previews = append(previews, dto.TicketPreview{Key: t.Key, Summary: t.Summary, Status: t.Status, Priority: t.Priority})
	}
	return c.JSON(fiber.Map{"data": dto.JQLPreviewResponse{
		Validation: validation,
		Total:      result.Total,
		Tickets:    previews,
	}})
}

// FetchTickets POST /missions/:id/tickets/fetch.
func (h *MissionsHandler) FetchTickets(c *fiber.Ctx) error {
	tickets, err := h.missions.FetchTickets(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponses(tickets)})
}

// Analyze POST /missions/:id/analyze?force=true.
func (h *MissionsHandler) Analyze(c *fiber.Ctx) error {
	force, _ := strconv.ParseBool(c.Query("force"))
	report, err := h.analysis.AnalyzeMission(c.UserContext(), c.Params("id"), force)
	if err != nil {
		return err
	}
	suggested := report.SuggestedTicketIDs
	if suggested == nil {
		suggested = []string{}
	}
	return c.JSON(fiber.Map{"data": dto.AnalysisResponse{
		Mission:            missionResponse(report.Mission),
		Analyzed:           report.Analyzed,
		Summary:            report.Summary,
		SuggestedTicketIDs: suggested,
		Tickets:            ticketResponses(report.Tickets),
	}})
}

func missionResponse(m *domain.Mission) dto.MissionResponse {
	return dto.MissionResponse{
		ID:                    m.ID,
		Name:                  m.Name,
		Status:                m.Status,
		JQLQuery:              m.JQLQuery,
		TotalAssignedCount:    m.TotalAssignedCount,
		FailedAssignmentCount: m.FailedAssignmentCount,
		AssignedAt:            m.AssignedAt,
		AssignmentCompletedAt: m.AssignmentCompletedAt,
		CreatedAt:             m.CreatedAt,
		UpdatedAt:             m.UpdatedAt,
	}
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

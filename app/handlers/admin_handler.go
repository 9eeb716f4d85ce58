// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/darzihub/darzi-notify/app/dto"
	"github.com/darzihub/darzi-notify/app/scheduler"
	businessflow "github.com/darzihub/darzi-notify/business_flow"
	"github.com/darzihub/darzi-notify/models"
	"github.com/darzihub/darzi-notify/repository"
	"github.com/darzihub/darzi-notify/utils"
)

// AdminHandlerInterface defines the contract for admin handlers.
type AdminHandlerInterface interface {
	Health(c fiber.Ctx) error
	PollNow(c fiber.Ctx) error
	SendTestMessage(c fiber.Ctx) error
	ListReports(c fiber.Ctx) error
}

// AdminHandler exposes the operator surface: health, manual poll, test
// messages, and cycle reports.
type AdminHandler struct {
	flow      *businessflow.DispatchFlow
	poller    *scheduler.PollScheduler
	reports   repository.PollReportRepository
	transport businessflow.Transport
	validator *validator.Validate
}

func NewAdminHandler(
	flow *businessflow.DispatchFlow,
	poller *scheduler.PollScheduler,
	reports repository.PollReportRepository,
	transport businessflow.Transport,
) *AdminHandler {
	return &AdminHandler{
		flow:      flow,
		poller:    poller,
		reports:   reports,
		transport: transport,
		validator: validator.New(),
	}
}

func (h *AdminHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *AdminHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// Health reports liveness and transport connection state.
func (h *AdminHandler) Health(c fiber.Ctx) error {
	return h.SuccessResponse(c, fiber.StatusOK, "OK", dto.HealthResponse{
		Status:            "healthy",
		WhatsAppConnected: h.transport.Connected(),
		Timestamp:         utils.UTCNow(),
	})
}

func (h *AdminHandler) createRequestContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

// PollNow triggers one poll cycle immediately.
func (h *AdminHandler) PollNow(c fiber.Ctx) error {
	// A full cycle paces its sends, so the budget is generous.
	ctx, cancel := h.createRequestContext(5 * time.Minute)
	defer cancel()
	report, err := h.poller.RunCycle(ctx)
	if err != nil {
		if errors.Is(err, scheduler.ErrCycleInProgress) {
			return h.ErrorResponse(c, fiber.StatusConflict, "A poll cycle is already running", "CYCLE_IN_PROGRESS", nil)
		}
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Poll cycle failed", "POLL_FAILED", err.Error())
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Poll cycle completed", dto.PollNowResponse{
		RowsRead:    report.RowsRead,
		RowsSkipped: report.RowsSkipped,
		Candidates:  report.Candidates,
		Sent:        report.Sent,
		Blocked:     report.BlockedExact + report.BlockedRate + report.BlockedCooldown + report.BlockedSimilar,
		Failed:      report.Failed,
	})
}

// SendTestMessage sends a one-off message to a phone number.
func (h *AdminHandler) SendTestMessage(c fiber.Ctx) error {
	var req dto.TestMessageRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if err := h.validator.Struct(&req); err != nil {
		var validationErrors []string
		for _, e := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, e.Error())
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
	}

	ctx, cancel := h.createRequestContext(30 * time.Second)
	defer cancel()
	result, err := h.flow.DispatchTest(ctx, req.Phone, req.Body)
	if err != nil {
		switch {
		case errors.Is(err, businessflow.ErrInvalidCandidate):
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid phone number", "INVALID_PHONE", err.Error())
		case errors.Is(err, businessflow.ErrTransportNotConnected):
			return h.ErrorResponse(c, fiber.StatusServiceUnavailable, "WhatsApp is not connected", "TRANSPORT_DISCONNECTED", nil)
		}
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to send test message", "TEST_SEND_FAILED", err.Error())
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Test message processed", dto.TestMessageResponse{
		Status:     string(result.Status),
		TrackingID: result.TrackingID,
		MessageID:  result.MessageID,
	})
}

// ListReports returns recent poll cycle summaries, newest first.
func (h *AdminHandler) ListReports(c fiber.Ctx) error {
	limit := 20
	if v := c.Query("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 || parsed > 100 {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "limit must be between 1 and 100", "VALIDATION_ERROR", nil)
		}
		limit = parsed
	}
	ctx, cancel := h.createRequestContext(30 * time.Second)
	defer cancel()
	reports, err := h.reports.ListRecent(ctx, limit)
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to load reports", "REPORTS_LOAD_FAILED", err.Error())
	}
	items := make([]dto.ReportItem, 0, len(reports))
	for _, r := range reports {
		items = append(items, toReportItem(r))
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Reports loaded", items)
}

func toReportItem(r *models.PollReport) dto.ReportItem {
	return dto.ReportItem{
		ID:              r.ID,
		StartedAt:       r.StartedAt,
		FinishedAt:      r.FinishedAt,
		RowsRead:        r.RowsRead,
		RowsSkipped:     r.RowsSkipped,
		Candidates:      r.Candidates,
		Sent:            r.Sent,
		BlockedExact:    r.BlockedExact,
		BlockedRate:     r.BlockedRate,
		BlockedCooldown: r.BlockedCooldown,
		BlockedSimilar:  r.BlockedSimilar,
		Failed:          r.Failed,
		PrunedEvents:    r.PrunedEvents,
	}
}

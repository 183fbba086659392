package handler

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/asyncpoller/api/internal/client"
	"github.com/asyncpoller/api/internal/model"
	"github.com/asyncpoller/api/internal/service"
	"github.com/asyncpoller/api/internal/store"
	"github.com/asyncpoller/api/pkg/response"
)

type JobHandler struct {
	service   *service.JobService
	validator *validator.Validate
}

func NewJobHandler(svc *service.JobService, v *validator.Validate) *JobHandler {
	return &JobHandler{
		service:   svc,
		validator: v,
	}
}

// Submit handles POST /api/jobs
func (h *JobHandler) Submit(c *fiber.Ctx) error {
	var req model.SubmitRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	req.Text = strings.TrimSpace(req.Text)

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.Submit(c.Context(), &req)
	if err != nil {
		if errors.Is(err, client.ErrUnknownWorkflow) {
			return response.UnknownWorkflow(c, "Unknown workflow: "+req.Workflow)
		}
		return response.ServiceError(c, err.Error())
	}

	return response.Submitted(c, result, result.Status.IsTerminal())
}

// Poll handles GET /api/jobs/:jobId/poll
func (h *JobHandler) Poll(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	var req model.PollRequest
	if err := c.QueryParser(&req); err != nil {
		return response.ValidationError(c, "Invalid query parameters", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	// an unknown id is an error-shaped poll result, not an HTTP failure
	return response.OK(c, h.service.Poll(jobID, req))
}

// Snapshot handles GET /api/jobs/:jobId
func (h *JobHandler) Snapshot(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.Snapshot(jobID)
	if err != nil {
		if errors.Is(err, store.ErrJobNotFound) {
			return response.NotFound(c, "Job not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}

// Ping handles GET /api/ping
func (h *JobHandler) Ping(c *fiber.Ctx) error {
	return c.SendString("pong")
}

// Echo handles POST /api/echo
func (h *JobHandler) Echo(c *fiber.Ctx) error {
	var req model.EchoRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	return response.OK(c, model.EchoResponse{Text: req.Text})
}

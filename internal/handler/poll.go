package handler

import (
	"errors"

	"github.com/gofiber/fiber/v3"

	"github.com/predictrack/predictrack-go/internal/ledger"
	"github.com/predictrack/predictrack-go/internal/middleware"
	"github.com/predictrack/predictrack-go/internal/model"
	"github.com/predictrack/predictrack-go/internal/service"
	"github.com/predictrack/predictrack-go/internal/store"
)

type PollHandler struct {
	engine *ledger.Engine
	polls  *service.PollService
}

func NewPollHandler(engine *ledger.Engine, polls *service.PollService) *PollHandler {
	return &PollHandler{engine: engine, polls: polls}
}

// Create handles POST /api/polls
func (h *PollHandler) Create(c fiber.Ctx) error {
	var req model.CreatePollRequest
	if err := c.Bind().JSON(&req); err != nil {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_BODY", "Invalid request body")
	}

	creator, errMsg := middleware.ValidateAddress(req.Creator)
	if errMsg != "" {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_FIELD", errMsg)
	}
	req.Creator = creator

	title, errMsg := middleware.ValidateTitle(req.Title)
	if errMsg != "" {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_FIELD", errMsg)
	}
	req.Title = title
	req.Description = middleware.ValidateDescription(req.Description)

	options, errMsg := middleware.ValidateOptions(req.Options)
	if errMsg != "" {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_FIELD", errMsg)
	}
	req.Options = options

	deadline, errMsg := middleware.ValidateDeadline(req.Deadline)
	if errMsg != "" {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_FIELD", errMsg)
	}
	req.Deadline = deadline

	p, err := h.engine.CreatePoll(c.Context(), req)
	if err != nil {
		return ledgerError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(p)
}

// Get handles GET /api/polls/:pollId
func (h *PollHandler) Get(c fiber.Ctx) error {
	pollID, errMsg := middleware.ValidatePollID(c.Params("pollId"))
	if errMsg != "" {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_FIELD", errMsg)
	}

	resp, err := h.polls.GetPoll(c.Context(), pollID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return middleware.ErrorResponse(c, fiber.StatusNotFound, "NOT_FOUND", "Poll not found")
		}
		if errors.Is(err, store.ErrUnavailable) {
			return middleware.ErrorResponse(c, fiber.StatusServiceUnavailable, "STORE_UNAVAILABLE", "No store could serve the read")
		}
		return middleware.ErrorResponse(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "Failed to fetch poll")
	}

	return c.JSON(resp)
}

// List handles GET /api/polls
func (h *PollHandler) List(c fiber.Ctx) error {
	polls, err := h.polls.ListPolls(c.Context())
	if err != nil {
		return middleware.ErrorResponse(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list polls")
	}

	return c.JSON(fiber.Map{
		"polls": polls,
		"count": len(polls),
	})
}

// StakingInfo handles GET /api/polls/:pollId/staking
func (h *PollHandler) StakingInfo(c fiber.Ctx) error {
	pollID, errMsg := middleware.ValidatePollID(c.Params("pollId"))
	if errMsg != "" {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_FIELD", errMsg)
	}

	info, err := h.engine.StakingInfo(c.Context(), pollID)
	if err != nil {
		return ledgerError(c, err)
	}

	return c.JSON(info)
}

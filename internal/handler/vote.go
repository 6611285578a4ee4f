package handler

import (
	"github.com/gofiber/fiber/v3"

	"github.com/predictrack/predictrack-go/internal/ledger"
	"github.com/predictrack/predictrack-go/internal/middleware"
	"github.com/predictrack/predictrack-go/internal/model"
)

type VoteHandler struct {
	engine *ledger.Engine
}

func NewVoteHandler(engine *ledger.Engine) *VoteHandler {
	return &VoteHandler{engine: engine}
}

// Submit handles POST /api/polls/:pollId/vote
func (h *VoteHandler) Submit(c fiber.Ctx) error {
	pollID, errMsg := middleware.ValidatePollID(c.Params("pollId"))
	if errMsg != "" {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_FIELD", errMsg)
	}

	var req model.VoteRequest
	if err := c.Bind().JSON(&req); err != nil {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_BODY", "Invalid request body")
	}

	user, errMsg := middleware.ValidateAddress(req.User)
	if errMsg != "" {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_FIELD", errMsg)
	}

	if err := h.engine.Vote(c.Context(), pollID, user, req.Option); err != nil {
		return ledgerError(c, err)
	}

	if Metrics.VotesTotal != nil {
		Metrics.VotesTotal.Inc()
	}
	return c.JSON(fiber.Map{"success": true})
}

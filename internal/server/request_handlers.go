package server

import (
	"strconv"
	"strings"

	"helpboard/internal/models"

	"github.com/gofiber/fiber/v2"
)

// GetRequest handles GET /api/requests/:id
func (s *Server) GetRequest(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	req, err := s.requests.GetForParticipant(c.UserContext(), id, currentIdentity(c).ID)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(req)
}

// UpdateRequestStatus handles PATCH /api/requests/:id/status
func (s *Server) UpdateRequestStatus(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := c.BodyParser(&body); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}
	to, ok := models.ParseRequestStatus(strings.ToUpper(strings.TrimSpace(body.Status)))
	if !ok {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Unknown request status"))
	}

	req, err := s.requests.Transition(c.UserContext(), id, currentIdentity(c).ID, to)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(req)
}

// GetRequestMessages handles GET /api/requests/:id/messages
func (s *Server) GetRequestMessages(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	page := models.HistoryPage{Limit: c.QueryInt("limit", 0)}
	if raw := c.Query("after_seq"); raw != "" {
		after, perr := strconv.ParseUint(raw, 10, 64)
		if perr != nil {
			return models.RespondWithError(c, fiber.StatusBadRequest,
				models.NewValidationError("Invalid after_seq"))
		}
		page.AfterSeq = after
	}

	msgs, err := s.chatGate.History(c.UserContext(), currentIdentity(c), id, page)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(msgs)
}

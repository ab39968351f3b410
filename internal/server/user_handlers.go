package server

import (
	"strings"

	"helpboard/internal/models"
	"helpboard/internal/repository"

	"github.com/gofiber/fiber/v2"
)

type userProfile struct {
	ID       uint   `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Location string `json:"location"`
}

// GetUserProfile handles GET /api/users/:id
func (s *Server) GetUserProfile(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	user, err := s.userRepo.GetByID(c.UserContext(), id)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(userProfile{
		ID:       user.ID,
		Name:     user.Name,
		Email:    user.Email,
		Location: user.Location,
	})
}

// GetUserRequests handles GET /api/users/:id/requests?role=requester|owner|any.
// Without a role both sides are listed.
func (s *Server) GetUserRequests(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	if id != currentIdentity(c).ID {
		return models.RespondWithAppError(c, models.NewForbiddenError("you can only list your own requests"))
	}

	role := repository.RequestRole(strings.ToLower(c.Query("role", string(repository.RoleAny))))
	switch role {
	case repository.RoleRequester, repository.RoleOwner, repository.RoleAny:
	default:
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("role must be requester, owner or any"))
	}

	reqs, err := s.requests.ListForUser(c.UserContext(), id, role)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(reqs)
}

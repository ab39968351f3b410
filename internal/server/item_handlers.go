package server

import (
	"strconv"
	"strings"

	"helpboard/internal/models"
	"helpboard/internal/repository"
	"helpboard/internal/validation"

	"github.com/gofiber/fiber/v2"
)

type itemInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Type        string `json:"type"`
	ImageURL    string `json:"image_url"`
}

func (in *itemInput) normalize() {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.Category = strings.ToLower(strings.TrimSpace(in.Category))
	in.Type = strings.ToUpper(strings.TrimSpace(in.Type))
	in.ImageURL = strings.TrimSpace(in.ImageURL)
}

// GetItems handles GET /api/items
func (s *Server) GetItems(c *fiber.Ctx) error {
	page := parsePagination(c, 20)
	filter := repository.ItemFilter{
		Category: strings.ToLower(strings.TrimSpace(c.Query("category"))),
		Location: strings.TrimSpace(c.Query("location")),
		Query:    strings.TrimSpace(c.Query("q")),
		Limit:    page.Limit,
		Offset:   page.Offset,
	}
	if raw := c.Query("owner_id"); raw != "" {
		ownerID, err := strconv.ParseUint(raw, 10, 32)
		if err != nil || ownerID == 0 {
			return models.RespondWithError(c, fiber.StatusBadRequest,
				models.NewValidationError("Invalid owner_id"))
		}
		filter.OwnerID = uint(ownerID)
	}
	if t := c.Query("type"); t != "" {
		filter.Type = models.ItemType(strings.ToUpper(t))
		if !filter.Type.Valid() {
			return models.RespondWithError(c, fiber.StatusBadRequest,
				models.NewValidationError("Invalid item type"))
		}
	}
	if st := c.Query("status"); st != "" {
		filter.Status = models.ItemStatus(strings.ToUpper(st))
		if !filter.Status.Valid() {
			return models.RespondWithError(c, fiber.StatusBadRequest,
				models.NewValidationError("Invalid item status"))
		}
	}

	items, err := s.itemRepo.List(c.UserContext(), filter)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(items)
}

// GetItem handles GET /api/items/:id
func (s *Server) GetItem(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	item, err := s.itemRepo.GetByID(c.UserContext(), id)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(item)
}

// CreateItem handles POST /api/items
func (s *Server) CreateItem(c *fiber.Ctx) error {
	var in itemInput
	if err := c.BodyParser(&in); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}
	in.normalize()
	if err := validation.ValidateItem(in.Title, in.Description, in.Category, models.ItemType(in.Type)); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError(err.Error()))
	}

	item := &models.Item{
		OwnerID:     currentIdentity(c).ID,
		Title:       in.Title,
		Description: in.Description,
		Category:    in.Category,
		Type:        models.ItemType(in.Type),
		Status:      models.ItemAvailable,
		ImageURL:    in.ImageURL,
	}
	if err := s.itemRepo.Create(c.UserContext(), item); err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(item)
}

// UpdateItem handles PUT /api/items/:id
func (s *Server) UpdateItem(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	item, err := s.ownedItem(c, id)
	if err != nil {
		return nil
	}

	in := itemInput{
		Title:       item.Title,
		Description: item.Description,
		Category:    item.Category,
		Type:        string(item.Type),
		ImageURL:    item.ImageURL,
	}
	if err := c.BodyParser(&in); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}
	in.normalize()
	if err := validation.ValidateItem(in.Title, in.Description, in.Category, models.ItemType(in.Type)); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError(err.Error()))
	}

	item.Title = in.Title
	item.Description = in.Description
	item.Category = in.Category
	item.Type = models.ItemType(in.Type)
	item.ImageURL = in.ImageURL
	if err := s.itemRepo.Update(c.UserContext(), item); err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(item)
}

// DeleteItem handles DELETE /api/items/:id
func (s *Server) DeleteItem(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	if _, err := s.ownedItem(c, id); err != nil {
		return nil
	}
	if err := s.itemRepo.Delete(c.UserContext(), id); err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// OpenRequest handles POST /api/items/:id/request
func (s *Server) OpenRequest(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	req, err := s.requests.Open(c.UserContext(), id, currentIdentity(c).ID)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(req)
}

// ownedItem loads an item the caller owns, writing the error response otherwise.
func (s *Server) ownedItem(c *fiber.Ctx, id uint) (*models.Item, error) {
	item, err := s.itemRepo.GetByID(c.UserContext(), id)
	if err != nil {
		_ = models.RespondWithAppError(c, err)
		return nil, errResponseWritten
	}
	if item.OwnerID != currentIdentity(c).ID {
		_ = models.RespondWithAppError(c, models.NewForbiddenError("only the owner can change this item"))
		return nil, errResponseWritten
	}
	return item, nil
}

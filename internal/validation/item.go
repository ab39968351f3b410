package validation

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"helpboard/internal/models"
)

const (
	maxTitleLength       = 120
	maxDescriptionLength = 2000
	maxCategoryLength    = 40
	maxNameLength        = 80
)

// ValidateName checks a display name.
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("name is required")
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return fmt.Errorf("name must be at most %d characters", maxNameLength)
	}
	return nil
}

// ValidateItem checks the descriptive fields of a listing.
func ValidateItem(title, description, category string, itemType models.ItemType) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return errors.New("title is required")
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return fmt.Errorf("title must be at most %d characters", maxTitleLength)
	}
	if utf8.RuneCountInString(description) > maxDescriptionLength {
		return fmt.Errorf("description must be at most %d characters", maxDescriptionLength)
	}
	if utf8.RuneCountInString(category) > maxCategoryLength {
		return fmt.Errorf("category must be at most %d characters", maxCategoryLength)
	}
	if !itemType.Valid() {
		return fmt.Errorf("type must be one of %s, %s, %s", models.ItemTypeBorrow, models.ItemTypeLend, models.ItemTypeDonate)
	}
	return nil
}

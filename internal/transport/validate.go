package transport

import (
	"strings"

	"github.com/google/uuid"

	"github.com/brewline/cartsync/internal/domain"
)

// Input validation runs before any network call. A failure here returns a
// VALIDATION_ERROR and guarantees zero remote side effects.

func validateAddItem(req domain.AddItemRequest) error {
	if strings.TrimSpace(req.ProductID) == "" {
		return validationError("product_id is required")
	}
	if err := validateQuantity(req.Quantity); err != nil {
		return err
	}
	if err := validateNotes(req.Notes); err != nil {
		return err
	}
	return validateCustomizations(req.Customizations)
}

func validateUpdateItem(itemID string, req domain.UpdateItemRequest) error {
	if err := validateItemID(itemID); err != nil {
		return err
	}
	if err := validateQuantity(req.Quantity); err != nil {
		return err
	}
	if err := validateNotes(req.Notes); err != nil {
		return err
	}
	return validateCustomizations(req.Customizations)
}

func validateItemID(itemID string) error {
	trimmed := strings.TrimSpace(itemID)
	if trimmed == "" {
		return validationError("item_id is required")
	}
	if _, err := uuid.Parse(trimmed); err != nil {
		return validationError("item_id must be a UUID")
	}
	return nil
}

func validateQuantity(quantity int) error {
	if quantity < domain.MinQuantity || quantity > domain.MaxQuantity {
		return validationError("quantity must be between %d and %d", domain.MinQuantity, domain.MaxQuantity)
	}
	return nil
}

func validateNotes(notes string) error {
	if len(notes) > domain.MaxNotesLength {
		return validationError("notes must be %d characters or fewer", domain.MaxNotesLength)
	}
	return nil
}

func validateCustomizations(values map[string]domain.CustomizationValue) error {
	if len(values) > domain.MaxCustomizations {
		return validationError("customizations must have %d entries or fewer", domain.MaxCustomizations)
	}
	for key, value := range values {
		if strings.TrimSpace(key) == "" {
			return validationError("customization keys must be non-empty")
		}
		if !value.IsBool && len(value.Str) > domain.MaxCustomizationValueLength {
			return validationError("customization %q must be %d characters or fewer", key, domain.MaxCustomizationValueLength)
		}
	}
	return nil
}

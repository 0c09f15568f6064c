package services

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/listhub/editor-backend/internal/models"
)

var ErrUnknownField = errors.New("unknown form field")

// FormState derives editable field values from a fetched listing and tracks
// user edits. Seeding happens at most once per listing, so a refetch of the
// same record never resets what the user has typed.
type FormState struct {
	fields    models.FormFields
	seededFor string // listing ID the fields were seeded from
}

func NewFormState() *FormState {
	return &FormState{}
}

// Seed initializes the fields from the listing. Repeated calls for the same
// listing ID are no-ops; a different listing re-seeds. Note that this also
// means a background refetch that changed the record upstream will not be
// reflected in already-seeded fields.
func (f *FormState) Seed(listing *models.Listing) bool {
	if listing == nil || f.seededFor == listing.ID {
		return false
	}

	f.fields = models.FormFields{
		Title:         listing.DisplayTitle(),
		Description:   listing.Description,
		Location:      listing.Location,
		Price:         formatPrice(listing.Price),
		Negotiable:    formatNegotiable(listing.Negotiable),
		ContactNumber: listing.ContactNumber,
	}
	f.seededFor = listing.ID
	return true
}

// Restore replaces the fields with a persisted draft snapshot. The seed
// guard is armed so a later refetch does not clobber the restored values.
func (f *FormState) Restore(listingID string, fields models.FormFields) {
	f.fields = fields
	f.seededFor = listingID
}

// Update mutates one named field.
func (f *FormState) Update(field, value string) error {
	switch field {
	case "title":
		f.fields.Title = value
	case "description":
		f.fields.Description = value
	case "location":
		f.fields.Location = value
	case "price":
		f.fields.Price = value
	case "negotiable":
		f.fields.Negotiable = value
	case "contactNumber":
		f.fields.ContactNumber = value
	default:
		return fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	return nil
}

// Fields returns the current field values.
func (f *FormState) Fields() models.FormFields {
	return f.fields
}

// Price coerces the entered price to a number. An empty field counts as 0;
// anything unparseable is reported so the submit can be rejected inline.
func (f *FormState) Price() (float64, error) {
	if f.fields.Price == "" {
		return 0, nil
	}
	price, err := strconv.ParseFloat(f.fields.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("price %q is not a number", f.fields.Price)
	}
	return price, nil
}

// Negotiable applies the legacy coercion to the entered value.
func (f *FormState) Negotiable() bool {
	return models.CoerceNegotiable(f.fields.Negotiable)
}

func formatPrice(price float64) string {
	if price == 0 {
		return ""
	}
	return strconv.FormatFloat(price, 'f', -1, 64)
}

func formatNegotiable(v any) string {
	if models.CoerceNegotiable(v) {
		return "true"
	}
	return "false"
}

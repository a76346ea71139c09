package receipt

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
)

var (
	// ErrValidation is returned when a Receipt violates its invariants
	ErrValidation = errors.New("invalid receipt")

	// ErrNotFound is returned when a receipt id does not exist
	ErrNotFound = errors.New("receipt not found")
)

// Receipt is the structured record parsed from one receipt document.
// Build it with New; it is not modified after construction.
type Receipt struct {
	Vendor   string    `json:"vendor" validate:"notblank"`
	Date     time.Time `json:"date"`
	Amount   float64   `json:"amount" validate:"gt=0"`
	Category string    `json:"category,omitempty"` // empty means uncategorized
}

// Record is a Receipt together with the id the store assigned to it
type Record struct {
	ID int64 `json:"id"`
	Receipt
}

// Document is the raw extracted text kept alongside a stored receipt
type Document struct {
	ReceiptID   int64     `json:"receipt_id"`
	Text        string    `json:"text"`
	Filename    string    `json:"filename,omitempty"`
	ContentType string    `json:"content_type,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("notblank", validators.NotBlank); err != nil {
		panic(err)
	}
	return v
}

// New validates the fields and returns a Receipt.
// The date keeps its wall clock at second precision in the UTC location,
// which is how it is stored.
func New(vendor string, date time.Time, amount float64, category string) (*Receipt, error) {
	r := &Receipt{
		Vendor:   vendor,
		Date:     normalizeDate(date),
		Amount:   amount,
		Category: category,
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate checks the vendor, amount and date invariants
func (r *Receipt) Validate() error {
	err := validate.Struct(r)
	if err == nil {
		if r.Date.IsZero() {
			return fmt.Errorf("%w: date is required", ErrValidation)
		}
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	switch fieldErrs[0].Field() {
	case "Vendor":
		return fmt.Errorf("%w: vendor name cannot be empty", ErrValidation)
	case "Amount":
		return fmt.Errorf("%w: amount must be positive", ErrValidation)
	default:
		return fmt.Errorf("%w: %s", ErrValidation, fieldErrs[0].Error())
	}
}

func normalizeDate(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC)
}

package store

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"tokobill/backend/internal/domain"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrUnavailable = errors.New("store unavailable")
	ErrValidation  = errors.New("validation failed")
)

// ValidationError reports the offending field. It matches ErrValidation
// under errors.Is.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
}

func (e ValidationError) Unwrap() error {
	return ErrValidation
}

func Invalid(field string, message string) error {
	return ValidationError{Field: field, Message: message}
}

// Unavailable marks err as a transient infrastructure failure while
// keeping it in the chain.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

func Conflict(what string) error {
	return fmt.Errorf("%s: %w", what, ErrConflict)
}

// IsRetryable reports whether the operation may succeed if repeated.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// Money columns are NUMERIC(14,2): two fractional digits and twelve
// integer digits at most.
const MoneyScale = 2

var MaxMoney = decimal.New(1, 12)

// ValidateMoney rejects amounts a store cannot keep exactly.
func ValidateMoney(field string, amount decimal.Decimal) error {
	if !amount.Equal(amount.Round(MoneyScale)) {
		return Invalid(field, fmt.Sprintf("must have at most %d decimal places", MoneyScale))
	}
	if amount.Abs().GreaterThanOrEqual(MaxMoney) {
		return Invalid(field, "is too large")
	}
	return nil
}

// ValidateBillContent checks the caller-supplied part of a bill. It is
// safe to run before a sequence value has been drawn.
func ValidateBillContent(bill domain.Bill) error {
	if bill.Total.LessThan(decimal.Zero) {
		return Invalid("total", "must not be negative")
	}
	if err := ValidateMoney("total", bill.Total); err != nil {
		return err
	}
	for i, item := range bill.Items {
		if err := ValidateMoney(fmt.Sprintf("items[%d].price", i), item.Price); err != nil {
			return err
		}
	}
	if strings.TrimSpace(bill.PaymentMode) == "" {
		return Invalid("paymentMode", "is required")
	}
	return nil
}

// ValidateBill applies the checks every Repository enforces on insert.
func ValidateBill(bill domain.Bill) error {
	if err := ValidateBillContent(bill); err != nil {
		return err
	}
	if bill.Seq < 1 || bill.BillNumber == "" {
		return Invalid("billNumber", "is required")
	}
	return nil
}

func ValidateProduct(product domain.Product) error {
	if strings.TrimSpace(product.Name) == "" {
		return Invalid("name", "is required")
	}
	if strings.TrimSpace(product.Barcode) == "" {
		return Invalid("barcode", "is required")
	}
	if product.Price.LessThan(decimal.Zero) {
		return Invalid("price", "must not be negative")
	}
	return ValidateMoney("price", product.Price)
}

package utils

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var ErrorRecordNotFound = errors.New("record not found")

// NotFoundError identifies a missing location, item, BOM or order.
type NotFoundError struct {
	Resource string
	Key      string
}

func (e *NotFoundError) Error() string {
	if e.Key == "" {
		return e.Resource + " not found"
	}
	return fmt.Sprintf("%s not found: %s", e.Resource, e.Key)
}

func NewNotFoundError(resource string, key string) *NotFoundError {
	return &NotFoundError{Resource: resource, Key: key}
}

// ConflictError identifies a uniqueness violation (duplicate location code,
// duplicate (sku, location) item).
type ConflictError struct {
	Resource string
	Key      string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("duplicate %s: %s", e.Resource, e.Key)
}

func NewConflictError(resource string, key string) *ConflictError {
	return &ConflictError{Resource: resource, Key: key}
}

// ValidationError identifies rejected input (zero quantity, overproduction,
// missing required fields).
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func NewValidationError(field string, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// InsufficientStockError is returned when a consumption or sale would drive an
// item balance negative. Adjustments and transfers are exempt (correction path).
type InsufficientStockError struct {
	Sku        string
	LocationId int
	OnHand     decimal.Decimal
	Requested  decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s at location %d: on hand %s, requested %s",
		e.Sku, e.LocationId, e.OnHand.String(), e.Requested.String())
}

func ErrorPanic(err error) {
	if err != nil {
		panic(err)
	}
}

package store

import (
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

// ErrConsistency is wrapped by every ConsistencyError.
var ErrConsistency = errors.New("consistency violation")

// ConsistencyError reports a broken uniqueness invariant: a natural key that
// matches more than one row, or a duplicate order number.
//
// It signals a bug upstream (scraper or store). The merge that hit it must be
// rolled back, never partially committed.
type ConsistencyError struct {
	// Code identifies the violated invariant.
	Code ConsistencyCode

	// Message is a human-readable description.
	Message string

	// Details contains additional context.
	Details map[string]string
}

// ConsistencyCode categorizes consistency errors.
type ConsistencyCode string

const (
	// CodeDuplicateProduct means a natural key matched several products.
	CodeDuplicateProduct ConsistencyCode = "DUPLICATE_PRODUCT"

	// CodeDuplicateOrder means an order number was seen twice.
	CodeDuplicateOrder ConsistencyCode = "DUPLICATE_ORDER"
)

// Error implements the error interface.
func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap lets errors.Is match ErrConsistency.
func (e *ConsistencyError) Unwrap() error {
	return ErrConsistency
}

// IsConsistencyError returns true if err is or wraps a ConsistencyError.
func IsConsistencyError(err error) bool {
	var ce *ConsistencyError
	return errors.As(err, &ce)
}

// NewDuplicateProductError creates a ConsistencyError for a natural key with
// several matching products.
func NewDuplicateProductError(key ProductKey, matches int) *ConsistencyError {
	return &ConsistencyError{
		Code:    CodeDuplicateProduct,
		Message: fmt.Sprintf("natural key matches %d products", matches),
		Details: map[string]string{
			"catalog_number": key.CatalogNumber,
			"oem_number":     key.OEMNumber,
			"description":    key.Description,
		},
	}
}

// NewDuplicateOrderError creates a ConsistencyError for a repeated order number.
func NewDuplicateOrderError(number int64, where string) *ConsistencyError {
	return &ConsistencyError{
		Code:    CodeDuplicateOrder,
		Message: fmt.Sprintf("order %d appears twice %s", number, where),
		Details: map[string]string{
			"order_number": fmt.Sprintf("%d", number),
		},
	}
}

// isUniqueViolation reports whether err is a SQLite UNIQUE constraint failure.
func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

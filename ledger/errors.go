// Copyright 2026 SIGERD Mobile contributors
// SPDX-License-Identifier: Apache-2.0

package ledger

// DomainError is a ledger-level error with a stable code for callers that
// map errors to UI messages.
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *DomainError) Error() string { return e.Message }

// NewDomainError creates a new domain error.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{Code: code, Message: message}
}

// Common ledger errors. Match with errors.Is; operations wrap these with a
// specific message. None of them is retried: a failed operation leaves no
// partial write.
var (
	ErrValidation        = NewDomainError("VALIDATION_ERROR", "invalid input")
	ErrNotFound          = NewDomainError("NOT_FOUND", "record not found")
	ErrInsufficientStock = NewDomainError("INSUFFICIENT_STOCK", "insufficient stock available")
)

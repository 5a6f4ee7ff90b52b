// Package common defines shared sentinel errors used across the storage
// orchestration layers. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Store-level errors.
	ErrorNotFound = errors.New("not found")

	// Validation errors. These never cause I/O and never trigger rollback.
	ErrorFileTooLarge    = errors.New("file too large")
	ErrorUnsupportedType = errors.New("unsupported file type")
	ErrorNameTooLong     = errors.New("file name too long")
	ErrorTooManyFiles    = errors.New("too many files")

	// Transfer errors. An upload failure may require rollback of sibling
	// uploads from the same batch; a commit failure always rolls back the
	// transaction's uploads before it is surfaced.
	ErrorUploadFailed = errors.New("upload failed")
	ErrorCommitFailed = errors.New("commit failed")

	// Ledger errors.
	ErrorInsufficientTokens = errors.New("insufficient tokens")

	// Ticket errors.
	ErrorTicketClosed = errors.New("ticket closed")

	// Session errors (invalid or malformed token).
	ErrorInvalidToken = errors.New("invalid token")
)

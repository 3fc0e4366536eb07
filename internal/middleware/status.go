package middleware

import (
	"greencredits-ledger/internal/domain"

	"github.com/gofiber/fiber/v2"
)

// statusForError is the status ErrorHandler will answer err with.
func statusForError(err error) int {
	if fe, ok := err.(*fiber.Error); ok {
		return fe.Code
	}
	return domain.MetadataFor(domain.KindOf(err)).HTTPStatus
}

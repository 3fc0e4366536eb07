package middleware

import (
	"greencredits-ledger/internal/domain"
	"greencredits-ledger/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// ErrorHandler is the global error handler. Ledger errors map to their
// kind's HTTP status; everything else is a 500 in the standard error format.
func ErrorHandler(c *fiber.Ctx, err error) error {
	if _, ok := err.(*fiber.Error); !ok && domain.KindOf(err) == domain.KindInternal {
		log.Error().Err(err).Str("trace_id", GetTraceID(c)).Str("method", c.Method()).Str("path", c.Path()).Msg("Request failed")
	}
	return response.FromError(c, err)
}

package ledger

import (
	"greencredits-ledger/internal/application/certificates"
	"greencredits-ledger/internal/application/gateway"
	"greencredits-ledger/internal/pkg/response"
	"greencredits-ledger/internal/pkg/validation"

	"github.com/gofiber/fiber/v2"
)

// Handlers invokes contract functions by name with positional arguments.
type Handlers struct {
	Gateway *gateway.Service
}

type invokeRequest struct {
	Function string   `json:"function" validate:"required"`
	Args     []string `json:"args"`
}

// POST /api/v1/ledger/submit
func (h *Handlers) Submit(c *fiber.Ctx) error {
	var body invokeRequest
	if err := validation.DecodeBody(c.Body(), &body); err != nil {
		return err
	}
	out, err := h.Gateway.Submit(c.UserContext(), body.Function, body.Args)
	if err != nil {
		return err
	}
	return response.Success(c, body.Function+" committed", out, nil)
}

// POST /api/v1/ledger/evaluate
func (h *Handlers) Evaluate(c *fiber.Ctx) error {
	var body invokeRequest
	if err := validation.DecodeBody(c.Body(), &body); err != nil {
		return err
	}
	out, err := h.Gateway.Evaluate(c.UserContext(), body.Function, body.Args)
	if err != nil {
		return err
	}
	return response.Success(c, body.Function+" evaluated", out, nil)
}

// GET /api/v1/ledger/functions
func (h *Handlers) Functions(c *fiber.Ctx) error {
	out := make([]fiber.Map, 0)
	for _, name := range certificates.FunctionNames() {
		fn, _ := certificates.Lookup(name)
		out = append(out, fiber.Map{"name": fn.Name, "mutating": fn.Mutating, "minArgs": fn.MinArgs})
	}
	return response.Success(c, "Functions fetched", out, nil)
}

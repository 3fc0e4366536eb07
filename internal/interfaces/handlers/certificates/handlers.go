package certificates

import (
	"encoding/json"

	"greencredits-ledger/internal/application/gateway"
	"greencredits-ledger/internal/application/ingest"
	"greencredits-ledger/internal/domain"
	"greencredits-ledger/internal/pkg/response"
	"greencredits-ledger/internal/pkg/validation"

	"github.com/gofiber/fiber/v2"
)

// Handlers exposes the certificate operations as REST routes. Every call
// goes through the gateway so mutations get conflict retries and metrics.
type Handlers struct {
	Gateway *gateway.Service
	Ingest  *ingest.Service
}

type createRequest struct {
	ID             string `json:"id" validate:"required,keycomponent,max=256"`
	ProjectID      string `json:"projectID" validate:"keycomponent"`
	ProjectName    string `json:"projectName"`
	Vintage        string `json:"vintage" validate:"keycomponent"`
	Amount         string `json:"amount" validate:"required,decimal"`
	IssuanceDate   string `json:"issuanceDate"`
	Registry       string `json:"registry" validate:"keycomponent"`
	Category       string `json:"category"`
	IssuedTo       string `json:"issuedTo"`
	Owner          string `json:"owner" validate:"required,keycomponent"`
	CarbonmarkID   string `json:"carbonmarkId"`
	CarbonmarkName string `json:"carbonmarkName"`
	FileHash       string `json:"fileHash"`
	AuthStatus     string `json:"authStatus" validate:"omitempty,oneof=pending authenticated unauthenticated"`
}

type authStatusRequest struct {
	AuthStatus string `json:"authStatus" validate:"required,oneof=pending authenticated unauthenticated"`
}

type listingRequest struct {
	PricePerCredit string `json:"pricePerCredit" validate:"required,decimal"`
	Description    string `json:"description" validate:"max=2000"`
}

// filters maps query parameters of GET /certificates to query functions.
var filters = []struct {
	param    string
	function string
}{
	{"owner", "GetCertificatesByOwner"},
	{"authStatus", "GetCertificatesByAuthStatus"},
	{"lifecycleStatus", "GetCertificatesByLifecycleStatus"},
	{"projectID", "GetCertificatesByProject"},
	{"registry", "GetCertificatesByRegistry"},
	{"vintage", "GetCertificatesByVintage"},
	{"fileHash", "GetCertificatesByFileHash"},
}

// POST /api/v1/certificates
func (h *Handlers) Create(c *fiber.Ctx) error {
	var body createRequest
	if err := validation.DecodeBody(c.Body(), &body); err != nil {
		return err
	}
	authStatus := body.AuthStatus
	if authStatus == "" {
		authStatus = string(domain.AuthStatusPending)
	}
	cert, err := h.Gateway.Submit(c.UserContext(), "CreateCertificate", []string{
		body.ID, body.ProjectID, body.ProjectName, body.Vintage, body.Amount, body.IssuanceDate,
		body.Registry, body.Category, body.IssuedTo, body.Owner, body.CarbonmarkID,
		body.CarbonmarkName, body.FileHash, authStatus,
	})
	if err != nil {
		return err
	}
	return response.SuccessCreated(c, "Certificate created", cert, nil)
}

// GET /api/v1/certificates, optionally filtered by one query parameter.
func (h *Handlers) List(c *fiber.Ctx) error {
	function, args := "GetAllCertificates", []string(nil)
	for _, f := range filters {
		if v := c.Query(f.param); v != "" {
			if function != "GetAllCertificates" {
				return domain.New(domain.KindInvalidArgument, "filter by at most one field")
			}
			function, args = f.function, []string{v}
		}
	}
	certs, err := h.Gateway.Evaluate(c.UserContext(), function, args)
	if err != nil {
		return err
	}
	return response.Success(c, "Certificates fetched", certs, fiber.Map{"count": len(certs.([]*domain.Certificate))})
}

// GET /api/v1/certificates/listings
func (h *Handlers) Listings(c *fiber.Ctx) error {
	certs, err := h.Gateway.Evaluate(c.UserContext(), "GetMarketplaceListings", nil)
	if err != nil {
		return err
	}
	return response.Success(c, "Marketplace listings fetched", certs, fiber.Map{"count": len(certs.([]*domain.Certificate))})
}

// GET /api/v1/certificates/:id
func (h *Handlers) Get(c *fiber.Ctx) error {
	cert, err := h.Gateway.Evaluate(c.UserContext(), "GetCertificateById", []string{c.Params("id")})
	if err != nil {
		return err
	}
	return response.Success(c, "Certificate fetched", cert, nil)
}

// GET /api/v1/certificates/:id/exists
func (h *Handlers) Exists(c *fiber.Ctx) error {
	exists, err := h.Gateway.Evaluate(c.UserContext(), "CertificateExists", []string{c.Params("id")})
	if err != nil {
		return err
	}
	return response.Success(c, "Certificate existence checked", fiber.Map{"exists": exists}, nil)
}

// PATCH /api/v1/certificates/:id/auth-status
func (h *Handlers) UpdateAuthStatus(c *fiber.Ctx) error {
	var body authStatusRequest
	if err := validation.DecodeBody(c.Body(), &body); err != nil {
		return err
	}
	return h.submit(c, "Authentication status updated", "UpdateAuthStatus", c.Params("id"), body.AuthStatus)
}

// POST /api/v1/certificates/:id/retire
func (h *Handlers) Retire(c *fiber.Ctx) error {
	return h.submit(c, "Certificate retired", "RetireCertificate", c.Params("id"))
}

// POST /api/v1/certificates/:id/listing
func (h *Handlers) ListOnMarketplace(c *fiber.Ctx) error {
	var body listingRequest
	if err := validation.DecodeBody(c.Body(), &body); err != nil {
		return err
	}
	return h.submit(c, "Certificate listed", "ListCertificateOnMarketplace", c.Params("id"), body.PricePerCredit, body.Description)
}

// DELETE /api/v1/certificates/:id/listing
func (h *Handlers) Unlist(c *fiber.Ctx) error {
	return h.submit(c, "Certificate unlisted", "UnlistCertificateFromMarketplace", c.Params("id"))
}

// GET /api/v1/certificates/:id/history
func (h *Handlers) History(c *fiber.Ctx) error {
	history, err := h.Gateway.Evaluate(c.UserContext(), "GetCertificateHistory", []string{c.Params("id")})
	if err != nil {
		return err
	}
	return response.Success(c, "Certificate history fetched", history, fiber.Map{"count": len(history.([]domain.HistoryEntry))})
}

// GET /api/v1/certificates/:id/history/verify
func (h *Handlers) VerifyHistory(c *fiber.Ctx) error {
	report, err := h.Gateway.Evaluate(c.UserContext(), "VerifyCertificateHistory", []string{c.Params("id")})
	if err != nil {
		return err
	}
	return response.Success(c, "Certificate history verified", report, nil)
}

// POST /api/v1/certificates/ingest
func (h *Handlers) IngestAuthentication(c *fiber.Ctx) error {
	// The service response carries fields we do not record, so decode leniently.
	var body ingest.Request
	if err := json.Unmarshal(c.Body(), &body); err != nil {
		return domain.Wrap(domain.KindInvalidArgument, err, "invalid request body")
	}
	out, err := h.Ingest.IngestAuthentication(c.UserContext(), body)
	if err != nil {
		return err
	}
	if !out.Created {
		return response.Success(c, "Document already on ledger", out, nil)
	}
	return response.SuccessCreated(c, "Authentication result recorded", out, nil)
}

func (h *Handlers) submit(c *fiber.Ctx, message, function string, args ...string) error {
	cert, err := h.Gateway.Submit(c.UserContext(), function, args)
	if err != nil {
		return err
	}
	return response.Success(c, message, cert, nil)
}

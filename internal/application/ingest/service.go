// Package ingest records the result of the certificate authentication
// service on the ledger.
package ingest

import (
	"context"
	"encoding/json"
	"strings"

	"greencredits-ledger/internal/application/gateway"
	"greencredits-ledger/internal/domain"
	"greencredits-ledger/internal/pkg/validation"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Statuses reported by the authentication service.
const (
	StatusAuthenticated = "authenticated"
	StatusRejected      = "rejected"
)

// UnknownRegistry is recorded when the service could not match a registry.
const UnknownRegistry = "Unknown"

// Text accepts a JSON string or number.
type Text string

func (t *Text) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*t = Text(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*t = Text(n.String())
	return nil
}

type ExtractedData struct {
	SerialNumber Text            `json:"serial_number" validate:"required,keycomponent"`
	ProjectID    Text            `json:"project_id" validate:"keycomponent"`
	ProjectName  Text            `json:"project_name"`
	Vintage      Text            `json:"vintage" validate:"keycomponent"`
	Amount       decimal.Decimal `json:"amount"`
	IssuanceDate Text            `json:"issuance_date"`
	IssuedTo     Text            `json:"issued_to"`
	Category     Text            `json:"category"`
}

type CarbonmarkDetails struct {
	ID   Text `json:"id"`
	Name Text `json:"name"`
}

// AuthenticationResult is the response of the authentication service.
type AuthenticationResult struct {
	Status            string             `json:"status"`
	Reason            string             `json:"reason,omitempty"`
	ExtractedData     ExtractedData      `json:"extracted_data"`
	CarbonmarkDetails *CarbonmarkDetails `json:"carbonmark_details,omitempty"`
}

// Request pairs an authentication result with the uploader and the
// hex SHA-256 of the uploaded file.
type Request struct {
	Owner    string               `json:"owner" validate:"required,keycomponent"`
	FileHash string               `json:"fileHash" validate:"required,hexadecimal"`
	Result   AuthenticationResult `json:"result"`
}

// Outcome reports the ledger record for an ingested document.
type Outcome struct {
	Certificate *domain.Certificate `json:"certificate"`
	Created     bool                `json:"created"`
}

type Service struct {
	Gateway *gateway.Service
}

// IngestAuthentication creates a pending certificate from req and then
// applies the service verdict. A document already on the ledger (same
// fileHash) is returned as is.
func (s *Service) IngestAuthentication(ctx context.Context, req Request) (*Outcome, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	data := req.Result.ExtractedData

	existing, err := s.Gateway.Evaluate(ctx, "GetCertificatesByFileHash", []string{req.FileHash})
	if err != nil {
		return nil, err
	}
	if certs := existing.([]*domain.Certificate); len(certs) > 0 {
		log.Info().Str("file_hash", req.FileHash).Str("id", certs[0].ID).Msg("Document already on ledger")
		return &Outcome{Certificate: certs[0]}, nil
	}

	registry, carbonmarkID, carbonmarkName := UnknownRegistry, "", ""
	if d := req.Result.CarbonmarkDetails; d != nil {
		carbonmarkID, carbonmarkName = string(d.ID), string(d.Name)
		if d.Name != "" {
			registry = string(d.Name)
		}
	}
	out, err := s.Gateway.Submit(ctx, "CreateCertificate", []string{
		string(data.SerialNumber),
		string(data.ProjectID),
		string(data.ProjectName),
		string(data.Vintage),
		data.Amount.String(),
		string(data.IssuanceDate),
		registry,
		string(data.Category),
		string(data.IssuedTo),
		req.Owner,
		carbonmarkID,
		carbonmarkName,
		req.FileHash,
		string(domain.AuthStatusPending),
	})
	if err != nil {
		return nil, err
	}
	cert := out.(*domain.Certificate)

	if verdict, ok := verdictFor(req.Result.Status); ok {
		out, err = s.Gateway.Submit(ctx, "UpdateAuthStatus", []string{cert.ID, string(verdict)})
		if err != nil {
			return nil, err
		}
		cert = out.(*domain.Certificate)
	}
	log.Info().
		Str("id", cert.ID).
		Str("file_hash", req.FileHash).
		Str("auth_status", string(cert.AuthStatus)).
		Msg("Authentication result ingested")
	return &Outcome{Certificate: cert, Created: true}, nil
}

// verdictFor maps the service status; anything else leaves the certificate pending.
func verdictFor(status string) (domain.AuthStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case StatusAuthenticated:
		return domain.AuthStatusAuthenticated, true
	case StatusRejected, string(domain.AuthStatusUnauthenticated):
		return domain.AuthStatusUnauthenticated, true
	}
	return "", false
}

package certificates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"greencredits-ledger/internal/domain"
	"greencredits-ledger/internal/ledger"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Service is the certificate lifecycle engine. Every public operation runs
// as a single ledger transaction.
type Service struct {
	Ledger ledger.Store
}

// CreateInput carries the positional fields of CreateCertificate.
type CreateInput struct {
	ID             string
	ProjectID      string
	ProjectName    string
	Vintage        string
	Amount         decimal.Decimal
	IssuanceDate   string
	Registry       string
	Category       string
	IssuedTo       string
	Owner          string
	CarbonmarkID   string
	CarbonmarkName string
	FileHash       string
	// AuthStatus defaults to pending when empty.
	AuthStatus string
}

// InitLedger is a no-op kept for callers that initialise the contract.
func (s *Service) InitLedger(ctx context.Context) error {
	if err := s.Ledger.Ping(ctx); err != nil {
		return domain.Wrap(domain.KindInternal, err, "ledger unavailable")
	}
	log.Info().Msg("Certificate ledger initialised")
	return nil
}

func (s *Service) CreateCertificate(ctx context.Context, in CreateInput) (*domain.Certificate, error) {
	if err := validateCreate(in); err != nil {
		return nil, err
	}
	authStatus := domain.AuthStatusPending
	if in.AuthStatus != "" {
		parsed, err := domain.ParseAuthStatus(in.AuthStatus)
		if err != nil {
			return nil, err
		}
		authStatus = parsed
	}

	var out *domain.Certificate
	var txID string
	err := s.submit(ctx, func(stub ledger.Stub) error {
		txID = stub.TxID()
		existing, err := stub.GetState(in.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			return domain.Newf(domain.KindAlreadyExists, "Certificate %s already exists", in.ID)
		}
		now := stub.TxTimestamp()
		cert := &domain.Certificate{
			DocType:         domain.DocTypeCarbonCredit,
			ID:              in.ID,
			ProjectID:       in.ProjectID,
			ProjectName:     in.ProjectName,
			Vintage:         in.Vintage,
			Amount:          in.Amount,
			IssuanceDate:    in.IssuanceDate,
			Registry:        in.Registry,
			Category:        in.Category,
			IssuedTo:        in.IssuedTo,
			Owner:           in.Owner,
			CarbonmarkID:    in.CarbonmarkID,
			CarbonmarkName:  in.CarbonmarkName,
			FileHash:        in.FileHash,
			AuthStatus:      authStatus,
			LifecycleStatus: domain.LifecycleStatusActive,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := putCertificate(stub, cert); err != nil {
			return err
		}
		if err := createIndexEntries(stub, cert); err != nil {
			return err
		}
		out = cert
		return nil
	})
	if err != nil {
		return nil, err
	}
	logCommitted("CreateCertificate", txID, out)
	return out, nil
}

func (s *Service) UpdateAuthStatus(ctx context.Context, id, newStatus string) (*domain.Certificate, error) {
	status, err := domain.ParseAuthStatus(newStatus)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, "UpdateAuthStatus", id, func(cert *domain.Certificate, _ time.Time) error {
		cert.AuthStatus = status
		return nil
	})
}

func (s *Service) RetireCertificate(ctx context.Context, id string) (*domain.Certificate, error) {
	return s.mutate(ctx, "RetireCertificate", id, func(cert *domain.Certificate, _ time.Time) error {
		if cert.LifecycleStatus == domain.LifecycleStatusRetired {
			return domain.Newf(domain.KindFailedPrecondition, "Certificate %s already retired", id)
		}
		cert.LifecycleStatus = domain.LifecycleStatusRetired
		return nil
	})
}

func (s *Service) ListCertificateOnMarketplace(ctx context.Context, id string, pricePerCredit decimal.Decimal, description string) (*domain.Certificate, error) {
	if !pricePerCredit.IsPositive() {
		return nil, domain.Newf(domain.KindInvalidArgument, "pricePerCredit must be positive, got %s", pricePerCredit)
	}
	return s.mutate(ctx, "ListCertificateOnMarketplace", id, func(cert *domain.Certificate, now time.Time) error {
		if cert.AuthStatus != domain.AuthStatusAuthenticated {
			return domain.New(domain.KindFailedPrecondition, "Only authenticated certificates can be listed")
		}
		if cert.LifecycleStatus != domain.LifecycleStatusActive {
			return domain.New(domain.KindFailedPrecondition, "Only active certificates can be listed")
		}
		cert.Marketplace = &domain.Marketplace{
			PricePerCredit: pricePerCredit,
			TotalValue:     pricePerCredit.Mul(cert.Amount),
			Description:    description,
			ListedAt:       now,
		}
		return nil
	})
}

func (s *Service) UnlistCertificateFromMarketplace(ctx context.Context, id string) (*domain.Certificate, error) {
	return s.mutate(ctx, "UnlistCertificateFromMarketplace", id, func(cert *domain.Certificate, _ time.Time) error {
		if !cert.IsListed() {
			return domain.Newf(domain.KindFailedPrecondition, "Certificate %s not currently listed", id)
		}
		cert.Marketplace = nil
		return nil
	})
}

// mutate reads id, applies change to a copy and rewrites the record and
// every index entry in one transaction.
func (s *Service) mutate(ctx context.Context, function, id string, change func(cert *domain.Certificate, now time.Time) error) (*domain.Certificate, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	var out *domain.Certificate
	var txID string
	err := s.submit(ctx, func(stub ledger.Stub) error {
		txID = stub.TxID()
		current, err := readCertificate(stub, id)
		if err != nil {
			return err
		}
		next := current.Clone()
		now := stub.TxTimestamp()
		if err := change(next, now); err != nil {
			return err
		}
		next.UpdatedAt = now
		if err := deleteIndexEntries(stub, current); err != nil {
			return err
		}
		if err := putCertificate(stub, next); err != nil {
			return err
		}
		if err := createIndexEntries(stub, next); err != nil {
			return err
		}
		out = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	logCommitted(function, txID, out)
	return out, nil
}

func (s *Service) submit(ctx context.Context, fn func(ledger.Stub) error) error {
	return classify(s.Ledger.Submit(ctx, fn))
}

func (s *Service) evaluate(ctx context.Context, fn func(ledger.Stub) error) error {
	return classify(s.Ledger.Evaluate(ctx, fn))
}

// classify maps ledger failures onto domain kinds.
func classify(err error) error {
	if err == nil || domain.As(err) != nil {
		return err
	}
	switch {
	case errors.Is(err, ledger.ErrConflict):
		log.Warn().Err(err).Msg("Ledger commit conflict")
		return domain.Wrap(domain.KindConflictRetryable, err, "concurrent update, resubmit the transaction")
	case errors.Is(err, ledger.ErrInvalidKeyComponent), errors.Is(err, ledger.ErrEmptyKey):
		return domain.Wrap(domain.KindInvalidArgument, err, "invalid key")
	default:
		return domain.Wrap(domain.KindInternal, err, "ledger failure")
	}
}

func readCertificate(stub ledger.Stub, id string) (*domain.Certificate, error) {
	raw, err := stub.GetState(id)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, domain.Newf(domain.KindNotFound, "Certificate %s does not exist", id)
	}
	var cert domain.Certificate
	if err := json.Unmarshal(raw, &cert); err != nil {
		return nil, domain.Wrap(domain.KindInternal, err, fmt.Sprintf("decode certificate %s", id))
	}
	return &cert, nil
}

func putCertificate(stub ledger.Stub, cert *domain.Certificate) error {
	raw, err := json.Marshal(cert)
	if err != nil {
		return domain.Wrap(domain.KindInternal, err, fmt.Sprintf("encode certificate %s", cert.ID))
	}
	return stub.PutState(cert.ID, raw)
}

func validateID(id string) error {
	if id == "" {
		return domain.New(domain.KindInvalidArgument, "certificate id is required")
	}
	if err := ledger.ValidateKeyComponent(id); err != nil {
		return domain.Wrap(domain.KindInvalidArgument, err, "invalid certificate id")
	}
	return nil
}

func validateCreate(in CreateInput) error {
	if err := validateID(in.ID); err != nil {
		return err
	}
	if in.Amount.IsNegative() {
		return domain.Newf(domain.KindInvalidArgument, "amount must be non-negative, got %s", in.Amount)
	}
	indexed := map[string]string{
		"owner":     in.Owner,
		"projectID": in.ProjectID,
		"registry":  in.Registry,
		"vintage":   in.Vintage,
	}
	for field, value := range indexed {
		if err := ledger.ValidateKeyComponent(value); err != nil {
			return domain.Wrap(domain.KindInvalidArgument, err, "invalid "+field)
		}
	}
	return nil
}

func logCommitted(function, txID string, cert *domain.Certificate) {
	log.Info().
		Str("function", function).
		Str("tx_id", txID).
		Str("id", cert.ID).
		Str("auth_status", string(cert.AuthStatus)).
		Str("lifecycle_status", string(cert.LifecycleStatus)).
		Bool("listed", cert.IsListed()).
		Msg("Certificate committed")
}

package certificates

import (
	"context"
	"encoding/json"
	"errors"

	"greencredits-ledger/internal/domain"
	"greencredits-ledger/internal/ledger"

	"github.com/rs/zerolog/log"
)

func (s *Service) GetCertificateByID(ctx context.Context, id string) (*domain.Certificate, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	var out *domain.Certificate
	err := s.evaluate(ctx, func(stub ledger.Stub) error {
		cert, err := readCertificate(stub, id)
		out = cert
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CertificateExists checks for the primary record without decoding it.
func (s *Service) CertificateExists(ctx context.Context, id string) (bool, error) {
	if err := validateID(id); err != nil {
		return false, err
	}
	var exists bool
	err := s.evaluate(ctx, func(stub ledger.Stub) error {
		raw, err := stub.GetState(id)
		exists = len(raw) > 0
		return err
	})
	return exists, err
}

func (s *Service) GetCertificatesByOwner(ctx context.Context, owner string) ([]*domain.Certificate, error) {
	return s.queryIndex(ctx, DimensionOwner, owner)
}

func (s *Service) GetCertificatesByAuthStatus(ctx context.Context, authStatus string) ([]*domain.Certificate, error) {
	status, err := domain.ParseAuthStatus(authStatus)
	if err != nil {
		return nil, err
	}
	return s.queryIndex(ctx, DimensionAuthStatus, string(status))
}

func (s *Service) GetCertificatesByLifecycleStatus(ctx context.Context, lifecycleStatus string) ([]*domain.Certificate, error) {
	status, err := domain.ParseLifecycleStatus(lifecycleStatus)
	if err != nil {
		return nil, err
	}
	return s.queryIndex(ctx, DimensionLifecycleStatus, string(status))
}

func (s *Service) GetCertificatesByProject(ctx context.Context, projectID string) ([]*domain.Certificate, error) {
	return s.queryIndex(ctx, DimensionProject, projectID)
}

func (s *Service) GetCertificatesByRegistry(ctx context.Context, registry string) ([]*domain.Certificate, error) {
	return s.queryIndex(ctx, DimensionRegistry, registry)
}

func (s *Service) GetCertificatesByVintage(ctx context.Context, vintage string) ([]*domain.Certificate, error) {
	return s.queryIndex(ctx, DimensionVintage, vintage)
}

// GetCertificatesByFileHash finds certificates uploaded from the same
// document. fileHash is not indexed, so this is a rich query.
func (s *Service) GetCertificatesByFileHash(ctx context.Context, fileHash string) ([]*domain.Certificate, error) {
	if fileHash == "" {
		return nil, domain.New(domain.KindInvalidArgument, "fileHash is required")
	}
	out := []*domain.Certificate{}
	err := s.evaluate(ctx, func(stub ledger.Stub) error {
		kvs, err := stub.GetQueryResult(map[string]string{
			"docType":  domain.DocTypeCarbonCredit,
			"fileHash": fileHash,
		})
		if err != nil {
			return err
		}
		for _, kv := range kvs {
			var cert domain.Certificate
			if err := json.Unmarshal(kv.Value, &cert); err != nil {
				return domain.Wrap(domain.KindInternal, err, "decode certificate "+kv.Key)
			}
			out = append(out, &cert)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetMarketplaceListings returns certificates that currently carry a listing.
func (s *Service) GetMarketplaceListings(ctx context.Context) ([]*domain.Certificate, error) {
	return s.queryIndex(ctx, DimensionMarketplace, marketplaceListed)
}

// GetAllCertificates scans the primary keyspace, skipping index markers and
// records that are not certificates.
func (s *Service) GetAllCertificates(ctx context.Context) ([]*domain.Certificate, error) {
	out := []*domain.Certificate{}
	err := s.evaluate(ctx, func(stub ledger.Stub) error {
		kvs, err := stub.GetStateByRange("", "")
		if err != nil {
			return err
		}
		for _, kv := range kvs {
			if ledger.IsCompositeKey(kv.Key) || len(kv.Value) == 0 {
				continue
			}
			var cert domain.Certificate
			if err := json.Unmarshal(kv.Value, &cert); err != nil || cert.DocType != domain.DocTypeCarbonCredit {
				continue
			}
			out = append(out, &cert)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// queryIndex dereferences every marker under (dim, value) and keeps only
// records that still match it.
func (s *Service) queryIndex(ctx context.Context, dim Dimension, value string) ([]*domain.Certificate, error) {
	if err := ledger.ValidateKeyComponent(value); err != nil {
		return nil, domain.Wrap(domain.KindInvalidArgument, err, "invalid "+string(dim))
	}
	out := []*domain.Certificate{}
	err := s.evaluate(ctx, func(stub ledger.Stub) error {
		ids, err := scanIndex(stub, dim, value)
		if err != nil {
			return err
		}
		for _, id := range ids {
			cert, err := readCertificate(stub, id)
			if errors.Is(err, domain.ErrNotFound) {
				log.Warn().Str("dimension", string(dim)).Str("id", id).Msg("Index marker without certificate")
				continue
			}
			if err != nil {
				return err
			}
			if current, ok := indexValue(cert, dim); !ok || current != value {
				log.Warn().Str("dimension", string(dim)).Str("id", id).Msg("Stale index marker")
				continue
			}
			out = append(out, cert)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

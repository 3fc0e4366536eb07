package certificates

import (
	"context"
	"encoding/json"
	"fmt"

	"greencredits-ledger/internal/domain"
	"greencredits-ledger/internal/ledger"
)

// GetCertificateHistory returns every committed write to id, oldest first.
func (s *Service) GetCertificateHistory(ctx context.Context, id string) ([]domain.HistoryEntry, error) {
	mods, err := s.history(ctx, id)
	if err != nil {
		return nil, err
	}
	entries := make([]domain.HistoryEntry, 0, len(mods))
	for _, m := range mods {
		entry := domain.HistoryEntry{
			TxID:      m.TxID,
			Timestamp: m.Timestamp,
			IsDelete:  m.IsDelete,
			Hash:      m.Hash,
		}
		if !m.IsDelete && len(m.Value) > 0 {
			var cert domain.Certificate
			if err := json.Unmarshal(m.Value, &cert); err != nil {
				return nil, domain.Wrap(domain.KindInternal, err, fmt.Sprintf("decode history of %s at %s", id, m.TxID))
			}
			entry.Data = &cert
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// VerifyCertificateHistory recomputes the hash chain over id's history.
func (s *Service) VerifyCertificateHistory(ctx context.Context, id string) (*domain.HistoryVerification, error) {
	mods, err := s.history(ctx, id)
	if err != nil {
		return nil, err
	}
	out := &domain.HistoryVerification{ID: id, Entries: len(mods), Intact: true}
	if broken := ledger.VerifyChain(mods); broken >= 0 {
		out.Intact = false
		out.BrokenAt = &broken
	}
	return out, nil
}

func (s *Service) history(ctx context.Context, id string) ([]ledger.KeyModification, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	var mods []ledger.KeyModification
	err := s.evaluate(ctx, func(stub ledger.Stub) error {
		var err error
		mods, err = stub.GetHistoryForKey(id)
		if err != nil {
			return err
		}
		if len(mods) == 0 {
			return domain.Newf(domain.KindNotFound, "Certificate %s does not exist", id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return mods, nil
}

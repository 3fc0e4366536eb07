package certificates

import (
	"fmt"

	"greencredits-ledger/internal/domain"
	"greencredits-ledger/internal/ledger"
)

// Dimension names a secondary index over certificates.
type Dimension string

const (
	DimensionOwner           Dimension = "owner"
	DimensionAuthStatus      Dimension = "authStatus"
	DimensionLifecycleStatus Dimension = "lifecycleStatus"
	DimensionProject         Dimension = "project"
	DimensionRegistry        Dimension = "registry"
	DimensionVintage         Dimension = "vintage"
	DimensionMarketplace     Dimension = "marketplace"
)

// marketplaceListed is the only value indexed under DimensionMarketplace.
const marketplaceListed = "listed"

var dimensions = []Dimension{
	DimensionOwner,
	DimensionAuthStatus,
	DimensionLifecycleStatus,
	DimensionProject,
	DimensionRegistry,
	DimensionVintage,
	DimensionMarketplace,
}

func (d Dimension) IsValid() bool {
	for _, candidate := range dimensions {
		if candidate == d {
			return true
		}
	}
	return false
}

// IndexKey is one marker entry: (dimension, value) -> certificate id.
type IndexKey struct {
	Dimension Dimension
	Value     string
	ID        string
}

func (k IndexKey) Encode() (string, error) {
	key, err := ledger.CreateCompositeKey(string(k.Dimension), []string{k.Value, k.ID})
	if err != nil {
		return "", domain.Wrap(domain.KindInvalidArgument, err, fmt.Sprintf("index %s", k.Dimension))
	}
	return key, nil
}

// DecodeIndexKey parses a marker key written by Encode.
func DecodeIndexKey(key string) (IndexKey, error) {
	objectType, attrs, err := ledger.SplitCompositeKey(key)
	if err != nil {
		return IndexKey{}, err
	}
	dim := Dimension(objectType)
	if !dim.IsValid() || len(attrs) != 2 {
		return IndexKey{}, fmt.Errorf("%w: %q is not a certificate index key", ledger.ErrInvalidKeyComponent, key)
	}
	return IndexKey{Dimension: dim, Value: attrs[0], ID: attrs[1]}, nil
}

// indexValue returns the value cert is indexed under for dim.
func indexValue(cert *domain.Certificate, dim Dimension) (string, bool) {
	switch dim {
	case DimensionOwner:
		return cert.Owner, true
	case DimensionAuthStatus:
		return string(cert.AuthStatus), true
	case DimensionLifecycleStatus:
		return string(cert.LifecycleStatus), true
	case DimensionProject:
		return cert.ProjectID, true
	case DimensionRegistry:
		return cert.Registry, true
	case DimensionVintage:
		return cert.Vintage, true
	case DimensionMarketplace:
		if cert.IsListed() {
			return marketplaceListed, true
		}
	}
	return "", false
}

func indexKeysFor(cert *domain.Certificate) []IndexKey {
	keys := make([]IndexKey, 0, len(dimensions))
	for _, dim := range dimensions {
		if value, ok := indexValue(cert, dim); ok {
			keys = append(keys, IndexKey{Dimension: dim, Value: value, ID: cert.ID})
		}
	}
	return keys
}

// createIndexEntries writes one empty marker per dimension cert participates in.
func createIndexEntries(stub ledger.Stub, cert *domain.Certificate) error {
	for _, k := range indexKeysFor(cert) {
		key, err := k.Encode()
		if err != nil {
			return err
		}
		if err := stub.PutState(key, []byte{}); err != nil {
			return err
		}
	}
	return nil
}

// deleteIndexEntries removes the markers of cert. It must be given the
// record as read before any mutation.
func deleteIndexEntries(stub ledger.Stub, cert *domain.Certificate) error {
	for _, k := range indexKeysFor(cert) {
		key, err := k.Encode()
		if err != nil {
			return err
		}
		if err := stub.DelState(key); err != nil {
			return err
		}
	}
	return nil
}

// scanIndex returns the ids of markers under (dim, value) in key order.
func scanIndex(stub ledger.Stub, dim Dimension, value string) ([]string, error) {
	kvs, err := stub.GetStateByPartialCompositeKey(string(dim), []string{value})
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(kvs))
	for _, kv := range kvs {
		k, err := DecodeIndexKey(kv.Key)
		if err != nil || k.Value != value {
			continue
		}
		ids = append(ids, k.ID)
	}
	return ids, nil
}

package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DocTypeCarbonCredit tags every primary certificate record.
const DocTypeCarbonCredit = "carbonCredit"

// AuthStatus is the verification outcome of a certificate.
type AuthStatus string

const (
	AuthStatusPending         AuthStatus = "pending"
	AuthStatusAuthenticated   AuthStatus = "authenticated"
	AuthStatusUnauthenticated AuthStatus = "unauthenticated"
)

var validAuthStatuses = []AuthStatus{
	AuthStatusPending,
	AuthStatusAuthenticated,
	AuthStatusUnauthenticated,
}

func (s AuthStatus) IsValid() bool {
	for _, candidate := range validAuthStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseAuthStatus converts raw input into AuthStatus.
func ParseAuthStatus(value string) (AuthStatus, error) {
	for _, candidate := range validAuthStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", Newf(KindInvalidArgument, "invalid authStatus %q: must be one of pending, authenticated, unauthenticated", value)
}

// LifecycleStatus tracks whether credits are still in circulation.
type LifecycleStatus string

const (
	LifecycleStatusActive  LifecycleStatus = "active"
	LifecycleStatusRetired LifecycleStatus = "retired"
)

var validLifecycleStatuses = []LifecycleStatus{
	LifecycleStatusActive,
	LifecycleStatusRetired,
}

func (s LifecycleStatus) IsValid() bool {
	for _, candidate := range validLifecycleStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseLifecycleStatus converts raw input into LifecycleStatus.
func ParseLifecycleStatus(value string) (LifecycleStatus, error) {
	for _, candidate := range validLifecycleStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", Newf(KindInvalidArgument, "invalid lifecycleStatus %q: must be one of active, retired", value)
}

// Marketplace is present on a certificate only while it is listed.
type Marketplace struct {
	PricePerCredit decimal.Decimal `json:"pricePerCredit"`
	TotalValue     decimal.Decimal `json:"totalValue"`
	Description    string          `json:"description"`
	ListedAt       time.Time       `json:"listedAt"`
}

// Certificate is the primary ledger record for a batch of carbon credits.
type Certificate struct {
	DocType         string          `json:"docType"`
	ID              string          `json:"id"`
	ProjectID       string          `json:"projectID"`
	ProjectName     string          `json:"projectName"`
	Vintage         string          `json:"vintage"`
	Amount          decimal.Decimal `json:"amount"`
	IssuanceDate    string          `json:"issuanceDate"`
	Registry        string          `json:"registry"`
	Category        string          `json:"category"`
	IssuedTo        string          `json:"issuedTo"`
	Owner           string          `json:"owner"`
	CarbonmarkID    string          `json:"carbonmarkId"`
	CarbonmarkName  string          `json:"carbonmarkName"`
	FileHash        string          `json:"fileHash"`
	AuthStatus      AuthStatus      `json:"authStatus"`
	LifecycleStatus LifecycleStatus `json:"lifecycleStatus"`
	Marketplace     *Marketplace    `json:"marketplace,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// Clone returns a copy that shares no mutable state with c.
func (c *Certificate) Clone() *Certificate {
	out := *c
	if c.Marketplace != nil {
		m := *c.Marketplace
		out.Marketplace = &m
	}
	return &out
}

// IsListed reports whether the certificate carries a marketplace listing.
func (c *Certificate) IsListed() bool {
	return c.Marketplace != nil
}

// HistoryEntry is one committed write to a certificate key. Data is nil for deletions.
type HistoryEntry struct {
	TxID      string       `json:"txId"`
	Timestamp time.Time    `json:"timestamp"`
	IsDelete  bool         `json:"isDelete"`
	Data      *Certificate `json:"data"`
	Hash      string       `json:"hash"`
}

// HistoryVerification reports whether a certificate's hash chain is intact.
type HistoryVerification struct {
	ID       string `json:"id"`
	Entries  int    `json:"entries"`
	Intact   bool   `json:"intact"`
	BrokenAt *int   `json:"brokenAt,omitempty"`
}

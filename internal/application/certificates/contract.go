package certificates

import (
	"context"
	"sort"

	"greencredits-ledger/internal/domain"

	"github.com/shopspring/decimal"
)

// Function is one named contract operation taking positional string arguments.
type Function struct {
	Name     string
	Mutating bool
	MinArgs  int
	invoke   func(ctx context.Context, s *Service, args []string) (any, error)
}

var functions = map[string]Function{}

func register(name string, mutating bool, minArgs int, invoke func(ctx context.Context, s *Service, args []string) (any, error)) {
	functions[name] = Function{Name: name, Mutating: mutating, MinArgs: minArgs, invoke: invoke}
}

func init() {
	register("InitLedger", true, 0, func(ctx context.Context, s *Service, _ []string) (any, error) {
		return nil, s.InitLedger(ctx)
	})
	// Arguments past authStatus (callers append createdAt/updatedAt) are ignored.
	register("CreateCertificate", true, 13, func(ctx context.Context, s *Service, args []string) (any, error) {
		amount, err := parseDecimal("amount", args[4])
		if err != nil {
			return nil, err
		}
		in := CreateInput{
			ID:             args[0],
			ProjectID:      args[1],
			ProjectName:    args[2],
			Vintage:        args[3],
			Amount:         amount,
			IssuanceDate:   args[5],
			Registry:       args[6],
			Category:       args[7],
			IssuedTo:       args[8],
			Owner:          args[9],
			CarbonmarkID:   args[10],
			CarbonmarkName: args[11],
			FileHash:       args[12],
		}
		if len(args) > 13 {
			in.AuthStatus = args[13]
		}
		return s.CreateCertificate(ctx, in)
	})
	register("UpdateAuthStatus", true, 2, func(ctx context.Context, s *Service, args []string) (any, error) {
		return s.UpdateAuthStatus(ctx, args[0], args[1])
	})
	register("RetireCertificate", true, 1, func(ctx context.Context, s *Service, args []string) (any, error) {
		return s.RetireCertificate(ctx, args[0])
	})
	register("ListCertificateOnMarketplace", true, 2, func(ctx context.Context, s *Service, args []string) (any, error) {
		price, err := parseDecimal("pricePerCredit", args[1])
		if err != nil {
			return nil, err
		}
		description := ""
		if len(args) > 2 {
			description = args[2]
		}
		return s.ListCertificateOnMarketplace(ctx, args[0], price, description)
	})
	register("UnlistCertificateFromMarketplace", true, 1, func(ctx context.Context, s *Service, args []string) (any, error) {
		return s.UnlistCertificateFromMarketplace(ctx, args[0])
	})

	register("GetCertificateById", false, 1, func(ctx context.Context, s *Service, args []string) (any, error) {
		return s.GetCertificateByID(ctx, args[0])
	})
	register("CertificateExists", false, 1, func(ctx context.Context, s *Service, args []string) (any, error) {
		return s.CertificateExists(ctx, args[0])
	})
	register("GetCertificatesByOwner", false, 1, func(ctx context.Context, s *Service, args []string) (any, error) {
		return s.GetCertificatesByOwner(ctx, args[0])
	})
	register("GetCertificatesByAuthStatus", false, 1, func(ctx context.Context, s *Service, args []string) (any, error) {
		return s.GetCertificatesByAuthStatus(ctx, args[0])
	})
	register("GetCertificatesByProject", false, 1, func(ctx context.Context, s *Service, args []string) (any, error) {
		return s.GetCertificatesByProject(ctx, args[0])
	})
	register("GetCertificatesByRegistry", false, 1, func(ctx context.Context, s *Service, args []string) (any, error) {
		return s.GetCertificatesByRegistry(ctx, args[0])
	})
	register("GetCertificatesByVintage", false, 1, func(ctx context.Context, s *Service, args []string) (any, error) {
		return s.GetCertificatesByVintage(ctx, args[0])
	})
	register("GetCertificatesByLifecycleStatus", false, 1, func(ctx context.Context, s *Service, args []string) (any, error) {
		return s.GetCertificatesByLifecycleStatus(ctx, args[0])
	})
	register("GetCertificatesByFileHash", false, 1, func(ctx context.Context, s *Service, args []string) (any, error) {
		return s.GetCertificatesByFileHash(ctx, args[0])
	})
	register("GetMarketplaceListings", false, 0, func(ctx context.Context, s *Service, _ []string) (any, error) {
		return s.GetMarketplaceListings(ctx)
	})
	register("GetAllCertificates", false, 0, func(ctx context.Context, s *Service, _ []string) (any, error) {
		return s.GetAllCertificates(ctx)
	})
	register("GetCertificateHistory", false, 1, func(ctx context.Context, s *Service, args []string) (any, error) {
		return s.GetCertificateHistory(ctx, args[0])
	})
	register("VerifyCertificateHistory", false, 1, func(ctx context.Context, s *Service, args []string) (any, error) {
		return s.VerifyCertificateHistory(ctx, args[0])
	})
}

// Lookup returns the named function.
func Lookup(name string) (Function, error) {
	fn, ok := functions[name]
	if !ok {
		return Function{}, domain.Newf(domain.KindInvalidArgument, "unknown function %q", name)
	}
	return fn, nil
}

// FunctionNames lists every registered function, sorted.
func FunctionNames() []string {
	names := make([]string, 0, len(functions))
	for name := range functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Invoke runs the named function with positional arguments.
func (s *Service) Invoke(ctx context.Context, name string, args []string) (any, error) {
	fn, err := Lookup(name)
	if err != nil {
		return nil, err
	}
	if len(args) < fn.MinArgs {
		return nil, domain.Newf(domain.KindInvalidArgument, "%s expects at least %d arguments, got %d", name, fn.MinArgs, len(args))
	}
	return fn.invoke(ctx, s, args)
}

func parseDecimal(field, raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, domain.Wrap(domain.KindInvalidArgument, err, field+" must be a decimal number")
	}
	return d, nil
}

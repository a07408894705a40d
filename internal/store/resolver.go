package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// ResolutionPolicy decides what happens to a customer whose company name
// matches no stored company.
type ResolutionPolicy string

const (
	// ResolveNull inserts the customer with a NULL company_id.
	ResolveNull ResolutionPolicy = "null"
	// ResolveSkip leaves the customer out of the load.
	ResolveSkip ResolutionPolicy = "skip"
)

// ParseResolutionPolicy validates a policy name.
func ParseResolutionPolicy(s string) (ResolutionPolicy, error) {
	switch p := ResolutionPolicy(s); p {
	case ResolveNull, ResolveSkip:
		return p, nil
	default:
		return "", fmt.Errorf("unknown company resolution policy %q (want %q or %q)", s, ResolveNull, ResolveSkip)
	}
}

// Resolution is the outcome of resolving one company name.
type Resolution struct {
	CompanyID uint
	// Matches is 0, 1, or 2 (meaning two or more).
	Matches int
}

func (r Resolution) Found() bool     { return r.Matches > 0 }
func (r Resolution) Ambiguous() bool { return r.Matches > 1 }

// Resolver maps company names to surrogate ids of stored companies.
// When several companies share a name the lowest company_id wins.
type Resolver struct {
	db    *gorm.DB
	cache map[string]Resolution
}

// NewResolver creates a resolver reading through db, usually the
// transaction that is inserting customers.
func NewResolver(db *gorm.DB) *Resolver {
	return &Resolver{db: db, cache: make(map[string]Resolution)}
}

// Resolve looks up the company id for name. Results are memoized for the
// lifetime of the resolver.
func (r *Resolver) Resolve(ctx context.Context, name string) (Resolution, error) {
	if res, ok := r.cache[name]; ok {
		return res, nil
	}

	var ids []uint
	err := r.db.WithContext(ctx).
		Model(&companyRow{}).
		Where("name = ?", name).
		Order("company_id ASC").
		Limit(2).
		Pluck("company_id", &ids).Error
	if err != nil {
		return Resolution{}, fmt.Errorf("resolve company %q: %w", name, err)
	}

	res := Resolution{Matches: len(ids)}
	if len(ids) > 0 {
		res.CompanyID = ids[0]
	}
	r.cache[name] = res
	return res, nil
}

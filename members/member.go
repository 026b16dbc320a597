// Package members exposes senators and representatives as entities whose
// disclosures can be queried by year.
package members

import (
	"context"
	"fmt"

	"github.com/TheWillMundy/CapitolGains/models"
)

// Searcher is the chamber engine a member is looked up through.
type Searcher interface {
	Search(ctx context.Context, id models.EntityIdentity, year int) (models.CategorizedResult, error)
	FetchDocument(ctx context.Context, d models.Disclosure) (string, error)
}

// Member is a member of Congress identified for one chamber.
type Member struct {
	Identity models.EntityIdentity
}

// NewSenator identifies a senator. firstName and state are optional and
// narrow the search.
func NewSenator(lastName, firstName, state string) *Member {
	return &Member{Identity: models.EntityIdentity{
		Chamber:   models.Senate,
		LastName:  lastName,
		FirstName: firstName,
		State:     state,
	}}
}

// NewRepresentative identifies a House member. district is optional.
func NewRepresentative(lastName, firstName, state, district string) *Member {
	return &Member{Identity: models.EntityIdentity{
		Chamber:   models.House,
		LastName:  lastName,
		FirstName: firstName,
		State:     state,
		District:  district,
	}}
}

func (m *Member) String() string {
	title := "Rep."
	if m.Identity.Chamber == models.Senate {
		title = "Sen."
	}
	return title + " " + m.Identity.String()
}

// Disclosures returns every categorized disclosure filed in year.
func (m *Member) Disclosures(ctx context.Context, s Searcher, year int) (models.CategorizedResult, error) {
	return s.Search(ctx, m.Identity, year)
}

// RecentTrades returns the periodic transaction reports filed in year.
func (m *Member) RecentTrades(ctx context.Context, s Searcher, year int) ([]models.Disclosure, error) {
	r, err := m.Disclosures(ctx, s, year)
	if err != nil {
		return nil, err
	}
	return r.Trades(), nil
}

// AnnualDisclosure finds the original annual report filed in year and
// downloads it. Amendments are not returned. It fails with
// models.ErrNoResults when no annual report was filed.
func (m *Member) AnnualDisclosure(ctx context.Context, s Searcher, year int) (models.Disclosure, string, error) {
	r, err := m.Disclosures(ctx, s, year)
	if err != nil {
		return models.Disclosure{}, "", err
	}
	annual := r[models.CategoryAnnual]
	if len(annual) == 0 {
		return models.Disclosure{}, "", fmt.Errorf("%w: no annual disclosure for %s in %d", models.ErrNoResults, m, year)
	}
	d := annual[0]
	path, err := s.FetchDocument(ctx, d)
	if err != nil {
		return d, "", fmt.Errorf("annual disclosure for %s: %w", m, err)
	}
	return d, path, nil
}

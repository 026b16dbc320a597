package members

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/TheWillMundy/CapitolGains/models"
)

type stubSearcher struct {
	result  models.CategorizedResult
	err     error
	ids     []models.EntityIdentity
	fetched []string
}

func (s *stubSearcher) Search(_ context.Context, id models.EntityIdentity, year int) (models.CategorizedResult, error) {
	s.ids = append(s.ids, id)
	return s.result, s.err
}

func (s *stubSearcher) FetchDocument(_ context.Context, d models.Disclosure) (string, error) {
	s.fetched = append(s.fetched, d.DocumentURL)
	return "/tmp/" + d.DocumentURL, nil
}

func senateResult() models.CategorizedResult {
	r := models.NewCategorizedResult(models.Senate)
	r[models.CategoryTrade] = []models.Disclosure{{Category: models.CategoryTrade, DocumentURL: "ptr-1"}}
	r[models.CategoryAnnual] = []models.Disclosure{{Category: models.CategoryAnnual, DocumentURL: "annual-1"}}
	r[models.CategoryAmendment] = []models.Disclosure{{Category: models.CategoryAmendment, DocumentURL: "annual-1-amended"}}
	return r
}

func TestConstructorsSetChamber(t *testing.T) {
	s := NewSenator("Warren", "Elizabeth", "MA")
	require.Equal(t, models.Senate, s.Identity.Chamber)
	require.Equal(t, "Sen. Elizabeth Warren (MA)", s.String())

	r := NewRepresentative("Pelosi", "", "CA", "11")
	require.Equal(t, models.House, r.Identity.Chamber)
	require.Equal(t, "Rep. Pelosi (CA-11)", r.String())
}

func TestRecentTrades(t *testing.T) {
	s := &stubSearcher{result: senateResult()}
	trades, err := NewSenator("Warren", "", "MA").RecentTrades(context.Background(), s, 2023)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	require.Equal(t, "ptr-1", trades[0].DocumentURL)
	require.Equal(t, models.Senate, s.ids[0].Chamber)
}

func TestAnnualDisclosurePrefersOriginal(t *testing.T) {
	s := &stubSearcher{result: senateResult()}
	d, path, err := NewSenator("Warren", "", "MA").AnnualDisclosure(context.Background(), s, 2023)
	require.NoError(t, err)
	require.Equal(t, "annual-1", d.DocumentURL)
	require.Equal(t, "/tmp/annual-1", path)
	require.Equal(t, []string{"annual-1"}, s.fetched)
}

func TestAnnualDisclosureMissing(t *testing.T) {
	s := &stubSearcher{result: models.NewCategorizedResult(models.House)}
	_, _, err := NewRepresentative("Pelosi", "", "CA", "").AnnualDisclosure(context.Background(), s, 2023)
	require.True(t, errors.Is(err, models.ErrNoResults))
	require.Empty(t, s.fetched)
}

func TestDisclosuresPropagatesErrors(t *testing.T) {
	s := &stubSearcher{err: models.ErrInvalidInput}
	_, err := NewSenator("Warren", "", "XX").Disclosures(context.Background(), s, 2023)
	require.ErrorIs(t, err, models.ErrInvalidInput)
}

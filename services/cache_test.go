package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/TheWillMundy/CapitolGains/models"
)

func TestCacheFetchesOnce(t *testing.T) {
	c := NewDisclosureCache(newTestLogger())
	calls := 0
	fetch := func(context.Context) (models.CategorizedResult, error) {
		calls++
		r := models.NewCategorizedResult(models.Senate)
		r[models.CategoryTrade] = append(r[models.CategoryTrade], models.Disclosure{DocumentURL: "https://efd/ptr/1/"})
		return r, nil
	}

	first, err := c.GetOrFetch(context.Background(), warren, 2023, fetch)
	require.NoError(t, err)
	second, err := c.GetOrFetch(context.Background(), warren, 2023, fetch)
	require.NoError(t, err)

	require.Equal(t, 1, calls)
	require.Equal(t, first, second)
	require.Equal(t, 1, c.Len())
}

func TestCacheKeyNormalizesIdentity(t *testing.T) {
	c := NewDisclosureCache(newTestLogger())
	calls := 0
	fetch := func(context.Context) (models.CategorizedResult, error) {
		calls++
		return models.NewCategorizedResult(models.Senate), nil
	}

	loose := models.EntityIdentity{Chamber: models.Senate, LastName: " warren ", FirstName: "elizabeth", State: "ma"}
	_, _ = c.GetOrFetch(context.Background(), warren, 2023, fetch)
	_, _ = c.GetOrFetch(context.Background(), loose, 2023, fetch)
	require.Equal(t, 1, calls)

	_, _ = c.GetOrFetch(context.Background(), warren, 2022, fetch)
	require.Equal(t, 2, calls, "years are cached separately")
}

func TestCacheDoesNotStoreFailures(t *testing.T) {
	c := NewDisclosureCache(newTestLogger())
	boom := errors.New("portal down")
	calls := 0
	fetch := func(context.Context) (models.CategorizedResult, error) {
		calls++
		if calls == 1 {
			return nil, boom
		}
		return models.NewCategorizedResult(models.Senate), nil
	}

	_, err := c.GetOrFetch(context.Background(), warren, 2023, fetch)
	require.ErrorIs(t, err, boom)
	require.Equal(t, 0, c.Len())

	_, err = c.GetOrFetch(context.Background(), warren, 2023, fetch)
	require.NoError(t, err)
	require.Equal(t, 2, calls)
}

func TestCacheReturnsCopies(t *testing.T) {
	c := NewDisclosureCache(newTestLogger())
	fetch := func(context.Context) (models.CategorizedResult, error) {
		return models.NewCategorizedResult(models.Senate), nil
	}

	r, _ := c.GetOrFetch(context.Background(), warren, 2023, fetch)
	r[models.CategoryTrade] = append(r[models.CategoryTrade], models.Disclosure{DocumentURL: "x"})

	again, _ := c.GetOrFetch(context.Background(), warren, 2023, fetch)
	require.Empty(t, again.Trades())
}

package server_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courant-live/courant/internal/api"
)

func TestProductCRUD(t *testing.T) {
	_, srv := newBackend(t)
	c := newAPIClient(t, srv)
	login(t, c, "alice", "wonderland")
	ctx := context.Background()

	list, err := c.Products(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	created, err := c.CreateProduct(ctx, api.Product{Name: "clavier", Price: 49.9, Quantity: 3})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, "clavier", created.Name)

	created.Price = 39.9
	updated, err := c.UpdateProduct(ctx, *created)
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, 39.9, updated.Price)

	list, err = c.Products(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 39.9, list[0].Price)

	require.NoError(t, c.DeleteProduct(ctx, created.ID))
	list, err = c.Products(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	err = c.DeleteProduct(ctx, "missing")
	assert.Error(t, err)
}

func TestUpdateUnknownProduct(t *testing.T) {
	_, srv := newBackend(t)
	c := newAPIClient(t, srv)
	login(t, c, "alice", "wonderland")

	_, err := c.UpdateProduct(context.Background(), api.Product{ID: "nope", Name: "x"})
	require.Error(t, err)
	assert.False(t, api.IsUnauthorized(err))
}

func TestWeatherIsStableUntilRefreshed(t *testing.T) {
	_, srv := newBackend(t)
	c := newAPIClient(t, srv)
	login(t, c, "alice", "wonderland")
	ctx := context.Background()

	first, err := c.Weather(ctx, "Rabat")
	require.NoError(t, err)
	assert.Equal(t, "Rabat", first.City)

	// Repeat reads serve the cached entry.
	second, err := c.Weather(ctx, "Rabat")
	require.NoError(t, err)
	assert.Equal(t, first.Timestamp, second.Timestamp)

	refreshed, err := c.RefreshWeather(ctx, "Rabat")
	require.NoError(t, err)
	assert.Equal(t, "Rabat", refreshed.City)
	assert.False(t, refreshed.Timestamp.Before(first.Timestamp))
}

func TestCurrencyConversion(t *testing.T) {
	_, srv := newBackend(t)
	c := newAPIClient(t, srv)
	login(t, c, "alice", "wonderland")
	ctx := context.Background()

	all, err := c.Currencies(ctx)
	require.NoError(t, err)
	codes := make(map[string]bool)
	for _, cur := range all {
		codes[cur.Code] = true
	}
	assert.True(t, codes["USD"])
	assert.True(t, codes["EUR"])
	assert.True(t, codes["MAD"])

	conv, err := c.Convert(ctx, "USD", "MAD", 10)
	require.NoError(t, err)
	assert.Equal(t, "USD", conv.From)
	assert.Equal(t, "MAD", conv.To)
	assert.InDelta(t, 99.5, conv.Result, 0.001)

	// USD round-trips to itself.
	conv, err = c.Convert(ctx, "USD", "USD", 42)
	require.NoError(t, err)
	assert.Equal(t, 42.0, conv.Result)

	_, err = c.Convert(ctx, "USD", "XXX", 1)
	assert.Error(t, err)
}

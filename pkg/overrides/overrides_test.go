package overrides

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metasync/seo-gateway/pkg/types"
)

func TestStaticLookup(t *testing.T) {
	p := NewStatic(map[string]types.Overrides{
		"https://Example.com/About/": {
			Title:  "About us",
			Locked: map[string]struct{}{" OG:Title ": {}},
		},
	})

	o, err := p.Lookup(context.Background(), "https://example.com/about")
	require.NoError(t, err)
	assert.True(t, o.OutranksTitle())
	assert.True(t, o.OutranksMeta("og:title"))
	assert.False(t, o.OutranksMeta("description"))

	o, err = p.Lookup(context.Background(), "https://example.com/other")
	require.NoError(t, err)
	assert.False(t, o.OutranksTitle())
}

func TestNoneProvider(t *testing.T) {
	o, err := None.Lookup(context.Background(), "https://example.com/")
	require.NoError(t, err)
	assert.Equal(t, types.Overrides{}, o)
}

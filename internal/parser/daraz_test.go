package parser

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const darazListingHTML = `
<html><body>
	<div data-item-id="184920175">
		<a href="//www.daraz.com.np/products/bluetooth-speaker-i184920175.html">
			<div class="c16H9d">Portable Bluetooth Speaker</div>
		</a>
		<span class="c13VH6">Rs. 1,850</span>
		<img src="https://static.daraz.com.np/speaker.jpg" alt="Portable Bluetooth Speaker"/>
	</div>
	<div data-item-id="184920176">
		<a href="/products/phone-case-i184920176.html">
			<div class="c16H9d">Silicone Phone Case</div>
		</a>
	</div>
</body></html>`

func TestDarazExtractFragments(t *testing.T) {
	p := NewDaraz("https://www.daraz.com.np")

	fragments, err := p.ExtractFragments(darazListingHTML)
	require.NoError(t, err)
	assert.Len(t, fragments, 2)
}

func TestDarazNormalize(t *testing.T) {
	p := NewDaraz("https://www.daraz.com.np")
	scrapedAt := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)

	fragments, err := p.ExtractFragments(darazListingHTML)
	require.NoError(t, err)
	require.Len(t, fragments, 2)

	t.Run("protocol relative link", func(t *testing.T) {
		product, err := p.Normalize(fragments[0], 1, scrapedAt)
		require.NoError(t, err)

		assert.Equal(t, "184920175", product.ID)
		assert.Equal(t, "Portable Bluetooth Speaker", product.Title)
		assert.Equal(t, "https://www.daraz.com.np/products/bluetooth-speaker-i184920175.html", product.URL)
		require.NotNil(t, product.Price)
		assert.Equal(t, "1850", product.Price.String())
	})

	t.Run("relative link and absent price", func(t *testing.T) {
		product, err := p.Normalize(fragments[1], 2, scrapedAt)
		require.NoError(t, err)

		assert.Equal(t, "184920176", product.ID)
		assert.Equal(t, "https://www.daraz.com.np/products/phone-case-i184920176.html", product.URL)
		assert.Nil(t, product.Price)
	})
}

func TestDarazNormalizeMissingID(t *testing.T) {
	p := NewDaraz("https://www.daraz.com.np")

	html := `<div class="Bm3ON"><div class="c16H9d">Item Without ID</div></div>`
	fragments, err := p.ExtractFragments(html)
	require.NoError(t, err)
	require.Len(t, fragments, 1)

	product, err := p.Normalize(fragments[0], 1, time.Now().UTC())
	assert.Nil(t, product)
	assert.True(t, errors.Is(err, ErrFragmentRejected))
}

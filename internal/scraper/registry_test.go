package scraper_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carbitrage/internal/scraper"
	_ "carbitrage/internal/sites/bilbasen"
	_ "carbitrage/internal/sites/gaspedaal"
	_ "carbitrage/internal/sites/generic"
	_ "carbitrage/internal/sites/leboncoin"
	_ "carbitrage/internal/sites/marktplaats"
)

func TestSelectParserByHostname(t *testing.T) {
	tests := []struct {
		url  string
		want scraper.Kind
	}{
		{"https://www.marktplaats.nl/l/auto-s/", scraper.KindMarktplaats},
		{"https://marktplaats.nl/l/auto-s/", scraper.KindMarktplaats},
		{"https://www.leboncoin.fr/recherche?category=2", scraper.KindLeboncoin},
		{"https://leboncoin.fr/recherche", scraper.KindLeboncoin},
		{"https://www.bilbasen.dk/brugt/bil", scraper.KindBilbasen},
		{"https://bilbasen.dk/brugt/bil", scraper.KindBilbasen},
		{"https://www.gaspedaal.nl/toyota/yaris", scraper.KindGaspedaal},
		{"https://GASPEDAAL.nl/toyota", scraper.KindGaspedaal},
		{"https://www.autoscout24.de/lst/toyota", scraper.KindGeneric},
		{"https://m.marktplaats.nl/l/auto-s/", scraper.KindGeneric},
		{"https://marktplaats.nl.evil.com/", scraper.KindGeneric},
		{"not a url", scraper.KindGeneric},
		{"", scraper.KindGeneric},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, scraper.SelectParserByHostname(tt.url))
		})
	}
}

func TestEveryKindIsRegistered(t *testing.T) {
	for _, k := range []scraper.Kind{scraper.KindMarktplaats, scraper.KindLeboncoin, scraper.KindBilbasen, scraper.KindGaspedaal, scraper.KindGeneric} {
		p, ok := scraper.Get(k)
		require.True(t, ok, k)
		assert.Equal(t, k, p.Kind())
	}
}

func TestContentNeverOverridesHostname(t *testing.T) {
	// a page that looks like marktplaats served from another host
	html := `<ul><li class="hz-Listing"><a href="/v/auto-s/x/m1-x">Toyota</a><span class="hz-Listing-price">€ 9.500,-</span></li></ul>`
	assert.Equal(t, scraper.KindGeneric, scraper.SelectParserByHostname("https://mirror.example.com/"))
	assert.NotPanics(t, func() { scraper.Parse(scraper.KindGeneric, html, "https://mirror.example.com/") })
}

func TestParseDropsListingsOnForeignHosts(t *testing.T) {
	html := `<ul>
<li class="hz-Listing"><a href="/v/auto-s/toyota/m1-yaris"><h3 class="hz-Listing-title">Toyota Yaris</h3></a><span class="hz-Listing-price">€ 9.500,-</span></li>
<li class="hz-Listing"><a href="https://www.dealer-redirect.example.com/v/auto-s/m2"><h3 class="hz-Listing-title">Toyota Aygo</h3></a><span class="hz-Listing-price">€ 7.500,-</span></li>
</ul>`
	res := scraper.Parse(scraper.KindMarktplaats, html, "https://www.marktplaats.nl/l/auto-s/")
	require.Len(t, res.Listings, 1)
	assert.Equal(t, "https://www.marktplaats.nl/v/auto-s/toyota/m1-yaris", res.Listings[0].URL)
	assert.Equal(t, 1, res.OffHost)
}

func TestParseKeepsOutboundLinksForAggregators(t *testing.T) {
	html := `<div class="occasion-item">
<a href="https://www.autotrader.nl/auto/toyota-yaris-1-5-hybrid-12345"><h2>Toyota Yaris 1.5 Hybrid</h2></a>
<span class="price">€ 17.945</span>
</div>`
	res := scraper.Parse(scraper.KindGaspedaal, html, "https://www.gaspedaal.nl/toyota/yaris")
	require.Len(t, res.Listings, 1)
	assert.Equal(t, "https://www.autotrader.nl/auto/toyota-yaris-1-5-hybrid-12345", res.Listings[0].URL)
	assert.Equal(t, 0, res.OffHost)
}

func TestGuardPanicsOnMismatch(t *testing.T) {
	defer func() {
		r := recover()
		require.NotNil(t, r)
		err, ok := r.(*scraper.HostMismatchError)
		require.True(t, ok)
		assert.True(t, errors.Is(err, scraper.ErrHostMismatch))
		assert.Equal(t, scraper.KindMarktplaats, err.Kind)
	}()
	scraper.Parse(scraper.KindMarktplaats, "<html></html>", "https://www.leboncoin.fr/recherche")
}

func TestCheckHost(t *testing.T) {
	assert.NoError(t, scraper.CheckHost(scraper.KindBilbasen, "https://www.bilbasen.dk/brugt/bil"))
	assert.ErrorIs(t, scraper.CheckHost(scraper.KindGeneric, "https://www.bilbasen.dk/brugt/bil"), scraper.ErrHostMismatch)
}

func TestSearchResultOutcome(t *testing.T) {
	assert.Equal(t, scraper.OutcomeOK, scraper.SearchResult{}.Outcome())
	assert.Equal(t, scraper.OutcomeBlocked, scraper.Blocked("x").Outcome())
	assert.Equal(t, scraper.OutcomeFailed, scraper.Failed("x").Outcome())
	assert.Equal(t, 1300.0, scraper.PriceEUR(scraper.Listing{Price: 10000, Currency: scraper.CurrencyDKK}))
	assert.Equal(t, 10000.0, scraper.PriceEUR(scraper.Listing{Price: 10000, Currency: scraper.CurrencyUnknown}))
}

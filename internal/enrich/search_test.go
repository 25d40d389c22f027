package enrich

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/datafixer/internal/model"
	"github.com/sells-group/datafixer/pkg/homepage"
	homepagemocks "github.com/sells-group/datafixer/pkg/homepage/mocks"
	"github.com/sells-group/datafixer/pkg/jina"
	jinamocks "github.com/sells-group/datafixer/pkg/jina/mocks"
)

func TestQueries(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"Acme GmbH official website", "Acme GmbH Berlin company info"},
		Queries(testRecord("company_name", "Acme GmbH", "city", "Berlin")))
	assert.Equal(t, []string{"Acme official website", "Acme company info"},
		Queries(testRecord("company_name", "Acme")))
	assert.Nil(t, Queries(testRecord("city", "Berlin")))
}

func TestSearchAdapter_CollectsSnippets(t *testing.T) {
	t.Parallel()

	search := jinamocks.NewMockClient(t)
	search.On("Search", mock.Anything, "Acme GmbH official website").Return(&jina.SearchResponse{
		Data: []jina.SearchResult{
			{Title: "Acme GmbH", URL: "https://acme.de/", Description: "Acme GmbH, Berlin"},
			{Title: "Acme on Wiki", URL: "https://wiki.example/acme", Content: strings.Repeat("x", 50)},
		},
	}, nil)
	search.On("Search", mock.Anything, "Acme GmbH Berlin company info").Return(&jina.SearchResponse{
		Data: []jina.SearchResult{
			{Title: "Dup", URL: "https://wiki.example/acme/", Description: "dup"},
			{Title: "Register", URL: "https://register.example/acme", Description: "HRB 12345"},
			{Title: "No text", URL: "https://empty.example"},
		},
	}, nil)

	pages := homepagemocks.NewMockFetcher(t)
	pages.On("Fetch", mock.Anything, "https://acme.de").Return(&homepage.Page{
		URL:   "https://acme.de",
		Title: "Acme GmbH | Home",
		Text:  strings.Repeat("Acme builds things. ", 200),
	}, nil)

	a := NewSearchAdapter(search, pages, 100)
	res, err := a.Enrich(context.Background(), Input{
		Record: testRecord("company_name", "Acme GmbH", "city", "Berlin", "website", "https://acme.de"),
	})
	require.NoError(t, err)

	assert.Empty(t, res.Changes)
	require.Len(t, res.Snippets, 3)
	assert.Equal(t, model.SourceOfficialWebsite, res.Snippets[0].Type)
	assert.Len(t, res.Snippets[0].Text, 100)
	assert.Equal(t, "https://wiki.example/acme", res.Snippets[1].URL)
	assert.Equal(t, model.SourceSearchResult, res.Snippets[1].Type)
	assert.Equal(t, "https://register.example/acme", res.Snippets[2].URL)
}

func TestSearchAdapter_HomepageFailureKeepsSearch(t *testing.T) {
	t.Parallel()

	search := jinamocks.NewMockClient(t)
	search.On("Search", mock.Anything, mock.Anything).Return(&jina.SearchResponse{
		Data: []jina.SearchResult{{Title: "Acme", URL: "https://acme.example", Description: "Acme"}},
	}, nil)
	pages := homepagemocks.NewMockFetcher(t)
	pages.On("Fetch", mock.Anything, "https://acme.de").Return(nil, errors.New("blocked"))

	res, err := NewSearchAdapter(search, pages, 0).Enrich(context.Background(), Input{
		Record: testRecord("company_name", "Acme", "website", "https://acme.de"),
	})
	require.NoError(t, err)
	require.Len(t, res.Snippets, 1)
	assert.Equal(t, "https://acme.example", res.Snippets[0].URL)
}

func TestSearchAdapter_AllFail(t *testing.T) {
	t.Parallel()

	search := jinamocks.NewMockClient(t)
	search.On("Search", mock.Anything, mock.Anything).Return(nil, errors.New("429"))

	_, err := NewSearchAdapter(search, nil, 0).Enrich(context.Background(), Input{
		Record: testRecord("company_name", "Acme"),
	})
	require.Error(t, err)
}

func TestSearchAdapter_NothingToLookUp(t *testing.T) {
	t.Parallel()

	res, err := NewSearchAdapter(jinamocks.NewMockClient(t), homepagemocks.NewMockFetcher(t), 0).
		Enrich(context.Background(), Input{Record: testRecord("city", "Berlin")})
	require.NoError(t, err)
	assert.True(t, res.Empty())
}

func TestSearchAdapter_LocalizesByCountry(t *testing.T) {
	t.Parallel()

	search := jinamocks.NewMockClient(t)
	search.On("Search", mock.Anything, "Acme official website", mock.Anything).Return(&jina.SearchResponse{
		Data: []jina.SearchResult{{Title: "Acme AG", URL: "https://acme.ch", Description: "Acme AG, Zurich"}},
	}, nil).Once()
	search.On("Search", mock.Anything, "Acme company info", mock.Anything).Return(&jina.SearchResponse{}, nil).Once()

	res, err := NewSearchAdapter(search, nil, 0).Enrich(context.Background(), Input{
		Record: testRecord("company_name", "Acme", "country", "CH"),
	})
	require.NoError(t, err)
	require.Len(t, res.Snippets, 1)
	assert.Equal(t, "https://acme.ch", res.Snippets[0].URL)
}

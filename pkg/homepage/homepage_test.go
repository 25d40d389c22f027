package homepage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/datafixer/internal/resilience"
	"github.com/sells-group/datafixer/pkg/jina"
	jinamocks "github.com/sells-group/datafixer/pkg/jina/mocks"
)

var fastRetry = WithPolicy(resilience.Policy{Attempts: 1, BaseDelay: time.Millisecond})

func aboutPage() string {
	para := strings.Repeat("Acme GmbH builds industrial pumps for water utilities across Europe. ", 12)
	return `<!DOCTYPE html><html><head><title>Acme GmbH - Pumps</title>
<meta property="og:site_name" content="Acme"></head>
<body><nav><a href="/">Home</a></nav>
<article><h1>About Acme</h1><p>` + para + `</p><p>` + para + `</p>
<p>Acme GmbH, Hauptstraße 1, 10115 Berlin, Germany. VAT DE123456789.</p></article>
<footer>© Acme</footer></body></html>`
}

func TestFetch_Direct(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("User-Agent"), "datafixer")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(aboutPage()))
	}))
	defer srv.Close()

	reader := jinamocks.NewMockClient(t)
	page, err := NewFetcher(WithReader(reader), fastRetry).Fetch(context.Background(), srv.URL)

	require.NoError(t, err)
	assert.False(t, page.ViaReader)
	assert.Contains(t, page.Text, "industrial pumps")
	assert.Contains(t, page.Text, "10115 Berlin")
	assert.NotContains(t, page.Text, "\n")
	reader.AssertNotCalled(t, "Read", mock.Anything, mock.Anything)
}

func TestFetch_FallbackToReader(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	reader := jinamocks.NewMockClient(t)
	reader.On("Read", mock.Anything, srv.URL).Return(&jina.ReadResponse{
		Code: 200,
		Data: jina.ReadData{Title: "Acme", Content: "# Acme\n\nPumps since 1950."},
	}, nil)

	page, err := NewFetcher(WithReader(reader), fastRetry).Fetch(context.Background(), srv.URL)

	require.NoError(t, err)
	assert.True(t, page.ViaReader)
	assert.Equal(t, "Acme", page.Title)
	assert.Contains(t, page.Text, "Pumps since 1950")
}

func TestFetch_BothFail(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	reader := jinamocks.NewMockClient(t)
	reader.On("Read", mock.Anything, srv.URL).Return(nil, eris.New("jina: read: unexpected status 451"))

	_, err := NewFetcher(WithReader(reader), fastRetry).Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reader fallback")
}

func TestFetch_NoReaderReturnsError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewFetcher(fastRetry).Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestFetch_InvalidURL(t *testing.T) {
	t.Parallel()

	_, err := NewFetcher().Fetch(context.Background(), "not a url")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid url")
}

func TestCollapse(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "a b c", collapse("  a\n\n b\t c "))
}

package enrich

import (
	"context"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/datafixer/internal/model"
	"github.com/sells-group/datafixer/internal/validate"
	"github.com/sells-group/datafixer/pkg/homepage"
	"github.com/sells-group/datafixer/pkg/jina"
)

const (
	defaultSnippetChars = 1500
	resultsPerQuery     = 5
)

// SearchAdapter collects web evidence for the language model. It never
// proposes changes.
type SearchAdapter struct {
	search       jina.Client
	pages        homepage.Fetcher
	snippetChars int
}

// NewSearchAdapter returns a search adapter. Either dependency may be nil to
// disable web search or homepage extraction.
func NewSearchAdapter(search jina.Client, pages homepage.Fetcher, snippetChars int) *SearchAdapter {
	if snippetChars <= 0 {
		snippetChars = defaultSnippetChars
	}
	return &SearchAdapter{search: search, pages: pages, snippetChars: snippetChars}
}

func (a *SearchAdapter) Name() Source { return SourceSearch }

// Queries returns the search queries issued for rec.
func Queries(rec model.Record) []string {
	name := rec.Get(model.FieldCompanyName)
	if name == "" {
		return nil
	}
	info := name + " company info"
	if city := rec.Get(model.FieldCity); city != "" {
		info = name + " " + city + " company info"
	}
	return []string{name + " official website", info}
}

func (a *SearchAdapter) Enrich(ctx context.Context, in Input) (Result, error) {
	queries := Queries(in.Record)
	website := in.Record.Get(model.FieldWebsite)
	country := in.Record.Get(model.FieldCountry)

	type found struct {
		idx      int
		snippets []Snippet
	}
	var (
		mu      sync.Mutex
		results []found
		failed  []error
		calls   int
		g       errgroup.Group
	)
	add := func(idx int, s []Snippet, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			failed = append(failed, err)
			return
		}
		results = append(results, found{idx: idx, snippets: s})
	}

	if a.search != nil {
		for i, q := range queries {
			calls++
			g.Go(func() error {
				s, err := a.query(ctx, q, country)
				add(i+1, s, err)
				return nil
			})
		}
	}
	if a.pages != nil && website != "" {
		calls++
		g.Go(func() error {
			s, err := a.homepage(ctx, website)
			add(0, s, err)
			return nil
		})
	}
	if calls == 0 {
		return Result{}, nil
	}
	_ = g.Wait()

	if len(failed) == calls {
		return Result{}, failed[0]
	}
	for _, err := range failed {
		zap.L().Debug("enrich: search call failed", zap.String("row_id", in.RowID), zap.Error(err))
	}

	// Homepage first, then queries in issue order; drop duplicate URLs.
	ordered := make([][]Snippet, calls+1)
	for _, f := range results {
		if f.idx < len(ordered) {
			ordered[f.idx] = f.snippets
		}
	}
	var res Result
	seen := make(map[string]bool)
	for _, group := range ordered {
		for _, s := range group {
			key := strings.TrimRight(strings.ToLower(s.URL), "/")
			if seen[key] {
				continue
			}
			seen[key] = true
			res.Snippets = append(res.Snippets, s)
		}
	}
	return res, nil
}

func (a *SearchAdapter) query(ctx context.Context, q, country string) ([]Snippet, error) {
	var opts []jina.SearchOption
	if validate.IsCountryCode(country) {
		opts = append(opts, jina.WithCountry(country))
	}
	resp, err := a.search.Search(ctx, q, opts...)
	if err != nil {
		return nil, eris.Wrapf(err, "enrich: search %q", q)
	}
	var out []Snippet
	for _, r := range resp.Data {
		text := r.Text()
		if r.URL == "" || text == "" {
			continue
		}
		out = append(out, Snippet{
			URL:   r.URL,
			Title: r.Title,
			Text:  truncate(text, a.snippetChars),
			Type:  model.SourceSearchResult,
		})
		if len(out) == resultsPerQuery {
			break
		}
	}
	return out, nil
}

func (a *SearchAdapter) homepage(ctx context.Context, website string) ([]Snippet, error) {
	page, err := a.pages.Fetch(ctx, website)
	if err != nil {
		return nil, eris.Wrap(err, "enrich: homepage")
	}
	title := page.Title
	if title == "" {
		title = page.SiteName
	}
	return []Snippet{{
		URL:   page.URL,
		Title: title,
		Text:  truncate(page.Text, a.snippetChars),
		Type:  model.SourceOfficialWebsite,
	}}, nil
}

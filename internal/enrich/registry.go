package enrich

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/datafixer/internal/model"
	"github.com/sells-group/datafixer/internal/textnorm"
	"github.com/sells-group/datafixer/internal/validate"
	"github.com/sells-group/datafixer/pkg/gleif"
	"github.com/sells-group/datafixer/pkg/opencorporates"
)

// RegistryFloor is the minimum match confidence a registry hit needs.
const RegistryFloor = 0.6

// matchScores grades a registry hit by how it was found.
type matchScores struct {
	id, exact, contains, other float64
}

var (
	nationalScores = matchScores{id: 0.98, exact: 0.95, contains: 0.80, other: 0.60}
	globalScores   = matchScores{id: 0.90, exact: 0.75, contains: 0.55, other: 0}
)

// derivedDiscount scales the hit confidence for fields other than the name.
var derivedDiscount = map[model.Field]float64{
	model.FieldCompanyName:    1.0,
	model.FieldAddressLine1:   0.90,
	model.FieldCity:           0.90,
	model.FieldPostalCode:     0.90,
	model.FieldStateProvince:  0.90,
	model.FieldCountry:        0.90,
	model.FieldWebsite:        0.80,
	model.FieldPhone:          0.80,
	model.FieldEmail:          0.80,
	model.FieldRegistrationID: 0.95,
}

var leiPattern = regexp.MustCompile(`^[A-Z0-9]{18}\d{2}$`)

const (
	registryNational = "opencorporates"
	registryGlobal   = "gleif"
)

type registryHit struct {
	source string
	rank   int
	pos    int
	match  string
	conf   float64
	url    string
	values map[model.Field]string
}

func (h registryHit) name() string { return h.values[model.FieldCompanyName] }

// RegistryAdapter consults a national register (OpenCorporates) and the
// global LEI index (GLEIF). Either client may be nil.
type RegistryAdapter struct {
	national      opencorporates.Client
	global        gleif.Client
	maxCandidates int
	now           func() time.Time
}

// NewRegistryAdapter returns a registry adapter reporting up to
// maxCandidates name candidates.
func NewRegistryAdapter(national opencorporates.Client, global gleif.Client, maxCandidates int) *RegistryAdapter {
	if maxCandidates <= 0 {
		maxCandidates = 3
	}
	return &RegistryAdapter{national: national, global: global, maxCandidates: maxCandidates, now: time.Now}
}

func (a *RegistryAdapter) Name() Source { return SourceRegistry }

func (a *RegistryAdapter) Enrich(ctx context.Context, in Input) (Result, error) {
	rec := in.Record
	name := rec.Get(model.FieldCompanyName)
	regID := strings.TrimSpace(rec.Get(model.FieldRegistrationID))
	if name == "" && regID == "" {
		return Result{}, nil
	}
	country, _ := validate.ResolveCountry(rec.Get(model.FieldCountry))

	var (
		mu     sync.Mutex
		hits   []registryHit
		failed []error
		calls  int
		g      errgroup.Group
	)
	collect := func(h []registryHit, err error) {
		mu.Lock()
		defer mu.Unlock()
		hits = append(hits, h...)
		if err != nil {
			failed = append(failed, err)
		}
	}

	if a.national != nil {
		calls++
		g.Go(func() error {
			collect(a.searchNational(ctx, name, country, regID))
			return nil
		})
	}
	if a.global != nil {
		calls++
		g.Go(func() error {
			collect(a.searchGlobal(ctx, name, country, regID))
			return nil
		})
	}
	_ = g.Wait()

	if calls > 0 && len(failed) == calls && len(hits) == 0 {
		return Result{}, failed[0]
	}

	kept := hits[:0]
	for _, h := range hits {
		if h.conf >= RegistryFloor {
			kept = append(kept, h)
		}
	}
	if len(kept) == 0 {
		return Result{}, nil
	}
	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].conf != kept[j].conf {
			return kept[i].conf > kept[j].conf
		}
		if kept[i].rank != kept[j].rank {
			return kept[i].rank < kept[j].rank
		}
		return kept[i].pos < kept[j].pos
	})

	best := kept[0]
	src := model.SourceRef{
		URL:         best.url,
		Type:        model.SourceBusinessRegistry,
		RetrievedAt: a.now().UTC(),
		Snippet:     best.name(),
	}
	reasoning := best.source + " match by " + best.match

	var res Result
	for _, f := range model.AllFields {
		disc, ok := derivedDiscount[f]
		if !ok {
			continue
		}
		res.Changes = addIfAbsent(res.Changes, rec, f, best.values[f], best.conf*disc, reasoning, src)
	}

	seen := make(map[string]bool)
	for _, h := range kept {
		key := textnorm.Key(h.name())
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		res.Candidates = append(res.Candidates, model.NameCandidate{Name: h.name(), Confidence: h.conf, Source: h.source})
		if len(res.Candidates) == a.maxCandidates {
			break
		}
	}
	return res, nil
}

// nameMatch grades candidate against the queried name.
func nameMatch(query, candidate string, s matchScores) (float64, string) {
	q, c := textnorm.Key(query), textnorm.Key(candidate)
	switch {
	case q == "" || c == "":
		return s.other, "name"
	case q == c:
		return s.exact, "exact name"
	case strings.Contains(c, q) || strings.Contains(q, c):
		return s.contains, "partial name"
	default:
		return s.other, "name search"
	}
}

func (a *RegistryAdapter) searchNational(ctx context.Context, name, country, regID string) ([]registryHit, error) {
	jurisdiction := strings.ToLower(country)
	var (
		hits     []registryHit
		firstErr error
	)

	if regID != "" && jurisdiction != "" && !validate.LooksLikeVAT(regID) && !leiPattern.MatchString(strings.ToUpper(regID)) {
		c, err := a.national.Lookup(ctx, jurisdiction, regID)
		switch {
		case err != nil:
			firstErr = eris.Wrap(err, "enrich: opencorporates lookup")
		case c != nil:
			hits = append(hits, nationalHit(*c, nationalScores.id, "register number", 0))
		}
	}

	if name != "" {
		companies, err := a.national.Search(ctx, name, jurisdiction)
		if err != nil {
			if firstErr == nil {
				firstErr = eris.Wrap(err, "enrich: opencorporates search")
			}
		}
		for i, c := range companies {
			conf, how := nameMatch(name, c.Name, nationalScores)
			hits = append(hits, nationalHit(c, conf, how, i+1))
		}
	}

	if len(hits) > 0 {
		return hits, nil
	}
	return nil, firstErr
}

func nationalHit(c opencorporates.Company, conf float64, how string, pos int) registryHit {
	addr := c.RegisteredAddress
	country, ok := validate.ResolveCountry(addr.Country)
	if !ok {
		country = c.CountryCode()
	}
	street := strings.Join(nonBlank(strings.Split(addr.StreetAddress, "\n")), ", ")
	city, postal := addr.Locality, addr.PostalCode
	if street == "" && c.AddressInFull != "" {
		parsed := ParseAddress(c.AddressInFull, country)
		street, city, postal = parsed.Line1, parsed.City, parsed.PostalCode
	}
	return registryHit{
		source: registryNational,
		rank:   0,
		pos:    pos,
		match:  how,
		conf:   conf,
		url:    c.OpenCorporatesURL,
		values: map[model.Field]string{
			model.FieldCompanyName:    c.Name,
			model.FieldRegistrationID: c.CompanyNumber,
			model.FieldAddressLine1:   street,
			model.FieldCity:           city,
			model.FieldPostalCode:     postal,
			model.FieldStateProvince:  addr.Region,
			model.FieldCountry:        country,
		},
	}
}

func (a *RegistryAdapter) searchGlobal(ctx context.Context, name, country, regID string) ([]registryHit, error) {
	var (
		hits     []registryHit
		firstErr error
	)

	if lei := strings.ToUpper(regID); leiPattern.MatchString(lei) {
		r, err := a.global.Lookup(ctx, lei)
		switch {
		case err != nil:
			firstErr = eris.Wrap(err, "enrich: gleif lookup")
		case r != nil:
			hits = append(hits, globalHit(*r, globalScores.id, "LEI", 0))
		}
	}

	if name != "" {
		records, err := a.global.Search(ctx, name, country)
		if err != nil && firstErr == nil {
			firstErr = eris.Wrap(err, "enrich: gleif search")
		}
		for i, r := range records {
			conf, how := nameMatch(name, r.LegalName, globalScores)
			hits = append(hits, globalHit(r, conf, how, i+1))
		}
	}

	if len(hits) > 0 {
		return hits, nil
	}
	return nil, firstErr
}

func globalHit(r gleif.Record, conf float64, how string, pos int) registryHit {
	return registryHit{
		source: registryGlobal,
		rank:   1,
		pos:    pos,
		match:  how,
		conf:   conf,
		url:    r.URL(),
		values: map[model.Field]string{
			model.FieldCompanyName:    r.LegalName,
			model.FieldRegistrationID: r.RegisteredAs,
			model.FieldAddressLine1:   strings.Join(nonBlank(r.Address.Lines), ", "),
			model.FieldCity:           r.Address.City,
			model.FieldPostalCode:     r.Address.PostalCode,
			model.FieldStateProvince:  r.Address.Region,
			model.FieldCountry:        strings.ToUpper(r.Address.Country),
		},
	}
}

package collector

import (
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/Sternrassler/gh-contrib-collector/pkg/github"
)

// LoginTotal is the number of contributions of one login across the
// organization.
type LoginTotal struct {
	Login         string `json:"login"`
	Contributions int    `json:"contributions"`
	Repos         int    `json:"repos"`
}

// Aggregator collects decoded items from concurrent workers.
type Aggregator struct {
	mu            sync.Mutex
	contributions []github.Contribution
	languages     map[string]map[string]int64
}

// NewAggregator creates an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{
		languages: make(map[string]map[string]int64),
	}
}

// AddContribution records one contributors item.
func (a *Aggregator) AddContribution(c github.Contribution) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.contributions = append(a.contributions, c)
}

// AddLanguages merges a languages item into the byte counts of repo.
func (a *Aggregator) AddLanguages(repo string, langs map[string]int64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	m, ok := a.languages[repo]
	if !ok {
		m = make(map[string]int64, len(langs))
		a.languages[repo] = m
	}
	for lang, n := range langs {
		m[lang] += n
	}
}

// Contributions returns the recorded contributions ordered by repository
// and login.
func (a *Aggregator) Contributions() []github.Contribution {
	a.mu.Lock()
	out := slices.Clone(a.contributions)
	a.mu.Unlock()

	slices.SortFunc(out, func(x, y github.Contribution) int {
		if c := strings.Compare(x.Repo, y.Repo); c != 0 {
			return c
		}
		return strings.Compare(x.Login, y.Login)
	})
	return out
}

// Totals sums contributions per login, highest first; ties are ordered by
// login.
func (a *Aggregator) Totals() []LoginTotal {
	a.mu.Lock()
	byLogin := make(map[string]*LoginTotal)
	for _, c := range a.contributions {
		t, ok := byLogin[c.Login]
		if !ok {
			t = &LoginTotal{Login: c.Login}
			byLogin[c.Login] = t
		}
		t.Contributions += c.Contributions
		t.Repos++
	}
	a.mu.Unlock()

	totals := make([]LoginTotal, 0, len(byLogin))
	for _, t := range byLogin {
		totals = append(totals, *t)
	}
	slices.SortFunc(totals, func(x, y LoginTotal) int {
		if x.Contributions != y.Contributions {
			return y.Contributions - x.Contributions
		}
		return strings.Compare(x.Login, y.Login)
	})
	return totals
}

// Languages returns a copy of the per-repository language byte counts.
func (a *Aggregator) Languages() map[string]map[string]int64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make(map[string]map[string]int64, len(a.languages))
	for repo, m := range a.languages {
		out[repo] = maps.Clone(m)
	}
	return out
}

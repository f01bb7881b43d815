package collector

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Sternrassler/gh-contrib-collector/pkg/github"
)

func TestAggregator_Totals(t *testing.T) {
	agg := NewAggregator()
	agg.AddContribution(github.Contribution{Login: "bob", Repo: "api", Contributions: 4})
	agg.AddContribution(github.Contribution{Login: "alice", Repo: "api", Contributions: 7})
	agg.AddContribution(github.Contribution{Login: "bob", Repo: "web", Contributions: 3})
	agg.AddContribution(github.Contribution{Login: "carol", Repo: "web", Contributions: 1})

	assert.Equal(t, []LoginTotal{
		{Login: "alice", Contributions: 7, Repos: 1},
		{Login: "bob", Contributions: 7, Repos: 2},
		{Login: "carol", Contributions: 1, Repos: 1},
	}, agg.Totals())
}

func TestAggregator_Contributions_Sorted(t *testing.T) {
	agg := NewAggregator()
	agg.AddContribution(github.Contribution{Login: "zed", Repo: "b"})
	agg.AddContribution(github.Contribution{Login: "amy", Repo: "b"})
	agg.AddContribution(github.Contribution{Login: "zed", Repo: "a"})

	got := agg.Contributions()
	assert.Equal(t, []github.Contribution{
		{Login: "zed", Repo: "a"},
		{Login: "amy", Repo: "b"},
		{Login: "zed", Repo: "b"},
	}, got)
}

func TestAggregator_Languages(t *testing.T) {
	agg := NewAggregator()
	agg.AddLanguages("api", map[string]int64{"Go": 100})
	agg.AddLanguages("api", map[string]int64{"Go": 5, "Shell": 2})

	langs := agg.Languages()
	assert.Equal(t, map[string]map[string]int64{"api": {"Go": 105, "Shell": 2}}, langs)

	langs["api"]["Go"] = 0
	assert.Equal(t, int64(105), agg.Languages()["api"]["Go"], "Languages returns a copy")
}

func TestAggregator_Concurrent(t *testing.T) {
	agg := NewAggregator()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			agg.AddContribution(github.Contribution{Login: "octocat", Repo: "r", Contributions: 1})
		}()
	}
	wg.Wait()

	assert.Equal(t, []LoginTotal{{Login: "octocat", Contributions: 20, Repos: 20}}, agg.Totals())
}

// Package github holds the domain model for organization scans, decoded from
// GitHub REST payloads.
package github

import (
	"encoding/json"
	"fmt"

	gh "github.com/google/go-github/v80/github"
)

// Kind identifies what a FetchRequest retrieves for a repository.
type Kind int

const (
	// KindContributors lists the contributors of a repository.
	KindContributors Kind = iota

	// KindLanguages fetches the language byte breakdown of a repository.
	KindLanguages
)

// String returns the lowercase name used in logs and metric labels.
func (k Kind) String() string {
	switch k {
	case KindContributors:
		return "contributors"
	case KindLanguages:
		return "languages"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// FetchRequest is one unit of work for the worker pool.
// It is passed by value and never modified after it has been enqueued.
type FetchRequest struct {
	// Repo is the name of the repository the request belongs to.
	Repo string

	// URL is the collection URL to drain (without pagination parameters).
	URL string

	// Kind tells the handler how to interpret the items.
	Kind Kind
}

// RepositoryDescriptor is the subset of a repository listing item the
// dispatcher needs to decide what to fetch.
type RepositoryDescriptor struct {
	Name            string
	Fork            bool
	SizeKB          int
	ContributorsURL string
	LanguagesURL    string
}

// IsEmpty reports whether GitHub considers the repository to hold no content.
func (d RepositoryDescriptor) IsEmpty() bool {
	return d.SizeKB == 0
}

// DecodeRepository decodes one listing item.
func DecodeRepository(raw json.RawMessage) (RepositoryDescriptor, error) {
	var repo gh.Repository
	if err := json.Unmarshal(raw, &repo); err != nil {
		return RepositoryDescriptor{}, fmt.Errorf("decode repository: %w", err)
	}
	if repo.GetName() == "" {
		return RepositoryDescriptor{}, fmt.Errorf("decode repository: missing name")
	}

	return RepositoryDescriptor{
		Name:            repo.GetName(),
		Fork:            repo.GetFork(),
		SizeKB:          repo.GetSize(),
		ContributorsURL: repo.GetContributorsURL(),
		LanguagesURL:    repo.GetLanguagesURL(),
	}, nil
}

// Contribution is the number of commits a login has made to one repository.
type Contribution struct {
	Login         string `json:"login"`
	Repo          string `json:"repo"`
	Contributions int    `json:"contributions"`
}

// DecodeContribution decodes one contributors item for repo.
func DecodeContribution(repo string, raw json.RawMessage) (Contribution, error) {
	var c gh.Contributor
	if err := json.Unmarshal(raw, &c); err != nil {
		return Contribution{}, fmt.Errorf("decode contributor: %w", err)
	}

	return Contribution{
		Login:         c.GetLogin(),
		Repo:          repo,
		Contributions: c.GetContributions(),
	}, nil
}

// DecodeLanguages decodes a languages item (language name to bytes of code).
func DecodeLanguages(raw json.RawMessage) (map[string]int64, error) {
	var langs map[string]int64
	if err := json.Unmarshal(raw, &langs); err != nil {
		return nil, fmt.Errorf("decode languages: %w", err)
	}
	return langs, nil
}

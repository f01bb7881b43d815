package pagination

import (
	"strings"
)

// RelNext is the Link relation that drives continuation.
const RelNext = "next"

// Links maps a Link relation name ("next", "last", ...) to its URL.
type Links map[string]string

// Next returns the URL of the next page, or "" when there is none.
func (l Links) Next() string {
	return l[RelNext]
}

// ParseLinks parses a Link header value of the form
//
//	<https://api.github.com/...&page=2>; rel="next", <...&page=5>; rel="last"
//
// Segments without a URL or a rel parameter are ignored.
func ParseLinks(header string) Links {
	links := make(Links)
	if strings.TrimSpace(header) == "" {
		return links
	}

	for _, segment := range strings.Split(header, ",") {
		parts := strings.Split(segment, ";")
		if len(parts) < 2 {
			continue
		}

		url := strings.TrimSpace(parts[0])
		url = strings.TrimPrefix(url, "<")
		url = strings.TrimSuffix(url, ">")
		if url == "" {
			continue
		}

		for _, param := range parts[1:] {
			name, value, ok := strings.Cut(strings.TrimSpace(param), "=")
			if !ok || strings.TrimSpace(name) != "rel" {
				continue
			}
			rel := strings.Trim(strings.TrimSpace(value), `"`)
			if rel != "" {
				links[rel] = url
			}
		}
	}

	return links
}

package collect

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	defaultCredibility = 0.8
	watchedCredibility = 0.5
)

// SourceAssessment is the credibility note attached to an article's domain.
type SourceAssessment struct {
	Domain      string  `json:"domain,omitempty"`
	Credibility float64 `json:"credibility"`
	Watched     bool    `json:"watched"`
	Notes       string  `json:"notes"`
}

// Watchlist maps source domains to a bias note. Lookups match the domain
// itself and any of its subdomains.
type Watchlist struct {
	notes map[string]string
}

// NewWatchlist builds a Watchlist from domain -> note entries.
func NewWatchlist(entries map[string]string) *Watchlist {
	w := &Watchlist{notes: make(map[string]string, len(entries))}
	for domain, note := range entries {
		if d := normalizeDomain(domain); d != "" {
			w.notes[d] = note
		}
	}
	return w
}

// Assess returns the credibility note for the domain of rawURL.
func (w *Watchlist) Assess(rawURL string) SourceAssessment {
	a := SourceAssessment{Credibility: defaultCredibility, Notes: "Source not found in the watchlist."}

	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Hostname() == "" {
		a.Notes = "No source URL to assess."
		return a
	}
	host := normalizeDomain(u.Hostname())
	a.Domain = host

	for d := host; d != ""; {
		if note, ok := w.notes[d]; ok {
			a.Credibility = watchedCredibility
			a.Watched = true
			a.Notes = fmt.Sprintf("Source domain '%s' is on a watchlist: %s", d, note)
			return a
		}
		i := strings.IndexByte(d, '.')
		if i < 0 {
			break
		}
		d = d[i+1:]
	}
	return a
}

func normalizeDomain(d string) string {
	d = strings.ToLower(strings.TrimSpace(d))
	d = strings.TrimSuffix(d, ".")
	return strings.TrimPrefix(d, "www.")
}

package tvshow

import (
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"seedwarden/internal/domain/ports"
)

var (
	// Markers that end the show title in a release name.
	episodeMarker = regexp.MustCompile(`(?i)(?:^|[\s._\-\[(])(?:s\d{1,2}\s*e\d{1,3}|s\d{1,2}(?:[\s._\-\])]|$)|\d{1,2}x\d{1,3}|season\s*\d{1,2})`)
	trailingYear  = regexp.MustCompile(`\s*\(?(?:19|20)\d{2}\)?$`)
	separators    = strings.NewReplacer(".", " ", "_", " ")
)

// Classifier routes episodes of allow-listed shows to a folder per show.
type Classifier struct {
	dir   string
	shows map[string]string // folded title -> configured spelling
}

var _ ports.ShowRouter = (*Classifier)(nil)

// New returns nil when dir or shows is empty, so callers can skip routing.
func New(dir string, shows []string) *Classifier {
	dir = strings.TrimSpace(dir)
	if dir == "" || len(shows) == 0 {
		return nil
	}
	c := &Classifier{dir: dir, shows: make(map[string]string, len(shows))}
	for _, s := range shows {
		name := strings.TrimSpace(s)
		if name == "" {
			continue
		}
		c.shows[fold(name)] = name
	}
	if len(c.shows) == 0 {
		return nil
	}
	return c
}

// Destination returns <dir>/<Show Name> when torrentName is an episode or
// season of an allow-listed show.
func (c *Classifier) Destination(torrentName string) (string, bool) {
	if c == nil {
		return "", false
	}
	show, ok := c.Match(torrentName)
	if !ok {
		return "", false
	}
	return filepath.Join(c.dir, show), true
}

// Match returns the configured spelling of the show torrentName belongs to.
func (c *Classifier) Match(torrentName string) (string, bool) {
	title, ok := ShowTitle(torrentName)
	if !ok {
		return "", false
	}
	key := fold(title)
	if show, ok := c.shows[key]; ok {
		return show, true
	}
	if bare := strings.TrimSpace(trailingYear.ReplaceAllString(key, "")); bare != key {
		if show, ok := c.shows[bare]; ok {
			return show, true
		}
	}
	return "", false
}

// ShowTitle extracts the text before the first season or episode marker.
// Names without a marker are not episodes.
func ShowTitle(name string) (string, bool) {
	loc := episodeMarker.FindStringIndex(name)
	if loc == nil {
		return "", false
	}
	title := strings.Trim(name[:loc[0]], " ._-[(")
	title = strings.Join(strings.Fields(separators.Replace(title)), " ")
	if title == "" {
		return "", false
	}
	return title, true
}

func fold(s string) string {
	s = norm.NFKC.String(s)
	s = strings.Join(strings.Fields(separators.Replace(s)), " ")
	return cases.Fold().String(s)
}

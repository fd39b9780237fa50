// Package catalog reads the game list published by the content host. The
// list is read-only input to the queue: it maps a release name to the
// package and display names copied onto a queue item at enqueue time.
package catalog

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
)

// ErrNotFound is returned when a release is not in the catalog.
var ErrNotFound = errors.New("release not in catalog")

const fieldCount = 6

// Entry is one catalog row.
type Entry struct {
	GameName    string  `json:"gameName"`
	ReleaseName string  `json:"releaseName"`
	PackageName string  `json:"packageName"`
	VersionCode string  `json:"versionCode"`
	LastUpdated string  `json:"lastUpdated"`
	SizeMB      float64 `json:"sizeMb"`
}

// Catalog is an immutable, release-indexed entry list.
type Catalog struct {
	entries   []Entry
	byRelease map[string]int
	fold      cases.Caser
}

// Load reads the game list at path.
func Load(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads a game list: a header line followed by ';'-delimited rows
// "Game Name;Release Name;Package Name;Version Code;Last Updated;Size (MB)".
// Blank and short rows are skipped. A repeated release keeps its first row.
func Parse(r io.Reader) (*Catalog, error) {
	c := &Catalog{byRelease: make(map[string]int), fold: cases.Fold()}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	header := true
	for scanner.Scan() {
		line := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), "\ufeff"))
		if header {
			header = false
			if strings.HasPrefix(line, "Game Name") {
				continue
			}
		}
		if line == "" {
			continue
		}
		fields := strings.Split(line, ";")
		if len(fields) < fieldCount {
			continue
		}
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}
		entry := Entry{
			GameName:    fields[0],
			ReleaseName: fields[1],
			PackageName: fields[2],
			VersionCode: fields[3],
			LastUpdated: fields[4],
		}
		if entry.ReleaseName == "" {
			continue
		}
		if size, err := strconv.ParseFloat(fields[5], 64); err == nil {
			entry.SizeMB = size
		}
		if _, dup := c.byRelease[entry.ReleaseName]; dup {
			continue
		}
		c.byRelease[entry.ReleaseName] = len(c.entries)
		c.entries = append(c.entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return c, nil
}

// Len returns the number of entries.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.entries)
}

// Entries returns a copy of all entries in file order.
func (c *Catalog) Entries() []Entry {
	if c == nil {
		return nil
	}
	return append([]Entry(nil), c.entries...)
}

// Find looks up a release by exact name.
func (c *Catalog) Find(releaseName string) (Entry, bool) {
	if c == nil {
		return Entry{}, false
	}
	idx, ok := c.byRelease[strings.TrimSpace(releaseName)]
	if !ok {
		return Entry{}, false
	}
	return c.entries[idx], true
}

// Search returns entries whose game, release, or package name contains term,
// compared case-insensitively, sorted by game name.
func (c *Catalog) Search(term string) []Entry {
	if c == nil {
		return nil
	}
	needle := c.fold.String(strings.TrimSpace(term))
	var out []Entry
	for _, e := range c.entries {
		if needle == "" ||
			strings.Contains(c.fold.String(e.GameName), needle) ||
			strings.Contains(c.fold.String(e.ReleaseName), needle) ||
			strings.Contains(c.fold.String(e.PackageName), needle) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return c.fold.String(out[i].GameName) < c.fold.String(out[j].GameName)
	})
	return out
}

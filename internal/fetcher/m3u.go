package fetcher

import (
	"io"
	"regexp"
	"strings"

	"github.com/voyagen/channelfold/internal/models"
)

const extinfPrefix = "#EXTINF:"

var (
	reAttr      = regexp.MustCompile(`([a-zA-Z0-9-]+)="([^"]*)"`)
	lineBreaker = strings.NewReplacer("\r\n", "\n", "\r", "\n")

	// Locator schemes accepted as the URL line of an entry (http/https, rtmp/rtmps, udp).
	locatorPrefixes = []string{"http", "rtmp", "udp"}
)

// Parse turns playlist text into raw stream entries in source order.
// It never fails: malformed or incomplete entries are dropped.
func Parse(text string) []models.RawStreamEntry {
	entries := []models.RawStreamEntry{}
	var current *models.RawStreamEntry

	for _, raw := range strings.Split(lineBreaker.Replace(text), "\n") {
		line := strings.TrimSpace(raw)
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, extinfPrefix):
			// A pending entry without URL is dropped here.
			current = parseExtinf(line[len(extinfPrefix):])
		case isLocator(line):
			if current == nil || current.Title == "" {
				continue
			}
			current.URL = line
			entries = append(entries, *current)
			current = nil
		}
	}
	return entries
}

// ParseReader reads the whole playlist from r and parses it.
func ParseReader(r io.Reader) ([]models.RawStreamEntry, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return Parse(string(data)), nil
}

// parseExtinf splits the EXTINF payload at its last comma into the attribute
// segment and the display title. Attribute values must not contain commas.
func parseExtinf(info string) *models.RawStreamEntry {
	var rawAttrs, title string
	if i := strings.LastIndex(info, ","); i >= 0 {
		rawAttrs, title = info[:i], info[i+1:]
	} else {
		title = info
	}

	e := &models.RawStreamEntry{
		Title:      strings.TrimSpace(title),
		Attributes: map[string]string{},
	}
	for _, m := range reAttr.FindAllStringSubmatch(rawAttrs, -1) {
		e.Attributes[m[1]] = m[2]
	}
	e.TvgID = e.Attributes["tvg-id"]
	e.TvgName = e.Attributes["tvg-name"]
	e.GroupTitle = e.Attributes["group-title"]
	e.Logo = e.Attributes["tvg-logo"]
	return e
}

func isLocator(line string) bool {
	for _, p := range locatorPrefixes {
		if strings.HasPrefix(line, p) {
			return true
		}
	}
	return false
}

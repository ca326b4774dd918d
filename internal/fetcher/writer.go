package fetcher

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/voyagen/channelfold/internal/models"
)

// Attributes written first, in this order; the rest follow sorted by key.
var knownAttrs = []string{"tvg-id", "tvg-name", "tvg-logo", "group-title"}

// Write serialises entries as an extended M3U playlist that Parse reads back
// into the same title, url and tvg-* fields.
func Write(w io.Writer, entries []models.RawStreamEntry) error {
	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintln(bw, "#EXTM3U"); err != nil {
		return fmt.Errorf("writing M3U header: %w", err)
	}
	for i := range entries {
		if _, err := fmt.Fprintf(bw, "%s-1%s,%s\n%s\n", extinfPrefix, attrString(&entries[i]), withoutCommas(entries[i].Title), entries[i].URL); err != nil {
			return fmt.Errorf("writing entry %d: %w", i, err)
		}
	}
	return bw.Flush()
}

// ExportChannels writes one entry per channel using its first stream. Channels
// without streams are skipped.
func ExportChannels(w io.Writer, channels []models.ChannelAggregate) error {
	entries := make([]models.RawStreamEntry, 0, len(channels))
	for _, ch := range channels {
		if len(ch.Streams) == 0 {
			continue
		}
		entries = append(entries, models.RawStreamEntry{
			Title:      ch.Name,
			URL:        ch.Streams[0].URL,
			TvgID:      ch.TvgID,
			TvgName:    ch.Name,
			GroupTitle: ch.Group,
			Logo:       ch.Logo,
		})
	}
	return Write(w, entries)
}

func attrString(e *models.RawStreamEntry) string {
	attrs := map[string]string{}
	for k, v := range e.Attributes {
		attrs[k] = v
	}
	for k, v := range map[string]string{
		"tvg-id":      e.TvgID,
		"tvg-name":    e.TvgName,
		"tvg-logo":    e.Logo,
		"group-title": e.GroupTitle,
	} {
		if v != "" {
			attrs[k] = v
		}
	}

	var b strings.Builder
	write := func(k string) {
		v, ok := attrs[k]
		if !ok {
			return
		}
		// Quotes would end the value early. Commas are fine: the title split
		// uses the last comma on the line.
		v = strings.ReplaceAll(v, `"`, "'")
		fmt.Fprintf(&b, ` %s="%s"`, k, v)
		delete(attrs, k)
	}
	for _, k := range knownAttrs {
		write(k)
	}
	rest := make([]string, 0, len(attrs))
	for k := range attrs {
		rest = append(rest, k)
	}
	sort.Strings(rest)
	for _, k := range rest {
		write(k)
	}
	return b.String()
}

// withoutCommas replaces commas with single spaces. Parse splits the title at
// the last comma of the line, so none may be written before it.
func withoutCommas(s string) string {
	if !strings.Contains(s, ",") {
		return s
	}
	return strings.Join(strings.Fields(strings.ReplaceAll(s, ",", " ")), " ")
}

package consolidate

import (
	"regexp"
	"strings"

	"github.com/voyagen/channelfold/internal/models"
)

var (
	reBracketed     = regexp.MustCompile(`\[.*?\]`)
	reParenthesized = regexp.MustCompile(`\(.*?\)`)
	// Plain substrings, not word-bounded: "hd" inside "Mishdale" goes too.
	reQualityWords = regexp.MustCompile(`fhd|hd|sd|4k|aaa|hevc|h265`)
	reNonAlnum     = regexp.MustCompile(`[^a-z0-9]`)
	// Display names only lose the keywords when they stand alone.
	reQualityTokens = regexp.MustCompile(`(?i)\b(?:fhd|hd|sd|4k|aaa|hevc|h265)\b`)
	reSpaces        = regexp.MustCompile(`\s{2,}`)

	reHexArrowSuffix = regexp.MustCompile(`[0-9a-fA-F]{4}\s*-->.*$`)
	reArrowSuffix    = regexp.MustCompile(`-->.*$`)
)

// NormalizeName reduces a title to the lower-case alphanumeric form used for
// name-based grouping.
func NormalizeName(name string) string {
	s := strings.ToLower(name)
	s = reBracketed.ReplaceAllString(s, "")
	s = reParenthesized.ReplaceAllString(s, "")
	s = reQualityWords.ReplaceAllString(s, "")
	return reNonAlnum.ReplaceAllString(s, "")
}

// SimplifyName returns tvgName when set, otherwise the title without its
// bracketed and parenthesized segments and standalone quality keywords.
func SimplifyName(title, tvgName string) string {
	if tvgName != "" {
		return tvgName
	}
	s := reBracketed.ReplaceAllString(title, "")
	s = reParenthesized.ReplaceAllString(s, "")
	s = reQualityTokens.ReplaceAllString(s, "")
	return strings.TrimSpace(reSpaces.ReplaceAllString(s, " "))
}

// DetectResolution guesses the quality label from a title. The checks run in
// a fixed order and the first hit wins; "" means unknown.
func DetectResolution(title string) string {
	t := strings.ToLower(title)
	switch {
	case strings.Contains(t, "4k"):
		return models.Resolution4K
	case strings.Contains(t, "fhd"), strings.Contains(t, "1080"):
		return models.Resolution1080p
	case strings.Contains(t, "hd"), strings.Contains(t, "720"):
		return models.Resolution720p
	case strings.Contains(t, "sd"):
		return models.ResolutionSD
	}
	return ""
}

// CleanName strips the "-->" artefacts some providers append to titles,
// together with a four hex digit marker in front of the arrow ("Foo 1A2B --> x").
// When the hex digits are all that precedes the arrow they are kept as the name.
func CleanName(name string) string {
	s := name
	if reHexArrowSuffix.MatchString(s) {
		if t := strings.TrimSpace(reHexArrowSuffix.ReplaceAllString(s, "")); t != "" {
			s = t
		}
	}
	return strings.TrimSpace(reArrowSuffix.ReplaceAllString(s, ""))
}

// CleanNames applies CleanName to every channel in place and returns the
// number of channels whose name changed.
func CleanNames(channels []models.ChannelAggregate) int {
	changed := 0
	for i := range channels {
		if n := CleanName(channels[i].Name); n != channels[i].Name {
			channels[i].Name = n
			changed++
		}
	}
	return changed
}

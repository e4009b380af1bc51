// Package keys builds deterministic cache keys for nearby and details lookups.
package keys

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"

	"github.com/mohammed-shakir/places-cache-gateway/internal/core/model"
)

const (
	prefixNearby  = "nearby"
	prefixDetails = "details"

	anyType = "any"

	maxKeywordTextLen = 160
)

// NearbyKey builds nearby:<version>:<provider>:<lat,lng>:<radius>:<type>[:<keywords>].
func NearbyKey(q model.QuantizedQuery, placeType string, keywords []string, provider, version string) string {
	pt := typeSegment(placeType)

	var b strings.Builder
	b.Grow(96)
	b.WriteString(prefixNearby)
	b.WriteByte(':')
	b.WriteString(sanitize(version, false))
	b.WriteByte(':')
	b.WriteString(sanitize(strings.ToLower(provider), false))
	b.WriteByte(':')
	b.WriteString(q.String())
	b.WriteByte(':')
	b.WriteString(strconv.Itoa(q.GridRadius))
	b.WriteByte(':')
	b.WriteString(pt)

	if kw := keywordSegment(keywords); kw != "" {
		b.WriteByte(':')
		b.WriteString(kw)
	}
	return b.String()
}

// DetailsKey builds details:<version>:<provider>:<placeId>.
func DetailsKey(placeID, provider, version string) string {
	return prefixDetails + ":" + sanitize(version, false) + ":" +
		sanitize(strings.ToLower(provider), false) + ":" + strings.TrimSpace(placeID)
}

// NormalizeKeywords trims, lowercases, drops empties and duplicates, and sorts.
func NormalizeKeywords(keywords []string) []string {
	if len(keywords) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(keywords))
	out := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = collapseASCIIWhitespace(strings.ToLower(k))
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// typeSegment appends a hash of the raw type whenever sanitizing changed it,
// so distinct types never share a key.
func typeSegment(placeType string) string {
	pt := strings.ToLower(strings.TrimSpace(placeType))
	if pt == "" {
		return anyType
	}
	safe := sanitize(pt, false)
	if safe == pt {
		return safe
	}
	return fmt.Sprintf("%s~%016x", safe, xxhash.Sum64String(pt))
}

// keywordSegment renders the sorted keyword set. When the readable form is
// lossy (rewritten runes, commas inside a keyword, or truncation) it carries
// a hash of the exact set.
func keywordSegment(keywords []string) string {
	norm := NormalizeKeywords(keywords)
	if len(norm) == 0 {
		return ""
	}
	text := strings.Join(norm, ",")
	safe := sanitize(text, true)
	lossy := safe != text
	for _, k := range norm {
		if strings.Contains(k, ",") {
			lossy = true
			break
		}
	}
	if len(safe) > maxKeywordTextLen {
		safe = safe[:maxKeywordTextLen]
		lossy = true
	}
	if !lossy {
		return safe
	}
	return fmt.Sprintf("%s~%016x", safe, xxhash.Sum64String(encodeKeywords(norm)))
}

// length-prefixed so keyword boundaries survive hashing
func encodeKeywords(norm []string) string {
	var b strings.Builder
	for _, k := range norm {
		b.WriteString(strconv.Itoa(len(k)))
		b.WriteByte(':')
		b.WriteString(k)
	}
	return b.String()
}

// commas are only kept inside the keyword segment
func sanitize(s string, keepComma bool) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))

	var prev rune
	for _, r := range s {
		var out rune
		switch {
		case isASCIIWhitespace(r):
			out = '_'
		case isAlphaNum(r) || r == '_' || r == '-' || r == '.':
			out = r
		case keepComma && r == ',':
			out = r
		default:
			// any other rune (including non-ASCII and ':') becomes '-'
			out = '-'
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

// converts any run of ASCII whitespace to a single space.
func collapseASCIIWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	wasWS := false
	for _, r := range s {
		if isASCIIWhitespace(r) {
			if !wasWS {
				b.WriteByte(' ')
				wasWS = true
			}
			continue
		}
		b.WriteRune(r)
		wasWS = false
	}
	return strings.TrimSpace(b.String())
}

func isASCIIWhitespace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f'
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r < unicode.MaxASCII && unicode.IsDigit(r))
}

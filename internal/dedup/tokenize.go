package dedup

import (
	"strings"
	"unicode"

	"golang.org/x/text/width"
)

// normalize produces the comparison form of a message: width-folded,
// lowercased, with spaces, punctuation, and symbols removed. OCR engines
// disagree on fullwidth vs halfwidth punctuation far more often than on the
// characters that carry meaning.
func normalize(s string) string {
	folded := strings.ToLower(width.Narrow.String(s))
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r) ||
		unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r) ||
		unicode.Is(unicode.Hangul, r)
}

// tokens derives the similarity token set: character bigrams for CJK text,
// whitespace-delimited words otherwise. CJK has no word boundaries to split
// on, and bigrams survive single-character OCR misreads.
func tokens(s string) map[string]struct{} {
	norm := normalize(s)
	runes := []rune(norm)
	set := make(map[string]struct{}, len(runes))

	cjk := false
	for _, r := range runes {
		if isCJK(r) {
			cjk = true
			break
		}
	}
	if cjk {
		if len(runes) == 1 {
			set[norm] = struct{}{}
			return set
		}
		for i := 0; i+1 < len(runes); i++ {
			set[string(runes[i:i+2])] = struct{}{}
		}
		return set
	}

	words := strings.FieldsFunc(strings.ToLower(width.Narrow.String(s)), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// jaccard is intersection over union of the two token sets. Empty sets are
// treated as dissimilar rather than identical.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if _, ok := b[t]; ok {
			inter++
		}
	}
	return float64(inter) / float64(len(a)+len(b)-inter)
}

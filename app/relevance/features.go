package relevance

import (
	"strings"

	"github.com/nordby/newswire/app/dedup"
	"github.com/nordby/newswire/app/sources"
)

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"to": true, "of": true, "in": true, "on": true, "for": true, "with": true,
	"by": true, "at": true, "from": true, "as": true, "is": true, "are": true,
	"was": true, "were": true, "be": true, "has": true, "have": true, "had": true,
	"this": true, "that": true, "it": true, "its": true, "will": true, "after": true,
	"og": true, "i": true, "på": true, "til": true, "af": true, "er": true,
	"en": true, "et": true, "de": true, "der": true, "den": true, "det": true,
	"for_": true, "med": true, "som": true, "har": true, "ikke": true,
}

// ExtractFeatures derives the lexical and structural features the
// learner keys its counters by: title keywords, title bigrams and
// trigrams, and detected nearby-place mentions.
func ExtractFeatures(article sources.CandidateArticle, nearbyPlaces []string) []string {
	tokens := contentTokens(article.Title)

	features := make([]string, 0, len(tokens)*3)
	for _, tok := range tokens {
		features = append(features, "kw:"+tok)
	}
	for i := 0; i+1 < len(tokens); i++ {
		features = append(features, "bi:"+tokens[i]+" "+tokens[i+1])
	}
	for i := 0; i+2 < len(tokens); i++ {
		features = append(features, "tri:"+tokens[i]+" "+tokens[i+1]+" "+tokens[i+2])
	}

	haystack := strings.ToLower(article.Title + " " + article.Summary)
	for _, place := range nearbyPlaces {
		if containsPhrase(haystack, strings.ToLower(place)) {
			features = append(features, "place:"+strings.ToLower(place))
		}
	}

	return features
}

// contentTokens tokenizes a title, dropping stopwords and short noise.
func contentTokens(text string) []string {
	raw := dedup.Tokens(text)
	tokens := make([]string, 0, len(raw))
	for _, tok := range raw {
		if len(tok) < 3 || stopwords[tok] {
			continue
		}
		tokens = append(tokens, tok)
	}
	return tokens
}

// containsPhrase matches a phrase on word boundaries, so "ai" never
// matches inside "said".
func containsPhrase(text, phrase string) bool {
	if phrase == "" {
		return false
	}
	idx := 0
	for {
		pos := strings.Index(text[idx:], phrase)
		if pos < 0 {
			return false
		}
		start := idx + pos
		end := start + len(phrase)

		beforeOK := start == 0 || !isWordChar(text[start-1])
		afterOK := end == len(text) || !isWordChar(text[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordChar(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9' || b >= 0x80
}

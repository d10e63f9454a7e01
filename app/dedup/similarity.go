package dedup

import (
	"math"
)

// Weights of the combined similarity. Titles dominate: local news
// rewrites bodies far more often than headlines.
const (
	titleWeight   = 0.7
	contentWeight = 0.3
)

// TitleSimilarity is token Jaccard similarity adjusted by length ratio,
// so a headline that merely contains another isn't an automatic match.
func TitleSimilarity(a, b string) float64 {
	tokensA := Tokens(a)
	tokensB := Tokens(b)
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0
	}

	setA := make(map[string]bool, len(tokensA))
	for _, tok := range tokensA {
		setA[tok] = true
	}

	setB := make(map[string]bool, len(tokensB))
	intersection := 0
	for _, tok := range tokensB {
		if setB[tok] {
			continue
		}
		setB[tok] = true
		if setA[tok] {
			intersection++
		}
	}

	union := len(setA) + len(setB) - intersection
	jaccard := float64(intersection) / float64(union)

	shorter, longer := float64(len(setA)), float64(len(setB))
	if shorter > longer {
		shorter, longer = longer, shorter
	}
	lengthRatio := shorter / longer

	// Blend keeps near-equal-length overlapping titles high while
	// damping contains-style matches.
	return jaccard*0.8 + jaccard*lengthRatio*0.2
}

// ContentSimilarity is cosine similarity over term-frequency vectors.
func ContentSimilarity(a, b string) float64 {
	tokensA := Tokens(a)
	tokensB := Tokens(b)
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0
	}

	freqA := termFrequencies(tokensA)
	freqB := termFrequencies(tokensB)

	var dot float64
	for term, fa := range freqA {
		if fb, ok := freqB[term]; ok {
			dot += fa * fb
		}
	}
	if dot == 0 {
		return 0
	}

	return dot / (magnitude(freqA) * magnitude(freqB))
}

// Combined blends title and content similarity. When either side lacks
// content the title similarity carries the full weight.
func Combined(titleA, contentA, titleB, contentB string) (combined, titleSim, contentSim float64) {
	titleSim = TitleSimilarity(titleA, titleB)

	if contentA == "" || contentB == "" {
		return titleSim, titleSim, 0
	}

	contentSim = ContentSimilarity(contentA, contentB)
	combined = titleWeight*titleSim + contentWeight*contentSim
	return combined, titleSim, contentSim
}

func termFrequencies(tokens []string) map[string]float64 {
	freq := make(map[string]float64, len(tokens))
	for _, tok := range tokens {
		freq[tok]++
	}
	return freq
}

func magnitude(freq map[string]float64) float64 {
	var sum float64
	for _, f := range freq {
		sum += f * f
	}
	return math.Sqrt(sum)
}

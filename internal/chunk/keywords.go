package chunk

import (
	"regexp"
	"sort"
	"strings"
)

const defaultMaxKeywords = 8

// tokenPattern matches alphanumeric word runs.
var tokenPattern = regexp.MustCompile(`[a-zA-Z0-9]+`)

// stopWords are common English words excluded from keyword extraction.
var stopWords = buildStopWordMap([]string{
	"a", "an", "and", "are", "as", "at", "be", "but", "by", "can",
	"do", "for", "from", "had", "has", "have", "if", "in", "into",
	"is", "it", "its", "no", "not", "of", "on", "or", "such", "than",
	"that", "the", "their", "then", "there", "these", "they", "this",
	"to", "was", "were", "which", "will", "with", "you", "your",
})

// Keywords extracts up to max frequent terms from text, lowercased, with
// stop words and short tokens filtered. Ties break alphabetically so the
// result is deterministic.
func Keywords(text string, max int) []string {
	if max <= 0 {
		return nil
	}

	counts := make(map[string]int)
	for _, token := range tokenPattern.FindAllString(text, -1) {
		lower := strings.ToLower(token)
		if len(lower) < 3 {
			continue
		}
		if _, isStop := stopWords[lower]; isStop {
			continue
		}
		counts[lower]++
	}
	if len(counts) == 0 {
		return nil
	}

	terms := make([]string, 0, len(counts))
	for term := range counts {
		terms = append(terms, term)
	}
	sort.Slice(terms, func(i, j int) bool {
		if counts[terms[i]] != counts[terms[j]] {
			return counts[terms[i]] > counts[terms[j]]
		}
		return terms[i] < terms[j]
	})

	if len(terms) > max {
		terms = terms[:max]
	}
	return terms
}

func buildStopWordMap(words []string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

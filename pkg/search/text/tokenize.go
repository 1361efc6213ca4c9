// Package text holds the tokenization and cleanup helpers shared by the
// BM25 index, the brute-force memory store, and the cross-encoder passage
// cleaner. Keeping one implementation here means a query and a document
// are always tokenized identically, which BM25 scoring depends on.
package text

import (
	"regexp"
	"strings"
)

// wordPattern pulls runs of letters/digits out of text; everything else
// (punctuation, markdown, whitespace) is a separator.
var wordPattern = regexp.MustCompile(`[\p{L}\p{N}]+`)

// Tokenize lowercases text, extracts word runs, lightly stems each one,
// and drops stop words and single-character tokens. Domain terms
// ("policy", "procedure", "reset") are never filtered, only the
// connective-word classes below are.
func Tokenize(input string) []string {
	words := wordPattern.FindAllString(strings.ToLower(input), -1)

	tokens := make([]string, 0, len(words))
	for _, w := range words {
		stemmed := stem(w)
		if len(stemmed) < 2 || stopWords[stemmed] {
			continue
		}
		tokens = append(tokens, stemmed)
	}
	return tokens
}

// stem strips a small set of common suffixes so close morphological
// variants of a query term ("connecting", "connects", "connect") collapse to
// the same BM25 posting instead of three separate, weaker ones. This is
// deliberately not a full stemmer (no Porter/Snowball rule cascade),
// just the handful of suffixes that matter most for short support-article
// prose, applied only to words long enough that stripping one can't
// leave a meaningless fragment.
func stem(word string) string {
	switch {
	case len(word) > 6 && strings.HasSuffix(word, "ing"):
		return word[:len(word)-3]
	case len(word) > 6 && strings.HasSuffix(word, "edly"):
		return word[:len(word)-4]
	case len(word) > 5 && strings.HasSuffix(word, "ed"):
		return word[:len(word)-2]
	case len(word) > 5 && strings.HasSuffix(word, "ies"):
		return word[:len(word)-3] + "y"
	case len(word) > 5 && strings.HasSuffix(word, "es"):
		return word[:len(word)-2]
	case len(word) > 4 && strings.HasSuffix(word, "s") && !strings.HasSuffix(word, "ss") && !strings.HasSuffix(word, "us"):
		return word[:len(word)-1]
	default:
		return word
	}
}

// stopWordClasses groups connective words by grammatical role, the same
// way pkg/intent groups its keyword lists by category, which is easier
// to audit and extend than one flat alphabetical list.
var stopWordClasses = [][]string{
	{"a", "an", "the"},                                          // articles
	{"and", "or", "but", "as", "that", "this"},                  // conjunctions / determiners
	{"at", "by", "for", "from", "in", "of", "on", "to", "with"},  // prepositions
	{"is", "are", "was", "were", "be", "been", "do", "does", "did", "has", "have"}, // auxiliary verbs
	{"he", "it", "its", "they", "we", "you", "your", "my", "their"},                // pronouns
}

var stopWords = buildStopWords(stopWordClasses)

func buildStopWords(classes [][]string) map[string]bool {
	set := make(map[string]bool)
	for _, class := range classes {
		for _, w := range class {
			set[w] = true
		}
	}
	return set
}

var (
	attachmentsSection = regexp.MustCompile(`(?is)attachments?:.*$`)
	relatedSection     = regexp.MustCompile(`(?is)related articles?:.*$`)
	whitespaceRun      = regexp.MustCompile(`\s+`)
)

// CleanPassage strips the "Attachments:"/"Related Articles:" trailer
// sections a knowledge-base article tends to carry, collapses runs of
// whitespace into single spaces, and truncates to maxLen characters. It is
// the exact preprocessing the cross-encoder reranker needs: a reranker
// scores prose, not formatting boilerplate or file listings.
func CleanPassage(body string, maxLen int) string {
	cleaned := attachmentsSection.ReplaceAllString(body, "")
	cleaned = relatedSection.ReplaceAllString(cleaned, "")
	cleaned = whitespaceRun.ReplaceAllString(cleaned, " ")
	cleaned = strings.TrimSpace(cleaned)

	if maxLen > 0 && len(cleaned) > maxLen {
		cleaned = cleaned[:maxLen]
	}
	return cleaned
}

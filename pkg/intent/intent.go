// Package intent classifies a query string into the coarse label the
// fusion and post-adjustment stages condition on: policy, procedure,
// reference, or unknown.
//
// Classify prefers a trained probabilistic Classifier (TF-IDF + linear
// model, or any other implementation of the Classifier interface) and
// falls back to a deterministic keyword scorer when none is configured.
// The keyword fallback is a pure function of the query string (no state,
// no network calls); the cost of the Classifier path depends on the
// implementation supplied.
package intent

import (
	"regexp"
	"strings"

	"github.com/saagar210/AssistSupport/pkg/article"
)

// mlConfidenceThreshold is the minimum max(p) the ML path will report the
// winning class at. Below it, the result is relabeled "unknown" and the
// confidence reported is the ambiguity strength 1-max(p), not max(p)
// itself. A low-confidence "policy" guess is worth less as a signal than
// an honest "I don't know, and I'm fairly sure".
const mlConfidenceThreshold = 0.4

// keywordConfidenceThreshold is the corresponding cutoff for the keyword
// fallback. It does not invert the score on miss: a keyword score below
// threshold means nothing matched strongly, not that "not matching" is
// itself informative.
const keywordConfidenceThreshold = 0.1

// ClassProbabilities maps each known intent label to the model's
// predicted probability. Returned by a Classifier's Predict method.
type ClassProbabilities map[article.Intent]float64

// Classifier is a trained probabilistic model. Implementations wrap
// whatever inference path is available (an ONNX runtime, an HTTP call to
// a model server, an embedded linear classifier); Classify only needs
// class probabilities back.
type Classifier interface {
	Predict(query string) (ClassProbabilities, error)
}

// Detector classifies queries, using classifier when non-nil and falling
// back to the keyword scorer otherwise.
type Detector struct {
	classifier Classifier
}

// NewDetector returns a Detector. A nil classifier makes every call use
// the keyword fallback.
func NewDetector(classifier Classifier) *Detector {
	return &Detector{classifier: classifier}
}

// Classify returns (label, confidence) for query. confidence is always in
// [0, 1]. Deterministic for a given query and a given classifier's
// weights.
func (d *Detector) Classify(query string) (article.Intent, float64) {
	if d.classifier != nil {
		if probs, err := d.classifier.Predict(query); err == nil && len(probs) > 0 {
			return classifyML(probs)
		}
		// Classifier present but failed (cold model, bad input): fall
		// through to the deterministic keyword path rather than erroring
		// the whole request out.
	}
	return classifyKeywords(query)
}

func classifyML(probs ClassProbabilities) (article.Intent, float64) {
	// Fixed iteration order so tied probabilities resolve the same way
	// on every call, not per Go's randomized map order.
	labels := []article.Intent{
		article.IntentPolicy, article.IntentProcedure,
		article.IntentReference, article.IntentUnknown,
	}
	var bestLabel article.Intent
	bestProb := -1.0
	for _, label := range labels {
		if p, ok := probs[label]; ok && p > bestProb {
			bestProb = p
			bestLabel = label
		}
	}

	if bestProb < 0 {
		// Predict returned only labels this pipeline doesn't know.
		return article.IntentUnknown, 0
	}
	if bestProb < mlConfidenceThreshold {
		return article.IntentUnknown, round2(1.0 - bestProb)
	}
	return bestLabel, round2(bestProb)
}

func round2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}

// priorityPhrase is worth 2 points per match; keyword matches are worth 1
// point on a whole-word boundary or 0.5 as a bare substring.
const (
	priorityPhraseWeight  = 2.0
	wholeWordMatchWeight  = 1.0
	substringMatchWeight  = 0.5
	scoreNormalizationDiv = 5.0
)

type keywordClass struct {
	priority []string
	keywords map[string][]string
}

var policyClass = keywordClass{
	priority: []string{
		"can i", "am i allowed", "am i permitted", "is it allowed",
		"is it okay", "are we allowed", "policy",
	},
	keywords: map[string][]string{
		"forbidden":       {"forbidden", "not allowed", "banned", "prohibited", "restricted"},
		"governance":      {"rule", "must", "shall", "compliance"},
		"removable_media": {"usb", "flash drive", "portable", "removable", "sd card"},
		"security":        {"firewall", "vpn", "encryption", "mfa"},
		"data_handling":   {"confidential", "pii", "encrypt"},
	},
}

var procedureClass = keywordClass{
	priority: []string{
		"how do i", "how to", "how do you", "how can i", "steps to",
	},
	keywords: map[string][]string{
		"action":   {"procedure", "process", "walkthrough", "guide"},
		"request":  {"request", "apply for", "submit", "fill out", "approval"},
		"setup":    {"setup", "install", "configure", "set up", "initialization"},
		"account":  {"account", "login", "reset", "register"},
		"hardware": {"laptop", "computer", "phone", "monitor", "keyboard", "device"},
		"software": {"software", "application", "app", "tool", "license"},
	},
}

var referenceClass = keywordClass{
	priority: []string{
		"what is", "what are", "what does", "tell me about",
	},
	keywords: map[string][]string{
		"definition":   {"definition", "explain", "describe", "meaning"},
		"information":  {"about", "information", "details", "overview", "summary"},
		"list":         {"list", "options", "available", "approved", "allowed"},
		"requirements": {"requirement", "requirements"},
	},
}

func classifyKeywords(query string) (article.Intent, float64) {
	q := strings.ToLower(query)

	scores := map[article.Intent]float64{
		article.IntentPolicy:    scoreClass(q, policyClass),
		article.IntentProcedure: scoreClass(q, procedureClass),
		article.IntentReference: scoreClass(q, referenceClass),
	}

	best := article.IntentPolicy
	bestScore := -1.0
	// Iterate in a fixed order so ties resolve deterministically
	// regardless of Go's randomized map iteration.
	for _, label := range []article.Intent{article.IntentPolicy, article.IntentProcedure, article.IntentReference} {
		if scores[label] > bestScore {
			bestScore = scores[label]
			best = label
		}
	}

	if bestScore < keywordConfidenceThreshold {
		return article.IntentUnknown, bestScore
	}
	return best, bestScore
}

func scoreClass(q string, c keywordClass) float64 {
	total := 0.0
	for _, phrase := range c.priority {
		if strings.Contains(q, phrase) {
			total += priorityPhraseWeight
		}
	}
	for _, keywords := range c.keywords {
		for _, kw := range keywords {
			if !strings.Contains(q, kw) {
				continue
			}
			if wholeWordRegexp(kw).MatchString(q) {
				total += wholeWordMatchWeight
			} else {
				total += substringMatchWeight
			}
		}
	}
	return minFloat(1.0, total/scoreNormalizationDiv)
}

func wholeWordRegexp(keyword string) *regexp.Regexp {
	re, ok := wholeWordPatterns[keyword]
	if !ok {
		// Keyword sets are fixed package-level data; this only fires if
		// a new keyword is added to one of the class tables without
		// also registering it below.
		re = regexp.MustCompile(`\b` + regexp.QuoteMeta(keyword) + `\b`)
	}
	return re
}

// wholeWordPatterns precompiles the boundary regexp for every keyword in
// every class at package init, so Classify (called concurrently by many
// in-flight requests) never mutates shared state at request time.
var wholeWordPatterns = buildWholeWordPatterns(policyClass, procedureClass, referenceClass)

func buildWholeWordPatterns(classes ...keywordClass) map[string]*regexp.Regexp {
	patterns := make(map[string]*regexp.Regexp)
	for _, c := range classes {
		for _, keywords := range c.keywords {
			for _, kw := range keywords {
				if _, ok := patterns[kw]; ok {
					continue
				}
				patterns[kw] = regexp.MustCompile(`\b` + regexp.QuoteMeta(kw) + `\b`)
			}
		}
	}
	return patterns
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

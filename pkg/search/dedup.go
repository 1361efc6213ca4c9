package search

import "github.com/saagar210/AssistSupport/pkg/article"

// Deduplicate walks candidates in order and keeps the first occurrence of
// each non-empty source_document_id, dropping later chunks from the same
// document entirely rather than merging them. Candidates with no
// source_document_id (sourceDoc returns "") are always kept. Input order
// is preserved for survivors, so this must run after fusion/post-adjustment
// sorting, not before.
func Deduplicate(candidates []article.CandidateResult, sourceDoc func(article.ID) string) []article.CandidateResult {
	seen := make(map[string]bool)
	out := make([]article.CandidateResult, 0, len(candidates))

	for _, c := range candidates {
		doc := sourceDoc(c.ArticleID)
		if doc == "" {
			out = append(out, c)
			continue
		}
		if seen[doc] {
			continue
		}
		seen[doc] = true
		out = append(out, c)
	}

	return out
}

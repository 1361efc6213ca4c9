package embed

import "context"

// Role distinguishes how a text will be used: as a search query or as a
// document being indexed. Some embedding models (the E5 family in
// particular) were trained with "query: "/"passage: " prefixes baked into
// every example, and score noticeably worse without them.
type Role int

const (
	RoleQuery Role = iota
	RolePassage
)

func (r Role) prefix() string {
	switch r {
	case RoleQuery:
		return "query: "
	case RolePassage:
		return "passage: "
	default:
		return ""
	}
}

// prefixRequiredModels lists the model names known to need role prefixes.
// Anything not in this set is embedded unprefixed, matching how it was
// trained.
var prefixRequiredModels = map[string]bool{
	"intfloat/e5-base-v2":  true,
	"intfloat/e5-small-v2": true,
	"intfloat/e5-large-v2": true,
}

// RoleAwareEmbedder wraps an Embedder and prefixes text with "query: " or
// "passage: " before embedding, but only for models that were trained to
// expect it. Wrap the base embedder with this once at startup; callers
// then just say what role the text is playing and never need to know
// which models care.
type RoleAwareEmbedder struct {
	base        Embedder
	needsPrefix bool
}

// NewRoleAwareEmbedder wraps base. Whether prefixing applies is decided
// once, from base.Model(), at construction time.
func NewRoleAwareEmbedder(base Embedder) *RoleAwareEmbedder {
	return &RoleAwareEmbedder{
		base:        base,
		needsPrefix: prefixRequiredModels[base.Model()],
	}
}

// EmbedWithRole embeds text as either a query or a passage, applying the
// model-appropriate prefix first.
func (r *RoleAwareEmbedder) EmbedWithRole(ctx context.Context, text string, role Role) ([]float32, error) {
	return r.base.Embed(ctx, r.applyPrefix(text, role))
}

// EmbedBatchWithRole is the batch form of EmbedWithRole. All texts share
// the same role.
func (r *RoleAwareEmbedder) EmbedBatchWithRole(ctx context.Context, texts []string, role Role) ([][]float32, error) {
	if !r.needsPrefix {
		return r.base.EmbedBatch(ctx, texts)
	}
	prefixed := make([]string, len(texts))
	for i, t := range texts {
		prefixed[i] = r.applyPrefix(t, role)
	}
	return r.base.EmbedBatch(ctx, prefixed)
}

func (r *RoleAwareEmbedder) applyPrefix(text string, role Role) string {
	if !r.needsPrefix {
		return text
	}
	return role.prefix() + text
}

// Dimensions returns the underlying embedder's vector dimension.
func (r *RoleAwareEmbedder) Dimensions() int { return r.base.Dimensions() }

// Model returns the underlying embedder's model name.
func (r *RoleAwareEmbedder) Model() string { return r.base.Model() }

// UsesPrefix reports whether the wrapped model requires role prefixes.
func (r *RoleAwareEmbedder) UsesPrefix() bool { return r.needsPrefix }

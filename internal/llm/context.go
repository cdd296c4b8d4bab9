package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownModel is returned when a caller asks for a model that is not selectable.
var ErrUnknownModel = errors.New("llm: model is not selectable")

type contextKey string

const modelContextKey contextKey = "plateful-recipe-model"

// WithModel returns a context whose recipe fetches use model instead of the
// client default. A blank model leaves ctx unchanged.
func WithModel(ctx context.Context, model string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	model = normalizeModel(model)
	if model == "" {
		return ctx
	}
	return context.WithValue(ctx, modelContextKey, model)
}

// ModelFromContext returns the recipe model carried by ctx, if any.
func ModelFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if value, ok := ctx.Value(modelContextKey).(string); ok {
		return value
	}
	return ""
}

// Models is the set of recipe models clients may pick per request.
type Models struct {
	names map[string]struct{}
}

// NewModels allows the given model names; blanks and "models/" prefixes are ignored.
func NewModels(names ...string) Models {
	m := Models{names: make(map[string]struct{}, len(names))}
	for _, name := range names {
		if name = normalizeModel(name); name != "" {
			m.names[name] = struct{}{}
		}
	}
	return m
}

// Allows reports whether model may be selected.
func (m Models) Allows(model string) bool {
	_, ok := m.names[normalizeModel(model)]
	return ok
}

// Select attaches model to ctx after checking it is allowed. A blank model
// keeps the client default.
func (m Models) Select(ctx context.Context, model string) (context.Context, error) {
	if normalizeModel(model) == "" {
		return ctx, nil
	}
	if !m.Allows(model) {
		return ctx, fmt.Errorf("%w: %s", ErrUnknownModel, strings.TrimSpace(model))
	}
	return WithModel(ctx, model), nil
}

func normalizeModel(model string) string {
	return strings.TrimPrefix(strings.TrimSpace(model), "models/")
}

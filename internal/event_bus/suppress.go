package event_bus

import (
	"context"
	"slices"
)

type suppressedKey struct{}

// Suppress returns a copy of ctx under which Publish skips the named handlers.
func Suppress(ctx context.Context, names ...string) context.Context {
	current, _ := ctx.Value(suppressedKey{}).([]string)
	merged := slices.Clone(current)
	for _, name := range names {
		if !slices.Contains(merged, name) {
			merged = append(merged, name)
		}
	}
	return context.WithValue(ctx, suppressedKey{}, merged)
}

// IsSuppressed reports whether the named handler is suppressed in ctx.
func IsSuppressed(ctx context.Context, name string) bool {
	if ctx == nil || name == "" {
		return false
	}
	suppressed, _ := ctx.Value(suppressedKey{}).([]string)
	return slices.Contains(suppressed, name)
}

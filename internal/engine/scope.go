package engine

import (
	"context"
	"slices"
)

// ScopeMode defines which process types may be served from the cache.
type ScopeMode string

const (
	// ScopeModeOff disables caching (default).
	ScopeModeOff ScopeMode = "off"

	// ScopeModeGlobal enables caching for every process type.
	ScopeModeGlobal ScopeMode = "global"

	// ScopeModeProcessTypes enables caching for listed process types only.
	ScopeModeProcessTypes ScopeMode = "process_types"
)

// CachingScope decides whether a process type may reuse an earlier
// identical record. The zero value disables caching.
type CachingScope struct {
	mode         ScopeMode
	processTypes []string
}

// GlobalCaching enables caching for every process type.
func GlobalCaching() CachingScope {
	return CachingScope{mode: ScopeModeGlobal}
}

// CachingFor enables caching for the given process types only. With no
// process types it is GlobalCaching.
func CachingFor(processTypes ...string) CachingScope {
	if len(processTypes) == 0 {
		return GlobalCaching()
	}
	types := slices.Clone(processTypes)
	slices.Sort(types)
	return CachingScope{mode: ScopeModeProcessTypes, processTypes: slices.Compact(types)}
}

// Mode returns the scope mode, defaulting to off.
func (s CachingScope) Mode() ScopeMode {
	if s.mode == "" {
		return ScopeModeOff
	}
	return s.mode
}

// ProcessTypes returns a copy of the enabled process types.
func (s CachingScope) ProcessTypes() []string {
	return slices.Clone(s.processTypes)
}

// Enabled reports whether processType may be served from the cache.
func (s CachingScope) Enabled(processType string) bool {
	switch s.mode {
	case ScopeModeGlobal:
		return true
	case ScopeModeProcessTypes:
		_, found := slices.BinarySearch(s.processTypes, processType)
		return found
	default:
		return false
	}
}

type scopeKey struct{}

// WithCaching returns a context carrying scope. The scope ends when the
// returned context is no longer used; nothing global changes.
func WithCaching(ctx context.Context, scope CachingScope) context.Context {
	return context.WithValue(ctx, scopeKey{}, scope)
}

// CachingFrom returns the scope carried by ctx, or the disabled scope.
func CachingFrom(ctx context.Context) CachingScope {
	scope, _ := ctx.Value(scopeKey{}).(CachingScope)
	return scope
}

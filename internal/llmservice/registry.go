package llmservice

import (
	"strings"

	"github.com/rs/zerolog/log"

	"video-rag/internal/models"
)

// display names offered to askers, mapped to the provider model that serves them
var defaultAliases = map[string]string{
	"gpt-5":         "gpt-4o",
	"gpt-5-mini":    "gpt-4o-mini",
	"gpt-5-nano":    "gpt-4o-mini",
	"o3":            "o1",
	"gpt-4o":        "gpt-4o",
	"gpt-4o-mini":   "gpt-4o-mini",
	"gpt-4-turbo":   "gpt-4-turbo",
	"gpt-3.5-turbo": "gpt-3.5-turbo",
}

// Registry maps caller-selectable model names to provider models.
type Registry struct {
	aliases  map[string]string
	fallback string
}

// NewRegistry merges extra aliases over the built-in table. An empty fallback
// uses models.DefaultModel.
func NewRegistry(fallback string, extra map[string]string) *Registry {
	if fallback == "" {
		fallback = models.DefaultModel
	}
	aliases := make(map[string]string, len(defaultAliases)+len(extra))
	for k, v := range defaultAliases {
		aliases[k] = v
	}
	for k, v := range extra {
		aliases[strings.ToLower(k)] = v
	}
	return &Registry{aliases: aliases, fallback: fallback}
}

// Resolve returns the provider model for name. Empty and unknown names get
// the fallback model; known reports whether name was recognised.
func (r *Registry) Resolve(name string) (model string, known bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return r.fallback, true
	}
	if m, ok := r.aliases[key]; ok {
		return m, true
	}
	log.Warn().Str("requested_model", name).Str("model", r.fallback).Msg("Unknown model name, using default")
	return r.fallback, false
}

func (r *Registry) Default() string { return r.fallback }

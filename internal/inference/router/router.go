package router

import (
	"fmt"
	"sort"
	"strings"

	"github.com/yungbote/examcourse-backend/internal/inference/config"
	"github.com/yungbote/examcourse-backend/internal/inference/engine"
	"github.com/yungbote/examcourse-backend/internal/inference/engine/anthropic"
	"github.com/yungbote/examcourse-backend/internal/inference/engine/mock"
	"github.com/yungbote/examcourse-backend/internal/inference/engine/oaihttp"
)

type Route struct {
	Provider string
	Model    string
	Engine   engine.Engine
}

type Router struct {
	routes map[string]Route
}

func New(cfg *config.Config) (*Router, error) {
	r := &Router{routes: map[string]Route{}}
	for _, p := range cfg.Providers {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			return nil, fmt.Errorf("provider name required")
		}
		if _, exists := r.routes[name]; exists {
			return nil, fmt.Errorf("duplicate provider: %s", name)
		}

		var eng engine.Engine
		switch strings.ToLower(strings.TrimSpace(p.Engine.Type)) {
		case "mock":
			eng = mock.New()
		case "openai_http", "oai_http":
			e, err := oaihttp.New(p.Engine)
			if err != nil {
				return nil, err
			}
			eng = e
		case "anthropic":
			e, err := anthropic.New(p.Engine)
			if err != nil {
				return nil, err
			}
			eng = e
		default:
			return nil, fmt.Errorf("unsupported engine type %q for provider %q", p.Engine.Type, name)
		}
		r.routes[name] = Route{Provider: name, Model: p.Model, Engine: eng}
	}
	return r, nil
}

// NewStatic builds a router over already-constructed engines, keyed by provider name.
func NewStatic(routes ...Route) *Router {
	r := &Router{routes: map[string]Route{}}
	for _, rt := range routes {
		r.routes[rt.Provider] = rt
	}
	return r
}

func (r *Router) Providers() []string {
	out := make([]string, 0, len(r.routes))
	for name := range r.routes {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (r *Router) Route(provider string) (Route, bool) {
	route, ok := r.routes[strings.TrimSpace(provider)]
	return route, ok
}

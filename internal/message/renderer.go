// Package message renders step templates against lead attributes.
// Only merge-tag substitution happens here; AI personalization is an
// external collaborator and never runs inside the engine.
package message

import (
	"fmt"
	"hash/fnv"
	"strings"
	"sync"

	"github.com/osteele/liquid"

	"github.com/ignite/outreach-engine/internal/campaign"
)

// Renderer wraps a Liquid engine with a compiled-template cache keyed
// by step, so hot campaigns don't re-parse the same template per send.
type Renderer struct {
	engine *liquid.Engine
	cache  sync.Map // map[string]*liquid.Template
}

// NewRenderer creates a renderer with the outreach filters registered.
func NewRenderer() *Renderer {
	engine := liquid.NewEngine()

	// {{ first_name | default: "there" }}
	engine.RegisterFilter("default", func(value interface{}, defaultVal string) interface{} {
		if value == nil {
			return defaultVal
		}
		s := fmt.Sprintf("%v", value)
		if s == "" || s == "<nil>" {
			return defaultVal
		}
		return value
	})

	// {{ company | capitalize }}
	engine.RegisterFilter("capitalize", func(s string) string {
		if len(s) == 0 {
			return s
		}
		return strings.ToUpper(string(s[0])) + s[1:]
	})

	return &Renderer{engine: engine}
}

// Bindings builds the render context for a lead.
func Bindings(lead *campaign.Lead) map[string]interface{} {
	if lead == nil {
		return map[string]interface{}{}
	}
	return map[string]interface{}{
		"first_name": lead.FirstName,
		"last_name":  lead.LastName,
		"full_name":  lead.FullName(),
		"email":      lead.Email,
		"company":    lead.Company,
		"title":      lead.Title,
	}
}

// Render renders a template with the given bindings. The cacheKey
// should be stable per step (campaign:step); the content hash folded
// into the key makes template edits take effect without a restart.
func (r *Renderer) Render(cacheKey, template string, bindings map[string]interface{}) (string, error) {
	if template == "" {
		return "", nil
	}

	h := fnv.New64a()
	h.Write([]byte(template))
	key := fmt.Sprintf("%s:%x", cacheKey, h.Sum64())
	var tmpl *liquid.Template

	if cached, ok := r.cache.Load(key); ok {
		tmpl = cached.(*liquid.Template)
	} else {
		parsed, err := r.engine.ParseString(template)
		if err != nil {
			return "", fmt.Errorf("parse template: %w", err)
		}
		r.cache.Store(key, parsed)
		tmpl = parsed
	}

	out, err := tmpl.Render(bindings)
	if err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return string(out), nil
}

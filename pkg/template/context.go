package template

import (
	"github.com/agentstation/policytool/pkg/errors"
)

// Context is an immutable stack of variable layers. Lookups probe the
// innermost layer first.
type Context struct {
	layers []map[string]any
}

// NewContext builds a context. The first layer is the innermost.
func NewContext(layers ...map[string]any) Context {
	c := Context{}
	for _, l := range layers {
		if l != nil {
			c.layers = append(c.layers, l)
		}
	}
	return c
}

// Extend returns a new context with layer as the innermost layer. The
// receiver is left untouched.
func (c Context) Extend(layer map[string]any) Context {
	layers := make([]map[string]any, 0, len(c.layers)+1)
	layers = append(layers, layer)
	layers = append(layers, c.layers...)
	return Context{layers: layers}
}

// Lookup returns the first non-nil value bound to name.
func (c Context) Lookup(name string) (any, error) {
	for _, layer := range c.layers {
		if v, ok := layer[name]; ok && v != nil {
			return v, nil
		}
	}
	return nil, errors.NewTemplateError(name)
}

// Has reports whether name resolves.
func (c Context) Has(name string) bool {
	_, err := c.Lookup(name)
	return err == nil
}

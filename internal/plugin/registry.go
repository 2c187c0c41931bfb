package plugin

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
)

var (
	ErrPluginNotFound = errors.New("plugin not found")
	ErrActionNotFound = errors.New("action not found")
)

// Registry is a read-only view of the installed plugins. It is built once
// and passed explicitly to whatever needs it.
type Registry struct {
	plugins map[string]*Plugin
}

// NewRegistry builds a registry from plugins. When two plugins share an id
// the higher version wins.
func NewRegistry(plugins ...*Plugin) *Registry {
	r := &Registry{plugins: make(map[string]*Plugin, len(plugins))}
	for _, p := range plugins {
		if cur, ok := r.plugins[p.ID]; ok && !newerVersion(p.Version, cur.Version) {
			continue
		}
		r.plugins[p.ID] = p
	}
	return r
}

// Load builds a registry of the built-in plugins plus every definition
// found under dirs. Missing directories are skipped.
func Load(logger *slog.Logger, dirs ...string) (*Registry, error) {
	logger = logger.With("component", "registry")
	plugins := []*Plugin{MysteryStew()}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
			logger.Debug("plugin directory missing", "dir", dir)
			continue
		}
		matches, err := doublestar.Glob(os.DirFS(dir), "**/*"+DefinitionSuffix)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", dir, err)
		}
		sort.Strings(matches)
		for _, m := range matches {
			path := filepath.Join(dir, filepath.FromSlash(m))
			p, err := LoadDefinition(path)
			if err != nil {
				return nil, err
			}
			logger.Debug("loaded plugin", "id", p.ID, "version", p.Version, "path", path)
			plugins = append(plugins, p)
		}
	}
	return NewRegistry(plugins...), nil
}

// Plugin finds a plugin by id.
func (r *Registry) Plugin(id string) (*Plugin, error) {
	p, ok := r.plugins[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPluginNotFound, id)
	}
	return p, nil
}

// Action finds an action of a plugin.
func (r *Registry) Action(pluginID, actionID string) (*Action, error) {
	p, err := r.Plugin(pluginID)
	if err != nil {
		return nil, err
	}
	a, ok := p.Action(actionID)
	if !ok {
		return nil, fmt.Errorf("%w: %s in plugin %s", ErrActionNotFound, actionID, pluginID)
	}
	return a, nil
}

// Plugins returns every plugin sorted by id.
func (r *Registry) Plugins() []*Plugin {
	return sortedPlugins(r.plugins)
}

// SemanticTypes returns the semantic types registered by all plugins,
// sorted by name. Formats of a type declared by several plugins are merged.
func (r *Registry) SemanticTypes() []TypeDef {
	byName := make(map[string]*TypeDef)
	for _, p := range r.Plugins() {
		for _, t := range p.Types {
			cur, ok := byName[t.Name]
			if !ok {
				cp := t
				cp.Formats = append([]string(nil), t.Formats...)
				byName[t.Name] = &cp
				continue
			}
			for _, f := range t.Formats {
				if !contains(cur.Formats, f) {
					cur.Formats = append(cur.Formats, f)
				}
			}
		}
	}
	out := make([]TypeDef, 0, len(byName))
	for _, t := range byName {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Formats returns every registered format sorted by name.
func (r *Registry) Formats() []Format {
	byName := make(map[string]Format)
	for _, p := range r.Plugins() {
		for _, f := range p.Formats {
			if _, ok := byName[f.Name]; !ok {
				byName[f.Name] = f
			}
		}
	}
	out := make([]Format, 0, len(byName))
	for _, f := range byName {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Format finds a format by name.
func (r *Registry) Format(name string) (Format, bool) {
	for _, f := range r.Formats() {
		if f.Name == name {
			return f, true
		}
	}
	return Format{}, false
}

// TypeFormats lists the formats data of type name can be imported from.
func (r *Registry) TypeFormats(name string) []string {
	for _, t := range r.SemanticTypes() {
		if t.Name == name {
			return t.Formats
		}
	}
	return nil
}

func contains(ss []string, s string) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}

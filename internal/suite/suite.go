// Package suite writes tool suites: one directory per plugin holding a tool
// descriptor per action plus the test data its generated tests use, and a
// directory for the built-in tools.
package suite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/me/q2galaxy/internal/builtins"
	"github.com/me/q2galaxy/internal/plugin"
	"github.com/me/q2galaxy/internal/toolxml"
	"github.com/me/q2galaxy/internal/usage"
	"github.com/me/q2galaxy/pkg/model"
)

// TestDataDir is where test data is written inside a suite.
const TestDataDir = "test-data"

// Suite templates tools for the plugins of a registry.
type Suite struct {
	registry *plugin.Registry
	logger   *slog.Logger
	workers  int
}

// New creates a Suite over reg.
func New(reg *plugin.Registry, logger *slog.Logger) *Suite {
	return &Suite{
		registry: reg,
		logger:   logger.With("component", "suite"),
		workers:  runtime.NumCPU(),
	}
}

// Dir is the suite directory name of a plugin.
func Dir(pluginID string) string {
	return "suite_qiime2_" + strings.ReplaceAll(pluginID, "_", "-")
}

// TemplateAction writes the tool of one action and its test data into dir.
func (s *Suite) TemplateAction(ctx context.Context, p *plugin.Plugin, a *plugin.Action, dir string) ([]model.Status, error) {
	statuses, err := ensureDir(filepath.Join(dir, TestDataDir))
	if err != nil {
		return nil, err
	}
	more, err := s.action(ctx, p, a, dir)
	return append(statuses, more...), err
}

func (s *Suite) action(ctx context.Context, p *plugin.Plugin, a *plugin.Action, dir string) ([]model.Status, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tool, err := toolxml.MakeTool(p, a)
	if err != nil {
		return nil, err
	}
	status, err := writeTool(tool, filepath.Join(dir, usage.ToolID(p.ID, a.ID)+".xml"))
	if err != nil {
		return nil, err
	}
	statuses := []model.Status{status}

	testData := filepath.Join(dir, TestDataDir)
	for _, f := range usage.Files(a) {
		if err := ctx.Err(); err != nil {
			return statuses, err
		}
		st, err := f.Write(testData)
		if err != nil {
			return statuses, fmt.Errorf("%s: %w", a.ID, err)
		}
		statuses = append(statuses, st)
	}
	s.logger.Debug("templated action", "plugin", p.ID, "action", a.ID, "files", len(statuses))
	return statuses, nil
}

// TemplatePlugin writes the suite of p under dir. Actions are templated
// concurrently; statuses keep action order.
func (s *Suite) TemplatePlugin(ctx context.Context, p *plugin.Plugin, dir string) ([]model.Status, error) {
	if len(p.Actions) == 0 {
		return nil, nil
	}
	suiteDir := filepath.Join(dir, Dir(p.ID))
	statuses, err := ensureDir(suiteDir)
	if err != nil {
		return nil, err
	}
	more, err := ensureDir(filepath.Join(suiteDir, TestDataDir))
	if err != nil {
		return statuses, err
	}
	statuses = append(statuses, more...)

	results := make([][]model.Status, len(p.Actions))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, a := range p.Actions {
		g.Go(func() error {
			st, err := s.action(gctx, p, a, suiteDir)
			results[i] = st
			return err
		})
	}
	err = g.Wait()
	for _, r := range results {
		statuses = append(statuses, r...)
	}
	return statuses, err
}

// TemplateBuiltins writes the built-in tools under dir.
func (s *Suite) TemplateBuiltins(ctx context.Context, dir string) ([]model.Status, error) {
	suiteDir := filepath.Join(dir, Dir(builtins.PluginID))
	statuses, err := ensureDir(suiteDir)
	if err != nil {
		return nil, err
	}
	for _, id := range builtins.Actions() {
		if err := ctx.Err(); err != nil {
			return statuses, err
		}
		tool, err := toolxml.MakeBuiltin(s.registry, id)
		if err != nil {
			return statuses, err
		}
		st, err := writeTool(tool, filepath.Join(suiteDir, toolxml.BuiltinID(id)+".xml"))
		if err != nil {
			return statuses, err
		}
		statuses = append(statuses, st)
	}
	return statuses, nil
}

// TemplateAll writes a suite for every plugin followed by the built-in
// tools. The test plugin is left to TemplateTests.
func (s *Suite) TemplateAll(ctx context.Context, dir string) ([]model.Status, error) {
	var statuses []model.Status
	for _, p := range s.registry.Plugins() {
		if p.ID == plugin.StewID {
			continue
		}
		st, err := s.TemplatePlugin(ctx, p, dir)
		statuses = append(statuses, st...)
		if err != nil {
			return statuses, fmt.Errorf("plugin %s: %w", p.ID, err)
		}
	}
	st, err := s.TemplateBuiltins(ctx, dir)
	return append(statuses, st...), err
}

// TemplateTests writes the suite of the built-in test plugin, whose tools
// exercise every kind of input.
func (s *Suite) TemplateTests(ctx context.Context, dir string) ([]model.Status, error) {
	return s.TemplatePlugin(ctx, plugin.MysteryStew(), dir)
}

func ensureDir(path string) ([]model.Status, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, err
	}
	return []model.Status{{Status: "created", Type: "directory", Path: path}}, nil
}

func writeTool(tool *toolxml.Node, path string) (model.Status, error) {
	status := model.Status{Status: "created", Type: "file", Path: path}
	if _, err := os.Stat(path); err == nil {
		status.Status = "updated"
	}
	if err := tool.WriteFile(path); err != nil {
		return model.Status{}, fmt.Errorf("write %s: %w", path, err)
	}
	return status, nil
}

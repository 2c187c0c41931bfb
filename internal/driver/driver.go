// Package driver runs one plugin action for the tool runner: it resolves
// the action, converts the job configuration into runtime arguments, calls
// the action and saves its results, reporting failures in a form the tool
// runner displays well.
package driver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/me/q2galaxy/internal/artifact"
	"github.com/me/q2galaxy/internal/builtins"
	"github.com/me/q2galaxy/internal/marshal"
	"github.com/me/q2galaxy/internal/metadata"
	"github.com/me/q2galaxy/internal/plugin"
	"github.com/me/q2galaxy/internal/stdio"
	"github.com/me/q2galaxy/internal/store"
	"github.com/me/q2galaxy/pkg/model"
	"github.com/me/q2galaxy/pkg/qtype"
)

// Stage headers, written before the error message of a failed stage.
const (
	HeaderResolve = "Unexpected error finding the action in q2galaxy: "
	HeaderConvert = "Unexpected error loading arguments in q2galaxy: "
	HeaderExecute = "This plugin encountered an error:\n"
	HeaderPersist = "Unexpected error saving results in q2galaxy: "
)

// Driver executes plugin actions.
type Driver struct {
	registry *plugin.Registry
	logger   *slog.Logger
	store    store.Store
	workDir  string
	stdout   io.Writer
	stderr   io.Writer
}

// Option configures a Driver.
type Option func(*Driver)

// WithStore records every invocation and saved result in st.
func WithStore(st store.Store) Option {
	return func(d *Driver) { d.store = st }
}

// WithWorkDir sets where results are saved and commands run. The default
// is the current directory.
func WithWorkDir(dir string) Option {
	return func(d *Driver) { d.workDir = dir }
}

// WithOutput sets where decorated errors and replayed output go. The
// defaults are os.Stdout and os.Stderr.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(d *Driver) { d.stdout, d.stderr = stdout, stderr }
}

// New creates a driver over reg.
func New(reg *plugin.Registry, logger *slog.Logger, opts ...Option) *Driver {
	d := &Driver{
		registry: reg,
		logger:   logger.With("component", "driver"),
		stdout:   os.Stdout,
		stderr:   os.Stderr,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run invokes the action and returns the process exit status.
func (d *Driver) Run(ctx context.Context, pluginID, actionID string, raw map[string]any) int {
	if err := d.Invoke(ctx, pluginID, actionID, raw); err != nil {
		d.logger.Debug("invocation failed", "plugin", pluginID, "action", actionID, "kind", model.KindOf(err))
		return 1
	}
	return 0
}

// Invoke runs the whole pipeline. raw is the job configuration as decoded
// from the tool runner's config file, before unescaping. The returned error
// is a *model.Error whose kind names the failed stage.
func (d *Driver) Invoke(ctx context.Context, pluginID, actionID string, raw map[string]any) error {
	workDir := d.workDir
	if workDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return d.setupFailed(err)
		}
		workDir = wd
	}

	sess, err := stdio.Open()
	if err != nil {
		return d.setupFailed(err)
	}
	defer sess.Close()
	sess.Stdout, sess.Stderr = d.stdout, d.stderr

	if pluginID == builtins.PluginID {
		tools := builtins.New(d.registry, workDir, d.logger)
		return tools.Run(sess, actionID, raw)
	}

	t := d.track(ctx, pluginID, actionID, raw)

	var action *plugin.Action
	err = t.stage(sess, model.StageResolveAction, HeaderResolve, func(stdout, stderr io.Writer) error {
		var err error
		action, err = d.registry.Action(pluginID, actionID)
		return err
	})
	if err != nil {
		return err
	}

	conv := marshal.NewConverter(d.logger)
	defer conv.Close()
	var args map[string]any
	err = t.stage(sess, model.StageConvertArguments, HeaderConvert, func(stdout, stderr io.Writer) error {
		var err error
		args, err = conv.Convert(action.Signature, raw)
		return err
	})
	if err != nil {
		return err
	}

	var results []plugin.Result
	err = t.stage(sess, model.StageExecute, HeaderExecute, func(stdout, stderr io.Writer) error {
		EchoArguments(stdout, action.Signature, args)
		env := plugin.Env{Stdout: stdout, Stderr: stderr, WorkDir: workDir, Logger: d.logger}
		var err error
		results, err = action.Call(ctx, env, args)
		return err
	})
	if err != nil {
		return err
	}
	defer func() {
		for _, r := range results {
			r.Artifact.Close()
		}
	}()

	err = t.stage(sess, model.StagePersistResults, HeaderPersist, func(stdout, stderr io.Writer) error {
		for _, r := range results {
			location, err := r.Artifact.Save(filepath.Join(workDir, r.Name))
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "Saved %s to: %s\n", r.Artifact.Type, location)
			d.logger.Debug("saved result", "name", r.Name, "uuid", r.Artifact.UUID, "size", r.Artifact.HumanSize())
			t.result(r)
		}
		return nil
	})
	if err != nil {
		return err
	}

	t.finish(nil)
	return sess.Flush()
}

// setupFailed reports a failure that happens before output capture starts.
func (d *Driver) setupFailed(err error) error {
	msg := stdio.Decorate(HeaderResolve, err)
	fmt.Fprintln(d.stdout, msg)
	fmt.Fprintln(d.stderr, msg)
	return model.NewError(model.ErrActionResolution, err, "")
}

// tracker follows the stage of one invocation and mirrors it in the store.
type tracker struct {
	ctx    context.Context
	d      *Driver
	inv    *model.Invocation
	logger *slog.Logger
}

func (d *Driver) track(ctx context.Context, pluginID, actionID string, raw map[string]any) *tracker {
	t := &tracker{
		ctx: ctx,
		d:   d,
		inv: &model.Invocation{
			PluginID: pluginID,
			ActionID: actionID,
			Stage:    model.StageIdle,
			Inputs:   raw,
		},
		logger: d.logger.With("plugin", pluginID, "action", actionID),
	}
	if d.store != nil {
		if err := d.store.CreateInvocation(ctx, t.inv); err != nil {
			t.logger.Warn("could not record invocation", "error", err)
		}
	}
	return t
}

func (t *tracker) advance(next model.Stage) {
	if !t.inv.Stage.CanTransitionTo(next) {
		t.logger.Error("invalid stage transition", "from", t.inv.Stage, "to", next)
	}
	t.logger.Debug("stage", "from", t.inv.Stage, "to", next)
	t.inv.Stage = next
}

// stage runs fn as the given stage inside sess. Errors without a kind are
// given the stage's kind.
func (t *tracker) stage(sess *stdio.Session, stage model.Stage, header string, fn func(stdout, stderr io.Writer) error) error {
	t.advance(stage)
	err := sess.Run(header, func(stdout, stderr io.Writer) error {
		err := fn(stdout, stderr)
		if err != nil && model.KindOf(err) == "" {
			err = model.NewError(stage.Kind(), err, "")
		}
		return err
	})
	if err != nil {
		var e *model.Error
		if !errors.As(err, &e) {
			err = model.NewError(stage.Kind(), err, "")
		}
		t.finish(err)
	}
	return err
}

func (t *tracker) result(r plugin.Result) {
	if t.d.store == nil || t.inv.ID == "" {
		return
	}
	size, _ := r.Artifact.Size()
	rec := &model.ResultRecord{
		InvocationID: t.inv.ID,
		Name:         r.Name,
		UUID:         r.Artifact.UUID,
		Type:         r.Artifact.Type,
		Format:       r.Artifact.Format,
		Path:         r.Artifact.Source,
		Size:         size,
	}
	if err := t.d.store.CreateResult(t.ctx, rec); err != nil {
		t.logger.Warn("could not record result", "name", r.Name, "error", err)
	}
}

func (t *tracker) finish(err error) {
	next := model.StageDone
	if err != nil {
		next = model.StageFailed
		t.inv.ErrorKind = model.KindOf(err)
		t.inv.Error = err.Error()
	}
	t.advance(next)
	now := time.Now().UTC()
	t.inv.CompletedAt = &now
	if t.d.store == nil || t.inv.ID == "" {
		return
	}
	if err := t.d.store.UpdateInvocation(t.ctx, t.inv); err != nil {
		t.logger.Warn("could not record invocation", "error", err)
	}
}

// EchoArguments writes one ｢name: value｣ line per argument in signature
// order, then a padding line.
func EchoArguments(w io.Writer, sig qtype.Signature, args map[string]any) {
	for _, group := range [][]qtype.Param{sig.Inputs, sig.Parameters} {
		for _, p := range group {
			v, ok := args[p.Name]
			if !ok {
				continue
			}
			fmt.Fprintf(w, "｢%s: %s｣\n", p.Name, Pretty(v))
		}
	}
	fmt.Fprintln(w, stdio.Padding)
}

// Pretty renders an argument for the echo lines: artifacts by UUID,
// metadata as <Metadata>, artifact collections one UUID per line and other
// collections as comma-separated literals.
func Pretty(v any) string {
	switch val := v.(type) {
	case *artifact.Artifact:
		return val.UUID
	case *metadata.Metadata:
		return "<Metadata>"
	case *qtype.Set:
		return prettyItems(val.Items())
	case []any:
		return prettyItems(val)
	}
	return qtype.Repr(v)
}

func prettyItems(items []any) string {
	if len(items) > 0 {
		if _, ok := items[0].(*artifact.Artifact); ok {
			uuids := make([]string, len(items))
			for i, item := range items {
				uuids[i] = Pretty(item)
			}
			return strings.Join(uuids, ",\n")
		}
	}
	parts := make([]string, len(items))
	for i, item := range items {
		parts[i] = qtype.Repr(item)
	}
	return strings.Join(parts, ", ")
}

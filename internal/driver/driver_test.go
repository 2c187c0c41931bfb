package driver

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/me/q2galaxy/internal/artifact"
	"github.com/me/q2galaxy/internal/metadata"
	"github.com/me/q2galaxy/internal/plugin"
	"github.com/me/q2galaxy/internal/stdio"
	"github.com/me/q2galaxy/internal/store"
	"github.com/me/q2galaxy/pkg/model"
	"github.com/me/q2galaxy/pkg/qtype"
)

type harness struct {
	driver  *Driver
	store   *store.SQLiteStore
	workDir string
	stdout  *bytes.Buffer
	stderr  *bytes.Buffer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st, err := store.NewSQLiteStore(":memory:", logger)
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })

	h := &harness{store: st, workDir: t.TempDir(), stdout: &bytes.Buffer{}, stderr: &bytes.Buffer{}}
	h.driver = New(plugin.NewRegistry(plugin.MysteryStew()), logger,
		WithStore(st), WithWorkDir(h.workDir), WithOutput(h.stdout, h.stderr))
	return h
}

func (h *harness) invocations(t *testing.T) []*model.Invocation {
	t.Helper()
	invs, _, err := h.store.ListInvocations(context.Background(), model.DefaultListOptions())
	require.NoError(t, err)
	return invs
}

func TestInvokeSavesResults(t *testing.T) {
	h := newHarness(t)
	raw := map[string]any{"int_range": "5", "float_param": "1.5", "str_param": "hi", "bool_param": true}

	require.NoError(t, h.driver.Invoke(context.Background(), plugin.StewID, "primitive_params", raw))

	out := h.stdout.String()
	assert.Contains(t, out, "｢int_range: 5｣\n")
	assert.Contains(t, out, "｢str_param: 'hi'｣\n")
	assert.Contains(t, out, "｢bool_param: True｣\n")
	assert.Contains(t, out, stdio.Padding+"\n")
	saved := filepath.Join(h.workDir, "out.qza")
	assert.Contains(t, out, "Saved EchoOutput to: "+saved+"\n")
	assert.NotContains(t, out, ":(")

	art, err := artifact.Load(saved)
	require.NoError(t, err)
	defer art.Close()
	assert.Equal(t, "EchoOutput", art.Type)
	echoed, err := os.ReadFile(filepath.Join(art.DataDir(), "echo.txt"))
	require.NoError(t, err)
	assert.Equal(t, "int_range: 5\nfloat_param: 1.5\nstr_param: 'hi'\nbool_param: True\n", string(echoed))

	invs := h.invocations(t)
	require.Len(t, invs, 1)
	inv, err := h.store.GetInvocation(context.Background(), invs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, model.StageDone, inv.Stage)
	assert.NotNil(t, inv.CompletedAt)
	require.Len(t, inv.Results, 1)
	assert.Equal(t, art.UUID, inv.Results[0].UUID)
	assert.Equal(t, saved, inv.Results[0].Path)
}

func TestInvokeExecutionFailure(t *testing.T) {
	h := newHarness(t)

	err := h.driver.Invoke(context.Background(), plugin.StewID, "fail", map[string]any{})
	require.Error(t, err)
	assert.Equal(t, model.ErrExecution, model.KindOf(err))

	out := h.stdout.String()
	header := strings.Index(out, "This plugin encountered an error:")
	sad := strings.Index(out, ":(")
	captured := strings.Index(out, "about to fail")
	require.True(t, header >= 0 && sad >= 0 && captured >= 0, out)
	assert.Less(t, header, sad)
	assert.Less(t, sad, captured)
	assert.Contains(t, out, "requested failure")
	assert.Contains(t, out, "｢message: 'requested failure'｣")
	assert.Contains(t, h.stderr.String(), "This plugin encountered an error:")

	invs := h.invocations(t)
	require.Len(t, invs, 1)
	assert.Equal(t, model.StageFailed, invs[0].Stage)
	assert.Equal(t, model.ErrExecution, invs[0].ErrorKind)
	assert.Equal(t, "requested failure", invs[0].Error)
}

func TestInvokeResolutionFailure(t *testing.T) {
	h := newHarness(t)

	err := h.driver.Invoke(context.Background(), "nope", "primitive_params", map[string]any{})
	require.Error(t, err)
	assert.Equal(t, model.ErrActionResolution, model.KindOf(err))
	assert.True(t, errors.Is(err, plugin.ErrPluginNotFound))
	assert.Contains(t, h.stdout.String(), "Unexpected error finding the action")

	err = h.driver.Invoke(context.Background(), plugin.StewID, "nope", map[string]any{})
	assert.True(t, errors.Is(err, plugin.ErrActionNotFound))

	invs := h.invocations(t)
	require.Len(t, invs, 2)
	for _, inv := range invs {
		assert.Equal(t, model.StageFailed, inv.Stage)
		assert.Equal(t, model.ErrActionResolution, inv.ErrorKind)
	}
}

func TestInvokeConversionFailure(t *testing.T) {
	h := newHarness(t)
	raw := map[string]any{"int_range": "11", "float_param": "1.5", "str_param": "hi", "bool_param": true}

	err := h.driver.Invoke(context.Background(), plugin.StewID, "primitive_params", raw)
	require.Error(t, err)
	assert.Equal(t, model.ErrArgumentConversion, model.KindOf(err))
	assert.Contains(t, h.stdout.String(), "Unexpected error loading")
	assert.NotContains(t, h.stdout.String(), "Saved")

	_, statErr := os.Stat(filepath.Join(h.workDir, "out.qza"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestInvokeSetupFailure(t *testing.T) {
	h := newHarness(t)
	t.Setenv("TMPDIR", filepath.Join(h.workDir, "missing"))

	err := h.driver.Invoke(context.Background(), plugin.StewID, "optional_params", map[string]any{})
	require.Error(t, err)
	assert.Equal(t, model.ErrActionResolution, model.KindOf(err))
	for _, out := range []string{h.stdout.String(), h.stderr.String()} {
		assert.True(t, strings.HasPrefix(out, "Unexpected error finding the"), out)
		assert.Contains(t, out, stdio.Padding+"\n:(\n")
	}
	assert.Empty(t, h.invocations(t))
}

func TestRunExitStatus(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, 0, h.driver.Run(context.Background(), plugin.StewID, "optional_params", map[string]any{}))
	assert.Equal(t, 1, h.driver.Run(context.Background(), plugin.StewID, "fail", map[string]any{}))
}

func TestPretty(t *testing.T) {
	a := &artifact.Artifact{Header: artifact.Header{UUID: "uuid-a"}}
	b := &artifact.Artifact{Header: artifact.Header{UUID: "uuid-b"}}

	tests := []struct {
		name string
		in   any
		want string
	}{
		{"string", "x", "'x'"},
		{"int", int64(3), "3"},
		{"none", nil, "None"},
		{"artifact", a, "uuid-a"},
		{"metadata", &metadata.Metadata{}, "<Metadata>"},
		{"list", []any{int64(1), int64(2)}, "1, 2"},
		{"set", qtype.NewSet("a", "b"), "'a', 'b'"},
		{"artifacts", []any{a, b}, "uuid-a,\nuuid-b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Pretty(tt.in))
		})
	}
}

func TestEchoArgumentsFollowsSignatureOrder(t *testing.T) {
	sig := qtype.Signature{Parameters: []qtype.Param{
		{Name: "b", Spec: qtype.Required(qtype.MustParse("Int"), "")},
		{Name: "a", Spec: qtype.Required(qtype.MustParse("Str"), "")},
	}}
	var buf bytes.Buffer
	EchoArguments(&buf, sig, map[string]any{"a": "x", "b": int64(2)})
	assert.Equal(t, "｢b: 2｣\n｢a: 'x'｣\n"+stdio.Padding+"\n", buf.String())
}

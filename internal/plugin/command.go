package plugin

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/me/q2galaxy/internal/artifact"
	"github.com/me/q2galaxy/internal/cmdline"
	"github.com/me/q2galaxy/internal/metadata"
	"github.com/me/q2galaxy/pkg/qtype"
)

// OutputBinding says where a command leaves an output and how to wrap it.
type OutputBinding struct {
	Name   string
	Type   string
	Format string
	// Path is a doublestar glob relative to the working directory.
	Path string
}

// CommandRunner runs an action as an external command.
type CommandRunner struct {
	Command *cmdline.Command
	Outputs []OutputBinding
	// Dir resolves relative program paths.
	Dir string
	Env map[string]string
	Lib []string
}

// Run builds the command line from args, runs it in env.WorkDir and wraps
// the files matching each output path as an artifact.
func (r *CommandRunner) Run(ctx context.Context, env Env, args map[string]any) (map[string]*artifact.Artifact, error) {
	inputs, err := CommandValues(args, env.WorkDir)
	if err != nil {
		return nil, err
	}
	runtime := map[string]any{"workdir": env.WorkDir, "plugin_dir": r.Dir}
	argv, err := cmdline.NewBuilder(r.Lib...).Build(r.Command, inputs, runtime)
	if err != nil {
		return nil, fmt.Errorf("build command: %w", err)
	}
	if r.Dir != "" && strings.ContainsRune(argv[0], filepath.Separator) && !filepath.IsAbs(argv[0]) {
		argv[0] = filepath.Join(r.Dir, argv[0])
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = env.WorkDir
	cmd.Stdout = env.Stdout
	cmd.Stderr = env.Stderr
	cmd.Env = os.Environ()
	keys := make([]string, 0, len(r.Env))
	for k := range r.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		cmd.Env = append(cmd.Env, k+"="+r.Env[k])
	}

	env.Logger.Debug("running command", "argv", argv, "dir", env.WorkDir)
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("command %s failed: %w", argv[0], err)
	}

	outputs := make(map[string]*artifact.Artifact, len(r.Outputs))
	for _, out := range r.Outputs {
		a, err := r.collect(env.WorkDir, out)
		if err != nil {
			for _, done := range outputs {
				done.Close()
			}
			return nil, err
		}
		outputs[out.Name] = a
	}
	return outputs, nil
}

func (r *CommandRunner) collect(workdir string, out OutputBinding) (*artifact.Artifact, error) {
	matches, err := doublestar.Glob(os.DirFS(workdir), out.Path)
	if err != nil {
		return nil, fmt.Errorf("output %q: %w", out.Name, err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("output %q: nothing matches %s", out.Name, out.Path)
	}
	sort.Strings(matches)
	paths := make([]string, len(matches))
	for i, m := range matches {
		paths[i] = filepath.Join(workdir, filepath.FromSlash(m))
	}
	return artifact.Import(out.Type, out.Format, paths...)
}

// CommandValues converts runtime arguments into the plain values command
// bindings see. Artifacts become {path, uuid, type, format}; metadata and
// columns are written as TSV files in workdir and become {path} (plus
// {name, type} for columns); sets become lists.
func CommandValues(args map[string]any, workdir string) (map[string]any, error) {
	out := make(map[string]any, len(args))
	for name, v := range args {
		cv, err := commandValue(name, v, workdir)
		if err != nil {
			return nil, fmt.Errorf("argument %q: %w", name, err)
		}
		out[name] = cv
	}
	return out, nil
}

func commandValue(name string, v any, workdir string) (any, error) {
	switch val := v.(type) {
	case *artifact.Artifact:
		return map[string]any{
			"path":   val.DataDir(),
			"uuid":   val.UUID,
			"type":   val.Type,
			"format": val.Format,
		}, nil
	case *metadata.Metadata:
		path := filepath.Join(workdir, name+".metadata.tsv")
		if err := val.Save(path); err != nil {
			return nil, err
		}
		return map[string]any{"path": path}, nil
	case *metadata.Column:
		path := filepath.Join(workdir, name+".column.tsv")
		md := metadata.New("id", val.IDs, val)
		if err := md.Save(path); err != nil {
			return nil, err
		}
		return map[string]any{"path": path, "name": val.Name, "type": string(val.Type)}, nil
	case *qtype.Set:
		return commandList(name, val.Items(), workdir)
	case []any:
		return commandList(name, val, workdir)
	}
	return v, nil
}

func commandList(name string, items []any, workdir string) ([]any, error) {
	out := make([]any, len(items))
	for i, item := range items {
		cv, err := commandValue(fmt.Sprintf("%s.%d", name, i), item, workdir)
		if err != nil {
			return nil, err
		}
		out[i] = cv
	}
	return out, nil
}

package move2wasm

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/wippyai/move2wasm/compiler"
	"github.com/wippyai/move2wasm/errors"
	"github.com/wippyai/move2wasm/move"
)

// CompileFile loads the package file at path and compiles its modules
func CompileFile(ctx context.Context, path string, opts compiler.Options) ([]*compiler.Output, error) {
	pkg, err := move.LoadPackage(path)
	if err != nil {
		return nil, errors.Load(path, err)
	}
	return compiler.CompilePackage(ctx, pkg, opts)
}

// OutputPath is the file an output is written to inside dir
func OutputPath(dir string, out *compiler.Output) string {
	return filepath.Join(dir, out.Module.Name+".wasm")
}

// WriteOutputs writes every output to dir, creating it if needed, and
// returns the paths written
func WriteOutputs(dir string, outs []*compiler.Output) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", dir, err)
	}
	paths := make([]string, 0, len(outs))
	for _, o := range outs {
		p := OutputPath(dir, o)
		if err := os.WriteFile(p, o.Wasm, 0o644); err != nil {
			return nil, fmt.Errorf("write %s: %w", p, err)
		}
		paths = append(paths, p)
	}
	return paths, nil
}

package move2wasm

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/wippyai/move2wasm/compiler"
	"github.com/wippyai/move2wasm/move"
	"github.com/wippyai/move2wasm/move/builder"
)

func TestCompileFile(t *testing.T) {
	dir := t.TempDir()
	b := builder.New(move.MustParseAddress("0xcafe"), "answer")
	b.AddFunction(builder.Function{
		Name:       "get",
		Returns:    []move.SignatureToken{move.U64},
		Visibility: move.VisibilityPublic,
		Code:       []move.Bytecode{builder.LdU64(42), builder.Op(move.OpRet)},
	})
	pkg := &move.Package{Name: "answer", Modules: []move.CompiledModule{*b.Build()}}
	path := filepath.Join(dir, "answer.mpk")
	if err := pkg.WriteFile(path); err != nil {
		t.Fatal(err)
	}

	outs, err := CompileFile(context.Background(), path, compiler.DefaultOptions())
	if err != nil {
		t.Fatalf("CompileFile: %v", err)
	}
	if len(outs) != 1 || len(outs[0].Routes) != 1 || outs[0].Routes[0].Signature != "get()" {
		t.Fatalf("outputs = %+v", outs)
	}

	paths, err := WriteOutputs(filepath.Join(dir, "out"), outs)
	if err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(paths[0])
	if err != nil {
		t.Fatal(err)
	}
	if string(data[:4]) != "\x00asm" {
		t.Errorf("%s does not start with the wasm magic", paths[0])
	}
}

func TestCompileFile_Missing(t *testing.T) {
	if _, err := CompileFile(context.Background(), filepath.Join(t.TempDir(), "none.mpk"), compiler.DefaultOptions()); err == nil {
		t.Fatal("expected an error")
	}
}

package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wippyai/move2wasm/compiler"
	"github.com/wippyai/move2wasm/errors"
	"github.com/wippyai/move2wasm/move"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [flags] <package.mpk>",
	Short: "Describe the modules of a package and their routes",
	Args:  cobra.ExactArgs(1),
	RunE:  inspectExecution,
}

func init() {
	inspectCmd.Flags().Bool("no-compile", false, "only list declarations")
}

func inspectExecution(cmd *cobra.Command, args []string) error {
	noCompile, err := cmd.Flags().GetBool("no-compile")
	if err != nil {
		return err
	}
	pkg, err := move.LoadPackage(args[0])
	if err != nil {
		return errors.Load(args[0], err)
	}

	w := cmd.OutOrStdout()
	nameColor.Fprintf(w, "package %s", pkg.Name)
	dimColor.Fprintf(w, " (format %d, %d modules, %d dependencies)\n", pkg.Version, len(pkg.Modules), len(pkg.Deps))
	for i := range pkg.Modules {
		describeModule(w, &pkg.Modules[i])
	}
	if noCompile {
		return nil
	}

	outs, err := compiler.CompilePackage(cmd.Context(), pkg, cfg.CompilerOptions())
	if err != nil {
		return err
	}
	for _, o := range outs {
		fmt.Fprintln(w)
		nameColor.Fprintf(w, "routes of %s", o.Module)
		dimColor.Fprintf(w, " (%d bytes, heap at %d)\n", len(o.Wasm), o.HeapStart)
		printRoutes(cmd, o.Routes)
	}
	return nil
}

func describeModule(w io.Writer, m *move.CompiledModule) {
	fmt.Fprintln(w)
	nameColor.Fprintln(w, "module "+m.Self().String())
	if deps := m.Dependencies(); len(deps) > 0 {
		names := make([]string, len(deps))
		for i, d := range deps {
			names[i] = d.String()
		}
		dimColor.Fprintf(w, "  uses %s\n", strings.Join(names, ", "))
	}
	for _, s := range m.StructDefs {
		h := m.DatatypeHandles[s.Handle]
		fields := make([]string, len(s.Fields))
		for i, f := range s.Fields {
			fields[i] = m.Identifier(f.Name) + ": " + f.Type.String()
		}
		fmt.Fprintf(w, "  struct %s%s { %s }\n", m.Identifier(h.Name), abilities(h.Abilities), strings.Join(fields, ", "))
	}
	for _, e := range m.EnumDefs {
		h := m.DatatypeHandles[e.Handle]
		variants := make([]string, len(e.Variants))
		for i, v := range e.Variants {
			variants[i] = m.Identifier(v.Name)
		}
		fmt.Fprintf(w, "  enum %s%s { %s }\n", m.Identifier(h.Name), abilities(h.Abilities), strings.Join(variants, ", "))
	}
	for _, f := range m.FunctionDefs {
		h := m.FunctionHandles[f.Function]
		var mods []string
		switch f.Visibility {
		case move.VisibilityPublic:
			mods = append(mods, "public")
		case move.VisibilityFriend:
			mods = append(mods, "public(package)")
		}
		if f.IsEntry {
			mods = append(mods, "entry")
		}
		if f.Code == nil {
			mods = append(mods, "native")
		}
		mods = append(mods, "fun")
		sig := m.Identifier(h.Name)
		if n := len(h.TypeParameters); n > 0 {
			sig += fmt.Sprintf("<%d>", n)
		}
		sig += "(" + tokens(m.Signature(h.Parameters)) + ")"
		if ret := m.Signature(h.Return); len(ret) > 0 {
			sig += ": " + tokens(ret)
		}
		fmt.Fprintf(w, "  %s %s", strings.Join(mods, " "), sig)
		if f.Code != nil {
			dimColor.Fprintf(w, "  [%d instructions]", len(f.Code.Code))
		}
		fmt.Fprintln(w)
	}
	if n := len(m.ConstantPool); n > 0 {
		dimColor.Fprintf(w, "  %d constants\n", n)
	}
}

func tokens(sig move.Signature) string {
	parts := make([]string, len(sig))
	for i, t := range sig {
		parts[i] = t.String()
	}
	return strings.Join(parts, ", ")
}

func abilities(s move.AbilitySet) string {
	var names []string
	for _, a := range []struct {
		a    move.Ability
		name string
	}{{move.AbilityCopy, "copy"}, {move.AbilityDrop, "drop"}, {move.AbilityStore, "store"}, {move.AbilityKey, "key"}} {
		if s.Has(a.a) {
			names = append(names, a.name)
		}
	}
	if len(names) == 0 {
		return ""
	}
	return " has " + strings.Join(names, ", ")
}

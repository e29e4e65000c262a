package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/wippyai/move2wasm"
	"github.com/wippyai/move2wasm/compiler"
)

var buildCmd = &cobra.Command{
	Use:   "build [flags] <package.mpk>",
	Short: "Compile every module of a package",
	Long:  "Compile every module of a Move package file into <module>.wasm files.",
	Args:  cobra.ExactArgs(1),
	RunE:  buildExecution,
}

func init() {
	buildCmd.Flags().StringP("out", "o", "build", "output directory")
	buildCmd.Flags().Bool("routes", false, "list the routes of each module")
}

func buildExecution(cmd *cobra.Command, args []string) error {
	dir, err := cmd.Flags().GetString("out")
	if err != nil {
		return err
	}
	showRoutes, err := cmd.Flags().GetBool("routes")
	if err != nil {
		return err
	}

	start := time.Now()
	outs, err := move2wasm.CompileFile(cmd.Context(), args[0], cfg.CompilerOptions())
	if err != nil {
		return err
	}
	paths, err := move2wasm.WriteOutputs(dir, outs)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	for i, o := range outs {
		okColor.Fprint(w, "compiled ")
		nameColor.Fprint(w, o.Module.String())
		fmt.Fprintf(w, " -> %s ", paths[i])
		dimColor.Fprintf(w, "(%d bytes, %d functions, %d routes)\n", len(o.Wasm), o.Functions, len(o.Routes))
		if showRoutes {
			printRoutes(cmd, o.Routes)
		}
	}
	dimColor.Fprintf(w, "done in %s\n", time.Since(start).Round(time.Millisecond))
	return nil
}

func printRoutes(cmd *cobra.Command, routes []compiler.Route) {
	w := cmd.OutOrStdout()
	for _, r := range routes {
		dimColor.Fprintf(w, "  0x%x ", r.Selector)
		fmt.Fprint(w, r.Signature)
		if len(r.Returns) > 0 {
			dimColor.Fprintf(w, " -> (%s)", strings.Join(r.Returns, ","))
		}
		dimColor.Fprintf(w, "  %s\n", r.Function)
	}
}

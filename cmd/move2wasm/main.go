// Command move2wasm compiles Move packages into Stylus style WASM modules
// and runs them against a local host.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"

	"github.com/wippyai/move2wasm/compiler"
	"github.com/wippyai/move2wasm/compiler/router"
	"github.com/wippyai/move2wasm/compiler/translate"
	"github.com/wippyai/move2wasm/config"
	"github.com/wippyai/move2wasm/host"
)

var rootCmd = &cobra.Command{
	Use:           "move2wasm",
	Short:         "Move bytecode to WASM compiler",
	Long:          "move2wasm compiles Move packages into WASM modules with a Solidity ABI entrypoint.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return setup(cmd)
	},
}

// cfg is the configuration every command runs with
var cfg = config.Default()

var (
	errColor  = color.New(color.FgRed, color.Bold)
	okColor   = color.New(color.FgGreen)
	nameColor = color.New(color.FgCyan, color.Bold)
	dimColor  = color.New(color.Faint)
)

func main() {
	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(runCmd)

	rootCmd.PersistentFlags().String("config", "", "path to "+config.FileName+" (default: search upwards)")
	rootCmd.PersistentFlags().String("log-level", "", "override log.level (debug|info|warn|error)")
	rootCmd.PersistentFlags().String("color", "auto", "colorize output (auto|on|off)")

	if err := rootCmd.Execute(); err != nil {
		errColor.Fprint(os.Stderr, "error: ")
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setup(cmd *cobra.Command) error {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return err
	}
	if path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.Discover(".")
	}
	if err != nil {
		return err
	}

	level, err := cmd.Flags().GetString("log-level")
	if err != nil {
		return err
	}
	if level != "" {
		cfg.Log.Level = level
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	mode, err := cmd.Flags().GetString("color")
	if err != nil {
		return err
	}
	switch strings.ToLower(mode) {
	case "on":
		color.NoColor = false
	case "off":
		color.NoColor = true
	case "", "auto":
		color.NoColor = !isTerminal(os.Stdout)
	default:
		return fmt.Errorf("invalid --color value %q (expected auto|on|off)", mode)
	}

	l, err := newLogger(cfg.Log.Level)
	if err != nil {
		return err
	}
	setLoggers(l)
	return nil
}

// newLogger returns a console logger on stderr. debug gets the
// development encoder with callers.
func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if lvl == zapcore.DebugLevel {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Encoding = "console"
	zc.Level = zap.NewAtomicLevelAt(lvl)
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}
	return zc.Build()
}

func setLoggers(l *zap.Logger) {
	compiler.SetLogger(l.Named("compiler"))
	translate.SetLogger(l.Named("translate"))
	router.SetLogger(l.Named("router"))
	host.SetLogger(l.Named("host"))
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

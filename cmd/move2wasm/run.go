package main

import (
	"context"
	"fmt"
	"os"

	"fortio.org/safecast"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wippyai/move2wasm"
	"github.com/wippyai/move2wasm/compiler"
	"github.com/wippyai/move2wasm/host"
)

const defaultSender = "0x00000000000000000000000000000000000a11ce"

var runCmd = &cobra.Command{
	Use:   "run [flags] <package.mpk> [function [args...]]",
	Short: "Compile a package and call a routed function",
	Long: `Compile a package and call one routed function on a fresh host.

Arguments are written in Solidity form: integers in decimal or 0x hex,
addresses and bytes32 in hex, lists as [a,b] and tuples as (a,b).
With -i the functions are called from an interactive session that keeps
storage between calls.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExecution,
}

func init() {
	runCmd.Flags().String("module", "", "module to load when the package has several")
	runCmd.Flags().String("sender", defaultSender, "transaction origin")
	runCmd.Flags().BoolP("interactive", "i", false, "interactive mode with TUI")
}

// session is a compiled module loaded into a host
type session struct {
	out     *compiler.Output
	host    *host.Host
	methods []*method
	sender  common.Address
}

func runExecution(cmd *cobra.Command, args []string) error {
	module, err := cmd.Flags().GetString("module")
	if err != nil {
		return err
	}
	senderHex, err := cmd.Flags().GetString("sender")
	if err != nil {
		return err
	}
	interactive, err := cmd.Flags().GetBool("interactive")
	if err != nil {
		return err
	}
	if !common.IsHexAddress(senderHex) {
		return fmt.Errorf("invalid --sender %q", senderHex)
	}

	ctx := cmd.Context()
	if interactive {
		if !isTerminal(os.Stdout) {
			return fmt.Errorf("interactive mode needs a terminal")
		}
		// log lines would tear the alternate screen
		setLoggers(zap.NewNop())
	}
	s, err := openSession(ctx, args[0], module, common.HexToAddress(senderHex))
	if err != nil {
		return err
	}
	defer s.host.Close(context.Background())

	if interactive {
		return runInteractive(s, args[0])
	}
	if len(args) < 2 {
		printRoutes(cmd, s.out.Routes)
		return nil
	}

	m, err := findMethod(s.methods, args[1])
	if err != nil {
		return err
	}
	text, failed, err := s.call(ctx, m, args[2:])
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	if failed {
		errColor.Fprintln(w, text)
		return fmt.Errorf("%s failed", m.route.Name())
	}
	okColor.Fprintln(w, text)
	return nil
}

func openSession(ctx context.Context, path, module string, sender common.Address) (*session, error) {
	outs, err := move2wasm.CompileFile(ctx, path, cfg.CompilerOptions())
	if err != nil {
		return nil, err
	}
	out, err := pickOutput(outs, module)
	if err != nil {
		return nil, err
	}
	ms, err := methods(out)
	if err != nil {
		return nil, err
	}
	pages, err := safecast.Conv[uint32](cfg.Build.MaxMemoryPages)
	if err != nil {
		return nil, fmt.Errorf("max_memory_pages: %w", err)
	}
	h, err := host.New(ctx, out.Wasm, &host.Config{Entrypoint: cfg.Build.Entrypoint, MemoryLimitPages: pages})
	if err != nil {
		return nil, err
	}
	return &session{out: out, host: h, methods: ms, sender: sender}, nil
}

func pickOutput(outs []*compiler.Output, module string) (*compiler.Output, error) {
	if module == "" {
		if len(outs) != 1 {
			return nil, fmt.Errorf("package has %d modules, choose one with --module", len(outs))
		}
		return outs[0], nil
	}
	for _, o := range outs {
		if o.Module.Name == module {
			return o, nil
		}
	}
	return nil, fmt.Errorf("no module %q in package", module)
}

// call encodes args, runs m and describes the outcome. A trap is
// reported as failed text rather than an error.
func (s *session) call(ctx context.Context, m *method, args []string) (text string, failed bool, err error) {
	data, err := m.encode(args)
	if err != nil {
		return "", false, err
	}
	res, err := s.host.Call(ctx, s.sender, data)
	if err != nil {
		return "trapped: " + err.Error(), true, nil
	}
	text, failed, err = m.outcome(res)
	if err == nil && len(res.Logs) > 0 {
		text += fmt.Sprintf(" (%d events)", len(res.Logs))
	}
	return text, failed, err
}

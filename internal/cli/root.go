// Package cli wires the compiler into a cobra command tree and maps error
// kinds onto process exit codes.
package cli

import (
	"errors"
	"log/slog"

	"github.com/me/dxcompiler/internal/cwlfront"
	"github.com/me/dxcompiler/internal/lang"
	"github.com/me/dxcompiler/internal/logging"
	"github.com/me/dxcompiler/pkg/ir"
	"github.com/spf13/cobra"
)

var (
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	logger *slog.Logger
)

// NewRootCmd creates the root cobra command for the dxcompiler CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "dxcompiler",
		Short: "dxcompiler — compile scientific workflows to platform executables",
		Long:  "dxcompiler translates CWL (and, through external front-ends, WDL) workflow documents into platform applets and workflows, reusing already-built objects by content digest.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flagDebug {
				flagLogLevel = "debug"
			}
			logger = logging.NewLogger(logging.ParseLevel(flagLogLevel), flagLogFormat)
			lang.Register("cwl", cwlfront.New(logger))
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(
		newCompileCmd(),
		newVersionCmd(),
	)

	return root
}

// ExitCode maps an error onto the process exit code: 0 success, 1 user or
// configuration error, 2 platform error, 3 internal invariant violation.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ce *ir.Error
	if !errors.As(err, &ce) {
		return 3
	}
	switch ce.Kind {
	case ir.ParseError, ir.TypeError, ir.UnsupportedConstruct, ir.ClosureError,
		ir.NameError, ir.ExecutableConflictError, ir.ConfigurationError:
		return 1
	case ir.PlatformError:
		return 2
	default:
		return 3
	}
}

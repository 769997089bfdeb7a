package cli

import (
	"encoding/json"
	"os"

	"github.com/me/dxcompiler/internal/compiler"
	"github.com/me/dxcompiler/internal/config"
	"github.com/me/dxcompiler/pkg/dx"
	"github.com/me/dxcompiler/pkg/ir"
	"github.com/spf13/cobra"
)

func newCompileCmd() *cobra.Command {
	opts := config.Default()
	var (
		flagExtras   string
		flagArchive  bool
		flagForce    bool
		flagStrict   bool
		flagSelector string
	)

	cmd := &cobra.Command{
		Use:   "compile <workflow file>",
		Short: "Compile a workflow document into platform executables",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch {
			case flagForce:
				opts.Conflicts = config.ConflictForceDelete
			case flagStrict:
				opts.Conflicts = config.ConflictStrict
			case flagArchive:
				opts.Conflicts = config.ConflictArchive
			}
			opts.InstanceTypeSelection = config.InstanceSelection(flagSelector)

			if flagExtras != "" {
				extras, err := config.LoadExtras(flagExtras)
				if err != nil {
					return err
				}
				opts.Extras = extras
			}

			api := dx.NewClient(dx.Config{
				BaseURL:    envOr("DX_APISERVER", "https://api.dnanexus.com"),
				Token:      os.Getenv("DX_SECURITY_TOKEN"),
				Timeout:    dx.DefaultConfig().Timeout,
				MaxRetries: dx.DefaultConfig().MaxRetries,
				RetryDelay: dx.DefaultConfig().RetryDelay,
			}, logger)

			c, err := compiler.New(api, opts, logger)
			if err != nil {
				return err
			}
			res, err := c.CompileFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printResult(res)
		},
	}

	cmd.Flags().StringVar(&opts.Project, "project", os.Getenv("DX_PROJECT_CONTEXT_ID"), "Destination project id")
	cmd.Flags().StringVar(&opts.Folder, "folder", "/", "Destination folder")
	cmd.Flags().StringVar(&opts.Language, "language", "", "Source language tag (inferred from the file extension when empty)")
	cmd.Flags().BoolVar(&opts.Locked, "locked", false, "Emit a locked top-level workflow")
	cmd.Flags().BoolVar(&opts.Reorg, "reorg", false, "Append an output reorganization stage")
	cmd.Flags().BoolVar(&opts.LeaveWorkflowsOpen, "leave-workflows-open", false, "Skip closing newly built workflows")
	cmd.Flags().BoolVar(&opts.ProjectWideReuse, "project-wide-reuse", false, "Reuse executables from anywhere in the project")
	cmd.Flags().IntVar(&opts.ScatterChunkSize, "scatter-chunk-size", 0, "Jobs launched per scatter chunk (0 keeps the platform default)")
	cmd.Flags().StringVar(&flagSelector, "instance-type-selection", string(config.SelectStatic), "Resolve constant resource hints at compile time (static) or run time (dynamic)")
	cmd.Flags().StringVar(&flagExtras, "extras", "", "Extras file (JSON or YAML) with runtime attribute overrides")
	cmd.Flags().StringVar(&opts.CacheDB, "cache", "", "SQLite build cache path (disabled when empty)")
	cmd.Flags().BoolVar(&flagArchive, "archive", true, "On digest conflict, archive the old executable")
	cmd.Flags().BoolVar(&flagForce, "force", false, "On digest conflict, delete the old executable")
	cmd.Flags().BoolVar(&flagStrict, "strict", false, "On digest conflict, fail without mutating anything")

	return cmd
}

// printResult writes the compiled executable ids to stdout as JSON.
func printResult(res *compiler.Result) error {
	out := struct {
		ID          string            `json:"id,omitempty"`
		Executables map[string]string `json:"executables"`
	}{Executables: map[string]string{}}
	if res.Primary != nil {
		out.ID = res.Primary.ID
	}
	for name, exec := range res.Executables {
		out.Executables[name] = exec.ID
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return ir.WrapError(ir.Internal, err, "writing result")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

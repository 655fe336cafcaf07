package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/late7/ai-doc-reader/internal/export"
	"github.com/late7/ai-doc-reader/internal/model"
	"github.com/late7/ai-doc-reader/internal/prompt"
)

var (
	analyzeWorkspace string
	analyzeSubject   string
	analyzeFiles     []string
	analyzeMode      string
	analyzeOut       string
	analyzeFormat    string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run one extraction and export the result",
	Long:  "Runs a figure extraction through the workspace chat backend, or sends local files directly to the model with --files.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		mode, err := prompt.ParseMode(analyzeMode)
		if err != nil {
			return err
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := seedRegistries(ctx, env); err != nil {
			return err
		}

		var run *model.Run
		if len(analyzeFiles) > 0 {
			run, err = env.Runner.RunDirect(ctx, analyzeSubject, mode, analyzeFiles)
		} else {
			slug := analyzeWorkspace
			if slug == "" {
				slug = cfg.Workspace.DefaultSlug
			}
			if slug == "" {
				return eris.New("a workspace slug is required (--workspace or AIDOC_WORKSPACE_DEFAULT_SLUG)")
			}
			run, err = env.Runner.RunWorkspace(ctx, slug, mode)
		}
		if err != nil {
			return err
		}

		zap.L().Info("extraction complete",
			zap.String("run_id", run.ID),
			zap.String("kind", string(run.ResultKind)),
			zap.Int("input_tokens", run.TokenUsage.InputTokens),
			zap.Int("output_tokens", run.TokenUsage.OutputTokens),
		)

		return writeRunExport(ctx, run, analyzeOut, analyzeFormat, env)
	},
}

// writeRunExport writes the run result to the requested path, defaulting the
// filename from the reported company name.
func writeRunExport(ctx context.Context, run *model.Run, out, format string, env *appEnv) error {
	if run.Result == nil {
		return eris.New("run produced no result")
	}

	if format == "" {
		if ext := filepath.Ext(out); ext == ".xlsx" {
			format = "xlsx"
		} else {
			format = "json"
		}
	}

	if out == "" {
		name := run.Result.CompanyName()
		if name == "" {
			name = "analysis"
		}
		out = export.Filename(name, format)
	}

	f, err := os.Create(out)
	if err != nil {
		return eris.Wrap(err, "create export file")
	}
	defer f.Close()

	switch format {
	case "xlsx":
		snap, err := env.Registry.ListFigures(ctx)
		if err != nil {
			return err
		}
		if err := export.WriteXLSX(f, *run.Result, snap.Figures); err != nil {
			return err
		}
	case "json":
		if err := export.WriteJSON(f, *run.Result); err != nil {
			return err
		}
	default:
		return eris.Errorf("unknown export format: %s", format)
	}

	zap.L().Info("result exported", zap.String("path", out))
	return nil
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeWorkspace, "workspace", "", "workspace slug for the RAG chat backend")
	analyzeCmd.Flags().StringVar(&analyzeSubject, "subject", "", "subject name hint for direct file analysis")
	analyzeCmd.Flags().StringSliceVar(&analyzeFiles, "files", nil, "local files to send directly to the model")
	analyzeCmd.Flags().StringVar(&analyzeMode, "mode", "", "analysis mode: single-period, timeseries or comprehensive")
	analyzeCmd.Flags().StringVar(&analyzeOut, "out", "", "output path (default derived from company name)")
	analyzeCmd.Flags().StringVar(&analyzeFormat, "format", "", "export format: json or xlsx (default json)")
	rootCmd.AddCommand(analyzeCmd)
}

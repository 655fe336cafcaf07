package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/late7/ai-doc-reader/internal/export"
)

var (
	questionsWorkspace string
	questionsOut       string
)

var questionsCmd = &cobra.Command{
	Use:   "questions",
	Short: "Manage and run the question registry",
}

var questionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the question registry",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		snap, err := env.Registry.ListQuestions(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("revision %d, %d questions\n", snap.Revision, len(snap.Questions))
		for _, q := range snap.Questions {
			state := " "
			if !q.Enabled {
				state = "-"
			}
			fmt.Printf("%s %3d  %s  %s\n", state, q.Order, q.ID, q.Title)
		}
		return nil
	},
}

var questionsRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run every enabled question against a workspace",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		slug := questionsWorkspace
		if slug == "" {
			slug = cfg.Workspace.DefaultSlug
		}
		if slug == "" {
			return eris.New("a workspace slug is required (--workspace or AIDOC_WORKSPACE_DEFAULT_SLUG)")
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		answers, err := env.Runner.RunAllQuestions(ctx, slug)
		if err != nil {
			return err
		}

		failed := 0
		for _, a := range answers {
			if a.Error != "" {
				failed++
			}
		}
		zap.L().Info("questions run",
			zap.String("workspace", slug),
			zap.Int("answered", len(answers)-failed),
			zap.Int("failed", failed),
		)

		out := questionsOut
		if out == "" {
			out = export.Filename(slug+"_answers", "json")
		}
		f, err := os.Create(out)
		if err != nil {
			return eris.Wrap(err, "create answers file")
		}
		defer f.Close()

		if err := export.WriteAnswersJSON(f, answers); err != nil {
			return err
		}
		zap.L().Info("answers exported", zap.String("path", out))
		return nil
	},
}

func init() {
	questionsRunCmd.Flags().StringVar(&questionsWorkspace, "workspace", "", "workspace slug to run against")
	questionsRunCmd.Flags().StringVar(&questionsOut, "out", "", "answers output path (default derived from slug)")
	questionsCmd.AddCommand(questionsListCmd)
	questionsCmd.AddCommand(questionsRunCmd)
	rootCmd.AddCommand(questionsCmd)
}

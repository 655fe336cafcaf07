package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/late7/ai-doc-reader/internal/export"
)

var figuresCmd = &cobra.Command{
	Use:   "figures",
	Short: "Manage the figure registry",
}

var figuresListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the figure registry",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		snap, err := env.Registry.ListFigures(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("revision %d, %d figures\n", snap.Revision, len(snap.Figures))
		for _, f := range snap.Figures {
			state := " "
			if !f.Enabled {
				state = "-"
			}
			fmt.Printf("%s %3d  %-32s %s\n", state, f.Order, f.ID, f.Name)
		}
		return nil
	},
}

var figuresImportCmd = &cobra.Command{
	Use:   "import <file.xlsx>",
	Short: "Replace the figure registry from a spreadsheet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		rows, err := export.ReadFigureRows(args[0])
		if err != nil {
			return err
		}

		snap, res, err := env.Registry.ImportFigures(ctx, rows)
		if err != nil {
			return err
		}

		zap.L().Info("figure registry imported",
			zap.String("file", args[0]),
			zap.Int("imported", res.Imported),
			zap.Int("dropped", res.Dropped),
			zap.Int64("revision", snap.Revision),
		)
		return nil
	},
}

var figuresExportCmd = &cobra.Command{
	Use:   "export <out.xlsx>",
	Short: "Write the figure registry to a spreadsheet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		snap, err := env.Registry.ListFigures(ctx)
		if err != nil {
			return err
		}

		f, err := os.Create(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		if err := export.WriteFigureXLSX(f, snap.Figures); err != nil {
			return err
		}
		zap.L().Info("figure registry exported", zap.String("path", args[0]), zap.Int("figures", len(snap.Figures)))
		return nil
	},
}

var figuresSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load the configured seed file into empty registries",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		return seedRegistries(ctx, env)
	},
}

func init() {
	figuresCmd.AddCommand(figuresListCmd)
	figuresCmd.AddCommand(figuresImportCmd)
	figuresCmd.AddCommand(figuresExportCmd)
	figuresCmd.AddCommand(figuresSeedCmd)
	rootCmd.AddCommand(figuresCmd)
}

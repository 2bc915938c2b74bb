package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/swarm-handbook/editor/internal/dashboard"
	"github.com/swarm-handbook/editor/internal/export"
	"github.com/swarm-handbook/editor/model"
)

func newExportCmd(flags *rootFlags) *cobra.Command {
	var outDir string
	c := &cobra.Command{
		Use:   "export <product-id|file>",
		Short: "Write a product as {product_id}.json",
		Long: strings.TrimSpace(`
Load a catalog product or a local product file, refresh it the way the editor
does (sets sorted, missions derived from spacecraft), and write the export
document to {product_id}.json in the output directory.`),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := flags.newToolkit()
			if err != nil {
				return err
			}
			ctl, err := t.open(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			path, err := exportPath(outDir, ctl.Product())
			if err != nil {
				return err
			}
			view := ctl.View()
			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return fmt.Errorf("creating output directory: %w", err)
			}
			if err := os.WriteFile(path, view.Document, 0o644); err != nil {
				return fmt.Errorf("writing %s: %w", path, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	c.Flags().StringVarP(&outDir, "out", "o", ".", "Output directory")
	return c
}

// exportPath returns the file inside dir that the export of p is written to.
// A product_id that is empty or contains a path separator is rejected.
func exportPath(dir string, p *model.Product) (string, error) {
	id := p.ProductID
	if strings.TrimSpace(id) == "" {
		return "", model.NewBadRequestError("product_id is empty, cannot name the export file")
	}
	if strings.ContainsAny(id, `/\`) {
		return "", model.NewBadRequestError(fmt.Sprintf("product_id %q contains a path separator", id))
	}
	return filepath.Join(dir, export.Filename(p)), nil
}

func newPreviewCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "preview <product-id|file>",
		Short: "Print the Markdown preview of a product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := flags.newToolkit()
			if err != nil {
				return err
			}
			ctl, err := t.open(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), ctl.View().Markdown)
			return err
		},
	}
}

func newValidateCmd(flags *rootFlags) *cobra.Command {
	var strict bool
	c := &cobra.Command{
		Use:   "validate <file>...",
		Short: "Check product files and print their hints",
		Long: strings.TrimSpace(`
Parse each product file and print the schema and enumeration hints the editor
would show. A file that cannot be parsed fails validation. Hints are advisory
unless --strict is given.`),
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := flags.newToolkit()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			failed := 0
			for _, path := range args {
				doc, err := os.ReadFile(path)
				if err != nil {
					fmt.Fprintf(out, "✗ %s: %v\n", path, err)
					failed++
					continue
				}

				ctl := dashboard.FromSnapshot(cmd.Context(), t.options(), dashboard.Snapshot{})
				if err := ctl.LoadFromUpload(cmd.Context(), doc); err != nil {
					fmt.Fprintf(out, "✗ %s: %v\n", path, err)
					failed++
					continue
				}

				hints := ctl.View().Hints
				mark := "✓"
				if strict && len(hints) > 0 {
					mark = "✗"
					failed++
				}
				fmt.Fprintf(out, "%s %s (%s)\n", mark, path, ctl.Product().ProductID)
				if err := export.HintTable(hints, out); err != nil {
					return err
				}
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d files failed validation", failed, len(args))
			}
			return nil
		},
	}
	c.Flags().BoolVar(&strict, "strict", false, "Treat hints as failures")
	return c
}

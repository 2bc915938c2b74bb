package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/swarm-handbook/editor/internal/export"
)

func newCatalogCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect the product catalog",
	}
	cmd.AddCommand(newCatalogListCmd(flags))
	cmd.AddCommand(newCatalogShowCmd(flags))
	return cmd
}

func newCatalogListCmd(flags *rootFlags) *cobra.Command {
	var prefix string
	c := &cobra.Command{
		Use:   "list",
		Short: "List catalog products as a table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := flags.newToolkit()
			if err != nil {
				return err
			}
			cat, err := t.loadCatalog()
			if err != nil {
				return err
			}

			products := cat.Products()
			if prefix != "" {
				products = products[:0]
				for _, id := range cat.Match(prefix) {
					p, err := cat.Get(id)
					if err != nil {
						return err
					}
					products = append(products, p)
				}
			}
			return export.Summary(products, cmd.OutOrStdout())
		},
	}
	c.Flags().StringVarP(&prefix, "prefix", "p", "", "Only list products whose id starts with this prefix (case-insensitive)")
	return c
}

func newCatalogShowCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show <product-id>",
		Short: "Print a catalog product as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := flags.newToolkit()
			if err != nil {
				return err
			}
			cat, err := t.loadCatalog()
			if err != nil {
				return err
			}
			p, err := cat.Get(args[0])
			if err != nil {
				return err
			}
			doc, err := export.ToJSON(p)
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), string(doc))
			return err
		},
	}
}

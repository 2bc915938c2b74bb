package export

import (
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"golang.org/x/term"

	"github.com/swarm-handbook/editor/model"
)

const (
	minDefinitionWidth = 20
	maxDefinitionWidth = 60
)

// Summary writes a table of products to w, one row per product in the order
// given, followed by a count line.
func Summary(products []*model.Product, w io.Writer) error {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleRounded)
	tw.Style().Options.SeparateRows = false

	tw.AppendHeader(table.Row{"Product ID", "Definition", "Spacecraft", "Missions", "Thematic areas"})

	width := definitionWidth(w)
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, WidthMax: width, Transformer: truncTransformer(width)},
	})

	for _, p := range products {
		tw.AppendRow(table.Row{
			p.ProductID,
			p.Definition,
			strings.Join(p.ApplicableSpacecraft, ", "),
			strings.Join(p.ApplicableMissions, ", "),
			strings.Join(p.ThematicAreas, ", "),
		})
	}
	tw.Render()

	if _, err := fmt.Fprintf(w, "%d products\n", len(products)); err != nil {
		return fmt.Errorf("writing summary count: %w", err)
	}
	return nil
}

// definitionWidth sizes the definition column to a third of the terminal,
// or the maximum when w is not a terminal.
func definitionWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok {
		return maxDefinitionWidth
	}
	cols, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return maxDefinitionWidth
	}
	return max(minDefinitionWidth, min(maxDefinitionWidth, cols/3))
}

// truncTransformer ellipsizes cells longer than limit runes.
func truncTransformer(limit int) text.Transformer {
	return func(val interface{}) string {
		s := fmt.Sprint(val)
		if utf8.RuneCountInString(s) <= limit {
			return s
		}
		runes := []rune(s)
		return string(runes[:limit-1]) + "…"
	}
}

// HintTable writes hints as a table, or a single line when there are none.
func HintTable(hints []model.Hint, w io.Writer) error {
	if len(hints) == 0 {
		_, err := fmt.Fprintln(w, "no hints")
		return err
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"Field", "Source", "Hint"})
	for _, h := range hints {
		tw.AppendRow(table.Row{h.Field, h.Source, h.Message})
	}
	tw.Render()
	return nil
}

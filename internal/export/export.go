// Package export renders products as downloadable JSON documents, Markdown
// previews, and console summaries. Every function is pure with respect to
// its inputs.
package export

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/swarm-handbook/editor/model"
)

// ToJSON returns the export document for p: indented, keys in record order,
// sets sorted, HTML unescaped, newline terminated.
func ToJSON(p *model.Product) ([]byte, error) {
	return model.MarshalProduct(p)
}

// Filename returns the download filename for p.
func Filename(p *model.Product) string {
	return p.ProductID + ".json"
}

// Location returns the deep link query that reopens the editor on p. The
// id is query-escaped so that it survives the unescape on reload.
func Location(p *model.Product) string {
	return "?" + url.QueryEscape(p.ProductID)
}

type link struct {
	label string
	url   string
}

// ToMarkdown renders an approximate handbook page for p. HTML fields are
// embedded as-is and the variables table is kept verbatim in a fenced csv
// block. Empty sections are omitted.
func ToMarkdown(p *model.Product) string {
	var b strings.Builder

	title := p.ProductID
	if title == "" {
		title = "(untitled product)"
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	if p.Definition != "" {
		fmt.Fprintf(&b, "%s\n\n", p.Definition)
	}

	writeList(&b, "Thematic areas", model.NormalizeSet(p.ThematicAreas))
	writeList(&b, "Spacecraft", model.NormalizeSet(p.ApplicableSpacecraft))
	writeList(&b, "Missions", model.NormalizeSet(p.ApplicableMissions))

	links := []link{
		{"Files (HTTP)", p.LinkFilesHTTP},
		{"Files (FTP)", p.LinkFilesFTP},
		{"VirES GUI", p.LinkViresGUI},
		{"Notebook", p.LinkNotebook},
		{"HAPI", p.LinkHAPI},
	}
	var present []link
	for _, l := range links {
		if strings.TrimSpace(l.url) != "" {
			present = append(present, l)
		}
	}
	if len(present) > 0 {
		b.WriteString("## Links\n\n")
		for _, l := range present {
			fmt.Fprintf(&b, "- [%s](%s)\n", l.label, l.url)
		}
		b.WriteString("\n")
	}

	writeSection(&b, "Description", p.Description)
	if strings.TrimSpace(p.VariablesTable) != "" {
		fence := codeFence(p.VariablesTable)
		fmt.Fprintf(&b, "## Variables\n\n%scsv\n", fence)
		b.WriteString(p.VariablesTable)
		if !strings.HasSuffix(p.VariablesTable, "\n") {
			b.WriteString("\n")
		}
		b.WriteString(fence + "\n\n")
	}
	writeSection(&b, "Details", p.Details)
	writeSection(&b, "Related resources", p.RelatedResources)
	writeSection(&b, "Changelog", p.Changelog)

	return strings.TrimRight(b.String(), "\n") + "\n"
}

// codeFence returns a backtick fence longer than any backtick run in body.
func codeFence(body string) string {
	longest, run := 0, 0
	for _, r := range body {
		if r != '`' {
			run = 0
			continue
		}
		run++
		if run > longest {
			longest = run
		}
	}
	return strings.Repeat("`", max(3, longest+1))
}

func writeList(b *strings.Builder, label string, values []string) {
	if len(values) == 0 {
		return
	}
	fmt.Fprintf(b, "**%s:** %s\n\n", label, strings.Join(values, ", "))
}

func writeSection(b *strings.Builder, heading, body string) {
	if strings.TrimSpace(body) == "" {
		return
	}
	fmt.Fprintf(b, "## %s\n\n%s\n\n", heading, strings.TrimSpace(body))
}

package dashboard

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/swarm-handbook/editor/model"
)

type fieldKind int

const (
	kindText fieldKind = iota
	kindTextArea
	kindMultiSelect
)

// fieldBinding ties one editor widget to one Product field. get reads the
// field in widget form; set writes a coerced widget value back.
type fieldBinding struct {
	Name        string
	Kind        fieldKind
	Label       string
	Placeholder string
	HelpText    string
	Format      string

	get func(p *model.Product) any
	set func(p *model.Product, v any)
}

func textField(name, label string, ptr func(p *model.Product) *string) fieldBinding {
	return fieldBinding{
		Name:  name,
		Kind:  kindText,
		Label: label,
		get:   func(p *model.Product) any { return *ptr(p) },
		set:   func(p *model.Product, v any) { *ptr(p) = asText(v) },
	}
}

func areaField(name, label, format string, ptr func(p *model.Product) *string) fieldBinding {
	b := textField(name, label, ptr)
	b.Kind = kindTextArea
	b.Format = format
	return b
}

func linkField(name string, ptr func(p *model.Product) *string) fieldBinding {
	b := textField(name, name, ptr)
	b.Placeholder = name
	b.Format = "uri"
	return b
}

func setField(name, label string, ptr func(p *model.Product) *[]string) fieldBinding {
	return fieldBinding{
		Name:  name,
		Kind:  kindMultiSelect,
		Label: label,
		get:   func(p *model.Product) any { return slices.Clone(*ptr(p)) },
		set:   func(p *model.Product, v any) { *ptr(p) = asSet(v) },
	}
}

// bindings lists every editable field in editor order. applicable_missions
// is derived on refresh and has no widget.
var bindings = []fieldBinding{
	textField(model.FieldProductID, "product_id", func(p *model.Product) *string { return &p.ProductID }),
	textField(model.FieldDefinition, "definition", func(p *model.Product) *string { return &p.Definition }),
	setField(model.FieldThematicAreas, "Thematic areas", func(p *model.Product) *[]string { return &p.ThematicAreas }),
	setField(model.FieldApplicableSpacecraft, "applicable_spacecraft", func(p *model.Product) *[]string { return &p.ApplicableSpacecraft }),
	linkField(model.FieldLinkFilesHTTP, func(p *model.Product) *string { return &p.LinkFilesHTTP }),
	linkField(model.FieldLinkFilesFTP, func(p *model.Product) *string { return &p.LinkFilesFTP }),
	linkField(model.FieldLinkViresGUI, func(p *model.Product) *string { return &p.LinkViresGUI }),
	linkField(model.FieldLinkNotebook, func(p *model.Product) *string { return &p.LinkNotebook }),
	linkField(model.FieldLinkHAPI, func(p *model.Product) *string { return &p.LinkHAPI }),
	areaField(model.FieldDescription, "description", "html", func(p *model.Product) *string { return &p.Description }),
	areaField(model.FieldVariablesTable, "variables_table", "csv", func(p *model.Product) *string { return &p.VariablesTable }),
	areaField(model.FieldDetails, "details", "html", func(p *model.Product) *string { return &p.Details }),
	areaField(model.FieldRelatedResources, "related_resources", "html", func(p *model.Product) *string { return &p.RelatedResources }),
	areaField(model.FieldChangelog, "changelog", "html", func(p *model.Product) *string { return &p.Changelog }),
}

var bindingIndex = func() map[string]int {
	idx := make(map[string]int, len(bindings))
	for i, b := range bindings {
		idx[b.Name] = i
	}
	return idx
}()

func lookupBinding(name string) (fieldBinding, bool) {
	i, ok := bindingIndex[name]
	if !ok {
		return fieldBinding{}, false
	}
	return bindings[i], true
}

// FieldNames returns the editable field names in editor order.
func FieldNames() []string {
	names := make([]string, len(bindings))
	for i, b := range bindings {
		names[i] = b.Name
	}
	return names
}

// asText coerces a widget value to a string. Lists are joined with newlines.
// Numbers keep their literal text.
func asText(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case []string:
		return strings.Join(x, "\n")
	case []any:
		parts := make([]string, 0, len(x))
		for _, e := range x {
			parts = append(parts, asText(e))
		}
		return strings.Join(parts, "\n")
	default:
		return fmt.Sprint(x)
	}
}

// asSet coerces a widget value to a set. A non-empty scalar becomes a
// one-element set.
func asSet(v any) []string {
	switch x := v.(type) {
	case nil:
		return []string{}
	case string:
		if x == "" {
			return []string{}
		}
		return []string{x}
	case []string:
		return slices.Clone(x)
	case []any:
		out := make([]string, 0, len(x))
		for _, e := range x {
			if s := asText(e); s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return []string{asText(x)}
	}
}

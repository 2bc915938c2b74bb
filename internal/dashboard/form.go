package dashboard

import (
	"github.com/swarm-handbook/editor/model"
)

// Instructions is the help text shown above the editor.
const Instructions = `This tool edits the product records of the Swarm data handbook catalog.

- Left panel: data entry. Right panel: preview (JSON | Output preview).
- Optionally choose an existing record by typing its id, or upload a local JSON file.
- Enter information, then click "Refresh!" to update the preview.
- Check the approximate rendering in the "Output preview" tab.
- Download the JSON file and add it to the catalog.
- **Hints:**
    - HTML fields (description, details, related_resources, changelog) take raw HTML.
    - Hints next to the JSON preview are advisory. Warnings on empty fields can be ignored.
    - Open the editor on an existing record by appending its id to the URL, e.g. ` + "`?SW_MAGx_LR_1B`" + `.`

// Field names of the controls that are not product fields.
const (
	SelectorField = "product_id_selector"
	UploadField   = "external_file"
)

const textAreaHeight = 200

// Form describes the editor for the frontend. basePath is the session's URL
// prefix and is used to build action endpoints.
func (c *Controller) Form(basePath string) model.FormDescriptor {
	return model.FormDescriptor{
		ID:           "product-editor",
		Title:        "Swarm product metadata editor",
		Instructions: Instructions,
		Sections: []model.SectionDescriptor{
			{
				ID:          "load",
				Title:       "Load data",
				Collapsible: true,
				Fields: []model.FieldDescriptor{
					{
						Field:         SelectorField,
						Label:         "Load from existing records",
						Type:          model.WidgetAutocomplete,
						Placeholder:   "Start typing SW_MAG...",
						MinCharacters: 1,
						Options:       idOptions(c.catalogIDs()),
					},
					{
						Field:    UploadField,
						Label:    "Load from local file",
						Type:     model.WidgetFile,
						Format:   "application/json",
						HelpText: "One product JSON document.",
					},
				},
			},
			{
				ID:          "edit",
				Title:       "Edit properties",
				Collapsible: true,
				Fields:      c.fieldDescriptors(),
			},
		},
		Actions: []model.ActionDescriptor{
			{ID: "load", Label: "Load", Style: "primary", Method: "POST", Endpoint: basePath + "/load"},
			{ID: "upload", Label: "Load", Style: "primary", Method: "POST", Endpoint: basePath + "/upload"},
			{ID: "refresh", Label: "Refresh!", Style: "primary", Method: "POST", Endpoint: basePath + "/refresh"},
			{ID: "download", Label: "Download JSON", Method: "GET", Endpoint: basePath + "/download"},
		},
	}
}

func (c *Controller) fieldDescriptors() []model.FieldDescriptor {
	out := make([]model.FieldDescriptor, 0, len(bindings))
	for _, b := range bindings {
		fd := model.FieldDescriptor{
			Field:       b.Name,
			Label:       b.Label,
			Format:      b.Format,
			Placeholder: b.Placeholder,
			HelpText:    b.HelpText,
			Value:       c.widgets[b.Name],
		}
		switch b.Kind {
		case kindTextArea:
			fd.Type = model.WidgetTextArea
			fd.Height = textAreaHeight
		case kindMultiSelect:
			fd.Type = model.WidgetMultiSelect
			fd.Options = c.enumOptions(b.Name)
		default:
			fd.Type = model.WidgetText
		}
		out = append(out, fd)
	}
	return out
}

func (c *Controller) enumOptions(field string) []model.OptionDescriptor {
	switch field {
	case model.FieldApplicableSpacecraft:
		return idOptions(c.opts.Enumerations.Spacecraft)
	case model.FieldThematicAreas:
		return idOptions(c.opts.Enumerations.ThematicAreas)
	}
	return nil
}

func (c *Controller) catalogIDs() []string {
	if c.opts.Catalog == nil {
		return nil
	}
	return c.opts.Catalog.IDs()
}

func idOptions(values []string) []model.OptionDescriptor {
	out := make([]model.OptionDescriptor, len(values))
	for i, v := range values {
		out[i] = model.OptionDescriptor{Label: v, Value: v}
	}
	return out
}

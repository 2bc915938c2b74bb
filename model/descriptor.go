package model

// Widget types understood by the frontend.
const (
	WidgetText         = "text"
	WidgetTextArea     = "textarea"
	WidgetMultiSelect  = "multiselect"
	WidgetAutocomplete = "autocomplete"
	WidgetFile         = "file"
)

// FormDescriptor is the resolved editor form sent to the frontend.
type FormDescriptor struct {
	ID           string              `json:"id"`
	Title        string              `json:"title"`
	Instructions string              `json:"instructions,omitempty"`
	Sections     []SectionDescriptor `json:"sections"`
	Actions      []ActionDescriptor  `json:"actions,omitempty"`
}

// SectionDescriptor is a resolved section.
type SectionDescriptor struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Collapsible bool              `json:"collapsible"`
	Collapsed   bool              `json:"collapsed"`
	Fields      []FieldDescriptor `json:"fields"`
}

// FieldDescriptor is a resolved widget sent to the frontend.
type FieldDescriptor struct {
	Field         string             `json:"field"`
	Label         string             `json:"label"`
	Type          string             `json:"type"`
	Format        string             `json:"format,omitempty"`
	Placeholder   string             `json:"placeholder,omitempty"`
	HelpText      string             `json:"help_text,omitempty"`
	MaxLength     int                `json:"max_length,omitempty"`
	MinCharacters int                `json:"min_characters,omitempty"`
	Height        int                `json:"height,omitempty"`
	Options       []OptionDescriptor `json:"options,omitempty"`
	Value         any                `json:"value,omitempty"`
}

// OptionDescriptor is a resolved option for selection widgets.
type OptionDescriptor struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// ActionDescriptor is a resolved button sent to the frontend.
type ActionDescriptor struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	Style    string `json:"style,omitempty"`
	Method   string `json:"method"`
	Endpoint string `json:"endpoint"`
}

// Hint is an advisory validation message shown next to the JSON preview.
// Hints never block export.
type Hint struct {
	Field   string `json:"field"`
	Source  string `json:"source"`
	Message string `json:"message"`
}

// Hint sources.
const (
	HintSourceSchema      = "schema"
	HintSourceEnumeration = "enumeration"
)

// Notification is a non-fatal message surfaced to the user.
type Notification struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// Notification levels.
const (
	NotifyInfo  = "info"
	NotifyError = "error"
)

// View is the rendered output of the last refresh. Document is the exported
// JSON bytes; JSON is the same document decoded for the viewer.
type View struct {
	Document []byte         `json:"-"`
	JSON     map[string]any `json:"json"`
	Markdown string         `json:"markdown"`
	Filename string         `json:"filename"`
	Location string         `json:"location"`
	Hints    []Hint         `json:"hints"`
}

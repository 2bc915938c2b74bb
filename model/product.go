package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
)

// Product is one metadata record describing a Swarm data product. Field
// order is the order of keys in the exported JSON document.
type Product struct {
	ProductID        string `json:"product_id"`
	Definition       string `json:"definition"`
	Description      string `json:"description"`
	Details          string `json:"details"`
	RelatedResources string `json:"related_resources"`
	Changelog        string `json:"changelog"`

	ApplicableSpacecraft []string `json:"applicable_spacecraft"`
	// ApplicableMissions is derived from ApplicableSpacecraft on refresh.
	ApplicableMissions []string `json:"applicable_missions"`
	ThematicAreas      []string `json:"thematic_areas"`

	LinkFilesHTTP string `json:"link_files_http"`
	LinkFilesFTP  string `json:"link_files_ftp"`
	LinkViresGUI  string `json:"link_vires_gui"`
	LinkNotebook  string `json:"link_notebook"`
	LinkHAPI      string `json:"link_hapi"`

	// VariablesTable is CSV text kept verbatim.
	VariablesTable string `json:"variables_table"`
}

// Product JSON field names.
const (
	FieldProductID            = "product_id"
	FieldDefinition           = "definition"
	FieldDescription          = "description"
	FieldDetails              = "details"
	FieldRelatedResources     = "related_resources"
	FieldChangelog            = "changelog"
	FieldApplicableSpacecraft = "applicable_spacecraft"
	FieldApplicableMissions   = "applicable_missions"
	FieldThematicAreas        = "thematic_areas"
	FieldLinkFilesHTTP        = "link_files_http"
	FieldLinkFilesFTP         = "link_files_ftp"
	FieldLinkViresGUI         = "link_vires_gui"
	FieldLinkNotebook         = "link_notebook"
	FieldLinkHAPI             = "link_hapi"
	FieldVariablesTable       = "variables_table"
)

// requiredFields lists the keys a document must carry to be accepted as a
// Product. applicable_missions is recomputed on refresh and may be absent.
var requiredFields = []string{
	FieldProductID,
	FieldDefinition,
	FieldDescription,
	FieldDetails,
	FieldRelatedResources,
	FieldChangelog,
	FieldApplicableSpacecraft,
	FieldThematicAreas,
	FieldLinkFilesHTTP,
	FieldLinkFilesFTP,
	FieldLinkViresGUI,
	FieldLinkNotebook,
	FieldLinkHAPI,
	FieldVariablesTable,
}

// RequiredFields returns the keys required by ParseProduct.
func RequiredFields() []string {
	return slices.Clone(requiredFields)
}

// NewProduct returns an empty Product: blank strings and empty, non-nil sets.
func NewProduct() *Product {
	return &Product{
		ApplicableSpacecraft: []string{},
		ApplicableMissions:   []string{},
		ThematicAreas:        []string{},
	}
}

// Clone returns a deep copy of p.
func (p *Product) Clone() *Product {
	if p == nil {
		return nil
	}
	c := *p
	c.ApplicableSpacecraft = cloneSet(p.ApplicableSpacecraft)
	c.ApplicableMissions = cloneSet(p.ApplicableMissions)
	c.ThematicAreas = cloneSet(p.ThematicAreas)
	return &c
}

// Normalize sorts and de-duplicates every set field in place. Nil sets
// become empty sets so they serialize as [].
func (p *Product) Normalize() {
	p.ApplicableSpacecraft = NormalizeSet(p.ApplicableSpacecraft)
	p.ApplicableMissions = NormalizeSet(p.ApplicableMissions)
	p.ThematicAreas = NormalizeSet(p.ThematicAreas)
}

// ApplyMissions recomputes ApplicableMissions from ApplicableSpacecraft.
func (p *Product) ApplyMissions(enums *Enumerations) {
	p.ApplicableMissions = enums.DeriveMissions(p.ApplicableSpacecraft)
}

// Equal reports whether two products hold the same values. Set fields are
// compared element-wise, so callers should normalize first.
func (p *Product) Equal(o *Product) bool {
	if p == nil || o == nil {
		return p == o
	}
	return p.ProductID == o.ProductID &&
		p.Definition == o.Definition &&
		p.Description == o.Description &&
		p.Details == o.Details &&
		p.RelatedResources == o.RelatedResources &&
		p.Changelog == o.Changelog &&
		slices.Equal(p.ApplicableSpacecraft, o.ApplicableSpacecraft) &&
		slices.Equal(p.ApplicableMissions, o.ApplicableMissions) &&
		slices.Equal(p.ThematicAreas, o.ThematicAreas) &&
		p.LinkFilesHTTP == o.LinkFilesHTTP &&
		p.LinkFilesFTP == o.LinkFilesFTP &&
		p.LinkViresGUI == o.LinkViresGUI &&
		p.LinkNotebook == o.LinkNotebook &&
		p.LinkHAPI == o.LinkHAPI &&
		p.VariablesTable == o.VariablesTable
}

// MarshalProduct encodes p as an indented JSON document. Keys follow the
// struct order, sets are emitted sorted, and HTML is left unescaped. p is
// not modified.
func MarshalProduct(p *Product) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("marshal product: nil product")
	}
	c := p.Clone()
	c.Normalize()

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(c); err != nil {
		return nil, fmt.Errorf("marshal product %q: %w", p.ProductID, err)
	}
	return buf.Bytes(), nil
}

// ParseProduct decodes a JSON document into a Product. It returns a
// PARSE_ERROR envelope if doc is not a JSON object, is missing a required
// key, or holds a value of the wrong type. Unknown keys are ignored.
func ParseProduct(doc []byte) (*Product, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(doc, &raw); err != nil {
		return nil, NewParseError(fmt.Sprintf("document is not a JSON object: %v", err))
	}
	if raw == nil {
		return nil, NewParseError("document is not a JSON object")
	}

	var missing []FieldError
	for _, key := range requiredFields {
		if _, ok := raw[key]; !ok {
			missing = append(missing, FieldError{
				Field:   key,
				Code:    "REQUIRED",
				Message: fmt.Sprintf("%s is required", key),
			})
		}
	}
	if len(missing) > 0 {
		e := NewParseError("document is missing required keys")
		e.Details = missing
		return nil, e
	}

	p := NewProduct()
	if err := json.Unmarshal(doc, p); err != nil {
		return nil, NewParseError(fmt.Sprintf("document has invalid field types: %v", err))
	}
	p.Normalize()
	return p, nil
}

// NormalizeSet returns a sorted copy of values without duplicates. The
// result is never nil.
func NormalizeSet(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func cloneSet(values []string) []string {
	if values == nil {
		return []string{}
	}
	return slices.Clone(values)
}

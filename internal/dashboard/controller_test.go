package dashboard

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swarm-handbook/editor/internal/catalog"
	"github.com/swarm-handbook/editor/internal/observability"
	"github.com/swarm-handbook/editor/internal/schema"
	"github.com/swarm-handbook/editor/model"
)

func testEnums() *model.Enumerations {
	return &model.Enumerations{
		Spacecraft:    []string{"A", "B", "C", "Swarm-A", "Swarm-B", "Swarm-C"},
		ThematicAreas: []string{"Magnetic field", "Ionospheric plasma"},
		Missions: map[string]string{
			"A": "Swarm", "B": "Swarm", "C": "Swarm",
			"Swarm-A": "Swarm", "Swarm-B": "Swarm", "Swarm-C": "Swarm",
		},
	}
}

func magProduct() *model.Product {
	p := model.NewProduct()
	p.ProductID = "SW_MAGx_LR_1B"
	p.Definition = "Magnetic field (1Hz) from VFM and ASM"
	p.Description = "<p>Low-rate magnetic data</p>"
	p.ApplicableSpacecraft = []string{"Swarm-A", "Swarm-B", "Swarm-C"}
	p.ApplicableMissions = []string{"Swarm"}
	p.ThematicAreas = []string{"Magnetic field"}
	p.LinkHAPI = "https://vires.services/hapi"
	p.VariablesTable = "variable,units\nB_NEC,nT\n"
	return p
}

func efiProduct() *model.Product {
	p := model.NewProduct()
	p.ProductID = "SW_EFIx_LP_1B"
	p.Definition = "Langmuir probe plasma data"
	p.ApplicableSpacecraft = []string{"Swarm-A"}
	p.ApplicableMissions = []string{"Swarm"}
	p.ThematicAreas = []string{"Ionospheric plasma"}
	return p
}

func testCatalog() *catalog.Catalog {
	return catalog.New([]catalog.Record{
		{Product: magProduct(), Checksum: "mag"},
		{Product: efiProduct(), Checksum: "efi"},
	})
}

func testOptions() Options {
	return Options{
		Catalog:          testCatalog(),
		Enumerations:     testEnums(),
		DefaultProductID: "SW_MAGx_LR_1B",
	}
}

func newTestController(t *testing.T, location string) *Controller {
	t.Helper()
	return New(context.Background(), testOptions(), location)
}

func TestNew_loadsDefaultProduct(t *testing.T) {
	c := newTestController(t, "")

	assert.Equal(t, "SW_MAGx_LR_1B", c.Product().ProductID)
	assert.Equal(t, "SW_MAGx_LR_1B", c.Widgets()[model.FieldProductID])
	assert.Equal(t, "SW_MAGx_LR_1B.json", c.View().Filename)
	assert.Equal(t, "?SW_MAGx_LR_1B", c.Location())
}

func TestNew_deepLink(t *testing.T) {
	c := newTestController(t, "?SW_EFIx_LP_1B")
	assert.Equal(t, "SW_EFIx_LP_1B", c.Product().ProductID)
}

func TestNew_unknownDeepLinkStartsEmpty(t *testing.T) {
	c := newTestController(t, "?NOPE")

	assert.True(t, c.Product().Equal(model.NewProduct()))
	assert.Equal(t, "?NOPE", c.Location())
	assert.Equal(t, ".json", c.View().Filename)
	assert.NotEmpty(t, c.View().Document, "empty product still renders")
}

func TestInitialSelection(t *testing.T) {
	c := newTestController(t, "")
	tests := map[string]string{
		"":               "SW_MAGx_LR_1B",
		"?":              "SW_MAGx_LR_1B",
		"?SW_EFIx_LP_1B": "SW_EFIx_LP_1B",
		"#SW_EFIx_LP_1B": "SW_EFIx_LP_1B",
		"SW_EFIx_LP_1B":  "SW_EFIx_LP_1B",
		" ?CS_MAG ":      "CS_MAG",
		"?Ground%20obs":  "Ground obs",
	}
	for loc, want := range tests {
		assert.Equal(t, want, c.InitialSelection(loc), "InitialSelection(%q)", loc)
	}
}

func TestLocation_roundTripsThroughInitialSelection(t *testing.T) {
	ctx := context.Background()
	ids := []string{"A+B", "a&b", "50%_LR", "SW#1 B"}

	var records []catalog.Record
	for _, id := range ids {
		p := model.NewProduct()
		p.ProductID = id
		records = append(records, catalog.Record{Product: p})
	}
	opts := testOptions()
	opts.Catalog = catalog.New(records)

	for _, id := range ids {
		c := New(ctx, opts, "")
		require.True(t, c.LoadFromCatalog(ctx, id), "LoadFromCatalog(%q)", id)

		reopened := New(ctx, opts, c.Location())
		assert.Equal(t, id, reopened.Product().ProductID, "reopening %q via %q", id, c.Location())
		assert.Equal(t, c.Location(), reopened.Location())
	}
}

func TestRefreshOutput_derivesMissions(t *testing.T) {
	c := newTestController(t, "?NOPE")
	ctx := context.Background()

	require.NoError(t, c.SetWidget(model.FieldApplicableSpacecraft, []string{"B", "A"}))
	c.RefreshOutput(ctx)
	assert.Equal(t, []string{"A", "B"}, c.Product().ApplicableSpacecraft)
	assert.Equal(t, []string{"Swarm"}, c.Product().ApplicableMissions)

	require.NoError(t, c.SetWidget(model.FieldApplicableSpacecraft, []string{"X"}))
	c.RefreshOutput(ctx)
	assert.Equal(t, []string{"ERROR"}, c.Product().ApplicableMissions)

	require.NoError(t, c.SetWidget(model.FieldApplicableSpacecraft, []string{}))
	c.RefreshOutput(ctx)
	assert.Equal(t, []string{}, c.Product().ApplicableMissions)
}

func TestRefreshOutput_updatesOutputs(t *testing.T) {
	c := newTestController(t, "")
	ctx := context.Background()

	require.NoError(t, c.SetWidgets(map[string]any{
		model.FieldProductID:  "SW_NEW_1B",
		model.FieldDefinition: "New <b>product</b>",
	}))
	c.RefreshOutput(ctx)

	v := c.View()
	assert.Equal(t, "SW_NEW_1B.json", v.Filename)
	assert.Equal(t, "?SW_NEW_1B", v.Location)
	assert.Equal(t, "?SW_NEW_1B", c.Location())
	assert.Equal(t, "SW_NEW_1B", v.JSON["product_id"])
	assert.Contains(t, string(v.Document), "New <b>product</b>")
	assert.Contains(t, v.Markdown, "# SW_NEW_1B")
}

func TestSetWidget_doesNotPropagateUntilRefresh(t *testing.T) {
	c := newTestController(t, "")

	require.NoError(t, c.SetWidget(model.FieldDefinition, "edited"))
	assert.Equal(t, "edited", c.Widgets()[model.FieldDefinition])
	assert.Equal(t, "Magnetic field (1Hz) from VFM and ASM", c.Product().Definition)
	assert.NotContains(t, string(c.View().Document), "edited")

	c.RefreshOutput(context.Background())
	assert.Equal(t, "edited", c.Product().Definition)
}

func TestSetWidgets_unknownFieldRejectsAll(t *testing.T) {
	c := newTestController(t, "")

	err := c.SetWidgets(map[string]any{
		model.FieldDefinition:         "edited",
		"colour":                      "blue",
		model.FieldApplicableMissions: []string{"Swarm"},
	})
	require.Error(t, err)
	assert.True(t, model.IsCode(err, model.ErrValidationError))

	var ee *model.ErrorEnvelope
	require.ErrorAs(t, err, &ee)
	assert.Len(t, ee.Details, 2, "colour and the derived missions field are both rejected")
	assert.Equal(t, "Magnetic field (1Hz) from VFM and ASM", c.Widgets()[model.FieldDefinition])
}

func TestRefreshOutput_coercesWidgetValues(t *testing.T) {
	c := newTestController(t, "?NOPE")

	require.NoError(t, c.SetWidgets(map[string]any{
		model.FieldThematicAreas:  "Magnetic field",
		model.FieldVariablesTable: []any{"a,b", "1,2"},
		model.FieldDefinition:     42,
		model.FieldDetails:        nil,
	}))
	c.RefreshOutput(context.Background())

	p := c.Product()
	assert.Equal(t, []string{"Magnetic field"}, p.ThematicAreas)
	assert.Equal(t, "a,b\n1,2", p.VariablesTable)
	assert.Equal(t, "42", p.Definition)
	assert.Equal(t, "", p.Details)
}

func TestLoadFromCatalog(t *testing.T) {
	c := newTestController(t, "")
	ctx := context.Background()

	require.True(t, c.LoadFromCatalog(ctx, "SW_EFIx_LP_1B"))
	assert.Equal(t, "SW_EFIx_LP_1B", c.Product().ProductID)
	assert.Equal(t, []string{"Swarm-A"}, c.Widgets()[model.FieldApplicableSpacecraft])
	assert.Equal(t, "?SW_EFIx_LP_1B", c.Location())
}

func TestLoadFromCatalog_unknownIsNoop(t *testing.T) {
	c := newTestController(t, "")
	ctx := context.Background()
	require.NoError(t, c.SetWidget(model.FieldDefinition, "unsaved edit"))

	before := c.Product()
	widgets := c.Widgets()
	view := c.View()

	assert.False(t, c.LoadFromCatalog(ctx, "SW_UNKNOWN"))
	assert.True(t, before.Equal(c.Product()))
	assert.Equal(t, widgets, c.Widgets())
	assert.Equal(t, view.Document, c.View().Document)
}

func TestLoadFromCatalog_doesNotAliasCatalog(t *testing.T) {
	opts := testOptions()
	c := New(context.Background(), opts, "")

	require.NoError(t, c.SetWidget(model.FieldDefinition, "changed in editor"))
	c.RefreshOutput(context.Background())

	fresh, err := opts.Catalog.Get("SW_MAGx_LR_1B")
	require.NoError(t, err)
	assert.Equal(t, "Magnetic field (1Hz) from VFM and ASM", fresh.Definition)
}

func TestLoadThenExport_reproducesCatalogDocument(t *testing.T) {
	c := newTestController(t, "")

	want, err := model.MarshalProduct(magProduct())
	require.NoError(t, err)
	assert.JSONEq(t, string(want), string(c.View().Document))
}

func TestLoadFromUpload(t *testing.T) {
	c := newTestController(t, "")
	doc, err := model.MarshalProduct(efiProduct())
	require.NoError(t, err)

	require.NoError(t, c.LoadFromUpload(context.Background(), doc))
	assert.Equal(t, "SW_EFIx_LP_1B", c.Product().ProductID)
	assert.Equal(t, "SW_EFIx_LP_1B.json", c.View().Filename)
	assert.Empty(t, c.Notifications())
}

func TestLoadFromUpload_recomputesMissions(t *testing.T) {
	c := newTestController(t, "")
	p := efiProduct()
	p.ApplicableMissions = []string{"stale"}
	doc, err := model.MarshalProduct(p)
	require.NoError(t, err)

	require.NoError(t, c.LoadFromUpload(context.Background(), doc))
	assert.Equal(t, []string{"Swarm"}, c.Product().ApplicableMissions)
}

func TestLoadFromUpload_malformedLeavesStateUnchanged(t *testing.T) {
	c := newTestController(t, "")
	before := c.Product()
	widgets := c.Widgets()

	for _, doc := range []string{`not json`, `[1,2]`, `{"product_id": "X"}`} {
		err := c.LoadFromUpload(context.Background(), []byte(doc))
		require.Error(t, err, doc)
		assert.True(t, model.IsCode(err, model.ErrParseError), doc)
	}

	assert.True(t, before.Equal(c.Product()))
	assert.Equal(t, widgets, c.Widgets())

	notes := c.Notifications()
	require.Len(t, notes, 3)
	assert.Equal(t, model.NotifyError, notes[0].Level)
	assert.Contains(t, notes[2].Message, "definition")
	assert.Empty(t, c.Notifications(), "Notifications drains the queue")
}

func TestView_enumerationHints(t *testing.T) {
	c := newTestController(t, "")
	require.NoError(t, c.SetWidgets(map[string]any{
		model.FieldApplicableSpacecraft: []string{"Swarm-A", "Swarm-D"},
		model.FieldThematicAreas:        []string{"Gravity"},
	}))
	c.RefreshOutput(context.Background())

	hints := c.View().Hints
	require.Len(t, hints, 2)
	assert.Equal(t, model.FieldApplicableSpacecraft, hints[0].Field)
	assert.Equal(t, model.HintSourceEnumeration, hints[0].Source)
	assert.Contains(t, hints[0].Message, "Swarm-D")
	assert.Equal(t, model.FieldThematicAreas, hints[1].Field)

	// Hints never block export.
	assert.Contains(t, string(c.View().Document), "Swarm-D")
}

func TestView_schemaHints(t *testing.T) {
	sch, err := schema.Parse([]byte(`{"type":"object","properties":{"definition":{"type":"string","minLength":1}}}`))
	require.NoError(t, err)

	opts := testOptions()
	opts.Schema = sch
	c := New(context.Background(), opts, "")
	assert.Empty(t, c.View().Hints)

	require.NoError(t, c.SetWidget(model.FieldDefinition, ""))
	c.RefreshOutput(context.Background())

	hints := c.View().Hints
	require.Len(t, hints, 1)
	assert.Equal(t, model.HintSourceSchema, hints[0].Source)
	assert.Equal(t, "definition", hints[0].Field)
}

func TestView_returnsCopy(t *testing.T) {
	c := newTestController(t, "")
	require.NoError(t, c.SetWidget(model.FieldThematicAreas, []string{"Gravity"}))
	c.RefreshOutput(context.Background())

	v := c.View()
	v.Hints[0].Message = "mutated"
	assert.NotEqual(t, "mutated", c.View().Hints[0].Message)
}

func TestController_recordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := observability.InitMetrics(reg)
	opts := testOptions()
	opts.Metrics = m

	c := New(context.Background(), opts, "")
	c.LoadFromCatalog(context.Background(), "missing")
	_ = c.LoadFromUpload(context.Background(), []byte("{"))
	require.NoError(t, c.SetWidget(model.FieldDefinition, "x"))
	c.RefreshOutput(context.Background())

	assert.Equal(t, 1.0, testutil.ToFloat64(m.LoadsTotal.WithLabelValues("catalog", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LoadsTotal.WithLabelValues("catalog", "not_found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UploadParseFailuresTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RefreshTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WidgetUpdatesTotal.WithLabelValues("definition")))
}

func TestFieldNames_excludesDerivedField(t *testing.T) {
	names := FieldNames()
	assert.Len(t, names, 14)
	assert.NotContains(t, names, model.FieldApplicableMissions)
	for _, f := range model.RequiredFields() {
		assert.Contains(t, names, f)
	}
}

func TestAsSetAndAsText(t *testing.T) {
	assert.Equal(t, []string{}, asSet(nil))
	assert.Equal(t, []string{}, asSet(""))
	assert.Equal(t, []string{"x"}, asSet("x"))
	assert.Equal(t, []string{"a", "b"}, asSet([]any{"a", "", "b"}))
	assert.Equal(t, []string{"3"}, asSet(3))

	assert.Equal(t, "", asText(nil))
	assert.Equal(t, "a\nb", asText([]string{"a", "b"}))
	assert.Equal(t, "true", asText(true))
	assert.Equal(t, "123456789", asText(json.Number("123456789")))
	assert.Equal(t, "123456789", asText(float64(123456789)))
	assert.Equal(t, "0.5", asText(0.5))
	assert.Equal(t, []string{"123456789"}, asSet(json.Number("123456789")))
}

func TestDecodeSnapshot_keepsNumberText(t *testing.T) {
	snap, err := DecodeSnapshot([]byte(`{"product":null,"widgets":{"product_id":123456789,"applicable_spacecraft":[7,"Swarm-A"]},"location":"?x"}`))
	require.NoError(t, err)
	assert.Equal(t, json.Number("123456789"), snap.Widgets[model.FieldProductID])

	c := FromSnapshot(context.Background(), testOptions(), snap)
	c.RefreshOutput(context.Background())
	assert.Equal(t, "123456789", c.Product().ProductID)
	assert.Equal(t, []string{"7", "Swarm-A"}, c.Product().ApplicableSpacecraft)
}

func TestDecodeSnapshot_malformed(t *testing.T) {
	_, err := DecodeSnapshot([]byte(`{"widgets":`))
	assert.Error(t, err)
}

func TestSnapshotRestore(t *testing.T) {
	ctx := context.Background()
	c := newTestController(t, "")
	require.NoError(t, c.SetWidget(model.FieldDefinition, "pending edit"))
	_ = c.LoadFromUpload(ctx, []byte("bad"))

	data, err := json.Marshal(c.Snapshot())
	require.NoError(t, err)

	var snap Snapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	restored := FromSnapshot(ctx, testOptions(), snap)

	assert.True(t, c.Product().Equal(restored.Product()))
	assert.Equal(t, "pending edit", restored.Widgets()[model.FieldDefinition])
	assert.Equal(t, c.Location(), restored.Location())
	assert.Equal(t, c.View().Document, restored.View().Document)
	assert.Len(t, restored.Notifications(), 1)

	// Widgets that went through JSON come back as []any and still refresh.
	restored.RefreshOutput(ctx)
	assert.Equal(t, []string{"Swarm-A", "Swarm-B", "Swarm-C"}, restored.Product().ApplicableSpacecraft)
	assert.Equal(t, "pending edit", restored.Product().Definition)
}

func TestRestore_nilProduct(t *testing.T) {
	c := FromSnapshot(context.Background(), testOptions(), Snapshot{Widgets: map[string]any{"bogus": 1}})
	assert.True(t, c.Product().Equal(model.NewProduct()))
	assert.NotContains(t, c.Widgets(), "bogus")
}

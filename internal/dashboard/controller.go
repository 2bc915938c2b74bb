// Package dashboard holds the editor's per-session state: the widget values,
// the product they are copied into on refresh, and the rendered outputs.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/swarm-handbook/editor/internal/export"
	"github.com/swarm-handbook/editor/internal/observability"
	"github.com/swarm-handbook/editor/model"
)

// Catalog is the read side of the product catalog.
type Catalog interface {
	Get(id string) (*model.Product, error)
	Has(id string) bool
	IDs() []string
}

// HintSource produces advisory hints for a decoded JSON document.
type HintSource interface {
	Hints(doc any) []model.Hint
}

// Options are the dependencies shared by every Controller.
type Options struct {
	Catalog          Catalog
	Schema           HintSource
	Enumerations     *model.Enumerations
	DefaultProductID string
	Metrics          *observability.Metrics
	Logger           *zap.Logger
}

// Controller keeps widget state and the product in sync. Widget edits are
// held until RefreshOutput copies them into the product. A Controller is not
// safe for concurrent use; callers serialize events per session.
type Controller struct {
	opts Options

	product       *model.Product
	widgets       map[string]any
	view          model.View
	location      string
	notifications []model.Notification
}

func newController(opts Options) *Controller {
	if opts.Enumerations == nil {
		opts.Enumerations = model.DefaultEnumerations()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	c := &Controller{
		opts:    opts,
		product: model.NewProduct(),
	}
	c.populateWidgets()
	return c
}

// New creates a Controller and loads the product named by location, falling
// back to the default product. If that product is not in the catalog the
// editor starts empty.
func New(ctx context.Context, opts Options, location string) *Controller {
	c := newController(opts)
	c.location = location
	if !c.LoadFromCatalog(ctx, c.InitialSelection(location)) {
		c.render(ctx)
	}
	return c
}

// InitialSelection returns the product id to preload for a deep link such as
// "?SW_MAGx_LR_1B". An empty link selects the default product.
func (c *Controller) InitialSelection(location string) string {
	id := strings.Trim(strings.TrimSpace(location), "?#")
	if unescaped, err := url.QueryUnescape(id); err == nil {
		id = unescaped
	}
	if id == "" {
		return c.opts.DefaultProductID
	}
	return id
}

// RefreshOutput copies every widget into the product, recomputes the derived
// missions, and regenerates the JSON document, Markdown preview, hints,
// download filename, and location.
func (c *Controller) RefreshOutput(ctx context.Context) {
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, observability.SpanRefresh)
	defer span.End()

	for _, b := range bindings {
		b.set(c.product, c.widgets[b.Name])
	}
	c.product.Normalize()
	c.product.ApplyMissions(c.opts.Enumerations)

	c.location = export.Location(c.product)
	c.render(ctx)

	span.SetAttributes(
		observability.AttrProductID.String(c.product.ProductID),
		observability.AttrHintCount.Int(len(c.view.Hints)),
	)
	bySource := make(map[string]int)
	for _, h := range c.view.Hints {
		bySource[h.Source]++
	}
	c.opts.Metrics.RecordHints(bySource)
	c.opts.Metrics.RecordRefresh(time.Since(start))
	observability.RequestLogger(ctx, c.opts.Logger).Debug("output refreshed",
		zap.String("product_id", c.product.ProductID),
		zap.Int("json_bytes", len(c.view.Document)),
		zap.Int("markdown_bytes", len(c.view.Markdown)),
		zap.Int("hints", len(c.view.Hints)),
	)
}

// LoadFromCatalog replaces the product with a copy of the catalog entry id,
// repopulates the widgets, and refreshes. It does nothing and returns false
// if id is not in the catalog.
func (c *Controller) LoadFromCatalog(ctx context.Context, id string) bool {
	ctx, span := observability.StartSpan(ctx, observability.SpanLoadCatalog,
		observability.AttrLoadSource.String(observability.LoadSourceCatalog),
		observability.AttrProductID.String(id),
	)
	defer span.End()

	if c.opts.Catalog == nil || !c.opts.Catalog.Has(id) {
		c.opts.Metrics.RecordLoad(observability.LoadSourceCatalog, observability.LoadResultNotFound)
		return false
	}
	p, err := c.opts.Catalog.Get(id)
	if err != nil {
		// Removed by a concurrent reload between Has and Get.
		c.opts.Metrics.RecordLoad(observability.LoadSourceCatalog, observability.LoadResultNotFound)
		return false
	}

	c.install(ctx, p)
	c.opts.Metrics.RecordLoad(observability.LoadSourceCatalog, observability.LoadResultOK)
	return true
}

// LoadFromUpload parses doc and, if it is a valid product, loads it the same
// way as a catalog entry. On failure the product and widgets are left
// unchanged, an error notification is recorded, and the PARSE_ERROR is
// returned.
func (c *Controller) LoadFromUpload(ctx context.Context, doc []byte) error {
	ctx, span := observability.StartSpan(ctx, observability.SpanLoadUpload,
		observability.AttrLoadSource.String(observability.LoadSourceUpload),
	)

	p, err := model.ParseProduct(doc)
	if err != nil {
		c.notify(model.NotifyError, fmt.Sprintf("Could not load the uploaded file: %s", uploadMessage(err)))
		c.opts.Metrics.RecordLoad(observability.LoadSourceUpload, observability.LoadResultError)
		observability.RequestLogger(ctx, c.opts.Logger).Warn("rejected uploaded product",
			zap.Int("bytes", len(doc)),
			zap.Error(err),
		)
		observability.EndSpanWithError(span, err)
		return err
	}

	span.SetAttributes(observability.AttrProductID.String(p.ProductID))
	c.install(ctx, p)
	c.opts.Metrics.RecordLoad(observability.LoadSourceUpload, observability.LoadResultOK)
	span.End()
	return nil
}

// SetWidget stores value as the widget state for field. The product and the
// outputs are not touched until the next RefreshOutput. An unknown field is
// a VALIDATION_ERROR.
func (c *Controller) SetWidget(field string, value any) error {
	return c.SetWidgets(map[string]any{field: value})
}

// SetWidgets applies several widget values at once. If any field is unknown
// nothing is applied.
func (c *Controller) SetWidgets(values map[string]any) error {
	var unknown []model.FieldError
	for field := range values {
		if _, ok := lookupBinding(field); !ok {
			unknown = append(unknown, model.FieldError{
				Field:   field,
				Code:    "UNKNOWN_FIELD",
				Message: fmt.Sprintf("%s is not an editable field", field),
			})
		}
	}
	if len(unknown) > 0 {
		return model.NewValidationError(unknown)
	}

	for field, v := range values {
		c.widgets[field] = v
		c.opts.Metrics.RecordWidgetUpdate(field)
	}
	return nil
}

// Widgets returns a copy of the current widget values.
func (c *Controller) Widgets() map[string]any {
	out := make(map[string]any, len(c.widgets))
	for k, v := range c.widgets {
		out[k] = v
	}
	return out
}

// Product returns a copy of the product as of the last refresh or load.
func (c *Controller) Product() *model.Product {
	return c.product.Clone()
}

// View returns the outputs of the last refresh.
func (c *Controller) View() model.View {
	v := c.view
	v.Hints = append([]model.Hint(nil), c.view.Hints...)
	return v
}

// Location returns the deep link for the current state.
func (c *Controller) Location() string {
	return c.location
}

// Notifications returns and clears the pending notifications.
func (c *Controller) Notifications() []model.Notification {
	out := c.notifications
	c.notifications = nil
	return out
}

func (c *Controller) install(ctx context.Context, p *model.Product) {
	c.product = p.Clone()
	c.populateWidgets()
	c.RefreshOutput(ctx)
}

func (c *Controller) populateWidgets() {
	c.widgets = make(map[string]any, len(bindings))
	for _, b := range bindings {
		c.widgets[b.Name] = b.get(c.product)
	}
}

func (c *Controller) notify(level, msg string) {
	c.notifications = append(c.notifications, model.Notification{Level: level, Message: msg})
}

// render rebuilds the view from the product.
func (c *Controller) render(ctx context.Context) {
	doc, err := export.ToJSON(c.product)
	if err != nil {
		observability.RequestLogger(ctx, c.opts.Logger).Error("encoding product", zap.Error(err))
	}

	var decoded map[string]any
	if len(doc) > 0 {
		if err := json.Unmarshal(doc, &decoded); err != nil {
			observability.RequestLogger(ctx, c.opts.Logger).Error("decoding product document", zap.Error(err))
		}
	}

	hints := enumerationHints(c.product, c.opts.Enumerations)
	if c.opts.Schema != nil && decoded != nil {
		hints = append(hints, c.opts.Schema.Hints(decoded)...)
	}
	c.view = model.View{
		Document: doc,
		JSON:     decoded,
		Markdown: export.ToMarkdown(c.product),
		Filename: export.Filename(c.product),
		Location: c.location,
		Hints:    hints,
	}
}

// enumerationHints flags set members outside the configured enumerations.
func enumerationHints(p *model.Product, enums *model.Enumerations) []model.Hint {
	var hints []model.Hint
	for _, sc := range p.ApplicableSpacecraft {
		if !enums.IsAllowedSpacecraft(sc) {
			hints = append(hints, model.Hint{
				Field:   model.FieldApplicableSpacecraft,
				Source:  model.HintSourceEnumeration,
				Message: fmt.Sprintf("%q is not an allowed spacecraft", sc),
			})
		}
	}
	for _, area := range p.ThematicAreas {
		if !enums.IsAllowedThematicArea(area) {
			hints = append(hints, model.Hint{
				Field:   model.FieldThematicAreas,
				Source:  model.HintSourceEnumeration,
				Message: fmt.Sprintf("%q is not an allowed thematic area", area),
			})
		}
	}
	return hints
}

func uploadMessage(err error) string {
	var ee *model.ErrorEnvelope
	if !errors.As(err, &ee) {
		return err.Error()
	}
	if len(ee.Details) == 0 {
		return ee.Message
	}
	fields := make([]string, 0, len(ee.Details))
	for _, d := range ee.Details {
		fields = append(fields, d.Field)
	}
	return fmt.Sprintf("%s (%s)", ee.Message, strings.Join(fields, ", "))
}

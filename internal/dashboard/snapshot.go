package dashboard

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/swarm-handbook/editor/model"
)

// Snapshot is the serializable state of a Controller. The view is not
// stored: it is a pure function of the product and is rebuilt on restore.
type Snapshot struct {
	Product       *model.Product       `json:"product"`
	Widgets       map[string]any       `json:"widgets"`
	Location      string               `json:"location"`
	Notifications []model.Notification `json:"notifications,omitempty"`
}

// DecodeSnapshot parses a stored snapshot. Numeric widget values are kept
// as json.Number so that their literal text survives a save and restore.
func DecodeSnapshot(data []byte) (Snapshot, error) {
	var s Snapshot
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&s); err != nil {
		return Snapshot{}, err
	}
	return s, nil
}

// Snapshot captures the controller state.
func (c *Controller) Snapshot() Snapshot {
	return Snapshot{
		Product:       c.product.Clone(),
		Widgets:       c.Widgets(),
		Location:      c.location,
		Notifications: append([]model.Notification(nil), c.notifications...),
	}
}

// Restore replaces the controller state with s and rebuilds the view.
// Widgets missing from s are taken from the product.
func (c *Controller) Restore(ctx context.Context, s Snapshot) {
	c.product = model.NewProduct()
	if s.Product != nil {
		c.product = s.Product.Clone()
		c.product.Normalize()
	}
	c.populateWidgets()
	for field, v := range s.Widgets {
		if _, ok := lookupBinding(field); ok {
			c.widgets[field] = v
		}
	}
	c.location = s.Location
	c.notifications = append([]model.Notification(nil), s.Notifications...)
	c.render(ctx)
}

// FromSnapshot creates a Controller in the state captured by s.
func FromSnapshot(ctx context.Context, opts Options, s Snapshot) *Controller {
	c := newController(opts)
	c.Restore(ctx, s)
	return c
}

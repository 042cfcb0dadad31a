// Package classify decides which buildings must anchor a facility of their
// own and which may only be attached to one.
package classify

import (
	"errors"
	"fmt"

	"github.com/kohde-resolver/internal/model"
)

// ErrUnknownUsageCode is returned for a usage code missing from the code tables.
var ErrUnknownUsageCode = errors.New("unknown usage code")

// Classifier evaluates buildings against one run's code tables.
type Classifier struct {
	tables *model.CodeTables
}

// New creates a classifier. A nil table set falls back to the defaults.
func New(tables *model.CodeTables) *Classifier {
	if tables == nil {
		tables = model.DefaultCodeTables()
	}
	return &Classifier{tables: tables}
}

// Check validates the building's usage code. Buildings without a code are
// accepted as unclassified.
func (c *Classifier) Check(b model.Building) error {
	if b.UsageCode == "" {
		return nil
	}
	if _, ok := c.tables.Usage(b.UsageCode); !ok {
		return fmt.Errorf("building %d: %w %q", b.ID, ErrUnknownUsageCode, b.UsageCode)
	}
	return nil
}

// IsSignificant reports whether the building has a current principal
// inhabitant or a usage in the residential/institutional allow-list.
//
// A sauna may pass this test; callers that select cluster anchors or
// auxiliary candidates must check IsSauna explicitly.
func (c *Classifier) IsSignificant(s model.BuildingSnapshot) bool {
	if len(s.InhabitantIDs) > 0 {
		return true
	}
	u, ok := c.tables.Usage(s.UsageCode)
	return ok && u.Significant
}

// IsSauna reports whether the building is classified as a sauna.
func (c *Classifier) IsSauna(s model.BuildingSnapshot) bool {
	u, ok := c.tables.Usage(s.UsageCode)
	return ok && u.Sauna
}

// CanAnchor reports whether the building may form a cluster on its own:
// it is significant and not a sauna.
func (c *Classifier) CanAnchor(s model.BuildingSnapshot) bool {
	return c.IsSignificant(s) && !c.IsSauna(s)
}

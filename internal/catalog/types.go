package catalog

import (
	"errors"

	"github.com/danielpatrickdp/adaptive-prompt/internal/decision"
	"github.com/danielpatrickdp/adaptive-prompt/internal/gate"
)

// #region placement

// Placement is the section of the assembled prompt a module renders into.
type Placement string

const (
	PlacementHeader Placement = "header"
	PlacementBody   Placement = "body"
	PlacementFooter Placement = "footer"
)

// Placements lists the buckets in assembly order.
var Placements = []Placement{PlacementHeader, PlacementBody, PlacementFooter}

// Valid reports whether p is one of the three known buckets.
func (p Placement) Valid() bool {
	switch p {
	case PlacementHeader, PlacementBody, PlacementFooter:
		return true
	}
	return false
}

// #endregion placement

// #region module

// DefaultOrder applies when a module does not declare one.
const DefaultOrder = 100

// Module is one instruction block plus the predicates that activate it.
type Module struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Order     int       `json:"order"`
	DedupeKey string    `json:"dedupeKey"`
	Placement Placement `json:"placement"`

	MinIntensity         *float64            `json:"minIntensity,omitempty"`
	MaxIntensity         *float64            `json:"maxIntensity,omitempty"`
	OpennessIn           []decision.Openness `json:"opennessIn,omitempty"`
	RequireVulnerability bool                `json:"requireVulnerability,omitempty"`
	RequireTechBlock     bool                `json:"requireTechBlock,omitempty"`
	RequireSaveMemory    bool                `json:"requireSaveMemory,omitempty"`
	FlagsAny             []string            `json:"flagsAny,omitempty"`
	Gate                 *gate.Spec          `json:"gate,omitempty"`

	Path string `json:"path,omitempty"` // file the module was loaded from
}

// #endregion module

// #region errors

var (
	ErrNoFrontMatter    = errors.New("module has no front matter block")
	ErrUnclosedFront    = errors.New("no closing --- found for front matter")
	ErrMissingID        = errors.New("module front matter has no id")
	ErrDuplicateID      = errors.New("duplicate module id")
	ErrInvalidPlacement = errors.New("invalid placement")
	ErrEmptyCatalog     = errors.New("catalog has no modules")
)

// #endregion errors

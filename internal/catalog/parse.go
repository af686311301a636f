package catalog

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/adaptive-prompt/internal/decision"
	"github.com/danielpatrickdp/adaptive-prompt/internal/gate"
)

// #region front-matter

// frontMatter mirrors the YAML block. Pointers distinguish absent from zero.
type frontMatter struct {
	ID                   string              `yaml:"id"`
	Order                *int                `yaml:"order"`
	DedupeKey            string              `yaml:"dedupeKey"`
	Placement            Placement           `yaml:"placement"`
	MinIntensity         *float64            `yaml:"minIntensity"`
	MaxIntensity         *float64            `yaml:"maxIntensity"`
	OpennessIn           []decision.Openness `yaml:"opennessIn"`
	RequireVulnerability bool                `yaml:"requireVulnerability"`
	RequireTechBlock     bool                `yaml:"requireTechBlock"`
	RequireSaveMemory    bool                `yaml:"requireSaveMemory"`
	FlagsAny             []string            `yaml:"flagsAny"`
	Gate                 *gate.Spec          `yaml:"gate"`
}

// splitFrontMatter separates the leading --- block from the template body.
func splitFrontMatter(content string) (front, body string, err error) {
	scanner := bufio.NewScanner(strings.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	opened := false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "---" {
			opened = true
			break
		}
		if line != "" {
			return "", "", ErrNoFrontMatter
		}
	}
	if !opened {
		return "", "", ErrNoFrontMatter
	}

	var fmLines []string
	closed := false
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "---" {
			closed = true
			break
		}
		fmLines = append(fmLines, line)
	}
	if !closed {
		return "", "", ErrUnclosedFront
	}

	var bodyLines []string
	for scanner.Scan() {
		bodyLines = append(bodyLines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return "", "", fmt.Errorf("scan module: %w", err)
	}
	return strings.Join(fmLines, "\n"), strings.TrimSpace(strings.Join(bodyLines, "\n")), nil
}

// #endregion front-matter

// #region parse

// Parse decodes one module source. name is used in errors and stored as Path.
// Unknown front-matter keys are rejected.
func Parse(name string, data []byte) (Module, error) {
	front, body, err := splitFrontMatter(string(data))
	if err != nil {
		return Module{}, fmt.Errorf("%s: %w", name, err)
	}

	var fm frontMatter
	dec := yaml.NewDecoder(bytes.NewReader([]byte(front)))
	dec.KnownFields(true)
	// An empty block decodes to io.EOF and is reported as a missing id below.
	if err := dec.Decode(&fm); err != nil && !errors.Is(err, io.EOF) {
		return Module{}, fmt.Errorf("%s: decode front matter: %w", name, err)
	}

	fm.ID = strings.TrimSpace(fm.ID)
	if fm.ID == "" {
		return Module{}, fmt.Errorf("%s: %w", name, ErrMissingID)
	}

	m := Module{
		ID:                   fm.ID,
		Content:              body,
		Order:                DefaultOrder,
		DedupeKey:            strings.TrimSpace(fm.DedupeKey),
		Placement:            fm.Placement,
		MinIntensity:         fm.MinIntensity,
		MaxIntensity:         fm.MaxIntensity,
		OpennessIn:           fm.OpennessIn,
		RequireVulnerability: fm.RequireVulnerability,
		RequireTechBlock:     fm.RequireTechBlock,
		RequireSaveMemory:    fm.RequireSaveMemory,
		FlagsAny:             fm.FlagsAny,
		Gate:                 fm.Gate,
		Path:                 name,
	}
	if fm.Order != nil {
		m.Order = *fm.Order
	}
	if err := applyDefaults(&m); err != nil {
		return Module{}, fmt.Errorf("%s: %w", name, err)
	}
	return m, nil
}

// applyDefaults fills DedupeKey and Placement and validates the result.
func applyDefaults(m *Module) error {
	if m.ID == "" {
		return ErrMissingID
	}
	if m.DedupeKey == "" {
		m.DedupeKey = m.ID
	}
	if m.Placement == "" {
		m.Placement = PlacementBody
	}
	if !m.Placement.Valid() {
		return fmt.Errorf("%w %q for %s", ErrInvalidPlacement, m.Placement, m.ID)
	}
	if m.Gate != nil && strings.TrimSpace(m.Gate.Signal) == "" {
		return fmt.Errorf("module %s: gate has no signal", m.ID)
	}
	return nil
}

// #endregion parse

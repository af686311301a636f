package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// #region parse-tests

func TestParseDefaults(t *testing.T) {
	m, err := Parse("x.md", []byte("---\nid: FOO\n---\n\nHello {{DEC.intensity}}\n\n"))
	require.NoError(t, err)

	assert.Equal(t, "FOO", m.ID)
	assert.Equal(t, DefaultOrder, m.Order)
	assert.Equal(t, "FOO", m.DedupeKey)
	assert.Equal(t, PlacementBody, m.Placement)
	assert.Equal(t, "Hello {{DEC.intensity}}", m.Content)
	assert.Nil(t, m.Gate)
}

func TestParseAllFields(t *testing.T) {
	src := `---
id: HEUR_X
order: 0
dedupeKey: GROUP
placement: footer
minIntensity: 2
maxIntensity: 8.5
opennessIn: [closed, moderate]
requireVulnerability: true
requireTechBlock: true
requireSaveMemory: true
flagsAny: [nv1, "domain:nv1"]
gate:
  signal: urgency
  minScore: 0.5
  halfLifeSeconds: 600
  cooldownTurns: 1
---
body`
	m, err := Parse("x.md", []byte(src))
	require.NoError(t, err)

	assert.Equal(t, 0, m.Order, "explicit zero order must not fall back to default")
	assert.Equal(t, "GROUP", m.DedupeKey)
	assert.Equal(t, PlacementFooter, m.Placement)
	require.NotNil(t, m.MinIntensity)
	require.NotNil(t, m.MaxIntensity)
	assert.Equal(t, 2.0, *m.MinIntensity)
	assert.Equal(t, 8.5, *m.MaxIntensity)
	assert.Len(t, m.OpennessIn, 2)
	assert.True(t, m.RequireVulnerability && m.RequireTechBlock && m.RequireSaveMemory)
	assert.Equal(t, []string{"nv1", "domain:nv1"}, m.FlagsAny)
	require.NotNil(t, m.Gate)
	assert.Equal(t, "urgency", m.Gate.Signal)
	require.NotNil(t, m.Gate.MinScore)
	assert.Equal(t, 0.5, *m.Gate.MinScore)
	assert.Equal(t, 600.0, m.Gate.HalfLifeSeconds)
	require.NotNil(t, m.Gate.CooldownTurns)
	assert.Equal(t, 1.0, *m.Gate.CooldownTurns)
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		name string
		src  string
		want error
	}{
		{"no front matter", "just text", ErrNoFrontMatter},
		{"empty file", "", ErrNoFrontMatter},
		{"unclosed", "---\nid: A\nbody", ErrUnclosedFront},
		{"missing id", "---\norder: 3\n---\nbody", ErrMissingID},
		{"empty block", "---\n---\nbody", ErrMissingID},
		{"bad placement", "---\nid: A\nplacement: sidebar\n---\nbody", ErrInvalidPlacement},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse("m.md", []byte(tc.src))
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.want), "expected %v, got %v", tc.want, err)
		})
	}
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := Parse("m.md", []byte("---\nid: A\nminIntensty: 3\n---\nbody"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "minIntensty")
}

func TestParseGateWithoutSignal(t *testing.T) {
	_, err := Parse("m.md", []byte("---\nid: A\ngate:\n  minScore: 0.3\n---\nbody"))
	require.Error(t, err)
}

// #endregion parse-tests

// #region load-tests

func TestLoadFSOrderAndDuplicates(t *testing.T) {
	fsys := fstest.MapFS{
		"mods/b.md":      {Data: []byte("---\nid: B\n---\nb")},
		"mods/a.md":      {Data: []byte("---\nid: A\n---\na")},
		"mods/notes.txt": {Data: []byte("ignored")},
	}
	c, err := LoadFS(fsys, "mods")
	require.NoError(t, err)
	mods := c.Modules()
	require.Len(t, mods, 2)
	assert.Equal(t, "A", mods[0].ID, "files load in name order")
	assert.Equal(t, "mods/a.md", mods[0].Path)

	fsys["mods/c.md"] = &fstest.MapFile{Data: []byte("---\nid: A\n---\ndup")}
	_, err = LoadFS(fsys, "mods")
	assert.ErrorIs(t, err, ErrDuplicateID)
}

func TestLoadFSEmpty(t *testing.T) {
	_, err := LoadFS(fstest.MapFS{"mods/readme.txt": {Data: []byte("x")}}, "mods")
	assert.ErrorIs(t, err, ErrEmptyCatalog)
}

func TestLoadDirMalformedIsFatal(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "a.md", "---\nid: A\n---\na")
	writeModule(t, dir, "b.md", "no metadata here")

	_, err := LoadDir(dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoFrontMatter)
}

func TestDefaultCatalog(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	for _, id := range []string{"BASE_IDENTIDADE", "DECISAO_CONTEXTO", "NV1_CORE", "NV2_CORE", "NV3_CORE", "BLOCO_TECNICO_MEMORIA"} {
		_, ok := c.Get(id)
		assert.True(t, ok, "missing %s", id)
	}

	var maxOrder int
	var maxID string
	for _, m := range c.Modules() {
		if m.Order >= maxOrder {
			maxOrder, maxID = m.Order, m.ID
		}
	}
	assert.Equal(t, "BLOCO_TECNICO_MEMORIA", maxID)

	nv1, _ := c.Get("NV1_CORE")
	nv2, _ := c.Get("NV2_CORE")
	assert.Equal(t, nv1.DedupeKey, nv2.DedupeKey)

	ctx, _ := c.Get("DECISAO_CONTEXTO")
	assert.Contains(t, ctx.Content, "A intensidade emocional percebida é {{DEC.intensity}}")
}

func TestModulesReturnsCopy(t *testing.T) {
	c := MustDefault()
	mods := c.Modules()
	mods[0].ID = "CHANGED"
	assert.NotEqual(t, "CHANGED", c.Modules()[0].ID)
}

func TestNewAppliesDefaults(t *testing.T) {
	c, err := New([]Module{{ID: "X", Content: "x", Order: 5}})
	require.NoError(t, err)
	m, _ := c.Get("X")
	assert.Equal(t, "X", m.DedupeKey)
	assert.Equal(t, PlacementBody, m.Placement)

	_, err = New([]Module{{Content: "no id"}})
	assert.ErrorIs(t, err, ErrMissingID)
}

// #endregion load-tests

// #region holder-tests

func TestHolderSwap(t *testing.T) {
	a, err := New([]Module{{ID: "A"}})
	require.NoError(t, err)
	b, err := New([]Module{{ID: "B"}})
	require.NoError(t, err)

	h := NewHolder(a)
	assert.Same(t, a, h.Catalog())
	old := h.Swap(b)
	assert.Same(t, a, old)
	assert.Same(t, b, h.Catalog())

	var src Source = a
	assert.Same(t, a, src.Catalog())
}

// #endregion holder-tests

func writeModule(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

package composer

import (
	"cmp"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/adaptive-prompt/internal/activation"
	"github.com/danielpatrickdp/adaptive-prompt/internal/catalog"
	"github.com/danielpatrickdp/adaptive-prompt/internal/decision"
	"github.com/danielpatrickdp/adaptive-prompt/internal/gate"
)

var defaultCatalog = sync.OnceValue(catalog.MustDefault)

// #region composer

// Composer binds a catalog source and options for repeated compositions.
// It holds no per-call state and is safe for concurrent use.
type Composer struct {
	source catalog.Source
	opts   []Option
}

// New returns a Composer reading from src. A nil src uses the embedded catalog.
func New(src catalog.Source, opts ...Option) *Composer {
	return &Composer{source: src, opts: opts}
}

// Compose snapshots the current catalog once and composes d against it.
func (c *Composer) Compose(d decision.Decision, opts ...Option) Result {
	var cat *catalog.Catalog
	if c.source != nil {
		cat = c.source.Catalog()
	}
	return Compose(d, cat, append(slices.Clone(c.opts), opts...)...)
}

// #endregion composer

// #region compose

// Compose renders d against cat. A nil cat uses the embedded catalog. It never
// fails and never modifies d or cat; with a pinned clock (or EvaluatedAt set)
// the result is byte-identical across calls.
func Compose(d decision.Decision, cat *catalog.Catalog, opts ...Option) Result {
	o := buildOptions(opts)
	if cat == nil {
		cat = defaultCatalog()
	}

	derived := decision.Derive(d)
	ctx := gate.NewContext(derived, o.clock)
	modules := cat.Modules()

	candidates := make([]activation.Outcome, len(modules))
	for i, m := range modules {
		candidates[i] = activation.Evaluate(m, derived, ctx)
	}

	selected, candidates := selectModules(modules, candidates)
	rendered, prompt := assemble(modules, selected, NewView(derived))

	log := ctx.FinalizeLog()
	ids := make([]string, len(selected))
	for i, idx := range selected {
		ids[i] = modules[idx].ID
	}

	res := Result{
		Prompt:  prompt,
		Modules: rendered,
		Debug: Debug{
			Candidates:      candidates,
			SelectedModules: ids,
			Derived:         DerivedTrace{Derived: derived, HeuristicsLog: log},
			SignalLog:       log,
		},
	}

	o.logger.Debug("composed prompt",
		zap.Int("catalog", len(modules)),
		zap.Strings("selected", ids),
		zap.Int("rendered", len(rendered)),
		zap.Int("prompt_bytes", len(prompt)),
		zap.String("mode", string(ctx.Mode())))

	if o.observer != nil {
		o.observer(res.Debug)
	}
	return res
}

// #endregion compose

// #region select

// selectModules keeps activated modules, stable-sorts them by Order and keeps
// the first module per dedupe key. It returns the surviving catalog indexes in
// sorted order and a new candidate list where dropped duplicates carry
// "deduped:<key>". The input candidates are not modified.
func selectModules(modules []catalog.Module, candidates []activation.Outcome) ([]int, []activation.Outcome) {
	active := make([]int, 0, len(modules))
	for i, c := range candidates {
		if c.Activated {
			active = append(active, i)
		}
	}
	slices.SortStableFunc(active, func(a, b int) int {
		return cmp.Compare(modules[a].Order, modules[b].Order)
	})

	final := slices.Clone(candidates)
	used := make(map[string]bool, len(active))
	kept := make([]int, 0, len(active))
	for _, idx := range active {
		key := modules[idx].DedupeKey
		if used[key] {
			final[idx] = final[idx].Deduped(key)
			continue
		}
		used[key] = true
		kept = append(kept, idx)
	}
	return kept, final
}

// #endregion select

// #region assemble

// assemble interpolates the selected modules bucket by bucket and joins the
// non-empty blocks with blank lines.
func assemble(modules []catalog.Module, selected []int, view View) ([]catalog.Module, string) {
	rendered := []catalog.Module{}
	var blocks []string
	for _, p := range catalog.Placements {
		for _, idx := range selected {
			m := modules[idx]
			if m.Placement != p {
				continue
			}
			text := strings.TrimSpace(Interpolate(m.Content, view))
			if text == "" {
				continue
			}
			m.Content = text
			rendered = append(rendered, m)
			blocks = append(blocks, text)
		}
	}
	return rendered, strings.TrimSpace(strings.Join(blocks, "\n\n"))
}

// #endregion assemble

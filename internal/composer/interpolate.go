package composer

import (
	"bytes"
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/danielpatrickdp/adaptive-prompt/internal/decision"
	"github.com/danielpatrickdp/adaptive-prompt/internal/signals"
)

// #region interpolate

var (
	placeholder = regexp.MustCompile(`\{\{\s*DEC\.([A-Za-z0-9_.:-]+)\s*\}\}`)
	// leftover catches malformed tokens such as "{{DEC}}" or "{{ DEC.a b }}".
	leftover = regexp.MustCompile(`\{\{\s*DEC\b[^}]*\}\}`)
	// opener catches what is left of an unclosed token, "{{DEC.a" or "{{ DEC".
	opener = regexp.MustCompile(`\{\{\s*DEC`)
)

// View is the JSON form of a derived decision, the namespace DEC.* resolves in.
type View map[string]any

// NewView renders d through its JSON tags, so placeholders use the same
// camelCase names as the debug trace.
func NewView(d decision.Derived) View {
	b, err := json.Marshal(d)
	if err != nil {
		// encoding/json rejects NaN and Inf.
		if b, err = json.Marshal(finite(d)); err != nil {
			return View{}
		}
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var v View
	if err := dec.Decode(&v); err != nil {
		return View{}
	}
	return v
}

// finite returns d with every non-finite float zeroed.
func finite(d decision.Derived) decision.Derived {
	fix := func(v float64) float64 {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0
		}
		return v
	}
	d.Intensity = fix(d.Intensity)
	sigs := make(map[string]signals.BiasSignalState, len(d.Signals))
	for k, s := range d.Signals {
		s.Score = fix(s.Score)
		s.TTLSeconds = fix(s.TTLSeconds)
		sigs[k] = s
	}
	d.Signals = sigs
	h := &d.Heuristics
	h.DefaultHalfLifeSeconds = fix(h.DefaultHalfLifeSeconds)
	if h.DefaultMinScore != nil {
		v := fix(*h.DefaultMinScore)
		h.DefaultMinScore = &v
	}
	if h.DefaultCooldownTurns != nil {
		v := fix(*h.DefaultCooldownTurns)
		h.DefaultCooldownTurns = &v
	}
	halfLives := make(map[string]float64, len(h.SignalHalfLives))
	for k, v := range h.SignalHalfLives {
		halfLives[k] = fix(v)
	}
	h.SignalHalfLives = halfLives
	return d
}

// Interpolate replaces every {{DEC.path}} in tmpl. Unknown paths render empty,
// and no DEC token survives in the output.
func Interpolate(tmpl string, view View) string {
	out := placeholder.ReplaceAllStringFunc(tmpl, func(tok string) string {
		m := placeholder.FindStringSubmatch(tok)
		if len(m) < 2 {
			return ""
		}
		return stripTokens(render(lookup(view, m[1])))
	})
	return stripTokens(out)
}

// stripTokens removes closed and unclosed DEC tokens until none is left.
// A single pass is not enough: removing "{{DEC" from "{{{{DECDEC.x}}"
// uncovers a new token.
func stripTokens(s string) string {
	for {
		next := opener.ReplaceAllString(leftover.ReplaceAllString(s, ""), "")
		if next == s {
			return s
		}
		s = next
	}
}

// lookup walks a dotted path through nested objects.
func lookup(view View, path string) any {
	var cur any = map[string]any(view)
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok || part == "" {
			return nil
		}
		if cur, ok = obj[part]; !ok {
			return nil
		}
	}
	return cur
}

// render stringifies a JSON value: arrays one element per line, objects as
// compact JSON, null as empty.
func render(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case []any:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = render(e)
		}
		return strings.Join(parts, "\n")
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// #endregion interpolate

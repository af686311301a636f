package signals

import "regexp"

// #region pattern-table

// weightedPattern contributes weight per match of re in normalized text.
type weightedPattern struct {
	re     *regexp.Regexp
	weight float64
}

// rule is one named signal and the patterns that score it.
type rule struct {
	name     string
	patterns []weightedPattern
}

func p(expr string, weight float64) weightedPattern {
	return weightedPattern{re: regexp.MustCompile(expr), weight: weight}
}

// rules is evaluated in declaration order. Patterns match against text that
// Normalize already folded to lowercase ASCII letters, so no accents appear here.
var rules = []rule{
	{
		name: "negation",
		patterns: []weightedPattern{
			p(`\bnao\b`, 0.15),
			p(`\bnunca\b`, 0.25),
			p(`\bnada\b`, 0.15),
			p(`\bninguem\b`, 0.2),
			p(`\bjamais\b`, 0.25),
			p(`\bnem\b`, 0.1),
		},
	},
	{
		name: "uncertainty",
		patterns: []weightedPattern{
			p(`\btalvez\b`, 0.3),
			p(`\bnao sei\b`, 0.35),
			p(`\bsera que\b`, 0.3),
			p(`\bacho que\b`, 0.2),
			p(`\bnao tenho certeza\b`, 0.4),
			p(`\bquem sabe\b`, 0.25),
			p(`\bpode ser\b`, 0.2),
			p(`\bsei la\b`, 0.3),
		},
	},
	{
		name: "urgency",
		patterns: []weightedPattern{
			p(`\bagora\b`, 0.3),
			p(`\bpreciso resolver\b`, 0.4),
			p(`\burgente\b`, 0.5),
			p(`\bimediatamente\b`, 0.45),
			p(`\bo quanto antes\b`, 0.4),
			p(`\bnao (aguento|posso) esperar\b`, 0.45),
			p(`\brapido\b`, 0.2),
			p(`!{2,}`, 0.15),
		},
	},
	{
		name: "self_blame",
		patterns: []weightedPattern{
			p(`\b(a )?culpa (e )?minha\b`, 0.5),
			p(`\beu estraguei\b`, 0.45),
			p(`\bsou (um |uma )?fracass(o|ada|ado)\b`, 0.55),
			p(`\bsou (muito )?burr(o|a)\b`, 0.45),
			p(`\bdeveria ter\b`, 0.3),
			p(`\bo problema sou eu\b`, 0.5),
			p(`\bfiz tudo errado\b`, 0.45),
		},
	},
	{
		name: "catastrophizing",
		patterns: []weightedPattern{
			p(`\bvai dar tudo errado\b`, 0.55),
			p(`\bo pior\b`, 0.3),
			p(`\bdesastre\b`, 0.4),
			p(`\bfim do mundo\b`, 0.5),
			p(`\bnao tem (mais )?jeito\b`, 0.45),
			p(`\btudo perdido\b`, 0.5),
			p(`\bnunca vai (dar certo|melhorar)\b`, 0.5),
			p(`\bacabou\b`, 0.25),
		},
	},
	{
		name: "rumination",
		patterns: []weightedPattern{
			p(`\bnao consigo parar de pensar\b`, 0.6),
			p(`\bfico pensando\b`, 0.4),
			p(`\bnao (sai|para) da (minha )?cabeca\b`, 0.5),
			p(`\bremoendo\b`, 0.45),
			p(`\bde novo e de novo\b`, 0.35),
			p(`\bsempre volto\b`, 0.3),
			p(`\bpensando nisso\b`, 0.3),
		},
	},
	{
		name: "people_pleasing",
		patterns: []weightedPattern{
			p(`\bnao quero (incomodar|decepcionar|atrapalhar)\b`, 0.45),
			p(`\bo que (eles|ela|ele|os outros) vao pensar\b`, 0.45),
			p(`\bnao consigo dizer nao\b`, 0.55),
			p(`\bagradar\b`, 0.35),
			p(`\bdesculpa (por|se)\b`, 0.2),
			p(`\bpara nao chatear\b`, 0.35),
		},
	},
	{
		name: "perfectionism",
		patterns: []weightedPattern{
			p(`\bperfeit(o|a|os|as)\b`, 0.35),
			p(`\btem que ser\b`, 0.25),
			p(`\bnao posso errar\b`, 0.5),
			p(`\bsem errar\b`, 0.35),
			p(`\bimpecave(l|is)\b`, 0.4),
			p(`\bnunca e (o )?suficiente\b`, 0.45),
			p(`\b100 ?%`, 0.25),
		},
	},
	{
		name: "avoidance",
		patterns: []weightedPattern{
			p(`\bdepois eu vejo\b`, 0.4),
			p(`\bprefiro nao (falar|pensar)\b`, 0.45),
			p(`\bdeixa pra la\b`, 0.4),
			p(`\bevit(o|ar|ando)\b`, 0.35),
			p(`\badiando\b`, 0.35),
			p(`\bfugir\b`, 0.3),
			p(`\bnao quero (falar|pensar) (sobre|nisso)\b`, 0.45),
		},
	},
}

// #endregion pattern-table

// Names lists the signals Analyze can emit, in evaluation order.
func Names() []string {
	names := make([]string, len(rules))
	for i, r := range rules {
		names[i] = r.name
	}
	return names
}

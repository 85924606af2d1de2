package feedback

import (
	_ "embed"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"github.com/kozaktomas/photo-styler/internal/params"
)

//go:embed rules/rules.yaml
var rulesYAML []byte

// negatorWindow is how many tokens before a matched phrase are scanned
// for a negator ("less grain", "not so warm").
const negatorWindow = 3

type ruleConfig struct {
	Negators []string `yaml:"negators"`
	Rules    []struct {
		Axis      string   `yaml:"axis"`
		Magnitude float64  `yaml:"magnitude"`
		Phrases   []string `yaml:"phrases"`
	} `yaml:"rules"`
}

// rule is one compiled phrase rule: any of the token sequences triggers
// a single contribution of magnitude on the axis.
type rule struct {
	axis      params.Axis
	magnitude float64
	phrases   [][]string
}

// ruleSet is the compiled offline interpreter table.
type ruleSet struct {
	negators map[string]bool
	rules    []rule
}

// loadRules compiles the embedded YAML table. Rules referencing an
// unknown axis fail loudly: the table ships with the binary, so a bad
// entry is a build defect, not a runtime condition.
func loadRules() (*ruleSet, error) {
	var cfg ruleConfig
	if err := yaml.Unmarshal(rulesYAML, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse rules table: %w", err)
	}

	rs := &ruleSet{negators: make(map[string]bool)}
	for _, n := range cfg.Negators {
		rs.negators[foldText(n)] = true
	}

	for _, rc := range cfg.Rules {
		axis := params.Axis(rc.Axis)
		if !params.Valid(axis) {
			return nil, fmt.Errorf("rules table references unknown axis %q", rc.Axis)
		}
		r := rule{axis: axis, magnitude: rc.Magnitude}
		for _, p := range rc.Phrases {
			tokens := tokenize(p)
			if len(tokens) == 0 {
				continue
			}
			r.phrases = append(r.phrases, tokens)
		}
		if len(r.phrases) == 0 {
			return nil, fmt.Errorf("rule for axis %q has no usable phrases", rc.Axis)
		}
		rs.rules = append(rs.rules, r)
	}
	return rs, nil
}

// apply matches the rules against free-form feedback text and returns
// the accumulated delta. Each rule contributes at most once, so "warmer,
// much warmer" nudges white balance a single step.
func (rs *ruleSet) apply(text string) params.Delta {
	tokens := tokenize(text)
	delta := params.Delta{}

	for _, r := range rs.rules {
		pos := rs.match(tokens, r.phrases)
		if pos < 0 {
			continue
		}
		magnitude := r.magnitude
		if rs.negatedAt(tokens, pos) {
			magnitude = -magnitude
		}
		delta[r.axis] += magnitude
	}
	return delta
}

// match finds the earliest occurrence of any phrase in the token stream
// and returns its start index, or -1.
func (rs *ruleSet) match(tokens []string, phrases [][]string) int {
	best := -1
	for _, phrase := range phrases {
		for i := 0; i+len(phrase) <= len(tokens); i++ {
			if !tokensEqual(tokens[i:i+len(phrase)], phrase) {
				continue
			}
			if best == -1 || i < best {
				best = i
			}
			break
		}
	}
	return best
}

// negatedAt reports whether a negator token appears shortly before pos.
func (rs *ruleSet) negatedAt(tokens []string, pos int) bool {
	lo := pos - negatorWindow
	if lo < 0 {
		lo = 0
	}
	for i := pos - 1; i >= lo; i-- {
		if rs.negators[tokens[i]] {
			return true
		}
	}
	return false
}

func tokensEqual(a, b []string) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// foldFormer strips combining marks after NFD decomposition, so accented
// text compares equal to its ASCII spelling.
var foldFormer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

func foldText(s string) string {
	folded, _, err := transform.String(foldFormer, strings.ToLower(s))
	if err != nil {
		return strings.ToLower(s)
	}
	return folded
}

// tokenize folds the text and splits it on anything that is not a letter
// or digit.
func tokenize(s string) []string {
	return strings.FieldsFunc(foldText(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

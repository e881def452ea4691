package pipeline

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// MaxPlainLen caps the tag-stripped text handed to plain-source rules.
const MaxPlainLen = 2_000_000

// Source selects which rendering of a document a rule is matched against.
type Source int

const (
	SourceRaw Source = iota
	SourcePlain
)

func ParseSource(s string) (Source, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "raw":
		return SourceRaw, nil
	case "plain":
		return SourcePlain, nil
	default:
		return SourceRaw, fmt.Errorf("unknown rule source %q", s)
	}
}

func (s Source) String() string {
	if s == SourcePlain {
		return "plain"
	}
	return "raw"
}

// Rule locates a numeric value in a document.
type Rule interface {
	Name() string
	Source() Source
	Match(text string) (float64, bool)
}

type regexRule struct {
	name   string
	source Source
	re     *regexp.Regexp
}

// NewRegexRule compiles pattern case-insensitively. The first capture group
// holds the number.
func NewRegexRule(name, pattern string, source Source) (Rule, error) {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("rule %s: %w", name, err)
	}
	if re.NumSubexp() < 1 {
		return nil, fmt.Errorf("rule %s: pattern has no capture group", name)
	}
	return &regexRule{name: name, source: source, re: re}, nil
}

func (r *regexRule) Name() string   { return r.name }
func (r *regexRule) Source() Source { return r.source }

func (r *regexRule) Match(text string) (float64, bool) {
	m := r.re.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	return ParseNumber(m[1])
}

// ParseNumber strips thousands separators and parses what remains.
func ParseNumber(s string) (float64, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

const numberCapture = `\$?([\d,]+(?:\.\d+)?)`

var labelRules = []RuleConfig{
	{Name: "aum-label", Pattern: `(?:AUM|Assets Under Management)[\s:]*` + numberCapture},
	{Name: "total-aum-label", Pattern: `Total Assets Under Management[\s:]*` + numberCapture},
	{Name: "aum-label-spaced", Pattern: `Assets\s+Under\s+Management[\s:]*` + numberCapture},
}

// DefaultRuleConfigs is the built-in chain: the information table total, the
// free-text labels on the raw document, then the same labels on the
// tag-stripped text.
func DefaultRuleConfigs() []RuleConfig {
	rules := []RuleConfig{
		{Name: "table-value-total", Pattern: `<tableValueTotal>\s*([\d,]+(?:\.\d+)?)\s*</tableValueTotal>`},
	}
	rules = append(rules, labelRules...)
	for _, r := range labelRules {
		rules = append(rules, RuleConfig{Name: r.Name + "-plain", Pattern: r.Pattern, Source: "plain"})
	}
	return rules
}

// Extractor runs its rules in declaration order and returns the first value
// that parses.
type Extractor struct {
	rules []Rule
}

func NewExtractor(rules ...Rule) *Extractor {
	return &Extractor{rules: rules}
}

// NewExtractorFromConfig compiles cfgs, or the defaults when cfgs is empty.
func NewExtractorFromConfig(cfgs []RuleConfig) (*Extractor, error) {
	if len(cfgs) == 0 {
		cfgs = DefaultRuleConfigs()
	}
	rules := make([]Rule, 0, len(cfgs))
	for i, c := range cfgs {
		name := c.Name
		if name == "" {
			name = fmt.Sprintf("rule-%d", i+1)
		}
		src, err := ParseSource(c.Source)
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", name, err)
		}
		r, err := NewRegexRule(name, c.Pattern, src)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return NewExtractor(rules...), nil
}

func (e *Extractor) Rules() []Rule { return e.rules }

func (e *Extractor) Extract(text string) (float64, bool) {
	v, _, ok := e.ExtractWithRule(text)
	return v, ok
}

// ExtractWithRule also reports the name of the rule that produced the value.
func (e *Extractor) ExtractWithRule(text string) (float64, string, bool) {
	var plain string
	plainDone := false

	for _, r := range e.rules {
		in := text
		if r.Source() == SourcePlain {
			if !plainDone {
				plain = PlainText(text)
				plainDone = true
			}
			in = plain
		}
		if v, ok := r.Match(in); ok {
			return v, r.Name(), true
		}
	}
	return 0, "", false
}

// PlainText drops markup and collapses whitespace. Text that does not parse as
// markup is returned with whitespace collapsed.
func PlainText(doc string) string {
	var text string
	d, err := goquery.NewDocumentFromReader(strings.NewReader(doc))
	if err != nil {
		text = doc
	} else {
		d.Find("script, style, noscript").Remove()
		text = d.Text()
	}

	text = strings.Join(strings.Fields(text), " ")
	if len(text) > MaxPlainLen {
		text = text[:MaxPlainLen]
	}
	return text
}

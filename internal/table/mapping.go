package table

import (
	"regexp"
	"strings"
)

// RuleKind discriminates the tagged variants of a name-mapping rule.
type RuleKind int

const (
	RuleExact RuleKind = iota
	RulePrefix
	RuleRegex
)

// Rule is one entry of a name-mapping rule list. Resolution is
// first-match-wins across the list, with the table's cached exact-map
// checked before the rule list.
type Rule struct {
	Kind RuleKind
	From string
	To   string

	re *regexp.Regexp
}

// NewRegexRule compiles a regex-from rule. $0, $1, ... in To are
// replaced the way regexp.ReplaceAll handles $-groups. The pattern is
// anchored to the full name, so a name the rule has already rewritten
// does not match and re-rewrite on a later lookup.
func NewRegexRule(from, to string) (Rule, error) {
	re, err := regexp.Compile("^(?:" + from + ")$")
	if err != nil {
		return Rule{}, err
	}
	return Rule{Kind: RuleRegex, From: from, To: to, re: re}, nil
}

// mapper holds a table's compiled mapping state: an exact-match cache
// (fast path) and the ordered general rule list (prefix/regex, checked
// in order, first match wins). Not safe for concurrent use; callers
// serialize through the table lock.
type mapper struct {
	exact map[string]string
	rules []Rule
}

func newMapper() *mapper {
	return &mapper{exact: make(map[string]string)}
}

// set replaces the whole rule list and rebuilds the exact-map cache.
func (m *mapper) set(rules []Rule) {
	m.rules = append([]Rule(nil), rules...)
	m.rebuildExact()
}

// add appends rules to the existing list and rebuilds the exact-map cache.
func (m *mapper) add(rules []Rule) {
	m.rules = append(m.rules, rules...)
	m.rebuildExact()
}

func (m *mapper) reset() {
	m.rules = nil
	m.exact = make(map[string]string)
}

func (m *mapper) rebuildExact() {
	m.exact = make(map[string]string)
	for _, r := range m.rules {
		if r.Kind == RuleExact {
			if _, ok := m.exact[r.From]; !ok {
				m.exact[r.From] = r.To
			}
		}
	}
}

// resolve applies exact-map first, then the general rule list in order,
// first match wins. Returns name unchanged if nothing matches.
func (m *mapper) resolve(name string) string {
	if to, ok := m.exact[name]; ok {
		return to
	}
	for _, r := range m.rules {
		switch r.Kind {
		case RuleExact:
			if r.From == name {
				return r.To
			}
		case RulePrefix:
			if strings.HasPrefix(name, r.From) {
				return r.To + strings.TrimPrefix(name, r.From)
			}
		case RuleRegex:
			if r.re != nil && r.re.MatchString(name) {
				return r.re.ReplaceAllString(name, r.To)
			}
		}
	}
	return name
}

// MatchRuleSet is an endpoint's name-match filter. An empty MatchRuleSet matches any name.
type MatchRuleSet struct {
	rules []Rule
}

// MatchAny returns a rule set that matches every name.
func MatchAny() MatchRuleSet { return MatchRuleSet{} }

// NewMatchRuleSet builds a match set from prefix/exact rules; a name
// matches if any rule's From is a prefix of (or equal to) it.
func NewMatchRuleSet(prefixes ...string) MatchRuleSet {
	rules := make([]Rule, 0, len(prefixes))
	for _, p := range prefixes {
		rules = append(rules, Rule{Kind: RulePrefix, From: p})
	}
	return MatchRuleSet{rules: rules}
}

func (s MatchRuleSet) Matches(name string) bool {
	if len(s.rules) == 0 {
		return true
	}
	for _, r := range s.rules {
		if strings.HasPrefix(name, r.From) {
			return true
		}
	}
	return false
}

// Package category assigns a display category to scraped courses.
package category

import (
	"fmt"
	"regexp"
	"strings"
)

// General is returned when nothing else matches.
const General = "General"

// Scope selects which part of a course a keyword is matched against.
type Scope string

const (
	ScopeTitle   Scope = "title"
	ScopeContent Scope = "content"
	ScopeAll     Scope = "all"
)

// Course is the text a classifier looks at.
type Course struct {
	Title       string
	Description string
	// Original is the category reported by the source site, if any.
	Original string
}

// Rule maps keywords to a category.
type Rule struct {
	Category string
	Keywords []string
}

type compiledRule struct {
	category string
	patterns []*regexp.Regexp
}

// Classifier scores courses against keyword rules. A keyword found in the
// title is worth 3 points and one found only in the description 1 point.
type Classifier struct {
	rules    []compiledRule
	fallback []compiledRule
}

// New compiles rules and fallback rules. Fallback rules are consulted in order
// when no scored rule matched and the course carries no original category.
func New(rules, fallback []Rule) (*Classifier, error) {
	c := &Classifier{}
	var err error
	if c.rules, err = compile(rules); err != nil {
		return nil, err
	}
	if c.fallback, err = compile(fallback); err != nil {
		return nil, err
	}
	return c, nil
}

// Default returns a classifier using DefaultRules and FallbackRules.
func Default() *Classifier {
	c, err := New(DefaultRules, FallbackRules)
	if err != nil {
		panic(err)
	}
	return c
}

// Classify returns the best matching category for course.
func (c *Classifier) Classify(course Course) string {
	best, bestScore := "", 0
	for _, r := range c.rules {
		score := 0
		for _, re := range r.patterns {
			switch {
			case matches(re, course, ScopeTitle):
				score += 3
			case matches(re, course, ScopeContent):
				score++
			}
		}
		if score > bestScore {
			best, bestScore = r.category, score
		}
	}
	if best != "" {
		return best
	}

	if orig := strings.TrimSpace(course.Original); orig != "" {
		return orig
	}

	for _, r := range c.fallback {
		for _, re := range r.patterns {
			if matches(re, course, ScopeAll) {
				return r.category
			}
		}
	}
	return General
}

func matches(re *regexp.Regexp, course Course, scope Scope) bool {
	return re.MatchString(textForScope(course, scope))
}

func textForScope(course Course, scope Scope) string {
	switch scope {
	case ScopeTitle:
		return strings.ToLower(course.Title)
	case ScopeContent:
		return strings.ToLower(course.Description)
	default:
		return strings.ToLower(course.Title + " " + course.Description)
	}
}

func compile(rules []Rule) ([]compiledRule, error) {
	out := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		cr := compiledRule{category: r.Category}
		for _, kw := range r.Keywords {
			re, err := keywordPattern(kw)
			if err != nil {
				return nil, fmt.Errorf("category %s: %w", r.Category, err)
			}
			cr.patterns = append(cr.patterns, re)
		}
		out = append(out, cr)
	}
	return out, nil
}

// keywordPattern matches kw as a whole word so that short keywords such as
// "ai" or "ui" do not fire inside longer words.
func keywordPattern(kw string) (*regexp.Regexp, error) {
	kw = strings.ToLower(strings.TrimSpace(kw))
	if kw == "" {
		return nil, fmt.Errorf("empty keyword")
	}
	re, err := regexp.Compile(`(?:^|[^\pL\pN])` + regexp.QuoteMeta(kw) + `(?:$|[^\pL\pN+#])`)
	if err != nil {
		return nil, fmt.Errorf("invalid keyword %q: %w", kw, err)
	}
	return re, nil
}

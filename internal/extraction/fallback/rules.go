package fallback

import (
	"regexp"
	"strings"
)

// ruleAction says what a matched name rule does.
type ruleAction int

const (
	// actionReject drops the candidate.
	actionReject ruleAction = iota
	// actionRewrite replaces the matched text and vetting continues.
	actionRewrite
)

// nameRule is one entry of the name vetting table. Rules run in order, so a
// rewrite can defuse a reject that would otherwise follow it.
type nameRule struct {
	label   string
	pattern *regexp.Regexp
	action  ruleAction
	replace string
}

// nameRules vets every name the line regexes capture. The table deliberately
// favors precision: anything a rule can read as layout noise is dropped,
// because the fallback has no semantic understanding to recover from a false
// positive.
var nameRules = []nameRule{
	// Colon lines that only matched a later layer keep their separator.
	{
		label:   "trailing_colon",
		pattern: regexp.MustCompile(`\s*:$`),
		action:  actionRewrite,
		replace: "",
	},
	// A stray ")" glued to a method description ("ALP) Kinetic") keeps the
	// name and loses the method text.
	{
		label:   "method_suffix",
		pattern: regexp.MustCompile(`\)\s*(?i:kinetic|substrate|photometry|buffer)\b.*$`),
		action:  actionRewrite,
		replace: "",
	},
	// A name still starting with ")" after rewrites is a wrapped method
	// line, not a biomarker.
	{label: "leading_paren", pattern: regexp.MustCompile(`^\)`), action: actionReject},
	{label: "purely_numeric", pattern: regexp.MustCompile(`^[\d\s.,:/+-]+$`), action: actionReject},
	{label: "ordinal", pattern: regexp.MustCompile(`(?i)^\d+\s*(?:st|nd|rd|th)\.?$`), action: actionReject},
	{label: "page_number", pattern: regexp.MustCompile(`(?i)^page\b|^\d+\s+of\s+\d+$`), action: actionReject},
	{
		label:   "time_phrase",
		pattern: regexp.MustCompile(`(?i)\b(?:\d{1,2}\s*(?:am|pm)|morning|evening|afternoon|midnight|between|minimum|maximum)\b`),
		action:  actionReject,
	},
	{label: "too_short", pattern: regexp.MustCompile(`^.?$`), action: actionReject},
	{label: "too_long", pattern: regexp.MustCompile(`^.{51,}$`), action: actionReject},
}

// vetName normalizes and vets a captured name. The second return is the
// rejecting rule's label, empty on acceptance.
func vetName(raw string) (string, string) {
	name := strings.TrimSpace(raw)
	for _, rule := range nameRules {
		switch rule.action {
		case actionRewrite:
			if rule.pattern.MatchString(name) {
				name = strings.TrimSpace(rule.pattern.ReplaceAllString(name, rule.replace))
			}
		case actionReject:
			if rule.pattern.MatchString(name) {
				return "", rule.label
			}
		}
	}
	return name, ""
}

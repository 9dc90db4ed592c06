package lineage

import (
	"regexp"
	"strings"
)

// Transformation tags assigned to projected fields.
const (
	TransformAggregate      = "aggregate"
	TransformWindow         = "window"
	TransformConditional    = "conditional"
	TransformConcatenation  = "concatenation"
	TransformField          = "field"
	aggregateFunctionPrefix = TransformAggregate + ":"
)

// DefaultFactMarkers are the name fragments of layered warehouse tables
// (application, data mart, detail and summary layers).
var DefaultFactMarkers = []string{"app", "dm", "dwd", "dws"}

var (
	aggregatePattern = regexp.MustCompile(`\b(SUM|COUNT|AVG|MAX|MIN|GROUP_CONCAT)\s*\(`)
	casePattern      = regexp.MustCompile(`\bCASE\b`)
)

// Classify tags an expression by the kind of transformation it applies.
// An aggregate carries its function name when the first aggregate call in
// the text is SUM or COUNT.
func Classify(expr string) string {
	upper := strings.ToUpper(expr)
	if m := aggregatePattern.FindStringSubmatch(upper); m != nil {
		switch fn := m[1]; fn {
		case "SUM", "COUNT":
			return aggregateFunctionPrefix + fn
		}
		return TransformAggregate
	}
	switch {
	case strings.Contains(upper, "OVER") && strings.Contains(upper, "("):
		return TransformWindow
	case casePattern.MatchString(upper):
		return TransformConditional
	case strings.Contains(upper, "JOIN"),
		strings.Contains(upper, "CONCAT"),
		strings.Contains(upper, "||"):
		return TransformConcatenation
	}
	return TransformField
}

// classifyTable returns the category of a base table. Tables that are
// already known logical queries get no category.
func classifyTable(fullName string, known *knownNames, factMarkers []string) string {
	lower := strings.ToLower(fullName)
	if known.contains(lower) {
		return ""
	}
	for _, marker := range factMarkers {
		if marker != "" && strings.Contains(lower, marker) {
			return TableFact
		}
	}
	return TableDimension
}

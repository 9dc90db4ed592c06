// Package lineage turns parsed SQL into a lineage graph: the logical
// queries of a script (CTEs, temp tables, derived tables and the final
// query), the tables each one reads, and the edges between them.
package lineage

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/nnaka2992/pg-lineage/internal/parser"
	"github.com/nnaka2992/pg-lineage/internal/sqlast"
)

// DefaultMaxDepth bounds select-body nesting.
const DefaultMaxDepth = 64

// Id prefixes of the statement-level queries.
const (
	mainQueryID     = "main"
	cteIDPrefix     = "cte_"
	tempTablePrefix = "temp_node_"
	branchIDSuffix  = "_branch"
	derivedName     = "subquery"
)

var (
	// ErrParse is returned, wrapped, when the SQL text cannot be parsed.
	// The accompanying Result is empty but valid.
	ErrParse = errors.New("sql parse error")

	// ErrTooDeep is returned, wrapped, when queries nest deeper than the
	// configured maximum.
	ErrTooDeep = errors.New("query nesting too deep")
)

// Extractor builds lineage results from SQL.
type Extractor interface {
	// Extract parses sql and extracts its lineage. On failure it returns an
	// empty Result together with the error.
	Extract(sql string) (*Result, error)

	// ExtractParsed extracts the lineage of already parsed statements.
	ExtractParsed(parsed *parser.ParseResult) (*Result, error)
}

// Option configures an Extractor.
type Option func(*extractor)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *slog.Logger) Option {
	return func(e *extractor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithIDScheme selects how derived-table ids are generated.
func WithIDScheme(scheme IDScheme) Option {
	return func(e *extractor) {
		e.idScheme = scheme
	}
}

// WithFactMarkers replaces the name fragments that mark a table as a fact
// table.
func WithFactMarkers(markers ...string) Option {
	return func(e *extractor) {
		if len(markers) > 0 {
			e.factMarkers = append([]string(nil), markers...)
		}
	}
}

// WithMaxDepth sets the nesting limit. Values below 1 keep the default.
func WithMaxDepth(depth int) Option {
	return func(e *extractor) {
		if depth > 0 {
			e.maxDepth = depth
		}
	}
}

// extractor is immutable after New and safe for concurrent use.
type extractor struct {
	parser      parser.Parser
	logger      *slog.Logger
	idScheme    IDScheme
	factMarkers []string
	maxDepth    int
}

// New creates an Extractor.
func New(opts ...Option) Extractor {
	e := &extractor{
		parser:      parser.NewParser(),
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		idScheme:    IDSequential,
		factMarkers: DefaultFactMarkers,
		maxDepth:    DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract parses sql and extracts its lineage
func (e *extractor) Extract(sql string) (*Result, error) {
	parsed, err := e.parser.ParseSQL(sql)
	if err != nil {
		e.logger.Warn("failed to parse SQL", "error", err)
		return newResult(), fmt.Errorf("%w: %w", ErrParse, err)
	}
	return e.ExtractParsed(parsed)
}

// ExtractParsed walks every statement in order
func (e *extractor) ExtractParsed(parsed *parser.ParseResult) (*Result, error) {
	result := newResult()
	if parsed == nil {
		return result, nil
	}

	x := &extraction{
		logger:      e.logger,
		known:       newKnownNames(),
		ids:         newIDGenerator(e.idScheme),
		factMarkers: e.factMarkers,
		maxDepth:    e.maxDepth,
		ctes:        []*SubQuery{},
		subQueries:  []*SubQuery{},
	}

	for _, stmt := range parsed.Statements {
		if stmt.AST == nil {
			continue
		}
		converted, err := sqlast.ConvertAll(stmt.AST, stmt.SQL)
		if err != nil {
			e.logger.Warn("some expressions could not be rendered",
				"line", stmt.LineNumber, "error", err)
		}
		for _, s := range converted {
			x.statement(result, s, stmt.LineNumber)
		}
		if x.err != nil {
			e.logger.Warn("lineage extraction aborted", "line", stmt.LineNumber, "error", x.err)
			return newResult(), fmt.Errorf("statement at line %d: %w", stmt.LineNumber, x.err)
		}
	}

	result.CTEs = x.ctes
	result.SubQueries = x.subQueries
	return result, nil
}

// queryKind is the provenance of a SubQuery.
type queryKind int

const (
	kindMain queryKind = iota
	kindCTE
	kindSubQuery
	kindTempTable
)

// extraction is the mutable state of one ExtractParsed call.
type extraction struct {
	logger      *slog.Logger
	known       *knownNames
	ids         idGenerator
	factMarkers []string
	ctes        []*SubQuery
	subQueries  []*SubQuery

	depth    int
	maxDepth int
	err      error
}

func (x *extraction) statement(result *Result, stmt sqlast.Statement, line int) {
	switch s := stmt.(type) {
	case *sqlast.CreateTableAs:
		x.withItems(s.With)
		name := s.Table.FullName()
		temp := x.processSelect(s.Body, tempTablePrefix+name, name, kindTempTable)
		x.ctes = append(x.ctes, temp)
		x.known.register(name)
		x.logger.Debug("registered temp table", "name", name, "kind", s.Kind, "line", line)

	case *sqlast.SelectStatement:
		x.withItems(s.With)
		result.MainQuery = x.processSelect(s.Body, mainQueryID, MainQueryName, kindMain)

	case *sqlast.OtherStatement:
		x.logger.Debug("skipping statement", "kind", s.Kind, "line", line)
	}
}

// withItems processes CTEs in declaration order. Each name is registered
// only after its own body, so references always point backwards.
func (x *extraction) withItems(items []sqlast.WithItem) {
	for _, item := range items {
		cte := x.processSelect(item.Body, cteIDPrefix+item.Name, item.Name, kindCTE)
		x.ctes = append(x.ctes, cte)
		x.known.register(item.Name)
	}
}

// enter reports whether one more nesting level is allowed.
func (x *extraction) enter() bool {
	if x.err != nil {
		return false
	}
	if x.depth >= x.maxDepth {
		x.err = fmt.Errorf("%w: limit is %d", ErrTooDeep, x.maxDepth)
		return false
	}
	x.depth++
	return true
}

func (x *extraction) leave() {
	x.depth--
}

// Package sqlast is a small, closed view of a pg_query parse tree that keeps
// only what lineage extraction needs: statement kinds, select bodies, FROM
// sources, joins and projected items. Expressions are carried as normalized
// SQL text produced by the libpg_query deparser.
//
// Every variant family is sealed with an unexported marker method, so the
// set of shapes a consumer has to handle is fixed by this package.
package sqlast

import "strings"

// Statement is one top-level SQL statement.
type Statement interface {
	statementNode()
}

// SelectStatement is a plain query, optionally preceded by a WITH clause.
type SelectStatement struct {
	With []WithItem
	Body SelectBody
}

// CreateTableAs is any statement that materializes a select body under a
// new name: CREATE TABLE AS, CREATE MATERIALIZED VIEW, CREATE VIEW and
// SELECT ... INTO.
type CreateTableAs struct {
	Kind  CreateKind
	Table *TableName
	With  []WithItem
	Body  SelectBody
}

// OtherStatement is a statement lineage extraction does not look into.
type OtherStatement struct {
	Kind string
}

func (*SelectStatement) statementNode() {}
func (*CreateTableAs) statementNode()   {}
func (*OtherStatement) statementNode()  {}

// CreateKind names the statement form behind a CreateTableAs.
type CreateKind string

const (
	CreateTable            CreateKind = "TABLE"
	CreateMaterializedView CreateKind = "MATERIALIZED VIEW"
	CreateView             CreateKind = "VIEW"
	SelectInto             CreateKind = "SELECT INTO"
)

// WithItem is one common table expression.
type WithItem struct {
	Name string
	Body SelectBody
}

// SelectBody is the shape of a query expression.
type SelectBody interface {
	selectBody()
}

// SimpleSelect is a single SELECT ... FROM ... block.
type SimpleSelect struct {
	// From is nil for a SELECT without FROM.
	From    FromItem
	Joins   []Join
	Items   []SelectItem
	Where   string
	Having  string
	GroupBy []string
	OrderBy []string
}

// SetOperation is a flattened chain of UNION / INTERSECT / EXCEPT arms.
// Operators[i] joins Selects[i] and Selects[i+1].
type SetOperation struct {
	Operators []string
	Selects   []SelectBody
	// OrderBy is the ORDER BY applied to the whole set operation.
	OrderBy []string
}

// ParenSelect is a parenthesized query used as a set-operation arm: either a
// nested set operation or an arm carrying its own ORDER BY / LIMIT.
type ParenSelect struct {
	Select SelectBody
}

// ValuesSelect is a VALUES list.
type ValuesSelect struct {
	Rows int
}

// WithSelect is a nested query with its own WITH clause, such as a derived
// table "(WITH a AS (...) SELECT ... FROM a)". Its items are visible only
// inside Body. Top-level WITH clauses are carried by the statement instead.
type WithSelect struct {
	With []WithItem
	Body SelectBody
}

// UnsupportedBody is a query expression that is not a SELECT, such as a
// data-modifying CTE.
type UnsupportedBody struct {
	Kind string
}

func (*SimpleSelect) selectBody()    {}
func (*SetOperation) selectBody()    {}
func (*ParenSelect) selectBody()     {}
func (*ValuesSelect) selectBody()    {}
func (*WithSelect) selectBody()      {}
func (*UnsupportedBody) selectBody() {}

// FromItem is a FROM-clause source or the right-hand side of a join.
type FromItem interface {
	fromItem()
}

// TableName is a base relation reference.
type TableName struct {
	Catalog string
	Schema  string
	Name    string
	Alias   string
}

// DerivedTable is a parenthesized SELECT used as a source.
type DerivedTable struct {
	Body    SelectBody
	Alias   string
	Lateral bool
}

// OtherSource is any source that is neither a table nor a derived table,
// such as a set-returning function call.
type OtherSource struct {
	Kind string
}

func (*TableName) fromItem()    {}
func (*DerivedTable) fromItem() {}
func (*OtherSource) fromItem()  {}

// FullName returns the dotted catalog.schema.name form of the reference.
func (t *TableName) FullName() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{t.Catalog, t.Schema, t.Name} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ".")
}

// JoinKind is the rendered join type. An inner join renders as INNER JOIN
// only when INNER was written; JOIN, CROSS JOIN, NATURAL JOIN and a
// comma-separated FROM item render as " JOIN".
type JoinKind string

const (
	JoinLeft  JoinKind = "LEFT JOIN"
	JoinRight JoinKind = "RIGHT JOIN"
	JoinFull  JoinKind = "FULL JOIN"
	JoinInner JoinKind = "INNER JOIN"
	JoinPlain JoinKind = " JOIN"
)

// Join is one join step in a flattened FROM clause.
type Join struct {
	Kind  JoinKind
	Right FromItem
	// On is the ON condition text, empty for USING, NATURAL and cross joins.
	On string
}

// SelectItem is one entry of the projection list.
type SelectItem interface {
	selectItem()
}

// StarItem is the unqualified wildcard.
type StarItem struct{}

// ExprItem is any other projected expression.
type ExprItem struct {
	Expr  string
	Alias string
	// Column is set when Expr is a bare column reference.
	Column string
}

func (*StarItem) selectItem() {}
func (*ExprItem) selectItem() {}

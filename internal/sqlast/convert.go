package sqlast

import (
	"errors"
	"fmt"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// ConvertAll maps every statement of a parse result onto the closed variant
// model, in order. sql is the text the tree was parsed from; without it
// every inner join renders as " JOIN".
//
// Expression text that cannot be deparsed is left empty; the returned error
// then lists every such failure while the statements are still usable.
func ConvertAll(tree *pg_query.ParseResult, sql string) ([]Statement, error) {
	c := &converter{joins: scanJoinSyntax(sql)}
	stmts := make([]Statement, 0, len(tree.GetStmts()))
	for _, raw := range tree.GetStmts() {
		stmts = append(stmts, c.statement(raw.GetStmt()))
	}
	return stmts, errors.Join(c.errs...)
}

type converter struct {
	errs  []error
	joins joinSyntax
}

func (c *converter) statement(node *pg_query.Node) Statement {
	if sel := node.GetSelectStmt(); sel != nil {
		with := c.withItems(sel.GetWithClause())
		if into := sel.GetIntoClause(); into != nil && into.GetRel() != nil {
			return &CreateTableAs{
				Kind:  SelectInto,
				Table: tableName(into.GetRel()),
				With:  with,
				Body:  c.queryBody(sel),
			}
		}
		return &SelectStatement{With: with, Body: c.queryBody(sel)}
	}

	if ctas := node.GetCreateTableAsStmt(); ctas != nil {
		sel := ctas.GetQuery().GetSelectStmt()
		if sel == nil || ctas.GetInto().GetRel() == nil {
			return &OtherStatement{Kind: "CreateTableAsStmt"}
		}
		kind := CreateTable
		if ctas.GetObjtype() == pg_query.ObjectType_OBJECT_MATVIEW {
			kind = CreateMaterializedView
		}
		return &CreateTableAs{
			Kind:  kind,
			Table: tableName(ctas.GetInto().GetRel()),
			With:  c.withItems(sel.GetWithClause()),
			Body:  c.queryBody(sel),
		}
	}

	if view := node.GetViewStmt(); view != nil {
		sel := view.GetQuery().GetSelectStmt()
		if sel == nil || view.GetView() == nil {
			return &OtherStatement{Kind: "ViewStmt"}
		}
		return &CreateTableAs{
			Kind:  CreateView,
			Table: tableName(view.GetView()),
			With:  c.withItems(sel.GetWithClause()),
			Body:  c.queryBody(sel),
		}
	}

	return &OtherStatement{Kind: nodeKind(node)}
}

func (c *converter) withItems(with *pg_query.WithClause) []WithItem {
	if with == nil {
		return nil
	}
	items := make([]WithItem, 0, len(with.GetCtes()))
	for _, n := range with.GetCtes() {
		cte := n.GetCommonTableExpr()
		if cte == nil {
			continue
		}
		item := WithItem{Name: cte.GetCtename()}
		if sel := cte.GetCtequery().GetSelectStmt(); sel != nil {
			item.Body = c.selectBody(sel)
		} else {
			item.Body = &UnsupportedBody{Kind: nodeKind(cte.GetCtequery())}
		}
		items = append(items, item)
	}
	return items
}

// selectBody converts a nested query, keeping a WITH clause of its own.
func (c *converter) selectBody(sel *pg_query.SelectStmt) SelectBody {
	body := c.queryBody(sel)
	if with := sel.GetWithClause(); with != nil {
		return &WithSelect{With: c.withItems(with), Body: body}
	}
	return body
}

// queryBody converts a query without its WITH clause.
func (c *converter) queryBody(sel *pg_query.SelectStmt) SelectBody {
	switch {
	case sel == nil:
		return &UnsupportedBody{}
	case len(sel.GetValuesLists()) > 0:
		return &ValuesSelect{Rows: len(sel.GetValuesLists())}
	case isSetOp(sel):
		op := &SetOperation{OrderBy: c.sortList(sel.GetSortClause())}
		c.flattenSetOp(sel, op)
		return op
	default:
		return c.simpleSelect(sel)
	}
}

// flattenSetOp walks the left spine of a set-operation tree so that
// "a UNION b UNION c" becomes one SetOperation with three arms. Right-hand
// set operations are only produced by parentheses or operator precedence
// and stay nested.
func (c *converter) flattenSetOp(sel *pg_query.SelectStmt, op *SetOperation) {
	if left := sel.GetLarg(); isSetOp(left) && !hasOwnClauses(left) {
		c.flattenSetOp(left, op)
	} else {
		op.Selects = append(op.Selects, c.arm(left))
	}
	op.Operators = append(op.Operators, setOpText(sel))
	op.Selects = append(op.Selects, c.arm(sel.GetRarg()))
}

func (c *converter) arm(sel *pg_query.SelectStmt) SelectBody {
	body := c.selectBody(sel)
	if isSetOp(sel) || hasOwnClauses(sel) {
		return &ParenSelect{Select: body}
	}
	return body
}

func (c *converter) simpleSelect(sel *pg_query.SelectStmt) *SimpleSelect {
	s := &SimpleSelect{
		Where:   c.expr(sel.GetWhereClause()),
		Having:  c.expr(sel.GetHavingClause()),
		OrderBy: c.sortList(sel.GetSortClause()),
	}

	for i, from := range sel.GetFromClause() {
		src, joins := c.flattenFrom(from)
		if i == 0 {
			s.From = src
		} else {
			s.Joins = append(s.Joins, Join{Kind: JoinPlain, Right: src})
		}
		s.Joins = append(s.Joins, joins...)
	}

	for _, target := range sel.GetTargetList() {
		if item := c.selectItem(target.GetResTarget()); item != nil {
			s.Items = append(s.Items, item)
		}
	}

	for _, g := range sel.GetGroupClause() {
		text, err := GroupText(g)
		c.record(err)
		s.GroupBy = append(s.GroupBy, text)
	}

	return s
}

// flattenFrom turns one FROM-list entry into its leading source plus the
// joins that follow it, left to right. For "a JOIN (b JOIN c ON x) ON y"
// the result is a, [JOIN b ON y, JOIN c ON x].
func (c *converter) flattenFrom(node *pg_query.Node) (FromItem, []Join) {
	if j := node.GetJoinExpr(); j != nil {
		src, joins := c.flattenFrom(j.GetLarg())
		right, rightJoins := c.flattenFrom(j.GetRarg())
		joins = append(joins, Join{
			Kind:  c.joinKind(j),
			Right: right,
			On:    c.expr(j.GetQuals()),
		})
		return src, append(joins, rightJoins...)
	}
	return c.fromItem(node), nil
}

func (c *converter) fromItem(node *pg_query.Node) FromItem {
	if rv := node.GetRangeVar(); rv != nil {
		return tableName(rv)
	}
	if rs := node.GetRangeSubselect(); rs != nil {
		return &DerivedTable{
			Body:    c.selectBody(rs.GetSubquery().GetSelectStmt()),
			Alias:   rs.GetAlias().GetAliasname(),
			Lateral: rs.GetLateral(),
		}
	}
	if ts := node.GetRangeTableSample(); ts != nil {
		return c.fromItem(ts.GetRelation())
	}
	return &OtherSource{Kind: nodeKind(node)}
}

func (c *converter) selectItem(rt *pg_query.ResTarget) SelectItem {
	if rt == nil || rt.GetVal() == nil {
		return nil
	}
	val := rt.GetVal()
	if ref := val.GetColumnRef(); ref != nil {
		fields := ref.GetFields()
		if len(fields) == 1 && fields[0].GetAStar() != nil {
			return &StarItem{}
		}
	}

	item := &ExprItem{
		Expr:  c.expr(val),
		Alias: rt.GetName(),
	}
	if ref := val.GetColumnRef(); ref != nil {
		fields := ref.GetFields()
		if last := fields[len(fields)-1].GetString_(); last != nil {
			item.Column = last.GetSval()
		}
	}
	return item
}

func (c *converter) sortList(nodes []*pg_query.Node) []string {
	if len(nodes) == 0 {
		return nil
	}
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		text, err := SortText(n)
		c.record(err)
		out = append(out, text)
	}
	return out
}

func (c *converter) expr(node *pg_query.Node) string {
	text, err := ExprText(node)
	c.record(err)
	return text
}

func (c *converter) record(err error) {
	if err != nil {
		c.errs = append(c.errs, err)
	}
}

func tableName(rv *pg_query.RangeVar) *TableName {
	return &TableName{
		Catalog: rv.GetCatalogname(),
		Schema:  rv.GetSchemaname(),
		Name:    rv.GetRelname(),
		Alias:   rv.GetAlias().GetAliasname(),
	}
}

// joinKind reports INNER JOIN only when INNER was written; JOIN, CROSS JOIN
// and NATURAL JOIN are all plain.
func (c *converter) joinKind(j *pg_query.JoinExpr) JoinKind {
	switch j.GetJointype() {
	case pg_query.JoinType_JOIN_LEFT:
		return JoinLeft
	case pg_query.JoinType_JOIN_RIGHT:
		return JoinRight
	case pg_query.JoinType_JOIN_FULL:
		return JoinFull
	}
	if c.joins.innerWritten(j.GetRarg()) {
		return JoinInner
	}
	return JoinPlain
}

func isSetOp(sel *pg_query.SelectStmt) bool {
	if sel == nil {
		return false
	}
	switch sel.GetOp() {
	case pg_query.SetOperation_SETOP_UNION,
		pg_query.SetOperation_SETOP_INTERSECT,
		pg_query.SetOperation_SETOP_EXCEPT:
		return true
	}
	return false
}

// hasOwnClauses reports whether a set-operation arm carries clauses that
// require parentheses around it in the source text.
func hasOwnClauses(sel *pg_query.SelectStmt) bool {
	return len(sel.GetSortClause()) > 0 ||
		sel.GetLimitCount() != nil ||
		sel.GetLimitOffset() != nil ||
		len(sel.GetLockingClause()) > 0 ||
		sel.GetWithClause() != nil
}

func setOpText(sel *pg_query.SelectStmt) string {
	var op string
	switch sel.GetOp() {
	case pg_query.SetOperation_SETOP_UNION:
		op = "UNION"
	case pg_query.SetOperation_SETOP_INTERSECT:
		op = "INTERSECT"
	case pg_query.SetOperation_SETOP_EXCEPT:
		op = "EXCEPT"
	}
	if sel.GetAll() {
		op += " ALL"
	}
	return op
}

// nodeKind returns the pg_query node type name, e.g. "InsertStmt".
func nodeKind(node *pg_query.Node) string {
	if node == nil || node.GetNode() == nil {
		return ""
	}
	return strings.TrimPrefix(fmt.Sprintf("%T", node.GetNode()), "*pg_query.Node_")
}

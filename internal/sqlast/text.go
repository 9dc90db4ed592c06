package sqlast

import (
	"fmt"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// Clause markers used to cut a single clause back out of a deparsed
// carrier statement.
const (
	whereMarker   = "WHERE "
	groupByMarker = "GROUP BY "
	orderByMarker = "ORDER BY "
)

// carrierSelect returns "SELECT 1" with no other clauses. Expression nodes
// are attached to one of its clauses and deparsed, which yields the same
// normalized text libpg_query uses for whole statements.
func carrierSelect() *pg_query.SelectStmt {
	one := &pg_query.Node{
		Node: &pg_query.Node_AConst{
			AConst: &pg_query.A_Const{
				Val: &pg_query.A_Const_Ival{Ival: &pg_query.Integer{Ival: 1}},
			},
		},
	}
	return &pg_query.SelectStmt{
		TargetList: []*pg_query.Node{{
			Node: &pg_query.Node_ResTarget{ResTarget: &pg_query.ResTarget{Val: one}},
		}},
		Op:          pg_query.SetOperation_SETOP_NONE,
		LimitOption: pg_query.LimitOption_LIMIT_OPTION_DEFAULT,
	}
}

// ExprText renders an expression node as SQL text.
func ExprText(node *pg_query.Node) (string, error) {
	if node == nil {
		return "", nil
	}
	sel := carrierSelect()
	sel.WhereClause = node
	return clauseText(sel, whereMarker)
}

// GroupText renders one GROUP BY element, including grouping sets.
func GroupText(node *pg_query.Node) (string, error) {
	if node == nil {
		return "", nil
	}
	sel := carrierSelect()
	sel.GroupClause = []*pg_query.Node{node}
	return clauseText(sel, groupByMarker)
}

// SortText renders one ORDER BY element with its direction and NULLS
// ordering.
func SortText(node *pg_query.Node) (string, error) {
	if node == nil {
		return "", nil
	}
	sel := carrierSelect()
	sel.SortClause = []*pg_query.Node{node}
	return clauseText(sel, orderByMarker)
}

func clauseText(sel *pg_query.SelectStmt, marker string) (string, error) {
	tree := &pg_query.ParseResult{
		Stmts: []*pg_query.RawStmt{{
			Stmt: &pg_query.Node{Node: &pg_query.Node_SelectStmt{SelectStmt: sel}},
		}},
	}
	text, err := pg_query.Deparse(tree)
	if err != nil {
		return "", fmt.Errorf("deparse %s: %w", strings.TrimSpace(marker), err)
	}
	_, clause, ok := strings.Cut(text, marker)
	if !ok {
		return "", fmt.Errorf("deparse %s: clause missing in %q", strings.TrimSpace(marker), text)
	}
	return strings.TrimSpace(clause), nil
}

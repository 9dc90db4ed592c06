package lineage

import (
	"slices"

	"github.com/nnaka2992/pg-lineage/internal/sqlast"
)

// processSelect builds the SubQuery for one select body. The returned node
// always carries the given id.
func (x *extraction) processSelect(body sqlast.SelectBody, id, name string, kind queryKind) *SubQuery {
	if !x.enter() {
		return newSubQuery(id, name, kind)
	}
	defer x.leave()

	switch b := body.(type) {
	case *sqlast.SimpleSelect:
		sub := newSubQuery(id, name, kind)
		x.processSimple(sub, b)
		return sub
	case *sqlast.SetOperation:
		return x.processSetOperation(b, id, name, kind)
	case *sqlast.ParenSelect:
		return x.processSelect(b.Select, id, name, kind)
	case *sqlast.ValuesSelect:
		x.logger.Debug("values list", "id", id, "rows", b.Rows)
		return newSubQuery(id, name, kind)
	case *sqlast.WithSelect:
		// Nested CTE names are visible only inside this body.
		mark := x.known.mark()
		x.withItems(b.With)
		sub := x.processSelect(b.Body, id, name, kind)
		x.known.restore(mark)
		return sub
	case *sqlast.UnsupportedBody:
		x.logger.Debug("unsupported query body", "id", id, "kind", b.Kind)
		return newSubQuery(id, name, kind)
	}
	return newSubQuery(id, name, kind)
}

func (x *extraction) processSimple(sub *SubQuery, s *sqlast.SimpleSelect) {
	if s.From != nil {
		x.resolve(sub, s.From)
	}

	for _, j := range s.Joins {
		ref, ok := x.resolve(sub, j.Right)
		if !ok {
			continue
		}
		sub.Joins = append(sub.Joins, JoinInfo{
			Type:      string(j.Kind),
			Table:     ref,
			Condition: j.On,
		})
	}

	for _, item := range s.Items {
		sub.Fields = append(sub.Fields, fieldInfo(item))
	}

	if s.Where != "" {
		sub.Filters = append(sub.Filters, FilterInfo{Clause: ClauseWhere, Condition: s.Where})
	}
	if s.Having != "" {
		sub.Filters = append(sub.Filters, FilterInfo{Clause: ClauseHaving, Condition: s.Having})
	}
	if len(s.GroupBy) > 0 {
		sub.GroupBy = slices.Clone(s.GroupBy)
	}
	if len(s.OrderBy) > 0 {
		sub.OrderBy = slices.Clone(s.OrderBy)
	}
}

// processSetOperation merges every arm into one node. Arms are built under
// <id>_branch and are not listed on their own.
func (x *extraction) processSetOperation(op *sqlast.SetOperation, id, name string, kind queryKind) *SubQuery {
	sub := newSubQuery(id, name, kind)
	info := &UnionInfo{Sources: []string{}}
	if len(op.Operators) > 0 {
		info.Type = op.Operators[0]
	}

	for _, arm := range op.Selects {
		branch := x.processSelect(arm, id+branchIDSuffix, name, kindSubQuery)
		sub.Tables = append(sub.Tables, branch.Tables...)
		for _, dep := range branch.DependsOn {
			addDependency(sub, dep)
		}
		for _, t := range branch.Tables {
			if !slices.Contains(info.Sources, t.Name) {
				info.Sources = append(info.Sources, t.Name)
			}
		}
	}

	if len(op.OrderBy) > 0 {
		sub.OrderBy = slices.Clone(op.OrderBy)
	}
	sub.UnionInfo = info
	return sub
}

// fieldInfo describes one projected item.
func fieldInfo(item sqlast.SelectItem) FieldInfo {
	var expr, alias string
	switch it := item.(type) {
	case *sqlast.StarItem:
		expr, alias = "*", "*"
	case *sqlast.ExprItem:
		expr, alias = it.Expr, it.Alias
		if alias == "" {
			alias = it.Column
		}
	}

	display := expr
	if alias != "" {
		display = expr + " AS " + alias
	}
	return FieldInfo{
		Expression:     expr,
		Alias:          alias,
		OriginalName:   expr,
		DisplayText:    display,
		Transformation: Classify(expr),
	}
}

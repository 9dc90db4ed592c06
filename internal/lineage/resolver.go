package lineage

import (
	"github.com/nnaka2992/pg-lineage/internal/sqlast"
)

// resolve adds one FROM source or join target to sub. It reports the
// TableRef it added, if any; unaliased derived tables and function sources
// add none.
func (x *extraction) resolve(sub *SubQuery, item sqlast.FromItem) (TableRef, bool) {
	switch src := item.(type) {
	case *sqlast.TableName:
		ref := x.tableRef(src)
		sub.Tables = append(sub.Tables, ref)
		x.known.track(sub, ref)
		return ref, true

	case *sqlast.DerivedTable:
		return x.derivedTable(sub, src)

	case *sqlast.OtherSource:
		x.logger.Debug("ignoring FROM source", "query", sub.ID, "kind", src.Kind)
	}
	return TableRef{}, false
}

// derivedTable processes the body of a derived table into the global
// sub-query list. Only an aliased derived table can be referenced, so only
// then is it linked into sub.
func (x *extraction) derivedTable(sub *SubQuery, src *sqlast.DerivedTable) (TableRef, bool) {
	id := x.ids.next()
	name := src.Alias
	if name == "" {
		name = derivedName
	}

	if src.Lateral {
		x.logger.Debug("lateral derived table", "query", sub.ID, "id", id)
	}
	nested := x.processSelect(src.Body, id, name, kindSubQuery)
	x.subQueries = append(x.subQueries, nested)

	if src.Alias == "" {
		return TableRef{}, false
	}

	ref := TableRef{
		Name:      id,
		TableName: src.Alias,
		Alias:     src.Alias,
		Type:      TableSubquery,
	}
	sub.Tables = append(sub.Tables, ref)
	addDependency(sub, id)
	return ref, true
}

func (x *extraction) tableRef(t *sqlast.TableName) TableRef {
	full := t.FullName()
	alias := t.Alias
	if alias == "" {
		alias = full
	}
	return TableRef{
		Name:      full,
		Schema:    t.Schema,
		TableName: t.Name,
		Alias:     alias,
		Type:      classifyTable(full, x.known, x.factMarkers),
	}
}

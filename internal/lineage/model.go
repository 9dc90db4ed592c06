package lineage

import "encoding/json"

// MainQueryName is the display name of the final query.
const MainQueryName = "final query"

// Table categories assigned by the table classifier.
const (
	TableFact      = "fact"
	TableDimension = "dimension"
	TableSubquery  = "subquery"
)

// Filter clauses.
const (
	ClauseWhere  = "WHERE"
	ClauseHaving = "HAVING"
)

// Result is the lineage of one SQL text.
type Result struct {
	// CTEs holds WITH items and temp-table-backed statements in declaration order.
	CTEs []*SubQuery `json:"ctes" yaml:"ctes"`

	// MainQuery is the lineage of the last SELECT, nil if there is none.
	MainQuery *SubQuery `json:"mainQuery" yaml:"mainQuery"`

	// SubQueries holds every derived table in the order its processing finished.
	SubQueries []*SubQuery `json:"subQueries" yaml:"subQueries"`
}

// SubQuery is one logical query node of the lineage graph.
type SubQuery struct {
	ID          string       `json:"id" yaml:"id"`
	Name        string       `json:"name" yaml:"name"`
	IsCTE       bool         `json:"isCTE" yaml:"isCTE"`
	IsSubQuery  bool         `json:"isSubQuery" yaml:"isSubQuery"`
	IsTempTable bool         `json:"isTempTable" yaml:"isTempTable"`
	Tables      []TableRef   `json:"tables" yaml:"tables"`
	Fields      []FieldInfo  `json:"fields" yaml:"fields"`
	Joins       []JoinInfo   `json:"joins" yaml:"joins"`
	Filters     []FilterInfo `json:"filters" yaml:"filters"`
	GroupBy     []string     `json:"groupBy" yaml:"groupBy"`
	OrderBy     []string     `json:"orderBy" yaml:"orderBy"`
	DependsOn   []string     `json:"dependsOn" yaml:"dependsOn"`
	UnionInfo   *UnionInfo   `json:"unionInfo,omitempty" yaml:"unionInfo,omitempty"`
}

// TableRef is a table read by a SubQuery. For a derived table Name is the
// id of the SubQuery built from it.
type TableRef struct {
	Name      string `json:"name" yaml:"name"`
	Schema    string `json:"schema,omitempty" yaml:"schema,omitempty"`
	TableName string `json:"tableName" yaml:"tableName"`
	Alias     string `json:"alias" yaml:"alias"`
	// Type is empty when the table is a CTE or temp table of the same script.
	Type string `json:"type,omitempty" yaml:"type,omitempty"`
}

// FieldInfo is one projected select item.
type FieldInfo struct {
	Expression     string `json:"expression" yaml:"expression"`
	Alias          string `json:"alias" yaml:"alias"`
	OriginalName   string `json:"originalName" yaml:"originalName"`
	DisplayText    string `json:"displayText" yaml:"displayText"`
	Transformation string `json:"transformation" yaml:"transformation"`
}

// JoinInfo is one join step of a SubQuery.
type JoinInfo struct {
	Type      string   `json:"type" yaml:"type"`
	Table     TableRef `json:"table" yaml:"table"`
	Condition string   `json:"condition" yaml:"condition"`
}

// FilterInfo is a WHERE or HAVING condition.
type FilterInfo struct {
	Clause    string `json:"clause" yaml:"clause"`
	Condition string `json:"condition" yaml:"condition"`
}

// UnionInfo describes a set operation.
type UnionInfo struct {
	Type    string   `json:"type" yaml:"type"`
	Sources []string `json:"sources" yaml:"sources"`
}

func newResult() *Result {
	return &Result{
		CTEs:       []*SubQuery{},
		SubQueries: []*SubQuery{},
	}
}

func newSubQuery(id, name string, kind queryKind) *SubQuery {
	return &SubQuery{
		ID:          id,
		Name:        name,
		IsCTE:       kind == kindCTE,
		IsSubQuery:  kind == kindSubQuery,
		IsTempTable: kind == kindTempTable,
		Tables:      []TableRef{},
		Fields:      []FieldInfo{},
		Joins:       []JoinInfo{},
		Filters:     []FilterInfo{},
		GroupBy:     []string{},
		OrderBy:     []string{},
		DependsOn:   []string{},
	}
}

// AllQueries returns CTEs, then the main query if present, then sub-queries.
func (r *Result) AllQueries() []*SubQuery {
	all := make([]*SubQuery, 0, len(r.CTEs)+1+len(r.SubQueries))
	all = append(all, r.CTEs...)
	if r.MainQuery != nil {
		all = append(all, r.MainQuery)
	}
	return append(all, r.SubQueries...)
}

// Find returns the query with the given id from AllQueries.
func (r *Result) Find(id string) *SubQuery {
	for _, q := range r.AllQueries() {
		if q.ID == id {
			return q
		}
	}
	return nil
}

// Empty reports whether no query was extracted.
func (r *Result) Empty() bool {
	return len(r.CTEs) == 0 && r.MainQuery == nil && len(r.SubQueries) == 0
}

// wireResult is the serialized form of Result with allQueries added.
type wireResult struct {
	CTEs       []*SubQuery `json:"ctes" yaml:"ctes"`
	MainQuery  *SubQuery   `json:"mainQuery" yaml:"mainQuery"`
	SubQueries []*SubQuery `json:"subQueries" yaml:"subQueries"`
	AllQueries []*SubQuery `json:"allQueries" yaml:"allQueries"`
}

func (r *Result) wire() wireResult {
	w := wireResult{
		CTEs:       r.CTEs,
		MainQuery:  r.MainQuery,
		SubQueries: r.SubQueries,
		AllQueries: r.AllQueries(),
	}
	if w.CTEs == nil {
		w.CTEs = []*SubQuery{}
	}
	if w.SubQueries == nil {
		w.SubQueries = []*SubQuery{}
	}
	return w
}

// MarshalJSON adds the derived allQueries list.
func (r *Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.wire())
}

// MarshalYAML adds the derived allQueries list.
func (r *Result) MarshalYAML() (any, error) {
	return r.wire(), nil
}

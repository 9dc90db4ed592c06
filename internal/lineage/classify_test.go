package lineage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		expr string
		want string
	}{
		{"SUM(x)", "aggregate:SUM"},
		{"sum(o.amount)", "aggregate:SUM"},
		{"count(*)", "aggregate:COUNT"},
		{"COUNT (DISTINCT id)", "aggregate:COUNT"},
		{"avg(price)", "aggregate"},
		{"max(a) - min(a)", "aggregate"},
		{"group_concat(name)", "aggregate"},
		{"max(consumer)", "aggregate"},
		{"min(summary_date)", "aggregate"},
		{"count(DISTINCT summary)", "aggregate:COUNT"},
		{"sum(discount)", "aggregate:SUM"},
		{"max(count_total)", "aggregate"},
		{"coalesce(sum(x), 0)", "aggregate:SUM"},
		{"avg(x) + sum(y)", "aggregate"},
		{"sum(x) OVER (PARTITION BY y)", "aggregate:SUM"},
		{"row_number() OVER (ORDER BY id)", "window"},
		{"CASE WHEN x > 0 THEN 1 END", "conditional"},
		{"case when a then b else c end", "conditional"},
		{"concat(first, last)", "concatenation"},
		{"first || last", "concatenation"},
		{"array_join(tags, ',')", "concatenation"},
		{"o.id", "field"},
		{"*", "field"},
		{"summary", "field"},
		{"casetype", "field"},
		{"upper(name)", "field"},
		{"", "field"},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got := Classify(tt.expr)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, Classify(tt.expr), "classification must be stable")
		})
	}
}

func TestClassifyTable(t *testing.T) {
	known := newKnownNames()
	known.register("Stage_Orders")

	tests := []struct {
		name    string
		table   string
		markers []string
		want    string
	}{
		{"detail layer", "dwd_orders", DefaultFactMarkers, TableFact},
		{"summary layer", "warehouse.dws_sales_daily", DefaultFactMarkers, TableFact},
		{"data mart", "DM_USERS", DefaultFactMarkers, TableFact},
		{"plain table", "users", DefaultFactMarkers, TableDimension},
		{"known name", "stage_orders", DefaultFactMarkers, ""},
		{"known name any case", "STAGE_ORDERS", DefaultFactMarkers, ""},
		{"custom markers", "fct_orders", []string{"fct_"}, TableFact},
		{"custom markers replace defaults", "dwd_orders", []string{"fct_"}, TableDimension},
		{"empty marker ignored", "users", []string{""}, TableDimension},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyTable(tt.table, known, tt.markers))
		})
	}
}

func TestKnownNamesTrack(t *testing.T) {
	known := newKnownNames()
	known.register("a")
	known.register("A")
	assert.Equal(t, []string{"a"}, known.names)

	sub := newSubQuery("main", MainQueryName, kindMain)
	known.track(sub, TableRef{Name: "A"})
	known.track(sub, TableRef{Name: "a"})
	known.track(sub, TableRef{Name: "b"})
	assert.Equal(t, []string{"a"}, sub.DependsOn)
}

func TestParseIDScheme(t *testing.T) {
	for _, in := range []string{"", "sequential"} {
		got, err := ParseIDScheme(in)
		assert.NoError(t, err)
		assert.Equal(t, IDSequential, got)
	}
	got, err := ParseIDScheme("random")
	assert.NoError(t, err)
	assert.Equal(t, IDRandom, got)

	_, err = ParseIDScheme("uuid")
	assert.Error(t, err)
}

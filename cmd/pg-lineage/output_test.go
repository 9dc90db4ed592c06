package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/nnaka2992/pg-lineage/internal/config"
	"github.com/nnaka2992/pg-lineage/internal/lineage"
)

const joinSQL = `
WITH recent AS (SELECT id, user_id FROM dwd.orders WHERE amount > 0)
SELECT u.name, COUNT(*) AS n
FROM recent r
JOIN users u ON u.id = r.user_id
LEFT JOIN (SELECT user_id FROM refunds) x ON x.user_id = u.id
GROUP BY u.name
HAVING COUNT(*) > 1`

func extract(t *testing.T, sql string) *lineage.Result {
	t.Helper()
	result, err := lineage.New().Extract(sql)
	require.NoError(t, err)
	return result
}

func TestOutputText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, outputResult(&buf, config.OutputText, extract(t, joinSQL)))
	out := buf.String()

	tests := []struct {
		name string
		want string
	}{
		{"cte row", "cte_recent"},
		{"main row", "final query"},
		{"derived row", "sub_1"},
		{"fact table", "dwd.orders (fact)"},
		{"aliased table", "users u (dimension)"},
		{"derived table reference", "sub_1 x (subquery)"},
		{"plain join line", "\n  JOIN users ON u.id = r.user_id"},
		{"left join line", "LEFT JOIN sub_1 ON x.user_id = u.id"},
		{"where line", "WHERE amount > 0"},
		{"having line", "HAVING count(*) > 1"},
		{"summary", "Summary: 3 queries (1 CTEs/temp tables, 1 main, 1 sub-queries)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, out, tt.want)
		})
	}
}

func TestOutputTextEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, outputResult(&buf, config.OutputText, extract(t, "")))
	assert.Contains(t, buf.String(), "No queries found")
	assert.Contains(t, buf.String(), "Summary: 0 queries")
}

func TestOutputStructured(t *testing.T) {
	result := extract(t, joinSQL)

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, outputResult(&buf, config.OutputJSON, result))

		var decoded map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
		assert.Len(t, decoded["ctes"], 1)
		assert.Len(t, decoded["subQueries"], 1)
		assert.Len(t, decoded["allQueries"], 3)
	})

	t.Run("yaml", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, outputResult(&buf, config.OutputYAML, result))

		var decoded map[string]any
		require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
		mq, ok := decoded["mainQuery"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, lineage.MainQueryName, mq["name"])
		assert.Equal(t, []any{"recent", "sub_1"}, mq["dependsOn"])
	})
}

func TestOutputFiles(t *testing.T) {
	outputs := []fileOutput{
		{File: "a.sql", Lineage: extract(t, "SELECT * FROM users")},
		{File: "b.sql", Lineage: extract(t, ""), Error: "sql parse error: boom"},
	}

	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, outputFiles(&buf, config.OutputText, outputs))
		out := buf.String()
		assert.Contains(t, out, "== a.sql ==")
		assert.Contains(t, out, "== b.sql ==")
		assert.Contains(t, out, "error: sql parse error: boom")
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, outputFiles(&buf, config.OutputJSON, outputs))

		var decoded []map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
		require.Len(t, decoded, 2)
		assert.Equal(t, "a.sql", decoded[0]["file"])
		assert.NotContains(t, decoded[0], "error")
		assert.Equal(t, "sql parse error: boom", decoded[1]["error"])
	})
}

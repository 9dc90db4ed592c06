package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"gopkg.in/yaml.v3"

	"github.com/nnaka2992/pg-lineage/internal/config"
	"github.com/nnaka2992/pg-lineage/internal/lineage"
)

// fileOutput is the lineage of one input file.
type fileOutput struct {
	File    string          `json:"file" yaml:"file"`
	Lineage *lineage.Result `json:"lineage" yaml:"lineage"`
	Error   string          `json:"error,omitempty" yaml:"error,omitempty"`
}

// outputResult prints a single result in the requested format
func outputResult(w io.Writer, format string, result *lineage.Result) error {
	switch format {
	case config.OutputJSON:
		return outputJSON(w, result)
	case config.OutputYAML:
		return outputYAML(w, result)
	default:
		return outputText(w, result)
	}
}

// outputFiles prints one result per input file
func outputFiles(w io.Writer, format string, outputs []fileOutput) error {
	switch format {
	case config.OutputJSON:
		return outputJSON(w, outputs)
	case config.OutputYAML:
		return outputYAML(w, outputs)
	}

	for i, out := range outputs {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "== %s ==\n", out.File)
		if out.Error != "" {
			fmt.Fprintf(w, "error: %s\n", out.Error)
		}
		if err := outputText(w, out.Lineage); err != nil {
			return err
		}
	}
	return nil
}

// outputJSON formats v as indented JSON
func outputJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("encoding JSON: %w", err)
	}
	return nil
}

// outputYAML formats v as YAML
func outputYAML(w io.Writer, v any) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("encoding YAML: %w", err)
	}
	return encoder.Close()
}

// outputText renders an overview table of every query followed by the
// joins and filters of the queries that have any.
func outputText(w io.Writer, result *lineage.Result) error {
	queries := result.AllQueries()
	if len(queries) == 0 {
		fmt.Fprintln(w, "No queries found")
		fmt.Fprintf(w, "\nSummary: %s\n", summary(result))
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Name", "Kind", "Tables", "Depends On", "Fields"})
	for _, q := range queries {
		t.AppendRow(table.Row{
			q.ID,
			q.Name,
			queryKind(q),
			strings.Join(tableLabels(q.Tables), "\n"),
			strings.Join(q.DependsOn, ", "),
			len(q.Fields),
		})
	}
	t.Render()

	for _, q := range queries {
		if len(q.Joins) == 0 && len(q.Filters) == 0 && q.UnionInfo == nil {
			continue
		}
		fmt.Fprintf(w, "\n%s:\n", q.ID)
		if q.UnionInfo != nil {
			fmt.Fprintf(w, "  %s of %s\n", q.UnionInfo.Type, strings.Join(q.UnionInfo.Sources, ", "))
		}
		for _, j := range q.Joins {
			line := fmt.Sprintf("  %s %s", strings.TrimSpace(j.Type), j.Table.Name)
			if j.Condition != "" {
				line += " ON " + j.Condition
			}
			fmt.Fprintln(w, line)
		}
		for _, f := range q.Filters {
			fmt.Fprintf(w, "  %s %s\n", f.Clause, f.Condition)
		}
	}

	fmt.Fprintf(w, "\nSummary: %s\n", summary(result))
	return nil
}

func queryKind(q *lineage.SubQuery) string {
	switch {
	case q.IsCTE:
		return "cte"
	case q.IsTempTable:
		return "temp table"
	case q.IsSubQuery:
		return "subquery"
	}
	return "main"
}

func tableLabels(refs []lineage.TableRef) []string {
	labels := make([]string, 0, len(refs))
	for _, r := range refs {
		label := r.Name
		if r.Alias != "" && r.Alias != r.Name {
			label += " " + r.Alias
		}
		if r.Type != "" {
			label += " (" + r.Type + ")"
		}
		labels = append(labels, label)
	}
	return labels
}

func summary(result *lineage.Result) string {
	mains := 0
	if result.MainQuery != nil {
		mains = 1
	}
	return fmt.Sprintf("%d queries (%d CTEs/temp tables, %d main, %d sub-queries)",
		len(result.AllQueries()), len(result.CTEs), mains, len(result.SubQueries))
}

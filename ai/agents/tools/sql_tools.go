// Package tools provides the data-access tools of the query agent.
//
// The tools run whatever statement the model sends. Read-only access and
// per-user filtering are instructions in the operating context, not checks
// here; deployments should point the driver at a read-only connection.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	agent "github.com/hrygo/fitcoach/ai/agents"
	"github.com/hrygo/fitcoach/ai/internal/strutil"
	"github.com/hrygo/fitcoach/store"
)

const (
	ListTablesToolName = "sql_db_list_tables"
	SchemaToolName     = "sql_db_schema"
	QueryToolName      = "sql_db_query"

	sampleRowCount = 3
	// MaxResultRunes bounds a query result handed back to the model.
	MaxResultRunes = 8000
)

// Source is the data store the tools run against. store.Driver satisfies it.
type Source interface {
	ListTables(ctx context.Context) ([]string, error)
	ListColumns(ctx context.Context, table string) ([]string, error)
	QueryRows(ctx context.Context, query string, args ...any) ([]store.Row, error)
}

// NewSQLTools returns the list-tables, schema and query tools. cache may be nil.
func NewSQLTools(source Source, cache *ToolResultCache) []agent.ToolWithSchema {
	list := &ListTablesTool{source: source}
	schema := &SchemaTool{source: source}
	query := &QueryTool{source: source}
	if cache == nil {
		return []agent.ToolWithSchema{list, schema, query}
	}
	return []agent.ToolWithSchema{withCache(list, cache), withCache(schema, cache), query}
}

// ListTablesTool lists the tables of the data store.
type ListTablesTool struct {
	source Source
}

func (t *ListTablesTool) Name() string { return ListTablesToolName }

func (t *ListTablesTool) Description() string {
	return "Input is an empty string, output is a comma-separated list of tables in the database."
}

func (t *ListTablesTool) Parameters() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}

func (t *ListTablesTool) Run(ctx context.Context, _ string) (string, error) {
	tables, err := t.source.ListTables(ctx)
	if err != nil {
		return "", err
	}
	return strings.Join(tables, ", "), nil
}

// SchemaTool describes tables with their columns and a few sample rows.
type SchemaTool struct {
	source Source
}

type schemaInput struct {
	TableNames string `json:"table_names"`
}

func (t *SchemaTool) Name() string { return SchemaToolName }

func (t *SchemaTool) Description() string {
	return "Input to this tool is a comma-separated list of tables, output is the schema and sample rows for those tables. " +
		"Be sure that the tables actually exist by calling " + ListTablesToolName + " first! Example Input: table1, table2, table3"
}

func (t *SchemaTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"table_names": map[string]any{
				"type":        "string",
				"description": "A comma-separated list of the table names for which to return the schema. Example input: 'table1, table2, table3'",
			},
		},
		"required": []string{"table_names"},
	}
}

func (t *SchemaTool) Run(ctx context.Context, input string) (string, error) {
	var in schemaInput
	if err := json.Unmarshal([]byte(input), &in); err != nil || in.TableNames == "" {
		in.TableNames = strings.Trim(strings.TrimSpace(input), `"`)
	}

	known, err := t.source.ListTables(ctx)
	if err != nil {
		return "", err
	}

	var requested, missing []string
	for _, name := range strings.Split(in.TableNames, ",") {
		name = strings.Trim(strings.TrimSpace(name), "'\"`")
		if name == "" {
			continue
		}
		if !slices.Contains(known, name) {
			missing = append(missing, name)
			continue
		}
		requested = append(requested, name)
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("table_names %v not found in database", missing)
	}
	if len(requested) == 0 {
		return "", fmt.Errorf("no table names given")
	}

	var b strings.Builder
	for i, table := range requested {
		if i > 0 {
			b.WriteString("\n\n")
		}
		if err := t.describe(ctx, &b, table); err != nil {
			return "", err
		}
	}
	return b.String(), nil
}

func (t *SchemaTool) describe(ctx context.Context, b *strings.Builder, table string) error {
	columns, err := t.source.ListColumns(ctx, table)
	if err != nil {
		return err
	}
	rows, err := t.source.QueryRows(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT %d", quoteIdentifier(table), sampleRowCount))
	if err != nil {
		return err
	}

	fmt.Fprintf(b, "Table: %s\nColumns: %s\n", table, strings.Join(columns, ", "))
	fmt.Fprintf(b, "/*\n%d rows from %s table:\n%s\n", len(rows), table, strings.Join(columns, "\t"))
	for _, row := range rows {
		values := make([]string, len(columns))
		for i, c := range columns {
			values[i] = fmt.Sprint(row[c])
		}
		b.WriteString(strings.Join(values, "\t"))
		b.WriteString("\n")
	}
	b.WriteString("*/")
	return nil
}

// QueryTool runs one statement and returns the rows as JSON.
type QueryTool struct {
	source Source
}

type queryInput struct {
	Query string `json:"query"`
}

func (t *QueryTool) Name() string { return QueryToolName }

func (t *QueryTool) Description() string {
	return "Input to this tool is a detailed and correct SQL query, output is a result from the database. " +
		"If the query is not correct, an error message will be returned. If an error is returned, rewrite the query, check the query, and try again. " +
		"If you encounter an issue with Unknown column 'xxxx' in 'field list', use " + SchemaToolName + " to query the correct table fields."
}

func (t *QueryTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "A detailed and correct SQL query.",
			},
		},
		"required": []string{"query"},
	}
}

func (t *QueryTool) Run(ctx context.Context, input string) (string, error) {
	var in queryInput
	if err := json.Unmarshal([]byte(input), &in); err != nil || in.Query == "" {
		in.Query = strings.TrimSpace(input)
	}
	if in.Query == "" {
		return "", fmt.Errorf("empty query")
	}

	rows, err := t.source.QueryRows(ctx, in.Query)
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "[]", nil
	}
	out, err := json.Marshal(rows)
	if err != nil {
		return "", fmt.Errorf("encode rows: %w", err)
	}
	return strutil.Truncate(string(out), MaxResultRunes), nil
}

// cachedTool serves repeated invocations from a ToolResultCache.
type cachedTool struct {
	agent.ToolWithSchema
	cache *ToolResultCache
}

func withCache(tool agent.ToolWithSchema, cache *ToolResultCache) agent.ToolWithSchema {
	return &cachedTool{ToolWithSchema: tool, cache: cache}
}

func (t *cachedTool) Run(ctx context.Context, input string) (string, error) {
	key := NewCacheKey(t.Name(), input)
	if out, ok := t.cache.Get(key); ok {
		return out, nil
	}
	out, err := t.ToolWithSchema.Run(ctx, input)
	if err != nil {
		return "", err
	}
	t.cache.Set(key, out)
	return out, nil
}

func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

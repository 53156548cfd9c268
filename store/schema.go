package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Introspector exposes table and column metadata.
type Introspector interface {
	ListTables(ctx context.Context) ([]string, error)
	ListColumns(ctx context.Context, table string) ([]string, error)
}

// TableSchema is the column list of one table.
type TableSchema struct {
	Name    string
	Columns []string
}

// SchemaCache holds the rendered schema description used in agent prompts.
// It is loaded once at startup; Reload and Invalidate are explicit.
type SchemaCache struct {
	source Introspector

	mu       sync.RWMutex
	tables   []TableSchema
	rendered string
}

func NewSchemaCache(source Introspector) *SchemaCache {
	return &SchemaCache{source: source}
}

// Reload rebuilds the description from the data store.
func (c *SchemaCache) Reload(ctx context.Context) error {
	names, err := c.source.ListTables(ctx)
	if err != nil {
		return fmt.Errorf("list tables: %w", err)
	}

	tables := make([]TableSchema, 0, len(names))
	for _, name := range names {
		columns, err := c.source.ListColumns(ctx, name)
		if err != nil {
			return fmt.Errorf("list columns of %s: %w", name, err)
		}
		tables = append(tables, TableSchema{Name: name, Columns: columns})
	}

	c.mu.Lock()
	c.tables = tables
	c.rendered = RenderSchema(tables)
	c.mu.Unlock()
	return nil
}

// Invalidate drops the cached description.
func (c *SchemaCache) Invalidate() {
	c.mu.Lock()
	c.tables = nil
	c.rendered = ""
	c.mu.Unlock()
}

// Describe returns the cached "table: col, col" description.
func (c *SchemaCache) Describe() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rendered
}

// TableNames returns the cached table names.
func (c *SchemaCache) TableNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, len(c.tables))
	for i, t := range c.tables {
		names[i] = t.Name
	}
	return names
}

// Vocabulary returns the cached table and column names.
func (c *SchemaCache) Vocabulary() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var words []string
	for _, t := range c.tables {
		words = append(words, t.Name)
		words = append(words, t.Columns...)
	}
	return words
}

// RenderSchema formats tables one per line as "name: col1, col2".
func RenderSchema(tables []TableSchema) string {
	lines := make([]string, len(tables))
	for i, t := range tables {
		lines[i] = t.Name + ": " + strings.Join(t.Columns, ", ")
	}
	return strings.Join(lines, "\n")
}

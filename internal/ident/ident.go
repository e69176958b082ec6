// Package ident validates and quotes the schema, table and column names that
// tablekeeper interpolates into administrative statements. Administrative
// statements cannot take identifiers as bind parameters, so every name is
// checked against a strict grammar before it is rendered.
package ident

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/faucetdb/tablekeeper/internal/model"
)

// identifierRegex is the grammar for schema, table and column names.
var identifierRegex = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// prefixRegex is the grammar for the tracking-table name prefix. It leaves
// room for the longest tracking table suffix within the 64 character limit.
var prefixRegex = regexp.MustCompile(`^[A-Za-z0-9_-]{0,49}$`)

// systemSchemas cannot be maintained.
var systemSchemas = map[string]bool{
	"information_schema": true,
	"performance_schema": true,
	"mysql":              true,
	"sys":                true,
}

// Validate ensures name matches the identifier grammar.
func Validate(kind, name string) error {
	if !identifierRegex.MatchString(name) {
		return fmt.Errorf("%w: invalid %s name %q", model.ErrValidation, kind, name)
	}
	return nil
}

// ValidateSchema validates a schema name and rejects system schemas.
func ValidateSchema(schema string) error {
	if err := Validate("schema", schema); err != nil {
		return err
	}
	if systemSchemas[strings.ToLower(schema)] {
		return fmt.Errorf("%w: system schema %q is not supported", model.ErrValidation, schema)
	}
	return nil
}

// ValidateTarget validates a schema and an optional list of table names.
func ValidateTarget(schema string, tables []string) error {
	if err := ValidateSchema(schema); err != nil {
		return err
	}
	for _, t := range tables {
		if err := Validate("table", t); err != nil {
			return err
		}
	}
	return nil
}

// ValidateColumns validates column names, returning the first error found.
func ValidateColumns(names []string) error {
	for _, name := range names {
		if err := Validate("column", name); err != nil {
			return err
		}
	}
	return nil
}

// ValidatePrefix validates a tracking-table prefix.
func ValidatePrefix(prefix string) error {
	if !prefixRegex.MatchString(prefix) {
		return fmt.Errorf("%w: invalid tracking table prefix %q", model.ErrValidation, prefix)
	}
	return nil
}

// Quote wraps an identifier in backticks, doubling embedded backticks.
func Quote(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// QuoteTable renders `schema`.`table`.
func QuoteTable(schema, table string) string {
	return Quote(schema) + "." + Quote(table)
}

// QuoteList renders a comma separated list of quoted identifiers.
func QuoteList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = Quote(n)
	}
	return strings.Join(quoted, ", ")
}

// QuoteString renders a single-quoted SQL string literal.
func QuoteString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

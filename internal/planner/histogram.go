package planner

import (
	"sort"
	"strings"

	"github.com/faucetdb/tablekeeper/internal/model"
)

// Data types that never get a histogram: unsupported by the server, or
// rarely filtered on so a histogram would not help the optimizer.
var histogramExcludedTypes = toSet(
	"GEOMETRY", "POINT", "LINESTRING", "POLYGON",
	"MULTIPOINT", "MULTILINESTRING", "MULTIPOLYGON", "GEOMETRYCOLLECTION",
	"JSON",
	"TINYBLOB", "BLOB", "MEDIUMBLOB", "LONGBLOB",
	"TINYTEXT", "TEXT", "MEDIUMTEXT", "LONGTEXT",
	"BINARY", "VARBINARY",
	"BIT",
	"YEAR", "DATE", "TIME", "DATETIME", "TIMESTAMP",
	"UUID",
)

func toSet(values ...string) map[string]bool {
	m := make(map[string]bool, len(values))
	for _, v := range values {
		m[v] = true
	}
	return m
}

// Column types used as flags have too few distinct values to be worth it.
var flagColumnTypes = []string{"tinyint(1)", "char(1)", "char(2)", "char(3)", "char(4)"}

const maxHistogramCharLength = 64

// histogramCandidate reports whether a column may get a histogram on its own
// merits, before indexes and overrides are considered.
func histogramCandidate(c model.Column) bool {
	if histogramExcludedTypes[strings.ToUpper(c.DataType)] {
		return false
	}
	extra := strings.ToUpper(c.Extra)
	if strings.Contains(extra, "AUTO_INCREMENT") || strings.Contains(extra, "CURRENT_TIMESTAMP") {
		return false
	}
	if c.Default != nil && strings.Contains(strings.ToUpper(*c.Default), "CURRENT_TIMESTAMP") {
		return false
	}
	if c.IsGenerated() {
		return false
	}
	if c.MaxLength != nil && *c.MaxLength >= maxHistogramCharLength {
		return false
	}
	colType := strings.ToLower(c.ColumnType)
	for _, f := range flagColumnTypes {
		if strings.Contains(colType, f) {
			return false
		}
	}
	return true
}

// SelectHistogramColumns picks the columns to collect statistics for.
// Candidates keep ordinal order, minus indexed and auto-updating columns;
// include adds columns after them and exclude removes columns last. The
// result is deterministic for the same input.
func SelectHistogramColumns(cols []model.Column, indexed, include, exclude, autoUpdated []string) []string {
	skip := make(map[string]bool, len(indexed)+len(autoUpdated))
	for _, c := range indexed {
		skip[c] = true
	}
	for _, c := range autoUpdated {
		skip[c] = true
	}
	excluded := make(map[string]bool, len(exclude))
	for _, c := range exclude {
		excluded[c] = true
	}

	ordered := make([]model.Column, len(cols))
	copy(ordered, cols)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Position < ordered[j].Position })

	seen := make(map[string]bool)
	var out []string
	add := func(name string) {
		if seen[name] || excluded[name] {
			return
		}
		seen[name] = true
		out = append(out, name)
	}
	for _, c := range ordered {
		if !skip[c.Name] && histogramCandidate(c) {
			add(c.Name)
		}
	}
	for _, c := range include {
		add(c)
	}
	return out
}

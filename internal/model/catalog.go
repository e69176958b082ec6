package model

import (
	"strings"
	"time"
)

// TableRef identifies one table on the target server.
type TableRef struct {
	Schema string `json:"schema"`
	Table  string `json:"table"`
}

func (r TableRef) String() string {
	return "`" + r.Schema + "`.`" + r.Table + "`"
}

// TableStatus is the live catalog view of a base table as reported by
// information_schema.TABLES, plus a few derived attributes.
type TableStatus struct {
	Schema         string     `json:"schema"`
	Table          string     `json:"table"`
	Engine         Engine     `json:"engine"`
	RowFormat      string     `json:"row_format"`
	CreateOptions  string     `json:"create_options"`
	Rows           *int64     `json:"rows,omitempty"`
	DataLength     int64      `json:"data_length"`
	IndexLength    int64      `json:"index_length"`
	DataFree       int64      `json:"data_free"`
	Checksum       *int64     `json:"checksum,omitempty"`
	CreateTime     *time.Time `json:"create_time,omitempty"`
	UpdateTime     *time.Time `json:"update_time,omitempty"`
	CheckTime      *time.Time `json:"check_time,omitempty"`
	HasFulltext    bool       `json:"has_fulltext"`
	PageCompressed bool       `json:"page_compressed"`
}

// LastModified returns the later of create and update time. Engines that do
// not track update time still report a create time.
func (s TableStatus) LastModified() *time.Time {
	switch {
	case s.UpdateTime == nil:
		return s.CreateTime
	case s.CreateTime == nil:
		return s.UpdateTime
	case s.CreateTime.After(*s.UpdateTime):
		return s.CreateTime
	default:
		return s.UpdateTime
	}
}

// Column describes a single column as needed by histogram candidate selection.
type Column struct {
	Name                 string  `json:"name"`
	Position             int     `json:"position"`
	DataType             string  `json:"data_type"`
	ColumnType           string  `json:"column_type"`
	Default              *string `json:"default,omitempty"`
	Extra                string  `json:"extra,omitempty"`
	MaxLength            *int64  `json:"max_length,omitempty"`
	GenerationExpression string  `json:"generation_expression,omitempty"`
}

// IsGenerated reports whether the column is a virtual or stored generated column.
func (c Column) IsGenerated() bool {
	return strings.TrimSpace(c.GenerationExpression) != ""
}

// ColumnRef names a column without describing it.
type ColumnRef struct {
	Table  string
	Column string
}

// Index describes a fulltext index and its column list in key order.
type Index struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
}

// PersistentStats is one row of mysql.innodb_table_stats.
type PersistentStats struct {
	Table      string
	Rows       int64
	LastUpdate time.Time
}

// AdminMessage is one result row of CHECK/REPAIR/ANALYZE/OPTIMIZE TABLE.
type AdminMessage struct {
	Table   string `json:"table" db:"Table"`
	Op      string `json:"op" db:"Op"`
	MsgType string `json:"msg_type" db:"Msg_type"`
	MsgText string `json:"msg_text" db:"Msg_text"`
}

// Timing records how long one statement took on the target server.
type Timing struct {
	Statement string        `json:"statement"`
	Duration  time.Duration `json:"duration_ns"`
	At        time.Time     `json:"at"`
}

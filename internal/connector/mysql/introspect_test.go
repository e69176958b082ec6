package mysql

import (
	"errors"
	"fmt"
	"testing"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"

	"github.com/faucetdb/tablekeeper/internal/connector"
	"github.com/faucetdb/tablekeeper/internal/model"
)

func strPtr(s string) *string { return &s }
func intPtr(n int64) *int64   { return &n }

func TestTableRowToModel(t *testing.T) {
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	row := tableRow{
		Schema:        "shop",
		Name:          "orders",
		Engine:        strPtr("innodb"),
		RowFormat:     strPtr("Dynamic"),
		CreateOptions: strPtr("`PAGE_COMPRESSED`='ON'"),
		Rows:          intPtr(42),
		DataLength:    intPtr(16384),
		IndexLength:   nil,
		DataFree:      intPtr(0),
		CreateTime:    &created,
		HasFulltext:   true,
	}

	got := row.toModel()
	if got.Engine != model.EngineInnoDB {
		t.Errorf("Engine = %q, want InnoDB", got.Engine)
	}
	if !got.PageCompressed {
		t.Error("PageCompressed should be detected from create options")
	}
	if got.IndexLength != 0 || got.Rows == nil || *got.Rows != 42 || got.DataLength != 16384 {
		t.Errorf("unexpected sizes: %+v", got)
	}
	if !got.HasFulltext {
		t.Error("HasFulltext lost in conversion")
	}
	if got.LastModified() == nil || !got.LastModified().Equal(created) {
		t.Errorf("LastModified = %v, want create time", got.LastModified())
	}
}

func TestPageCompressedRegex(t *testing.T) {
	tests := []struct {
		opts string
		want bool
	}{
		{"`PAGE_COMPRESSED`='ON'", true},
		{"page_compressed=1", true},
		{"PAGE_COMPRESSED = 'on' PAGE_COMPRESSION_LEVEL=9", true},
		{"`PAGE_COMPRESSED`='OFF'", false},
		{"row_format=COMPRESSED", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := pageCompressedRegex.MatchString(tt.opts); got != tt.want {
			t.Errorf("match(%q) = %v, want %v", tt.opts, got, tt.want)
		}
	}
}

func TestColumnRowToModel(t *testing.T) {
	row := columnRow{
		ColumnName: "total",
		Position:   3,
		DataType:   "decimal",
		ColumnType: "decimal(10,2)",
		Generation: strPtr("price * qty"),
	}
	got := row.toModel()
	if !got.IsGenerated() {
		t.Error("generation expression should mark the column generated")
	}
	if got.Position != 3 || got.ColumnType != "decimal(10,2)" {
		t.Errorf("unexpected column: %+v", got)
	}

	row.Generation = strPtr("")
	if row.toModel().IsGenerated() {
		t.Error("empty generation expression is not generated")
	}
}

func TestStatementStripsTerminator(t *testing.T) {
	if got := statement("  OPTIMIZE TABLE `a`.`b`; "); got != "OPTIMIZE TABLE `a`.`b`" {
		t.Errorf("statement() = %q", got)
	}
}

func TestTableErr(t *testing.T) {
	missing := fmt.Errorf("wrapped: %w", &mysqldriver.MySQLError{Number: erNoSuchTable, Message: "Table 'a.b' doesn't exist"})
	if err := tableErr("`a`.`b`", missing); !errors.Is(err, connector.ErrTableNotFound) {
		t.Errorf("expected ErrTableNotFound, got %v", err)
	}

	other := &mysqldriver.MySQLError{Number: 1045, Message: "Access denied"}
	if err := tableErr("`a`.`b`", other); errors.Is(err, connector.ErrTableNotFound) {
		t.Error("unrelated errors must pass through")
	}
}

package mysql

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/faucetdb/tablekeeper/internal/connector"
	"github.com/faucetdb/tablekeeper/internal/model"
)

// pageCompressedRegex matches the MariaDB table option in CREATE_OPTIONS.
var pageCompressedRegex = regexp.MustCompile("(?i)`?PAGE_COMPRESSED`?\\s*=\\s*'?(ON|1)'?")

// tableRow holds one row of information_schema.TABLES.
type tableRow struct {
	Schema        string     `db:"TABLE_SCHEMA"`
	Name          string     `db:"TABLE_NAME"`
	Engine        *string    `db:"ENGINE"`
	RowFormat     *string    `db:"ROW_FORMAT"`
	CreateOptions *string    `db:"CREATE_OPTIONS"`
	Rows          *int64     `db:"TABLE_ROWS"`
	DataLength    *int64     `db:"DATA_LENGTH"`
	IndexLength   *int64     `db:"INDEX_LENGTH"`
	DataFree      *int64     `db:"DATA_FREE"`
	Checksum      *int64     `db:"CHECKSUM"`
	CreateTime    *time.Time `db:"CREATE_TIME"`
	UpdateTime    *time.Time `db:"UPDATE_TIME"`
	CheckTime     *time.Time `db:"CHECK_TIME"`
	HasFulltext   bool       `db:"HAS_FULLTEXT"`
}

// columnRow holds the result of querying information_schema.COLUMNS.
type columnRow struct {
	ColumnName string  `db:"COLUMN_NAME"`
	Position   int     `db:"ORDINAL_POSITION"`
	DataType   string  `db:"DATA_TYPE"`
	ColumnType string  `db:"COLUMN_TYPE"`
	Default    *string `db:"COLUMN_DEFAULT"`
	Extra      string  `db:"EXTRA"`
	MaxLength  *int64  `db:"CHARACTER_MAXIMUM_LENGTH"`
	Generation *string `db:"GENERATION_EXPRESSION"`
}

// columnRefRow names one column of a schema.
type columnRefRow struct {
	TableName  string `db:"TABLE_NAME"`
	ColumnName string `db:"COLUMN_NAME"`
}

// indexRow holds one column of a fulltext index.
type indexRow struct {
	IndexName  string `db:"INDEX_NAME"`
	ColumnName string `db:"COLUMN_NAME"`
}

// statsRow holds one row of mysql.innodb_table_stats.
type statsRow struct {
	TableName  string    `db:"table_name"`
	Rows       int64     `db:"n_rows"`
	LastUpdate time.Time `db:"last_update"`
}

// variableRow holds one row of SHOW GLOBAL VARIABLES.
type variableRow struct {
	Name  string `db:"Variable_name"`
	Value string `db:"Value"`
}

func (r tableRow) toModel() model.TableStatus {
	st := model.TableStatus{
		Schema:      r.Schema,
		Table:       r.Name,
		Engine:      model.ParseEngine(deref(r.Engine)),
		RowFormat:   deref(r.RowFormat),
		Rows:        r.Rows,
		DataLength:  derefInt(r.DataLength),
		IndexLength: derefInt(r.IndexLength),
		DataFree:    derefInt(r.DataFree),
		Checksum:    r.Checksum,
		CreateTime:  r.CreateTime,
		UpdateTime:  r.UpdateTime,
		CheckTime:   r.CheckTime,
		HasFulltext: r.HasFulltext,
	}
	st.CreateOptions = deref(r.CreateOptions)
	st.PageCompressed = pageCompressedRegex.MatchString(st.CreateOptions)
	return st
}

func (r columnRow) toModel() model.Column {
	return model.Column{
		Name:                 r.ColumnName,
		Position:             r.Position,
		DataType:             r.DataType,
		ColumnType:           r.ColumnType,
		Default:              r.Default,
		Extra:                r.Extra,
		MaxLength:            r.MaxLength,
		GenerationExpression: deref(r.Generation),
	}
}

// ServerVersion returns the raw VERSION() string.
func (c *MySQLConnector) ServerVersion(ctx context.Context) (string, error) {
	var v string
	if err := c.db.GetContext(ctx, &v, "SELECT VERSION()"); err != nil {
		return "", fmt.Errorf("server version: %w", err)
	}
	return v, nil
}

// GlobalVariables returns the requested global variables that exist on the
// server. Missing variables are absent from the map.
func (c *MySQLConnector) GlobalVariables(ctx context.Context, names []string) (map[string]string, error) {
	out := make(map[string]string, len(names))
	if len(names) == 0 {
		return out, nil
	}

	query, args, err := sqlx.In("SHOW GLOBAL VARIABLES WHERE Variable_name IN (?)", names)
	if err != nil {
		return nil, fmt.Errorf("global variables: %w", err)
	}

	var rows []variableRow
	if err := c.db.SelectContext(ctx, &rows, c.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("global variables: %w", err)
	}
	for _, r := range rows {
		out[r.Name] = r.Value
	}
	return out, nil
}

// Privileges returns the global privileges granted to CURRENT_USER().
func (c *MySQLConnector) Privileges(ctx context.Context) ([]string, error) {
	const query = `SELECT PRIVILEGE_TYPE
		FROM information_schema.USER_PRIVILEGES
		WHERE GRANTEE = CONCAT('\'', SUBSTRING_INDEX(CURRENT_USER(), '@', 1), '\'@\'', SUBSTRING_INDEX(CURRENT_USER(), '@', -1), '\'')`

	var privs []string
	if err := c.db.SelectContext(ctx, &privs, query); err != nil {
		return nil, fmt.Errorf("privileges: %w", err)
	}
	return privs, nil
}

// supportsTemporaryColumn reports whether information_schema.TABLES has the
// MariaDB TEMPORARY column. The answer is cached for the connector's life.
func (c *MySQLConnector) supportsTemporaryColumn(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hasTemporary != nil {
		return *c.hasTemporary, nil
	}

	const query = `SELECT COUNT(*) FROM information_schema.COLUMNS
		WHERE TABLE_SCHEMA = 'information_schema' AND TABLE_NAME = 'TABLES' AND COLUMN_NAME = 'TEMPORARY'`

	var n int
	if err := c.db.GetContext(ctx, &n, query); err != nil {
		return false, err
	}
	has := n > 0
	c.hasTemporary = &has
	return has, nil
}

// TableStatuses lists the base tables of a schema, optionally restricted to
// the given names, ordered by name.
func (c *MySQLConnector) TableStatuses(ctx context.Context, schema string, tables []string) ([]model.TableStatus, error) {
	query := `SELECT
			t.TABLE_SCHEMA,
			t.TABLE_NAME,
			t.ENGINE,
			t.ROW_FORMAT,
			t.CREATE_OPTIONS,
			t.TABLE_ROWS,
			t.DATA_LENGTH,
			t.INDEX_LENGTH,
			t.DATA_FREE,
			t.CHECKSUM,
			t.CREATE_TIME,
			t.UPDATE_TIME,
			t.CHECK_TIME,
			EXISTS(
				SELECT 1 FROM information_schema.STATISTICS s
				WHERE s.TABLE_SCHEMA = t.TABLE_SCHEMA
					AND s.TABLE_NAME = t.TABLE_NAME
					AND s.INDEX_TYPE LIKE '%FULLTEXT%'
			) AS HAS_FULLTEXT
		FROM information_schema.TABLES t
		WHERE t.TABLE_SCHEMA = ? AND t.TABLE_TYPE = 'BASE TABLE'`

	args := []interface{}{schema}

	temporary, err := c.supportsTemporaryColumn(ctx)
	if err != nil {
		return nil, fmt.Errorf("table statuses: %w", err)
	}
	if temporary {
		query += ` AND t.TEMPORARY != 'Y'`
	}

	if len(tables) > 0 {
		query += ` AND t.TABLE_NAME IN (?)`
		args = append(args, tables)
		query, args, err = sqlx.In(query, args...)
		if err != nil {
			return nil, fmt.Errorf("table statuses: %w", err)
		}
	}

	query += ` ORDER BY t.TABLE_NAME`

	var rows []tableRow
	if err := c.db.SelectContext(ctx, &rows, c.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("table statuses: %w", err)
	}

	out := make([]model.TableStatus, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

// TableStatus returns one base table or connector.ErrTableNotFound.
func (c *MySQLConnector) TableStatus(ctx context.Context, schema, table string) (*model.TableStatus, error) {
	list, err := c.TableStatuses(ctx, schema, []string{table})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("%s.%s: %w", schema, table, connector.ErrTableNotFound)
	}
	return &list[0], nil
}

// SchemaColumns lists every (table, column) pair of a schema.
func (c *MySQLConnector) SchemaColumns(ctx context.Context, schema string) ([]model.ColumnRef, error) {
	const query = `SELECT TABLE_NAME, COLUMN_NAME
		FROM information_schema.COLUMNS
		WHERE TABLE_SCHEMA = ?
		ORDER BY TABLE_NAME, ORDINAL_POSITION`

	var rows []columnRefRow
	if err := c.db.SelectContext(ctx, &rows, query, schema); err != nil {
		return nil, fmt.Errorf("schema columns: %w", err)
	}
	out := make([]model.ColumnRef, len(rows))
	for i, r := range rows {
		out[i] = model.ColumnRef{Table: r.TableName, Column: r.ColumnName}
	}
	return out, nil
}

// Columns describes the columns of one table in ordinal order.
func (c *MySQLConnector) Columns(ctx context.Context, schema, table string) ([]model.Column, error) {
	const query = `SELECT
			COLUMN_NAME,
			ORDINAL_POSITION,
			DATA_TYPE,
			COLUMN_TYPE,
			COLUMN_DEFAULT,
			EXTRA,
			CHARACTER_MAXIMUM_LENGTH,
			GENERATION_EXPRESSION
		FROM information_schema.COLUMNS
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?
		ORDER BY ORDINAL_POSITION`

	var rows []columnRow
	if err := c.db.SelectContext(ctx, &rows, query, schema, table); err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}
	out := make([]model.Column, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

// IndexedColumns lists the columns that take part in any index.
func (c *MySQLConnector) IndexedColumns(ctx context.Context, schema, table string) ([]string, error) {
	const query = `SELECT DISTINCT COLUMN_NAME
		FROM information_schema.STATISTICS
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ? AND COLUMN_NAME IS NOT NULL`

	var names []string
	if err := c.db.SelectContext(ctx, &names, query, schema, table); err != nil {
		return nil, fmt.Errorf("indexed columns: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

// FulltextIndexes lists the fulltext indexes of a table with their columns
// in key order.
func (c *MySQLConnector) FulltextIndexes(ctx context.Context, schema, table string) ([]model.Index, error) {
	const query = `SELECT INDEX_NAME, COLUMN_NAME
		FROM information_schema.STATISTICS
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ? AND INDEX_TYPE LIKE '%FULLTEXT%'
		ORDER BY INDEX_NAME, SEQ_IN_INDEX`

	var rows []indexRow
	if err := c.db.SelectContext(ctx, &rows, query, schema, table); err != nil {
		return nil, fmt.Errorf("fulltext indexes: %w", err)
	}

	var out []model.Index
	for _, r := range rows {
		if n := len(out); n > 0 && out[n-1].Name == r.IndexName {
			out[n-1].Columns = append(out[n-1].Columns, r.ColumnName)
			continue
		}
		out = append(out, model.Index{Name: r.IndexName, Columns: []string{r.ColumnName}})
	}
	return out, nil
}

// AutoHistogramColumns lists columns whose histogram is maintained by the
// server's automatic update.
func (c *MySQLConnector) AutoHistogramColumns(ctx context.Context, schema, table string) ([]string, error) {
	const query = `SELECT COLUMN_NAME
		FROM information_schema.COLUMN_STATISTICS
		WHERE SCHEMA_NAME = ? AND TABLE_NAME = ?
			AND JSON_UNQUOTE(JSON_EXTRACT(HISTOGRAM, '$."auto-update"')) = 'true'`

	var names []string
	if err := c.db.SelectContext(ctx, &names, query, schema, table); err != nil {
		return nil, fmt.Errorf("auto histogram columns: %w", err)
	}
	return names, nil
}

// PersistentTableStats reads mysql.innodb_table_stats for a schema.
func (c *MySQLConnector) PersistentTableStats(ctx context.Context, schema string) ([]model.PersistentStats, error) {
	const query = `SELECT table_name, n_rows, last_update
		FROM mysql.innodb_table_stats
		WHERE database_name = ?`

	var rows []statsRow
	if err := c.db.SelectContext(ctx, &rows, query, schema); err != nil {
		return nil, fmt.Errorf("persistent table stats: %w", err)
	}
	out := make([]model.PersistentStats, len(rows))
	for i, r := range rows {
		out[i] = model.PersistentStats{Table: r.TableName, Rows: r.Rows, LastUpdate: r.LastUpdate}
	}
	return out, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefInt(n *int64) int64 {
	if n == nil {
		return 0
	}
	return *n
}

// Package rdb binds the record API to a relational database (postgres or
// sqlite) through database/sql prepared statements. Unlike the column store,
// scans here are key-ordered.
package rdb

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"ycsbench/benchmark/bindings/abstract"
	"ycsbench/util"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	zlog "github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

const keyColumn = "y_id"

type Client struct {
	Connection    []string `yaml:"connection"`
	Table         string   `yaml:"table"`
	FieldCount    int      `yaml:"fieldCount"`
	FieldPrefix   string   `yaml:"fieldPrefix"`
	ReadAllFields bool     `yaml:"readAllFields"`
	Rdb           struct {
		Driver string `yaml:"driver"` // postgres | sqlite3
	} `yaml:"rdb"`

	db          *sql.DB
	insertStmt  *sql.Stmt
	updateStmts map[string]*sql.Stmt
	deleteStmt  *sql.Stmt
	selectStmt  *sql.Stmt
	scanStmt    *sql.Stmt
	selectStmts map[string]*sql.Stmt
	scanStmts   map[string]*sql.Stmt
}

func New(configData []byte) *Client {
	c := Client{
		Table:         "usertable",
		FieldCount:    10,
		FieldPrefix:   "field",
		ReadAllFields: true,
	}
	c.Rdb.Driver = "postgres"
	util.CheckErr(yaml.Unmarshal(configData, &c))
	return &c
}

func (c *Client) fieldName(i int) string {
	return c.FieldPrefix + strconv.Itoa(i)
}

// Positional placeholder in the driver's dialect, 1-based
func (c *Client) marker(n int) string {
	if c.Rdb.Driver == "postgres" {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

func (c *Client) markers(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = c.marker(i + 1)
	}
	return strings.Join(parts, ",")
}

func (c *Client) upsertQuery(fields []string) string {
	cols := append([]string{keyColumn}, fields...)
	sets := make([]string, len(fields))
	for i, f := range fields {
		sets[i] = f + " = excluded." + f
	}
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", c.Table, strings.Join(cols, ","), c.markers(len(cols)))
	if len(fields) == 0 {
		return q + fmt.Sprintf(" ON CONFLICT (%s) DO NOTHING", keyColumn)
	}
	return q + fmt.Sprintf(" ON CONFLICT (%s) DO UPDATE SET %s", keyColumn, strings.Join(sets, ", "))
}

func (c *Client) Init() error {
	if len(c.Connection) == 0 {
		return fmt.Errorf("rdb: required config \"connection\" is missing")
	}

	db, err := sql.Open(c.Rdb.Driver, c.Connection[0])
	if err != nil {
		return err
	}
	db.SetMaxOpenConns(100)
	// keep idle connections at the open limit, otherwise the pool trashes
	// creating and destroying connections whenever a worker count below the
	// limit leaves some of them idle
	db.SetMaxIdleConns(100)
	if err := db.Ping(); err != nil {
		return fmt.Errorf("rdb: connect: %w", err)
	}
	c.db = db

	if err := c.CreateTable(); err != nil {
		return err
	}
	return c.prepare()
}

// CreateTable creates the benchmark table if it does not exist. The same DDL
// works for both supported drivers.
func (c *Client) CreateTable() error {
	cols := []string{keyColumn + " VARCHAR PRIMARY KEY"}
	for i := 0; i < c.FieldCount; i++ {
		cols = append(cols, c.fieldName(i)+" TEXT")
	}
	_, err := c.db.Exec(fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", c.Table, strings.Join(cols, ", ")))
	return err
}

func (c *Client) prepare() error {
	var err error
	try := func(q string) *sql.Stmt {
		if err != nil {
			return nil
		}
		var s *sql.Stmt
		s, err = c.db.Prepare(q)
		return s
	}

	fields := make([]string, c.FieldCount)
	for i := range fields {
		fields[i] = c.fieldName(i)
	}

	c.insertStmt = try(c.upsertQuery(fields))
	c.updateStmts = make(map[string]*sql.Stmt, c.FieldCount)
	for _, f := range fields {
		c.updateStmts[f] = try(c.upsertQuery([]string{f}))
	}
	c.deleteStmt = try(fmt.Sprintf("DELETE FROM %s WHERE %s = %s", c.Table, keyColumn, c.marker(1)))

	if c.ReadAllFields {
		c.selectStmt = try(fmt.Sprintf("SELECT * FROM %s WHERE %s = %s LIMIT 1", c.Table, keyColumn, c.marker(1)))
		c.scanStmt = try(fmt.Sprintf("SELECT * FROM %s WHERE %s >= %s ORDER BY %s LIMIT %s",
			c.Table, keyColumn, c.marker(1), keyColumn, c.marker(2)))
	} else {
		c.selectStmts = make(map[string]*sql.Stmt, c.FieldCount)
		c.scanStmts = make(map[string]*sql.Stmt, c.FieldCount)
		for _, f := range fields {
			c.selectStmts[f] = try(fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s LIMIT 1",
				f, c.Table, keyColumn, c.marker(1)))
			c.scanStmts[f] = try(fmt.Sprintf("SELECT %s FROM %s WHERE %s >= %s ORDER BY %s LIMIT %s",
				f, c.Table, keyColumn, c.marker(1), keyColumn, c.marker(2)))
		}
	}

	if err != nil {
		return fmt.Errorf("rdb: prepare: %w", err)
	}
	return nil
}

func (c *Client) Close() {
	if c.db != nil {
		c.db.Close()
	}
}

// Decodes the current row; a NULL column decodes to an explicit nil entry.
func decodeRow(rs *sql.Rows, cols []string) (abstract.Record, error) {
	vals := make([][]byte, len(cols))
	dests := make([]interface{}, len(cols))
	for i := range vals {
		dests[i] = &vals[i]
	}
	if err := rs.Scan(dests...); err != nil {
		return nil, err
	}

	record := make(abstract.Record, len(cols))
	for i, col := range cols {
		record[col] = vals[i]
	}
	return record, nil
}

func (c *Client) read(stmt *sql.Stmt, key string) (abstract.Record, abstract.Status) {
	rs, err := stmt.Query(key)
	if err != nil {
		zlog.Error().Err(err).Str("key", key).Msg("Error reading key")
		return nil, abstract.StatusError
	}
	defer rs.Close()

	record := abstract.Record{}
	cols, err := rs.Columns()
	if err == nil && rs.Next() {
		record, err = decodeRow(rs, cols)
	}
	if err == nil {
		err = rs.Err()
	}
	if err != nil {
		zlog.Error().Err(err).Str("key", key).Msg("Error reading key")
		return nil, abstract.StatusError
	}
	return record, abstract.StatusOK
}

func (c *Client) ReadAll(table string, key string) (abstract.Record, abstract.Status) {
	if c.selectStmt == nil {
		zlog.Error().Str("key", key).Msg("Whole-row reads not prepared (readAllFields is false)")
		return nil, abstract.StatusBadRequest
	}
	return c.read(c.selectStmt, key)
}

func (c *Client) ReadOne(table string, key string, field string) (abstract.Record, abstract.Status) {
	stmt := c.selectStmts[field]
	if stmt == nil {
		zlog.Error().Str("key", key).Str("field", field).Msg("No select statement for field")
		return nil, abstract.StatusBadRequest
	}
	return c.read(stmt, key)
}

func (c *Client) scan(stmt *sql.Stmt, startKey string, count int) ([]abstract.Record, abstract.Status) {
	if count <= 0 {
		return []abstract.Record{}, abstract.StatusOK
	}

	rs, err := stmt.Query(startKey, count)
	if err != nil {
		zlog.Error().Err(err).Str("startKey", startKey).Msg("Error scanning with startkey")
		return nil, abstract.StatusError
	}
	defer rs.Close()

	cols, err := rs.Columns()
	records := make([]abstract.Record, 0, count)
	for err == nil && rs.Next() {
		var record abstract.Record
		record, err = decodeRow(rs, cols)
		if err == nil {
			records = append(records, record)
		}
	}
	if err == nil {
		err = rs.Err()
	}
	if err != nil {
		zlog.Error().Err(err).Str("startKey", startKey).Msg("Error scanning with startkey")
		return nil, abstract.StatusError
	}
	return records, abstract.StatusOK
}

func (c *Client) ScanAll(table string, startKey string, count int) ([]abstract.Record, abstract.Status) {
	if c.scanStmt == nil {
		zlog.Error().Str("startKey", startKey).Msg("Whole-row scans not prepared (readAllFields is false)")
		return nil, abstract.StatusBadRequest
	}
	return c.scan(c.scanStmt, startKey, count)
}

func (c *Client) ScanOne(table string, startKey string, count int, field string) ([]abstract.Record, abstract.Status) {
	stmt := c.scanStmts[field]
	if stmt == nil {
		zlog.Error().Str("startKey", startKey).Str("field", field).Msg("No scan statement for field")
		return nil, abstract.StatusBadRequest
	}
	return c.scan(stmt, startKey, count)
}

// Insert follows the same dispatch rule as the column-store binding: one
// entry goes to that field's upsert, anything else must name every field.
func (c *Client) Insert(table string, key string, values map[string][]byte) abstract.Status {
	var stmt *sql.Stmt
	var args []interface{}

	if len(values) == 1 {
		for field, value := range values {
			stmt = c.updateStmts[field]
			if stmt == nil {
				zlog.Error().Str("key", key).Str("field", field).Msg("No update statement for field")
				return abstract.StatusBadRequest
			}
			args = []interface{}{key, value}
		}
	} else {
		if len(values) != c.FieldCount {
			zlog.Error().Str("key", key).Int("fields", len(values)).Int("want", c.FieldCount).
				Msg("Value map does not match insert statement arity")
			return abstract.StatusBadRequest
		}
		stmt = c.insertStmt
		args = make([]interface{}, 0, c.FieldCount+1)
		args = append(args, key)
		for i := 0; i < c.FieldCount; i++ {
			value, ok := values[c.fieldName(i)]
			if !ok {
				zlog.Error().Str("key", key).Str("field", c.fieldName(i)).
					Msg("Value map is missing a field of the insert statement")
				return abstract.StatusBadRequest
			}
			args = append(args, value)
		}
	}

	if _, err := stmt.Exec(args...); err != nil {
		zlog.Error().Err(err).Str("key", key).Msg("Error inserting key")
		return abstract.StatusError
	}
	return abstract.StatusOK
}

func (c *Client) UpdateOne(table string, key string, field string, value []byte) abstract.Status {
	return c.Insert(table, key, map[string][]byte{field: value})
}

func (c *Client) UpdateAll(table string, key string, values map[string][]byte) abstract.Status {
	return c.Insert(table, key, values)
}

func (c *Client) Delete(table string, key string) abstract.Status {
	if _, err := c.deleteStmt.Exec(key); err != nil {
		zlog.Error().Err(err).Str("key", key).Msg("Error deleting key")
		return abstract.StatusError
	}
	return abstract.StatusOK
}

// Package cassandra binds the record API to a Cassandra cluster through CQL.
//
// The top-level "connection" config lists the cluster contact hosts; the
// port, credentials, keyspace, and consistency levels live under the
// "cassandra" section.
//
// The keyspace and table are created out of band, e.g. in cqlsh:
//
//	create keyspace ycsb WITH REPLICATION = {'class': 'SimpleStrategy', 'replication_factor': 1};
//	create table ycsb.usertable (
//	    y_id varchar primary key,
//	    field0 varchar, field1 varchar, ..., field9 varchar);
package cassandra

import (
	"fmt"
	"sync"
	"time"

	"ycsbench/benchmark/bindings/abstract"
	"ycsbench/util"

	"github.com/gocql/gocql"
	zlog "github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Name of the key column, matching the out-of-band table definition.
const keyColumn = "y_id"

// rows is the subset of gocql.Iter the decoder needs.
type rows interface {
	Columns() []gocql.ColumnInfo
	Scan(dest ...interface{}) bool
	Close() error
}

// session executes compiled statements at their consistency level. The one
// real implementation wraps gocql.Session; tests substitute their own.
type session interface {
	exec(st *statement, args ...interface{}) error
	query(st *statement, args ...interface{}) rows
}

type gocqlSession struct {
	s *gocql.Session
}

func (g gocqlSession) exec(st *statement, args ...interface{}) error {
	return g.s.Query(st.query, args...).Consistency(st.cons).Exec()
}

func (g gocqlSession) query(st *statement, args ...interface{}) rows {
	return g.s.Query(st.query, args...).Consistency(st.cons).Iter()
}

// sharedState is the session plus the compiled statement set, built exactly
// once per process by the first client to initialize and then read by every
// worker without further locking.
type sharedState struct {
	sess   session
	stmts  *statementSet
	schema Schema
	debug  bool
}

var (
	sharedMu sync.Mutex
	shared   *sharedState
)

// Client serves the record API against the shared session. One instance is
// created per worker.
type Client struct {
	Connection    []string `yaml:"connection"`
	ThreadCount   int      `yaml:"threadcount"`
	Debug         bool     `yaml:"debug"`
	Table         string   `yaml:"table"`
	FieldCount    int      `yaml:"fieldCount"`
	FieldPrefix   string   `yaml:"fieldPrefix"`
	ReadAllFields bool     `yaml:"readAllFields"`
	Cassandra     struct {
		Port             int    `yaml:"port"`
		Username         string `yaml:"username"`
		Password         string `yaml:"password"`
		Keyspace         string `yaml:"keyspace"`
		ReadConsistency  string `yaml:"readConsistencyLevel"`
		WriteConsistency string `yaml:"writeConsistencyLevel"`
	} `yaml:"cassandra"`

	state *sharedState
}

func New(configData []byte) *Client {
	c := Client{
		ThreadCount:   2,
		Table:         "usertable",
		FieldCount:    10,
		FieldPrefix:   "field",
		ReadAllFields: true,
	}
	c.Cassandra.Port = 9042
	c.Cassandra.Keyspace = "ycsb"
	c.Cassandra.ReadConsistency = "ONE"
	c.Cassandra.WriteConsistency = "ONE"
	util.CheckErr(yaml.Unmarshal(configData, &c))
	return &c
}

// Init connects the shared session and compiles the statement set. The first
// caller builds; concurrent callers block on the mutex and then observe the
// already-built state. Any failure here is fatal to startup: the binding
// never serves operations with a partially built statement set.
func (c *Client) Init() error {
	sharedMu.Lock()
	defer sharedMu.Unlock()

	if shared != nil {
		c.state = shared
		return nil
	}

	if len(c.Connection) == 0 {
		return fmt.Errorf("cassandra: required config \"connection\" is missing")
	}

	read, err := gocql.ParseConsistencyWrapper(c.Cassandra.ReadConsistency)
	if err != nil {
		return fmt.Errorf("cassandra: bad read consistency level: %w", err)
	}
	write, err := gocql.ParseConsistencyWrapper(c.Cassandra.WriteConsistency)
	if err != nil {
		return fmt.Errorf("cassandra: bad write consistency level: %w", err)
	}

	schema := Schema{
		Key:           keyColumn,
		FieldPrefix:   c.FieldPrefix,
		FieldCount:    c.FieldCount,
		Table:         c.Table,
		ReadAllFields: c.ReadAllFields,
	}
	stmts, err := compileStatements(schema, read, write)
	if err != nil {
		return err
	}

	cluster := gocql.NewCluster(c.Connection...)
	cluster.Port = c.Cassandra.Port
	cluster.Keyspace = c.Cassandra.Keyspace
	cluster.NumConns = c.ThreadCount
	// the benchmark saturates the cluster on purpose, so the driver defaults
	// (5s connect, 600ms request) are far too tight
	cluster.ConnectTimeout = 3 * time.Minute
	cluster.Timeout = 3 * time.Minute
	if c.Cassandra.Username != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: c.Cassandra.Username,
			Password: c.Cassandra.Password,
		}
	}

	sess, err := cluster.CreateSession()
	if err != nil {
		return fmt.Errorf("cassandra: connect: %w", err)
	}
	zlog.Info().Strs("hosts", c.Connection).Str("keyspace", c.Cassandra.Keyspace).
		Msg("Connected to cluster")

	shared = &sharedState{
		sess:   gocqlSession{sess},
		stmts:  stmts,
		schema: schema,
		debug:  c.Debug,
	}
	c.state = shared
	return nil
}

// The session and statements are shared by all workers and live for the
// process, so there is nothing per-client to release.
func (c *Client) Close() {}

func (c *Client) trace(st *statement) {
	if c.state.debug {
		zlog.Debug().Str("query", st.query).Msg("Executing statement")
	}
}

// Decodes the next row into a Record. Every column of the result contributes
// an entry; a null column value decodes to an explicit nil entry rather than
// a missing key.
func nextRecord(it rows, cols []gocql.ColumnInfo) (abstract.Record, bool) {
	vals := make([][]byte, len(cols))
	dests := make([]interface{}, len(cols))
	for i := range vals {
		dests[i] = &vals[i]
	}

	if !it.Scan(dests...) {
		return nil, false
	}

	record := make(abstract.Record, len(cols))
	for i, col := range cols {
		record[col.Name] = vals[i]
	}
	return record, true
}

func (c *Client) read(st *statement, key string) (abstract.Record, abstract.Status) {
	c.trace(st)
	it := c.state.sess.query(st, key)

	// at most one row; a missing key is a defined outcome, not an error
	record, ok := nextRecord(it, it.Columns())
	if !ok {
		record = abstract.Record{}
	}

	if err := it.Close(); err != nil {
		zlog.Error().Err(err).Str("key", key).Msg("Error reading key")
		return nil, abstract.StatusError
	}
	return record, abstract.StatusOK
}

func (c *Client) ReadAll(table string, key string) (abstract.Record, abstract.Status) {
	st := c.state.stmts.sel
	if st == nil {
		zlog.Error().Str("key", key).Msg("Whole-row reads not compiled (readAllFields is false)")
		return nil, abstract.StatusBadRequest
	}
	return c.read(st, key)
}

func (c *Client) ReadOne(table string, key string, field string) (abstract.Record, abstract.Status) {
	st := c.state.stmts.sels[field]
	if st == nil {
		zlog.Error().Str("key", key).Str("field", field).Msg("No select statement for field")
		return nil, abstract.StatusBadRequest
	}
	return c.read(st, key)
}

func (c *Client) scan(st *statement, startKey string, count int) ([]abstract.Record, abstract.Status) {
	// the store rejects a zero row limit
	if count <= 0 {
		return []abstract.Record{}, abstract.StatusOK
	}

	c.trace(st)
	it := c.state.sess.query(st, startKey, count)
	cols := it.Columns()

	records := make([]abstract.Record, 0, count)
	for {
		record, ok := nextRecord(it, cols)
		if !ok {
			break
		}
		records = append(records, record)
	}

	if err := it.Close(); err != nil {
		zlog.Error().Err(err).Str("startKey", startKey).Msg("Error scanning with startkey")
		return nil, abstract.StatusError
	}
	return records, abstract.StatusOK
}

// ScanAll reads up to count records from startKey onwards, in the store's
// token order. Token order reflects the internal partitioning function and is
// unrelated to lexicographic key order.
func (c *Client) ScanAll(table string, startKey string, count int) ([]abstract.Record, abstract.Status) {
	st := c.state.stmts.scan
	if st == nil {
		zlog.Error().Str("startKey", startKey).Msg("Whole-row scans not compiled (readAllFields is false)")
		return nil, abstract.StatusBadRequest
	}
	return c.scan(st, startKey, count)
}

func (c *Client) ScanOne(table string, startKey string, count int, field string) ([]abstract.Record, abstract.Status) {
	st := c.state.stmts.scans[field]
	if st == nil {
		zlog.Error().Str("startKey", startKey).Str("field", field).Msg("No scan statement for field")
		return nil, abstract.StatusBadRequest
	}
	return c.scan(st, startKey, count)
}

// Insert writes a record as an upsert. A values map with exactly one entry is
// dispatched to that field's single-column statement; anything else must name
// every field of the schema, since the full-row statement binds exactly
// key + FieldCount values. Partial writes of more than one but not all fields
// are rejected before binding.
func (c *Client) Insert(table string, key string, values map[string][]byte) abstract.Status {
	var st *statement
	var args []interface{}

	if len(values) == 1 {
		for field, value := range values {
			st = c.state.stmts.updates[field]
			if st == nil {
				zlog.Error().Str("key", key).Str("field", field).Msg("No update statement for field")
				return abstract.StatusBadRequest
			}
			args = []interface{}{key, value}
		}
	} else {
		st = c.state.stmts.insert
		if len(values) != c.state.schema.FieldCount {
			zlog.Error().Str("key", key).Int("fields", len(values)).Int("want", c.state.schema.FieldCount).
				Msg("Value map does not match insert statement arity")
			return abstract.StatusBadRequest
		}
		args = make([]interface{}, 0, st.nargs)
		args = append(args, key)
		for i := 0; i < c.state.schema.FieldCount; i++ {
			value, ok := values[c.state.schema.fieldName(i)]
			if !ok {
				zlog.Error().Str("key", key).Str("field", c.state.schema.fieldName(i)).
					Msg("Value map is missing a field of the insert statement")
				return abstract.StatusBadRequest
			}
			args = append(args, value)
		}
	}

	c.trace(st)
	if err := c.state.sess.exec(st, args...); err != nil {
		zlog.Error().Err(err).Str("key", key).Msg("Error inserting key")
		return abstract.StatusError
	}
	return abstract.StatusOK
}

// UpdateOne always resolves to the field's single-column upsert, which the
// store merges into the row without touching other columns.
func (c *Client) UpdateOne(table string, key string, field string, value []byte) abstract.Status {
	return c.Insert(table, key, map[string][]byte{field: value})
}

func (c *Client) UpdateAll(table string, key string, values map[string][]byte) abstract.Status {
	return c.Insert(table, key, values)
}

func (c *Client) Delete(table string, key string) abstract.Status {
	st := c.state.stmts.del
	c.trace(st)
	if err := c.state.sess.exec(st, key); err != nil {
		zlog.Error().Err(err).Str("key", key).Msg("Error deleting key")
		return abstract.StatusError
	}
	return abstract.StatusOK
}

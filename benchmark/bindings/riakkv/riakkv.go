// Package riakkv binds the record API to Riak. A record is a map CRDT whose
// registers are the fields, so single-field writes merge server-side without
// touching the other fields. Scans use the $key secondary index and need a
// leveldb-backed bucket type.
package riakkv

import (
	"fmt"

	"ycsbench/benchmark/bindings/abstract"
	"ycsbench/util"

	riak "github.com/basho/riak-go-client"
	zlog "github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Upper bound for $key range queries; benchmark keys are alphanumeric and
// sort below it.
const maxKeyMarker = "~"

// commands is the subset of Riak operations the binding issues. The one real
// implementation wraps riak.Client; tests substitute their own.
type commands interface {
	// Registers of the map stored under key, or nil if the key is missing
	fetchMap(key string) (map[string][]byte, error)
	// Merges the given registers into the map stored under key
	updateMap(key string, registers map[string][]byte) error
	deleteValue(key string) error
	// Keys from startKey onwards in $key index order, at most count
	keyRange(startKey string, count int) ([]string, error)
}

type riakCommands struct {
	client     *riak.Client
	bucketType string
	bucket     string
}

func (r *riakCommands) fetchMap(key string) (map[string][]byte, error) {
	cmd, err := riak.NewFetchMapCommandBuilder().
		WithBucketType(r.bucketType).
		WithBucket(r.bucket).
		WithKey(key).
		Build()
	if err != nil {
		return nil, err
	}
	if err := r.client.Execute(cmd); err != nil {
		return nil, err
	}

	response := cmd.(*riak.FetchMapCommand).Response
	if response.IsNotFound {
		return nil, nil
	}
	return response.Map.Registers, nil
}

func (r *riakCommands) updateMap(key string, registers map[string][]byte) error {
	op := &riak.MapOperation{}
	for field, value := range registers {
		op.SetRegister(field, value)
	}

	cmd, err := riak.NewUpdateMapCommandBuilder().
		WithBucketType(r.bucketType).
		WithBucket(r.bucket).
		WithKey(key).
		WithMapOperation(op).
		Build()
	if err != nil {
		return err
	}
	return r.client.Execute(cmd)
}

func (r *riakCommands) deleteValue(key string) error {
	cmd, err := riak.NewDeleteValueCommandBuilder().
		WithBucketType(r.bucketType).
		WithBucket(r.bucket).
		WithKey(key).
		Build()
	if err != nil {
		return err
	}
	return r.client.Execute(cmd)
}

func (r *riakCommands) keyRange(startKey string, count int) ([]string, error) {
	cmd, err := riak.NewSecondaryIndexQueryCommandBuilder().
		WithBucketType(r.bucketType).
		WithBucket(r.bucket).
		WithIndexName("$key").
		WithRange(startKey, maxKeyMarker).
		WithMaxResults(uint32(count)).
		Build()
	if err != nil {
		return nil, err
	}
	if err := r.client.Execute(cmd); err != nil {
		return nil, err
	}

	results := cmd.(*riak.SecondaryIndexQueryCommand).Response.Results
	keys := make([]string, 0, len(results))
	for _, result := range results {
		keys = append(keys, string(result.ObjectKey))
	}
	return keys, nil
}

type Client struct {
	Connection []string `yaml:"connection"`
	Table      string   `yaml:"table"`
	Riak       struct {
		BucketType string `yaml:"bucketType"`
	} `yaml:"riak"`

	client *riak.Client
	cmds   commands
}

func New(configData []byte) *Client {
	c := Client{Table: "usertable"}
	c.Riak.BucketType = "maps"
	util.CheckErr(yaml.Unmarshal(configData, &c))
	return &c
}

func (c *Client) Init() error {
	if len(c.Connection) == 0 {
		return fmt.Errorf("riakkv: required config \"connection\" is missing")
	}

	client, err := riak.NewClient(&riak.NewClientOptions{RemoteAddresses: c.Connection})
	if err != nil {
		return fmt.Errorf("riakkv: connect: %w", err)
	}
	c.client = client
	c.cmds = &riakCommands{client: client, bucketType: c.Riak.BucketType, bucket: c.Table}
	return nil
}

func (c *Client) Close() {
	if c.client != nil {
		c.client.Stop()
	}
}

func (c *Client) ReadAll(table string, key string) (abstract.Record, abstract.Status) {
	registers, err := c.cmds.fetchMap(key)
	if err != nil {
		zlog.Error().Err(err).Str("key", key).Msg("Error reading key")
		return nil, abstract.StatusError
	}

	// a missing key is a defined outcome, not an error
	record := abstract.Record{}
	for field, value := range registers {
		record[field] = value
	}
	return record, abstract.StatusOK
}

// ReadOne fetches the whole map (Riak has no register-level fetch) and
// projects the requested field.
func (c *Client) ReadOne(table string, key string, field string) (abstract.Record, abstract.Status) {
	registers, err := c.cmds.fetchMap(key)
	if err != nil {
		zlog.Error().Err(err).Str("key", key).Msg("Error reading key")
		return nil, abstract.StatusError
	}

	record := abstract.Record{}
	if value, ok := registers[field]; ok {
		record[field] = value
	}
	return record, abstract.StatusOK
}

func (c *Client) scan(startKey string, count int, field string) ([]abstract.Record, abstract.Status) {
	if count <= 0 {
		return []abstract.Record{}, abstract.StatusOK
	}

	keys, err := c.cmds.keyRange(startKey, count)
	if err != nil {
		zlog.Error().Err(err).Str("startKey", startKey).Msg("Error scanning with startkey")
		return nil, abstract.StatusError
	}

	records := make([]abstract.Record, 0, len(keys))
	for _, key := range keys {
		var record abstract.Record
		var st abstract.Status
		if field == "" {
			record, st = c.ReadAll("", key)
		} else {
			record, st = c.ReadOne("", key, field)
		}
		if st != abstract.StatusOK {
			return nil, st
		}
		records = append(records, record)
	}
	return records, abstract.StatusOK
}

func (c *Client) ScanAll(table string, startKey string, count int) ([]abstract.Record, abstract.Status) {
	return c.scan(startKey, count, "")
}

func (c *Client) ScanOne(table string, startKey string, count int, field string) ([]abstract.Record, abstract.Status) {
	return c.scan(startKey, count, field)
}

func (c *Client) Insert(table string, key string, values map[string][]byte) abstract.Status {
	if err := c.cmds.updateMap(key, values); err != nil {
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
	if err := c.cmds.deleteValue(key); err != nil {
		zlog.Error().Err(err).Str("key", key).Msg("Error deleting key")
		return abstract.StatusError
	}
	return abstract.StatusOK
}

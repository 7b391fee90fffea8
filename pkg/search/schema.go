package search

import (
	"fmt"
	"time"

	"github.com/gocql/gocql"
)

// DDL for the message document table. uuid gets a secondary index so the
// single-document lookups (reconciliation, preview patching) do not scan
// the partition.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS message_docs (
		app_uuid text,
		channel_uuid text,
		id bigint,
		uuid text,
		parent_uuid text,
		created_at bigint,
		deleted_at bigint,
		doc text,
		PRIMARY KEY ((app_uuid, channel_uuid), id)
	) WITH CLUSTERING ORDER BY (id DESC)`,
	`CREATE INDEX IF NOT EXISTS message_docs_uuid ON message_docs (uuid)`,
}

// EnsureKeyspace creates the keyspace, connecting through the system
// keyspace. Meant for the schema scripts, not for service startup.
func EnsureKeyspace(hosts []string, keyspace string) error {
	cluster := gocql.NewCluster(hosts...)
	cluster.Keyspace = "system"
	cluster.Timeout = 5 * time.Second
	session, err := cluster.CreateSession()
	if err != nil {
		return fmt.Errorf("connect system keyspace: %w", err)
	}
	defer session.Close()

	return session.Query(fmt.Sprintf(
		`CREATE KEYSPACE IF NOT EXISTS %s WITH REPLICATION = { 'class' : 'SimpleStrategy', 'replication_factor' : 1 }`,
		keyspace,
	)).Exec()
}

// EnsureSchema creates the document table and its index.
func (ix *Index) EnsureSchema() error {
	for _, stmt := range schemaStatements {
		if err := ix.session.Query(stmt).Exec(); err != nil {
			return err
		}
	}
	return nil
}

// DropSchema removes the document table.
func (ix *Index) DropSchema() error {
	return ix.session.Query(`DROP TABLE IF EXISTS message_docs`).Exec()
}

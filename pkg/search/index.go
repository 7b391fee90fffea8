package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gocql/gocql"

	"github.com/mosaicchat/mosaic/pkg/model"
)

// ErrNotFound is returned when a document lookup matches nothing.
var ErrNotFound = errors.New("document not found")

// Index is the denormalized, eventually consistent read copy of messages,
// kept on ScyllaDB. Documents are partitioned by (application, channel)
// and clustered by the canonical numeric id, newest first, so channel
// scans walk a single partition in recency order. The index is never an
// authority for identity or uniqueness: it is written
// after the canonical commit, outside any transaction, and is allowed to
// lag until reconciled.
type Index struct {
	session *gocql.Session
}

// New connects to the cluster. Session setup mirrors the canonical-store
// timeouts so a slow index surfaces the same way a slow database does.
func New(hosts []string, keyspace string) (*Index, error) {
	cluster := gocql.NewCluster(hosts...)
	cluster.Keyspace = keyspace
	cluster.Consistency = gocql.Quorum
	cluster.Timeout = 5 * time.Second
	cluster.ConnectTimeout = 5 * time.Second
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		NumRetries: 3,
		Min:        100 * time.Millisecond,
		Max:        1 * time.Second,
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("connect scylla: %w", err)
	}
	return &Index{session: session}, nil
}

func (ix *Index) Close() {
	ix.session.Close()
}

// Upsert writes the full document, keyed by partition + canonical id.
// Re-writing the same document is a no-op by construction, which is what
// makes redelivered creation events safe on the index side.
func (ix *Index) Upsert(ctx context.Context, doc model.Document) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	var parent string
	if doc.ParentMessageUUID != nil {
		parent = *doc.ParentMessageUUID
	}
	return ix.session.Query(
		`INSERT INTO message_docs (app_uuid, channel_uuid, id, uuid, parent_uuid, created_at, deleted_at, doc)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ApplicationUUID, doc.ChannelUUID, doc.ID, doc.UUID, parent,
		doc.CreatedAt, deletedAtOrZero(doc.DeletedAt), string(raw),
	).WithContext(ctx).Exec()
}

// Get loads one document by its (application, channel, uuid) key.
func (ix *Index) Get(ctx context.Context, appUUID, channelUUID, messageUUID string) (*model.Document, error) {
	var raw string
	err := ix.session.Query(
		`SELECT doc FROM message_docs WHERE app_uuid = ? AND channel_uuid = ? AND uuid = ?`,
		appUUID, channelUUID, messageUUID,
	).WithContext(ctx).Scan(&raw)
	if errors.Is(err, gocql.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var doc model.Document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// UpdateOGTag patches the preview field of one document. Scylla updates
// need the full primary key, so the row is located by uuid first.
func (ix *Index) UpdateOGTag(ctx context.Context, appUUID, channelUUID, messageUUID string, og model.OGTag) error {
	doc, id, err := ix.getWithID(ctx, appUUID, channelUUID, messageUUID)
	if err != nil {
		return err
	}
	doc.OGTag = &og
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return ix.session.Query(
		`UPDATE message_docs SET doc = ? WHERE app_uuid = ? AND channel_uuid = ? AND id = ?`,
		string(raw), appUUID, channelUUID, id,
	).WithContext(ctx).Exec()
}

// Tombstone marks a document soft-deleted so read queries skip it. The row
// is kept; the canonical store decides what is really gone.
func (ix *Index) Tombstone(ctx context.Context, appUUID, channelUUID, messageUUID, deletedBy string) error {
	doc, id, err := ix.getWithID(ctx, appUUID, channelUUID, messageUUID)
	if err != nil {
		return err
	}
	now := time.Now().UnixMilli()
	doc.DeletedAt = &now
	doc.UpdatedAt = now
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return ix.session.Query(
		`UPDATE message_docs SET doc = ?, deleted_at = ? WHERE app_uuid = ? AND channel_uuid = ? AND id = ?`,
		string(raw), now, appUUID, channelUUID, id,
	).WithContext(ctx).Exec()
}

// Search scans a channel partition for live documents whose body contains
// the term, case-insensitively, newest first.
func (ix *Index) Search(ctx context.Context, appUUID, channelUUID, term string, limit int) ([]model.Document, error) {
	needle := strings.ToLower(term)
	iter := ix.session.Query(
		`SELECT deleted_at, doc FROM message_docs WHERE app_uuid = ? AND channel_uuid = ?`,
		appUUID, channelUUID,
	).WithContext(ctx).Iter()
	defer iter.Close()

	var out []model.Document
	var deletedAt int64
	var raw string
	for iter.Scan(&deletedAt, &raw) {
		if deletedAt != 0 {
			continue
		}
		var doc model.Document
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			return nil, err
		}
		if !strings.Contains(strings.ToLower(doc.Message), needle) {
			continue
		}
		out = append(out, doc)
		if len(out) == limit {
			break
		}
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return out, nil
}

func (ix *Index) getWithID(ctx context.Context, appUUID, channelUUID, messageUUID string) (*model.Document, int64, error) {
	var id int64
	var raw string
	err := ix.session.Query(
		`SELECT id, doc FROM message_docs WHERE app_uuid = ? AND channel_uuid = ? AND uuid = ?`,
		appUUID, channelUUID, messageUUID,
	).WithContext(ctx).Scan(&id, &raw)
	if errors.Is(err, gocql.ErrNotFound) {
		return nil, 0, ErrNotFound
	}
	if err != nil {
		return nil, 0, err
	}
	var doc model.Document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, 0, err
	}
	return &doc, id, nil
}

func deletedAtOrZero(ts *int64) int64 {
	if ts == nil {
		return 0
	}
	return *ts
}

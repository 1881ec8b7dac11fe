// Package relational is the authoritative SQLite-backed store for topics,
// memory items, and summaries. It owns truth for all three entities; the
// vector store (internal/vectorstore) owns only derived embeddings and a
// mirror subset of metadata.
//
// Grounded on the teacher's SQLite usage conventions (database/sql,
// per-connection PRAGMAs, transaction-scoped multi-statement writes) and on
// github.com/mattn/go-sqlite3, the teacher's declared relational driver.
package relational

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/hybridmem/memory-service/internal/apperr"
	"github.com/hybridmem/memory-service/internal/model"
	"github.com/hybridmem/memory-service/internal/service"
	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS topics (
	name        TEXT PRIMARY KEY,
	description TEXT NOT NULL DEFAULT '',
	item_count  INTEGER NOT NULL DEFAULT 0,
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS memory_items (
	id         TEXT PRIMARY KEY,
	content    TEXT NOT NULL,
	topic_name TEXT NOT NULL REFERENCES topics(name),
	tags       TEXT NOT NULL DEFAULT '[]',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	version    INTEGER NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS idx_memory_items_topic ON memory_items(topic_name);
CREATE INDEX IF NOT EXISTS idx_memory_items_created_at ON memory_items(created_at);

CREATE TABLE IF NOT EXISTS summaries (
	id            TEXT PRIMARY KEY,
	memory_id     TEXT NOT NULL REFERENCES memory_items(id) ON DELETE CASCADE,
	summary_type  TEXT NOT NULL,
	summary_text  TEXT NOT NULL,
	created_at    TEXT NOT NULL,
	updated_at    TEXT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_summaries_memory_type ON summaries(memory_id, summary_type);
`

// Store is the SQLite-backed relational store.
type Store struct {
	db    *sql.DB
	clock service.Clock
}

// Open opens (creating if necessary) the relational store at path. When
// reset is true, any existing file is removed and the schema recreated from
// scratch. Foreign-key enforcement and WAL journaling are requested on every
// connection the pool hands out via DSN-level pragmas, satisfying the
// requirement that FK enforcement be enabled on every connection.
func Open(path string, reset bool) (*Store, error) {
	if reset {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, apperr.StoreIO("reset relational store", err)
		}
		for _, suffix := range []string{"-wal", "-shm"} {
			_ = os.Remove(path + suffix)
		}
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, apperr.StoreIO("create data directory", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, apperr.StoreIO("open relational store", err)
	}
	// SQLite serializes writers regardless; capping the pool avoids
	// "database is locked" errors under concurrent multi-statement writes.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, apperr.StoreIO("create relational schema", err)
	}

	return &Store{db: db, clock: service.SystemClock{}}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Reset truncates every table, equivalent to init(reset=true) without
// reopening the underlying file. Deletion order respects the
// memory_items -> summaries foreign key (the CASCADE handles summaries
// automatically, but topics has no dependents left once memory_items is
// empty).
func (s *Store) Reset(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.StoreIO("begin reset transaction", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"summaries", "memory_items", "topics"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return apperr.StoreIO("truncate "+table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return apperr.StoreIO("commit reset", err)
	}
	return nil
}

// UpsertTopic creates the named topic if absent (synthesizing a description
// from the name and tags) or refreshes its description and updated_at if present.
// It does not touch item_count; that is addToTopic/removeFromTopic's job.
func (s *Store) UpsertTopic(ctx context.Context, name string, tags []string) error {
	now := service.FormatTimestamp(s.clock.Now())
	desc := synthesizeDescription(name, tags)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO topics (name, description, item_count, created_at, updated_at)
		VALUES (?, ?, 0, ?, ?)
		ON CONFLICT(name) DO UPDATE SET description = excluded.description, updated_at = excluded.updated_at
	`, name, desc, now, now)
	if err != nil {
		return apperr.StoreIO("upsert topic", err)
	}
	return nil
}

func synthesizeDescription(name string, tags []string) string {
	if len(tags) == 0 {
		return fmt.Sprintf("Memories about %s", name)
	}
	return fmt.Sprintf("Memories about %s (tags: %s)", name, strings.Join(tags, ", "))
}

// addToTopic creates the topic with item_count=1 or increments its
// item_count, within tx.
func addToTopic(ctx context.Context, tx *sql.Tx, now string, name string) error {
	res, err := tx.ExecContext(ctx, `UPDATE topics SET item_count = item_count + 1, updated_at = ? WHERE name = ?`, now, name)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO topics (name, description, item_count, created_at, updated_at) VALUES (?, ?, 1, ?, ?)`,
		name, synthesizeDescription(name, nil), now, now)
	return err
}

// removeFromTopic decrements item_count, floored at zero, and deletes the
// topic row in the same transaction if it reaches zero.
func removeFromTopic(ctx context.Context, tx *sql.Tx, now string, name string) error {
	_, err := tx.ExecContext(ctx, `UPDATE topics SET item_count = MAX(item_count - 1, 0), updated_at = ? WHERE name = ?`, now, name)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `DELETE FROM topics WHERE name = ? AND item_count <= 0`, name)
	return err
}

// InsertMemory inserts a new memory item, bumping its topic's refcount in
// the same transaction.
func (s *Store) InsertMemory(ctx context.Context, id, content, topic string, tags []string) (*model.MemoryItem, error) {
	if strings.TrimSpace(content) == "" {
		return nil, apperr.InvalidArgument("content must not be empty")
	}
	tags, err := validateAndDedupTags(tags)
	if err != nil {
		return nil, err
	}
	tagsJSON, err := encodeTags(tags)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.StoreIO("begin insert memory transaction", err)
	}
	defer tx.Rollback()

	now := s.clock.Now()
	nowStr := service.FormatTimestamp(now)

	if err := addToTopic(ctx, tx, nowStr, topic); err != nil {
		return nil, apperr.StoreIO("bump topic refcount", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO memory_items (id, content, topic_name, tags, created_at, updated_at, version)
		VALUES (?, ?, ?, ?, ?, ?, 1)
	`, id, content, topic, tagsJSON, nowStr, nowStr); err != nil {
		return nil, apperr.StoreIO("insert memory", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, apperr.StoreIO("commit insert memory", err)
	}

	return &model.MemoryItem{
		ID: id, Content: content, TopicName: topic, Tags: tags,
		CreatedAt: now, UpdatedAt: now, Version: 1,
	}, nil
}

// GetMemory fetches a memory item by id, or a not_found error.
func (s *Store) GetMemory(ctx context.Context, id string) (*model.MemoryItem, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, content, topic_name, tags, created_at, updated_at, version FROM memory_items WHERE id = ?`, id)
	item, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("memory %s not found", id)
	}
	if err != nil {
		return nil, apperr.StoreIO("get memory", err)
	}
	return item, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMemory(row rowScanner) (*model.MemoryItem, error) {
	var (
		item      model.MemoryItem
		tagsJSON  string
		createdAt string
		updatedAt string
	)
	if err := row.Scan(&item.ID, &item.Content, &item.TopicName, &tagsJSON, &createdAt, &updatedAt, &item.Version); err != nil {
		return nil, err
	}
	tags, err := decodeTags(tagsJSON)
	if err != nil {
		return nil, err
	}
	item.Tags = tags
	item.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, err
	}
	item.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// MemoryUpdate describes the optional fields update_memory may change.
type MemoryUpdate struct {
	Content *string
	Topic   *string
	Tags    *[]string
}

// UpdateMemory applies the given field changes, incrementing version and
// adjusting topic refcounts when the topic changes.
func (s *Store) UpdateMemory(ctx context.Context, id string, upd MemoryUpdate) (*model.MemoryItem, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.StoreIO("begin update memory transaction", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `SELECT id, content, topic_name, tags, created_at, updated_at, version FROM memory_items WHERE id = ?`, id)
	existing, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("memory %s not found", id)
	}
	if err != nil {
		return nil, apperr.StoreIO("load memory for update", err)
	}

	content := existing.Content
	if upd.Content != nil {
		if strings.TrimSpace(*upd.Content) == "" {
			return nil, apperr.InvalidArgument("content must not be empty")
		}
		content = *upd.Content
	}
	topic := existing.TopicName
	topicChanged := false
	if upd.Topic != nil && *upd.Topic != existing.TopicName {
		topic = *upd.Topic
		topicChanged = true
	}
	tags := existing.Tags
	if upd.Tags != nil {
		tags, err = validateAndDedupTags(*upd.Tags)
		if err != nil {
			return nil, err
		}
	}
	tagsJSON, err := encodeTags(tags)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	nowStr := service.FormatTimestamp(now)

	if topicChanged {
		if err := removeFromTopic(ctx, tx, nowStr, existing.TopicName); err != nil {
			return nil, apperr.StoreIO("decrement old topic refcount", err)
		}
		if err := addToTopic(ctx, tx, nowStr, topic); err != nil {
			return nil, apperr.StoreIO("bump new topic refcount", err)
		}
	}

	newVersion := existing.Version + 1
	if _, err := tx.ExecContext(ctx, `
		UPDATE memory_items SET content = ?, topic_name = ?, tags = ?, updated_at = ?, version = ?
		WHERE id = ?
	`, content, topic, tagsJSON, nowStr, newVersion, id); err != nil {
		return nil, apperr.StoreIO("update memory", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, apperr.StoreIO("commit update memory", err)
	}

	return &model.MemoryItem{
		ID: id, Content: content, TopicName: topic, Tags: tags,
		CreatedAt: existing.CreatedAt, UpdatedAt: now, Version: newVersion,
	}, nil
}

// DeleteMemory removes the memory item, cascading to its summaries and
// decrementing (and possibly removing) its topic.
func (s *Store) DeleteMemory(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.StoreIO("begin delete memory transaction", err)
	}
	defer tx.Rollback()

	var topic string
	err = tx.QueryRowContext(ctx, `SELECT topic_name FROM memory_items WHERE id = ?`, id).Scan(&topic)
	if err == sql.ErrNoRows {
		return apperr.NotFound("memory %s not found", id)
	}
	if err != nil {
		return apperr.StoreIO("load memory for delete", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM memory_items WHERE id = ?`, id); err != nil {
		return apperr.StoreIO("delete memory", err)
	}
	now := service.FormatTimestamp(s.clock.Now())
	if err := removeFromTopic(ctx, tx, now, topic); err != nil {
		return apperr.StoreIO("decrement topic refcount", err)
	}
	if err := tx.Commit(); err != nil {
		return apperr.StoreIO("commit delete memory", err)
	}
	return nil
}

// ListTopics returns all topics ordered by updated_at descending.
func (s *Store) ListTopics(ctx context.Context) ([]model.Topic, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, description, item_count, created_at, updated_at FROM topics ORDER BY updated_at DESC`)
	if err != nil {
		return nil, apperr.StoreIO("list topics", err)
	}
	defer rows.Close()

	var topics []model.Topic
	for rows.Next() {
		var (
			t                    model.Topic
			createdAt, updatedAt string
		)
		if err := rows.Scan(&t.Name, &t.Description, &t.ItemCount, &createdAt, &updatedAt); err != nil {
			return nil, apperr.StoreIO("scan topic", err)
		}
		t.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		t.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		topics = append(topics, t)
	}
	return topics, rows.Err()
}

// StoreSummary inserts a new summary row. Violating the
// (memory_id, summary_type) uniqueness constraint yields a conflict error.
func (s *Store) StoreSummary(ctx context.Context, id, memoryID string, summaryType model.SummaryType, text string) (*model.Summary, error) {
	now := s.clock.Now()
	nowStr := service.FormatTimestamp(now)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO summaries (id, memory_id, summary_type, summary_text, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id, memoryID, string(summaryType), text, nowStr, nowStr)
	if err != nil {
		if isUniqueConstraintErr(err) {
			return nil, apperr.Conflict("summary of type %s already exists for memory %s", summaryType, memoryID)
		}
		return nil, apperr.StoreIO("store summary", err)
	}
	return &model.Summary{ID: id, MemoryID: memoryID, SummaryType: summaryType, SummaryText: text, CreatedAt: now, UpdatedAt: now}, nil
}

// UpdateSummary overwrites a summary's text in place.
func (s *Store) UpdateSummary(ctx context.Context, id, text string) (*model.Summary, error) {
	now := service.FormatTimestamp(s.clock.Now())
	res, err := s.db.ExecContext(ctx, `UPDATE summaries SET summary_text = ?, updated_at = ? WHERE id = ?`, text, now, id)
	if err != nil {
		return nil, apperr.StoreIO("update summary", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, apperr.StoreIO("update summary rows affected", err)
	}
	if n == 0 {
		return nil, apperr.NotFound("summary %s not found", id)
	}
	return s.getSummaryByID(ctx, id)
}

func (s *Store) getSummaryByID(ctx context.Context, id string) (*model.Summary, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, memory_id, summary_type, summary_text, created_at, updated_at FROM summaries WHERE id = ?`, id)
	return scanSummary(row)
}

// GetSummary fetches the summary of the given type for a memory, if any.
func (s *Store) GetSummary(ctx context.Context, memoryID string, summaryType model.SummaryType) (*model.Summary, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, memory_id, summary_type, summary_text, created_at, updated_at
		FROM summaries WHERE memory_id = ? AND summary_type = ?
	`, memoryID, string(summaryType))
	sum, err := scanSummary(row)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("summary of type %s not found for memory %s", summaryType, memoryID)
	}
	if err != nil {
		return nil, apperr.StoreIO("get summary", err)
	}
	return sum, nil
}

func scanSummary(row rowScanner) (*model.Summary, error) {
	var (
		sum                  model.Summary
		summaryType          string
		createdAt, updatedAt string
	)
	if err := row.Scan(&sum.ID, &sum.MemoryID, &summaryType, &sum.SummaryText, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	sum.SummaryType = model.SummaryType(summaryType)
	sum.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	sum.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &sum, nil
}

// ListSummaries returns all summary rows for a memory. Used by delete() to
// enumerate summary ids before the memory row (and its cascade) disappears.
func (s *Store) ListSummaries(ctx context.Context, memoryID string) ([]model.Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, memory_id, summary_type, summary_text, created_at, updated_at
		FROM summaries WHERE memory_id = ?
	`, memoryID)
	if err != nil {
		return nil, apperr.StoreIO("list summaries", err)
	}
	defer rows.Close()

	var out []model.Summary
	for rows.Next() {
		sum, err := scanSummary(rows)
		if err != nil {
			return nil, apperr.StoreIO("scan summary", err)
		}
		out = append(out, *sum)
	}
	return out, rows.Err()
}

// ListSummaryTypes returns the distinct summary_type values stored for a memory.
func (s *Store) ListSummaryTypes(ctx context.Context, memoryID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT summary_type FROM summaries WHERE memory_id = ? ORDER BY summary_type`, memoryID)
	if err != nil {
		return nil, apperr.StoreIO("list summary types", err)
	}
	defer rows.Close()

	var types []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, apperr.StoreIO("scan summary type", err)
		}
		types = append(types, t)
	}
	return types, rows.Err()
}

// Status reports aggregate counts for the status() operation.
func (s *Store) Status(ctx context.Context) (model.RelationalStatus, error) {
	var out model.RelationalStatus

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memory_items`).Scan(&out.TotalMemories); err != nil {
		return out, apperr.StoreIO("count memories", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM topics`).Scan(&out.TotalTopics); err != nil {
		return out, apperr.StoreIO("count topics", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT name, item_count FROM topics ORDER BY item_count DESC, name ASC LIMIT 5`)
	if err != nil {
		return out, apperr.StoreIO("top topics", err)
	}
	defer rows.Close()
	for rows.Next() {
		var ts model.TopicStat
		if err := rows.Scan(&ts.Name, &ts.ItemCount); err != nil {
			return out, apperr.StoreIO("scan top topic", err)
		}
		out.TopTopics = append(out.TopTopics, ts)
	}
	if err := rows.Err(); err != nil {
		return out, apperr.StoreIO("iterate top topics", err)
	}

	var latest sql.NullString
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(created_at) FROM memory_items`).Scan(&latest); err != nil {
		return out, apperr.StoreIO("latest item timestamp", err)
	}
	if latest.Valid {
		if t, err := time.Parse(time.RFC3339, latest.String); err == nil {
			out.LatestItemAt = &t
		}
	}
	return out, nil
}

// validateAndDedupTags rejects any empty-string tag and deduplicates the
// remainder, preserving first-occurrence order.
func validateAndDedupTags(tags []string) ([]string, error) {
	if len(tags) == 0 {
		return tags, nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		if tag == "" {
			return nil, apperr.InvalidArgument("tags must not contain empty strings")
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out, nil
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", apperr.Internal("encode tags", err)
	}
	return string(b), nil
}

func decodeTags(raw string) ([]string, error) {
	var tags []string
	if raw == "" {
		return tags, nil
	}
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return nil, apperr.Internal("decode tags", err)
	}
	return tags, nil
}

func isUniqueConstraintErr(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// AllMemoryIDs returns every live memory id, sorted, for reconciliation.
func (s *Store) AllMemoryIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM memory_items`)
	if err != nil {
		return nil, apperr.StoreIO("list memory ids", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apperr.StoreIO("scan memory id", err)
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, rows.Err()
}

// AllSummaryIDs returns every summary id, sorted, for reconciliation.
func (s *Store) AllSummaryIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM summaries`)
	if err != nil {
		return nil, apperr.StoreIO("list summary ids", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apperr.StoreIO("scan summary id", err)
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, rows.Err()
}

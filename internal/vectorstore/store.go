// Package vectorstore mirrors a subset of the relational store's rows as
// sqlite-vec embeddings, split across three collections: memories,
// summaries, and topics. It owns no authoritative data; every row it holds
// is reachable and reproducible from the relational store.
//
// Grounded on the sqlite-vec usage found in the dependency corpus (vec0
// virtual tables addressed by rowid, paired with an ordinary shadow table
// for metadata filtering and id lookup, and the embedding MATCH ? AND k = ?
// KNN query form), and on github.com/asg017/sqlite-vec-go-bindings/cgo, the
// teacher's declared vector extension.
package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	"github.com/hybridmem/memory-service/internal/apperr"
	"github.com/hybridmem/memory-service/internal/model"
	_ "github.com/mattn/go-sqlite3"
)

func init() {
	sqlite_vec.Auto()
}

// Collection names, used as table-name suffixes and in diagnostics.
const (
	CollectionMemories  = "memories"
	CollectionSummaries = "summaries"
	CollectionTopics    = "topics"
)

// SearchHit is a single nearest-neighbor match.
type SearchHit struct {
	ID       string
	RefID    string
	Distance float64
}

// Metadata is the filterable/ancillary data stored alongside an embedding.
// RefID carries a secondary foreign id (a summary's owning memory_id);
// collections that don't need it leave it empty.
type Metadata struct {
	TopicName string
	Tags      []string
	Extra     string
	RefID     string
}

// Store is the sqlite-vec-backed vector index.
type Store struct {
	db  *sql.DB
	dim int
}

// Open creates (if necessary) the vector store file at path, sized for
// vectors of the given dimension, and prepares the three collections.
func Open(path string, dim int) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, apperr.StoreIO("create vector store directory", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, apperr.StoreIO("open vector store", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db, dim: dim}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) createSchema() error {
	for _, name := range []string{CollectionMemories, CollectionSummaries, CollectionTopics} {
		shadow := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s_meta (
				rowid      INTEGER PRIMARY KEY AUTOINCREMENT,
				ext_id     TEXT NOT NULL UNIQUE,
				ref_id     TEXT NOT NULL DEFAULT '',
				topic_name TEXT NOT NULL DEFAULT '',
				tags       TEXT NOT NULL DEFAULT '[]',
				extra      TEXT NOT NULL DEFAULT ''
			)`, name)
		if _, err := s.db.Exec(shadow); err != nil {
			return apperr.StoreIO(fmt.Sprintf("create %s metadata table", name), err)
		}
		vec := fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS vec_%s USING vec0(embedding float[%d])`, name, s.dim)
		if _, err := s.db.Exec(vec); err != nil {
			return apperr.StoreIO(fmt.Sprintf("create vec_%s virtual table", name), err)
		}
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Upsert stores or replaces the embedding and metadata for extID within
// collection.
func (s *Store) Upsert(ctx context.Context, collection, extID string, vector []float32, meta Metadata) error {
	if len(vector) != s.dim {
		return apperr.InvalidArgument("embedding dimension %d does not match store dimension %d", len(vector), s.dim)
	}
	tags := meta.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return apperr.Internal("encode vector metadata tags", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.StoreIO("begin vector upsert transaction", err)
	}
	defer tx.Rollback()

	var rowid int64
	err = tx.QueryRowContext(ctx, fmt.Sprintf(`SELECT rowid FROM %s_meta WHERE ext_id = ?`, collection), extID).Scan(&rowid)
	switch {
	case err == sql.ErrNoRows:
		res, err := tx.ExecContext(ctx, fmt.Sprintf(`
			INSERT INTO %s_meta (ext_id, ref_id, topic_name, tags, extra) VALUES (?, ?, ?, ?, ?)
		`, collection), extID, meta.RefID, meta.TopicName, string(tagsJSON), meta.Extra)
		if err != nil {
			return apperr.StoreIO("insert vector metadata", err)
		}
		rowid, err = res.LastInsertId()
		if err != nil {
			return apperr.StoreIO("read inserted vector metadata rowid", err)
		}
	case err != nil:
		return apperr.StoreIO("look up vector metadata", err)
	default:
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`
			UPDATE %s_meta SET ref_id = ?, topic_name = ?, tags = ?, extra = ? WHERE rowid = ?
		`, collection), meta.RefID, meta.TopicName, string(tagsJSON), meta.Extra, rowid); err != nil {
			return apperr.StoreIO("update vector metadata", err)
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM vec_%s WHERE rowid = ?`, collection), rowid); err != nil {
			return apperr.StoreIO("clear previous embedding", err)
		}
	}

	serialized, err := sqlite_vec.SerializeFloat32(vector)
	if err != nil {
		return apperr.Internal("serialize embedding", err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`INSERT INTO vec_%s (rowid, embedding) VALUES (?, ?)`, collection), rowid, serialized); err != nil {
		return apperr.StoreIO("insert embedding", err)
	}

	if err := tx.Commit(); err != nil {
		return apperr.StoreIO("commit vector upsert", err)
	}
	return nil
}

// UpdateMetadata replaces all metadata fields (ref_id, topic_name, tags,
// extra) of an existing entry with meta, leaving its embedding untouched.
// It does not read or merge the stored values: the caller passes the full
// merged metadata, as the engine's update does with the values of the
// updated relational row.
func (s *Store) UpdateMetadata(ctx context.Context, collection, extID string, meta Metadata) error {
	tags := meta.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return apperr.Internal("encode vector metadata tags", err)
	}
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE %s_meta SET ref_id = ?, topic_name = ?, tags = ?, extra = ? WHERE ext_id = ?
	`, collection), meta.RefID, meta.TopicName, string(tagsJSON), meta.Extra, extID)
	if err != nil {
		return apperr.StoreIO("update vector metadata", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.StoreIO("update vector metadata rows affected", err)
	}
	if n == 0 {
		return apperr.NotFound("%s entry %s not found", collection, extID)
	}
	return nil
}

// Get returns the metadata for extID within collection.
func (s *Store) Get(ctx context.Context, collection, extID string) (Metadata, error) {
	var meta Metadata
	var tagsJSON string
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT ref_id, topic_name, tags, extra FROM %s_meta WHERE ext_id = ?
	`, collection), extID).Scan(&meta.RefID, &meta.TopicName, &tagsJSON, &meta.Extra)
	if err == sql.ErrNoRows {
		return meta, apperr.NotFound("%s entry %s not found", collection, extID)
	}
	if err != nil {
		return meta, apperr.StoreIO("get vector metadata", err)
	}
	_ = json.Unmarshal([]byte(tagsJSON), &meta.Tags)
	return meta, nil
}

// Delete removes extID's embedding and metadata from collection. It is a
// no-op (not an error) if extID is not present, so callers can delete
// without checking existence first.
func (s *Store) Delete(ctx context.Context, collection, extID string) error {
	var rowid int64
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT rowid FROM %s_meta WHERE ext_id = ?`, collection), extID).Scan(&rowid)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return apperr.StoreIO("look up vector metadata for delete", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.StoreIO("begin vector delete transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM vec_%s WHERE rowid = ?`, collection), rowid); err != nil {
		return apperr.StoreIO("delete embedding", err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s_meta WHERE rowid = ?`, collection), rowid); err != nil {
		return apperr.StoreIO("delete vector metadata", err)
	}
	if err := tx.Commit(); err != nil {
		return apperr.StoreIO("commit vector delete", err)
	}
	return nil
}

// Search returns the topK nearest neighbors to vector within collection. If
// topicFilter is non-empty, only rows whose topic_name matches are
// returned; sqlite-vec offers no native predicate pushdown for vec0 KNN
// queries, so the store oversamples and filters in Go. Results are ordered
// by increasing distance, ties broken by id ascending, and contain no
// duplicate ids.
func (s *Store) Search(ctx context.Context, collection string, vector []float32, topK int, topicFilter string) ([]SearchHit, error) {
	if len(vector) != s.dim {
		return nil, apperr.InvalidArgument("query embedding dimension %d does not match store dimension %d", len(vector), s.dim)
	}
	if topK <= 0 {
		return nil, nil
	}
	serialized, err := sqlite_vec.SerializeFloat32(vector)
	if err != nil {
		return nil, apperr.Internal("serialize query embedding", err)
	}

	fetchK := topK
	if topicFilter != "" {
		fetchK = topK * 8
		if fetchK < 50 {
			fetchK = 50
		}
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT v.rowid, v.distance, m.ext_id, m.ref_id, m.topic_name
		FROM vec_%s v JOIN %s_meta m ON m.rowid = v.rowid
		WHERE v.embedding MATCH ? AND k = ?
		ORDER BY v.distance ASC, m.ext_id ASC
	`, collection, collection), serialized, fetchK)
	if err != nil {
		return nil, apperr.StoreIO("vector search", err)
	}
	defer rows.Close()

	var hits []SearchHit
	for rows.Next() {
		var rowid int64
		var distance float64
		var extID, refID, topicName string
		if err := rows.Scan(&rowid, &distance, &extID, &refID, &topicName); err != nil {
			return nil, apperr.StoreIO("scan vector search hit", err)
		}
		if topicFilter != "" && topicName != topicFilter {
			continue
		}
		hits = append(hits, SearchHit{ID: extID, RefID: refID, Distance: distance})
		if len(hits) == topK {
			break
		}
	}
	return hits, rows.Err()
}

// Reset truncates every collection, equivalent to init(reset=true) without
// reopening the underlying file.
func (s *Store) Reset(ctx context.Context) error {
	for _, name := range []string{CollectionMemories, CollectionSummaries, CollectionTopics} {
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM vec_%s`, name)); err != nil {
			return apperr.StoreIO(fmt.Sprintf("truncate vec_%s", name), err)
		}
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s_meta`, name)); err != nil {
			return apperr.StoreIO(fmt.Sprintf("truncate %s_meta", name), err)
		}
	}
	return nil
}

// AllExtIDs returns every external id present in collection, sorted, for
// reconciliation against the relational store.
func (s *Store) AllExtIDs(ctx context.Context, collection string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT ext_id FROM %s_meta ORDER BY ext_id`, collection))
	if err != nil {
		return nil, apperr.StoreIO(fmt.Sprintf("list %s ids", collection), err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apperr.StoreIO(fmt.Sprintf("scan %s id", collection), err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Status reports per-collection vector counts for the status() operation.
func (s *Store) Status(ctx context.Context) (model.VectorStatus, error) {
	out := model.VectorStatus{Name: "sqlite-vec"}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories_meta`).Scan(&out.MemoryVectors); err != nil {
		return out, apperr.StoreIO("count memory vectors", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM summaries_meta`).Scan(&out.SummaryVectors); err != nil {
		return out, apperr.StoreIO("count summary vectors", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM topics_meta`).Scan(&out.TopicVectors); err != nil {
		return out, apperr.StoreIO("count topic vectors", err)
	}
	return out, nil
}

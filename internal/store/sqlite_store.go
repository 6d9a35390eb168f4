package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver, no CGO

	gnoerrors "github.com/gastoncampana/gno/internal/errors"
)

// FTSTokenizer is one of the four tokenizers configurable at open() time.
type FTSTokenizer string

const (
	TokenizerUnicode61 FTSTokenizer = "unicode61"
	TokenizerPorter    FTSTokenizer = "porter"
	TokenizerSimple    FTSTokenizer = "simple"
	TokenizerTrigram   FTSTokenizer = "trigram"
)

func (t FTSTokenizer) ftsClause() string {
	switch t {
	case TokenizerPorter:
		return "porter unicode61"
	case TokenizerSimple:
		return "simple"
	case TokenizerTrigram:
		return "trigram"
	default:
		return "unicode61"
	}
}

// SQLiteStore implements the Store interface (§4.5) over a single
// modernc.org/sqlite connection, with an fts5 virtual table for BM25 and an
// in-process HNSWStore as the vector side-index.
type SQLiteStore struct {
	mu sync.RWMutex
	db *sql.DB

	tokenizer FTSTokenizer
	vec       *HNSWStore
	vecDirty  bool
	search    bool // search_available
}

// Open runs schema migrations in a single transaction, records the schema
// version, and refuses to run against a database with a newer schema than
// this binary understands (§4.5 open()).
func Open(ctx context.Context, path string, tokenizer FTSTokenizer, vecConfig VectorStoreConfig) (*SQLiteStore, error) {
	dsn := path
	if path != "" {
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	} else {
		dsn = ":memory:"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, gnoerrors.IO("opening sqlite database", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	vec, err := NewHNSWStore(vecConfig)
	if err != nil {
		_ = db.Close()
		return nil, gnoerrors.Internal("constructing vector side-index", err)
	}

	s := &SQLiteStore{db: db, tokenizer: tokenizer, vec: vec, search: true}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return gnoerrors.Internal("beginning migration transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS schema_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS documents (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		collection TEXT NOT NULL,
		rel_path TEXT NOT NULL,
		docid TEXT NOT NULL UNIQUE,
		source_hash TEXT NOT NULL,
		source_mime TEXT NOT NULL,
		source_ext TEXT NOT NULL,
		source_size INTEGER NOT NULL,
		source_mtime INTEGER NOT NULL,
		mirror_hash TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL DEFAULT '',
		converter_id TEXT NOT NULL DEFAULT '',
		converter_version TEXT NOT NULL DEFAULT '',
		language_hint TEXT NOT NULL DEFAULT '',
		active INTEGER NOT NULL DEFAULT 1,
		last_error_code TEXT NOT NULL DEFAULT '',
		last_error_message TEXT NOT NULL DEFAULT '',
		last_error_at INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		UNIQUE(collection, rel_path)
	);

	CREATE TABLE IF NOT EXISTS content (
		mirror_hash TEXT PRIMARY KEY,
		markdown TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chunks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		mirror_hash TEXT NOT NULL,
		seq INTEGER NOT NULL,
		pos INTEGER NOT NULL,
		text TEXT NOT NULL,
		start_line INTEGER NOT NULL,
		end_line INTEGER NOT NULL,
		language TEXT NOT NULL DEFAULT '',
		token_count INTEGER NOT NULL DEFAULT 0,
		UNIQUE(mirror_hash, seq),
		FOREIGN KEY (mirror_hash) REFERENCES content(mirror_hash) ON DELETE CASCADE
	);

	CREATE VIRTUAL TABLE IF NOT EXISTS fts_chunks USING fts5(
		text,
		content='chunks',
		content_rowid='id',
		tokenize='%s'
	);

	CREATE TRIGGER IF NOT EXISTS chunks_ai AFTER INSERT ON chunks BEGIN
		INSERT INTO fts_chunks(rowid, text) VALUES (new.id, new.text);
	END;
	CREATE TRIGGER IF NOT EXISTS chunks_ad AFTER DELETE ON chunks BEGIN
		INSERT INTO fts_chunks(fts_chunks, rowid, text) VALUES('delete', old.id, old.text);
	END;

	CREATE TABLE IF NOT EXISTS vectors (
		mirror_hash TEXT NOT NULL,
		seq INTEGER NOT NULL,
		model TEXT NOT NULL,
		data BLOB NOT NULL,
		embedded_at INTEGER NOT NULL,
		PRIMARY KEY (mirror_hash, seq, model)
	);

	CREATE TABLE IF NOT EXISTS links (
		source_doc_id INTEGER NOT NULL,
		target_ref TEXT NOT NULL,
		target_ref_norm TEXT NOT NULL,
		target_anchor TEXT NOT NULL DEFAULT '',
		target_collection TEXT NOT NULL DEFAULT '',
		link_type TEXT NOT NULL,
		link_text TEXT NOT NULL DEFAULT '',
		start_line INTEGER NOT NULL,
		start_col INTEGER NOT NULL,
		end_line INTEGER NOT NULL,
		end_col INTEGER NOT NULL,
		source TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_links_source ON links(source_doc_id);
	CREATE INDEX IF NOT EXISTS idx_links_target_norm ON links(target_ref_norm);

	CREATE TABLE IF NOT EXISTS ingest_errors (
		collection TEXT NOT NULL,
		rel_path TEXT NOT NULL,
		occurred_at INTEGER NOT NULL,
		code TEXT NOT NULL,
		message TEXT NOT NULL,
		details_json TEXT NOT NULL DEFAULT ''
	);
	`, s.tokenizer.ftsClause())

	if _, err := tx.ExecContext(ctx, schema); err != nil {
		return gnoerrors.Internal("applying schema migration", err)
	}

	var storedVersion int
	row := tx.QueryRowContext(ctx, `SELECT value FROM schema_meta WHERE key = 'schema_version'`)
	var v string
	if err := row.Scan(&v); err == nil {
		fmt.Sscanf(v, "%d", &storedVersion)
		if storedVersion > CurrentSchemaVersion {
			return gnoerrors.Internal(fmt.Sprintf("database schema version %d is newer than this binary (%d)", storedVersion, CurrentSchemaVersion), nil)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_meta(key, value) VALUES ('schema_version', ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		fmt.Sprintf("%d", CurrentSchemaVersion)); err != nil {
		return gnoerrors.Internal("recording schema version", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_meta(key, value) VALUES ('fts_tokenizer', ?)
		 ON CONFLICT(key) DO NOTHING`, string(s.tokenizer)); err != nil {
		return gnoerrors.Internal("recording fts tokenizer", err)
	}

	return tx.Commit()
}

// Docid derives the spec's 8-hex short document identifier.
func Docid(collection, relPath string) string {
	sum := sha256.Sum256([]byte(collection + "\x00" + relPath))
	return hex.EncodeToString(sum[:])[:8]
}

// URI builds the gno:// identity for a document.
func URI(collection, relPath string) string {
	return fmt.Sprintf("gno://%s/%s", collection, relPath)
}

func (s *SQLiteStore) UpsertDocument(ctx context.Context, in DocumentInput) (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	docid := Docid(in.Collection, in.RelPath)
	now := time.Now()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (
			collection, rel_path, docid, source_hash, source_mime, source_ext,
			source_size, source_mtime, mirror_hash, title, converter_id,
			converter_version, language_hint, active, last_error_code,
			last_error_message, last_error_at, created_at, updated_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,1,?,?,?,?,?)
		ON CONFLICT(collection, rel_path) DO UPDATE SET
			source_hash = excluded.source_hash,
			source_mime = excluded.source_mime,
			source_ext = excluded.source_ext,
			source_size = excluded.source_size,
			source_mtime = excluded.source_mtime,
			mirror_hash = excluded.mirror_hash,
			title = excluded.title,
			converter_id = excluded.converter_id,
			converter_version = excluded.converter_version,
			language_hint = excluded.language_hint,
			active = 1,
			last_error_code = excluded.last_error_code,
			last_error_message = excluded.last_error_message,
			last_error_at = excluded.last_error_at,
			updated_at = excluded.updated_at`,
		in.Collection, in.RelPath, docid, in.SourceHash, in.SourceMIME, in.SourceExt,
		in.SourceSize, in.SourceMtime.Unix(), in.MirrorHash, in.Title, in.ConverterID,
		in.ConverterVersion, in.LanguageHint,
		in.LastErrorCode, in.LastErrorMessage, now.Unix(), now.Unix(), now.Unix(),
	)
	if err != nil {
		return nil, gnoerrors.QueryFailed("upserting document", err)
	}

	return s.getDocumentLocked(ctx, in.Collection, in.RelPath)
}

func (s *SQLiteStore) GetDocument(ctx context.Context, collection, relPath string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getDocumentLocked(ctx, collection, relPath)
}

func (s *SQLiteStore) getDocumentLocked(ctx context.Context, collection, relPath string) (*Document, error) {
	row := s.db.QueryRowContext(ctx, documentSelectCols+` WHERE collection = ? AND rel_path = ?`, collection, relPath)
	return scanDocument(row)
}

func (s *SQLiteStore) GetDocumentByDocid(ctx context.Context, docid string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRowContext(ctx, documentSelectCols+` WHERE docid = ?`, docid)
	return scanDocument(row)
}

// GetDocumentByID resolves a document by its internal row id, used to
// hydrate the source document of a link row (links only carry
// source_doc_id, not collection/rel_path/docid).
func (s *SQLiteStore) GetDocumentByID(ctx context.Context, id int64) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRowContext(ctx, documentSelectCols+` WHERE id = ?`, id)
	return scanDocument(row)
}

// GetDocumentsByMirrorHash finds every active document sharing a mirror
// hash. Content is deduplicated by hash (§3), so a nearest-neighbor hit
// against one mirror can back more than one document.
func (s *SQLiteStore) GetDocumentsByMirrorHash(ctx context.Context, mirrorHash string) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, documentSelectCols+` WHERE mirror_hash = ? AND active = 1`, mirrorHash)
	if err != nil {
		return nil, gnoerrors.QueryFailed("get_documents_by_mirror_hash", err)
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeactivateDocument(ctx context.Context, collection, relPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`UPDATE documents SET active = 0, updated_at = ? WHERE collection = ? AND rel_path = ?`,
		time.Now().Unix(), collection, relPath)
	if err != nil {
		return gnoerrors.QueryFailed("deactivating document", err)
	}
	return nil
}

const documentSelectCols = `
	SELECT id, collection, rel_path, docid, source_hash, source_mime, source_ext,
	       source_size, source_mtime, mirror_hash, title, converter_id,
	       converter_version, language_hint, active, last_error_code,
	       last_error_message, last_error_at, created_at, updated_at
	FROM documents`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*Document, error) {
	var d Document
	var sourceMtime, lastErrorAt, createdAt, updatedAt int64
	var active int
	err := row.Scan(
		&d.ID, &d.Collection, &d.RelPath, &d.Docid, &d.SourceHash, &d.SourceMIME, &d.SourceExt,
		&d.SourceSize, &sourceMtime, &d.MirrorHash, &d.Title, &d.ConverterID,
		&d.ConverterVersion, &d.LanguageHint, &active, &d.LastErrorCode,
		&d.LastErrorMessage, &lastErrorAt, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, gnoerrors.NotFound("document not found", nil)
	}
	if err != nil {
		return nil, gnoerrors.QueryFailed("scanning document row", err)
	}
	d.Active = active != 0
	d.SourceMtime = time.Unix(sourceMtime, 0).UTC()
	d.LastErrorAt = time.Unix(lastErrorAt, 0).UTC()
	d.CreatedAt = time.Unix(createdAt, 0).UTC()
	d.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	d.URI = URI(d.Collection, d.RelPath)
	return &d, nil
}

// UpsertContent is a no-op if mirror_hash already exists (§4.5).
func (s *SQLiteStore) UpsertContent(ctx context.Context, mirrorHash, markdown string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO content (mirror_hash, markdown, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(mirror_hash) DO NOTHING`,
		mirrorHash, markdown, time.Now().Unix())
	if err != nil {
		return gnoerrors.QueryFailed("upserting content", err)
	}
	return nil
}

func (s *SQLiteStore) GetContent(ctx context.Context, mirrorHash string) (*Content, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var c Content
	var createdAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT mirror_hash, markdown, created_at FROM content WHERE mirror_hash = ?`, mirrorHash,
	).Scan(&c.MirrorHash, &c.Markdown, &createdAt)
	if err == sql.ErrNoRows {
		return nil, gnoerrors.NotFound("content not found", nil)
	}
	if err != nil {
		return nil, gnoerrors.QueryFailed("getting content", err)
	}
	c.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &c, nil
}

// PutChunks replaces all chunks for a mirror hash in one transaction,
// which also replaces the corresponding fts_chunks rows via triggers.
func (s *SQLiteStore) PutChunks(ctx context.Context, mirrorHash string, chunks []Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return gnoerrors.QueryFailed("beginning put_chunks transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE mirror_hash = ?`, mirrorHash); err != nil {
		return gnoerrors.QueryFailed("clearing existing chunks", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (mirror_hash, seq, pos, text, start_line, end_line, language, token_count)
		VALUES (?,?,?,?,?,?,?,?)`)
	if err != nil {
		return gnoerrors.QueryFailed("preparing chunk insert", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, mirrorHash, c.Seq, c.Pos, c.Text, c.StartLine, c.EndLine, c.Language, c.TokenCount); err != nil {
			return gnoerrors.QueryFailed("inserting chunk", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return gnoerrors.QueryFailed("committing put_chunks", err)
	}
	return nil
}

// GetChunksBatch runs a single query and builds an O(1) (hash,seq) -> chunk
// map lazily per hash, first-wins on a duplicate seq (shouldn't occur given
// the UNIQUE(mirror_hash, seq) constraint, but the contract is explicit).
func (s *SQLiteStore) GetChunksBatch(ctx context.Context, hashes []string) (map[string][]Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string][]Chunk, len(hashes))
	if len(hashes) == 0 {
		return result, nil
	}

	placeholders := make([]string, len(hashes))
	args := make([]any, len(hashes))
	for i, h := range hashes {
		placeholders[i] = "?"
		args[i] = h
	}

	query := fmt.Sprintf(`
		SELECT mirror_hash, seq, pos, text, start_line, end_line, language, token_count
		FROM chunks WHERE mirror_hash IN (%s) ORDER BY mirror_hash, pos ASC`,
		strings.Join(placeholders, ","))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, gnoerrors.QueryFailed("get_chunks_batch", err)
	}
	defer rows.Close()

	seen := make(map[string]bool)
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.MirrorHash, &c.Seq, &c.Pos, &c.Text, &c.StartLine, &c.EndLine, &c.Language, &c.TokenCount); err != nil {
			return nil, gnoerrors.QueryFailed("scanning chunk row", err)
		}
		key := fmt.Sprintf("%s:%d", c.MirrorHash, c.Seq)
		if seen[key] {
			continue // first-wins on duplicate seq
		}
		seen[key] = true
		result[c.MirrorHash] = append(result[c.MirrorHash], c)
	}
	return result, rows.Err()
}

// GetUnembeddedChunks pages through chunks with no vector row for model,
// ordered by (mirror_hash, seq) so the backlog processor's cursor is
// monotonic. afterMirrorHash/afterSeq bound the page exclusively; pass ""/0
// for the first page. Title is the first active document's title sharing
// the chunk's mirror hash, or "" if none.
func (s *SQLiteStore) GetUnembeddedChunks(ctx context.Context, model string, limit int, afterMirrorHash string, afterSeq int) ([]UnembeddedChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.mirror_hash, c.seq, c.pos, c.text, c.start_line, c.end_line, c.language, c.token_count,
		       COALESCE((SELECT d.title FROM documents d
		                 WHERE d.mirror_hash = c.mirror_hash AND d.active = 1 AND d.title != ''
		                 ORDER BY d.id LIMIT 1), '') AS title
		FROM chunks c
		WHERE NOT EXISTS (
			SELECT 1 FROM vectors v WHERE v.mirror_hash = c.mirror_hash AND v.seq = c.seq AND v.model = ?
		)
		AND (c.mirror_hash > ? OR (c.mirror_hash = ? AND c.seq > ?))
		ORDER BY c.mirror_hash, c.seq
		LIMIT ?`,
		model, afterMirrorHash, afterMirrorHash, afterSeq, limit)
	if err != nil {
		return nil, gnoerrors.QueryFailed("get_unembedded_chunks", err)
	}
	defer rows.Close()

	var out []UnembeddedChunk
	for rows.Next() {
		var c UnembeddedChunk
		if err := rows.Scan(&c.MirrorHash, &c.Seq, &c.Pos, &c.Text, &c.StartLine, &c.EndLine, &c.Language, &c.TokenCount, &c.Title); err != nil {
			return nil, gnoerrors.QueryFailed("scanning unembedded chunk row", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SearchFTS(ctx context.Context, query string, opts FTSSearchOptions) ([]FTSResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if strings.TrimSpace(query) == "" {
		return nil, nil
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}

	sqlQuery := `
		SELECT c.mirror_hash, c.seq, bm25(fts_chunks) AS score,
		       d.docid, d.collection, d.rel_path, d.title
		FROM fts_chunks
		JOIN chunks c ON c.id = fts_chunks.rowid
		JOIN documents d ON d.mirror_hash = c.mirror_hash
		WHERE fts_chunks MATCH ?`
	args := []any{query}
	if opts.Collection != "" {
		sqlQuery += ` AND d.collection = ?`
		args = append(args, opts.Collection)
	}
	sqlQuery += ` ORDER BY score ASC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		if strings.Contains(err.Error(), "fts5") || strings.Contains(err.Error(), "syntax error") {
			return nil, nil
		}
		return nil, gnoerrors.QueryFailed("search_fts", err)
	}
	defer rows.Close()

	var results []FTSResult
	for rows.Next() {
		var r FTSResult
		if err := rows.Scan(&r.MirrorHash, &r.Seq, &r.Score, &r.Docid, &r.Collection, &r.RelPath, &r.Title); err != nil {
			return nil, gnoerrors.QueryFailed("scanning fts result", err)
		}
		r.URI = URI(r.Collection, r.RelPath)
		results = append(results, r)
	}
	return results, rows.Err()
}

func (s *SQLiteStore) NeedsFTSRebuild(ctx context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var stored string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM schema_meta WHERE key = 'fts_tokenizer'`).Scan(&stored)
	if err != nil {
		return false, gnoerrors.QueryFailed("reading fts tokenizer metadata", err)
	}
	return stored != string(s.tokenizer), nil
}

// UpsertVectors writes both the durable vector table and the HNSW
// side-index in one logical operation; a side-index failure sets vec_dirty
// but does not roll back the durable write (§4.9).
func (s *SQLiteStore) UpsertVectors(ctx context.Context, vectors []Vector) (VectorUpsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return VectorUpsertResult{}, gnoerrors.QueryFailed("beginning upsert_vectors transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO vectors (mirror_hash, seq, model, data, embedded_at)
		VALUES (?,?,?,?,?)
		ON CONFLICT(mirror_hash, seq, model) DO UPDATE SET
			data = excluded.data, embedded_at = excluded.embedded_at`)
	if err != nil {
		return VectorUpsertResult{}, gnoerrors.QueryFailed("preparing vector upsert", err)
	}
	defer stmt.Close()

	now := time.Now()
	for _, v := range vectors {
		if _, err := stmt.ExecContext(ctx, v.MirrorHash, v.Seq, v.Model, encodeFloat32s(v.Data), now.Unix()); err != nil {
			return VectorUpsertResult{}, gnoerrors.QueryFailed("inserting vector", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return VectorUpsertResult{}, gnoerrors.QueryFailed("committing upsert_vectors", err)
	}

	// The side-index is bound to a single model (§4.9); rows for any other
	// model are left out of it (durable write already committed above) so
	// a second model's embeddings never get silently mixed into the
	// bound model's graph.
	boundModel := s.vec.Model()
	var ids []string
	var vecs [][]float32
	for _, v := range vectors {
		if boundModel != "" && v.Model != boundModel {
			continue
		}
		ids = append(ids, vectorKey(v.MirrorHash, v.Seq))
		vecs = append(vecs, v.Data)
	}
	if len(ids) == 0 {
		return VectorUpsertResult{SideIndexOK: true}, nil
	}
	if err := s.vec.Add(ctx, ids, vecs); err != nil {
		s.vecDirty = true
		return VectorUpsertResult{SideIndexOK: false}, nil
	}
	return VectorUpsertResult{SideIndexOK: true}, nil
}

// GetVectorsForMirror returns every stored vector for a mirror hash under a
// given model, ordered by seq. Used by the graph accessor (C14) to compute
// a document's mean chunk embedding for similarity lookups.
func (s *SQLiteStore) GetVectorsForMirror(ctx context.Context, mirrorHash, model string) ([]Vector, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, data, embedded_at FROM vectors WHERE mirror_hash = ? AND model = ? ORDER BY seq`,
		mirrorHash, model)
	if err != nil {
		return nil, gnoerrors.QueryFailed("get_vectors_for_mirror", err)
	}
	defer rows.Close()

	var out []Vector
	for rows.Next() {
		var seq int
		var data []byte
		var embeddedAt int64
		if err := rows.Scan(&seq, &data, &embeddedAt); err != nil {
			return nil, gnoerrors.QueryFailed("scanning vector row", err)
		}
		out = append(out, Vector{
			MirrorHash: mirrorHash,
			Seq:        seq,
			Model:      model,
			Data:       decodeFloat32s(data),
			EmbeddedAt: time.Unix(embeddedAt, 0).UTC(),
		})
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteVectorsForMirror(ctx context.Context, mirrorHash, model string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `SELECT seq FROM vectors WHERE mirror_hash = ? AND model = ?`, mirrorHash, model)
	if err != nil {
		return gnoerrors.QueryFailed("listing vectors to delete", err)
	}
	var ids []string
	for rows.Next() {
		var seq int
		if err := rows.Scan(&seq); err != nil {
			rows.Close()
			return gnoerrors.QueryFailed("scanning vector seq", err)
		}
		ids = append(ids, vectorKey(mirrorHash, seq))
	}
	rows.Close()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM vectors WHERE mirror_hash = ? AND model = ?`, mirrorHash, model); err != nil {
		return gnoerrors.QueryFailed("deleting vectors", err)
	}
	// Only the side-index's bound model ever had these ids added to it
	// (see UpsertVectors); deleting a different model's rows has nothing
	// to remove from this graph.
	if boundModel := s.vec.Model(); boundModel == "" || boundModel == model {
		if err := s.vec.Delete(ctx, ids); err != nil {
			s.vecDirty = true
		}
	}
	return nil
}

// SyncVecIndex reconciles the HNSW side-index against the durable vectors
// table: adds rows missing from the side-index, removes side-index rows
// with no backing content row.
func (s *SQLiteStore) SyncVecIndex(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Scoped to the side-index's bound model (§4.9): otherwise a second
	// model's durable row would collide on the same mirrorHash:seq id and
	// silently overwrite the bound model's vector in the graph.
	boundModel := s.vec.Model()
	durable := make(map[string][]float32)
	var rows *sql.Rows
	var err error
	if boundModel == "" {
		rows, err = s.db.QueryContext(ctx, `SELECT mirror_hash, seq, data FROM vectors`)
	} else {
		rows, err = s.db.QueryContext(ctx, `SELECT mirror_hash, seq, data FROM vectors WHERE model = ?`, boundModel)
	}
	if err != nil {
		return gnoerrors.VecSyncFailed("listing durable vectors", err)
	}
	for rows.Next() {
		var mh string
		var seq int
		var data []byte
		if err := rows.Scan(&mh, &seq, &data); err != nil {
			rows.Close()
			return gnoerrors.VecSyncFailed("scanning durable vector", err)
		}
		durable[vectorKey(mh, seq)] = decodeFloat32s(data)
	}
	rows.Close()

	sideIDs := make(map[string]bool)
	for _, id := range s.vec.AllIDs() {
		sideIDs[id] = true
	}

	var addIDs []string
	var addVecs [][]float32
	for id, vec := range durable {
		if !sideIDs[id] {
			addIDs = append(addIDs, id)
			addVecs = append(addVecs, vec)
		}
	}
	var removeIDs []string
	for id := range sideIDs {
		if _, ok := durable[id]; !ok {
			removeIDs = append(removeIDs, id)
		}
	}

	if len(addIDs) > 0 {
		if err := s.vec.Add(ctx, addIDs, addVecs); err != nil {
			return gnoerrors.VecSyncFailed("adding missing vectors to side-index", err)
		}
	}
	if len(removeIDs) > 0 {
		if err := s.vec.Delete(ctx, removeIDs); err != nil {
			return gnoerrors.VecSyncFailed("removing orphaned side-index vectors", err)
		}
	}

	s.vecDirty = false
	return nil
}

// RebuildVecIndex drops and repopulates the side-index from the durable
// vectors table.
func (s *SQLiteStore) RebuildVecIndex(ctx context.Context) error {
	s.mu.Lock()
	cfg := s.vec.config
	s.mu.Unlock()

	fresh, err := NewHNSWStore(cfg)
	if err != nil {
		return gnoerrors.VecSyncFailed("recreating side-index", err)
	}

	s.mu.Lock()
	s.vec = fresh
	s.mu.Unlock()

	return s.SyncVecIndex(ctx)
}

// SearchNearest runs k-NN over the ANN side-index and applies
// filters.Collection/filters.Model before returning (§6: search_vector and
// query are collection-scoped). The side-index itself carries neither
// collection nor model (it mirrors (mirror_hash, seq) -> vector for a
// single bound model, §4.9), so both checks are re-applied here against
// the durable documents/vectors tables: a candidate survives only if some
// active document shares its mirror_hash in the requested collection, and
// (when a model is given) a vectors row actually exists for that model.
// The side-index is over-queried to leave enough candidates to filter
// down to k without a second round-trip.
func (s *SQLiteStore) SearchNearest(ctx context.Context, queryVec []float32, k int, filters NearestFilters) ([]NearestResult, error) {
	s.mu.RLock()
	search := s.search
	s.mu.RUnlock()

	if !search {
		return nil, gnoerrors.VecUnavailable("ann side-index is not loaded", nil)
	}

	// The side-index holds only its bound model's vectors (§4.9); a
	// request scoped to any other model matches nothing here.
	if boundModel := s.vec.Model(); boundModel != "" && filters.Model != "" && filters.Model != boundModel {
		return nil, nil
	}

	fetchK := k
	if filters.Collection != "" || filters.Model != "" {
		fetchK = k * 5
		if fetchK < 50 {
			fetchK = 50
		}
		if fetchK > 500 {
			fetchK = 500
		}
	}

	hits, err := s.vec.Search(ctx, queryVec, fetchK)
	if err != nil {
		return nil, gnoerrors.QueryFailed("search_nearest", err)
	}

	candidates := make([]NearestResult, 0, len(hits))
	for _, h := range hits {
		mh, seq, ok := splitVectorKey(h.ID)
		if !ok {
			continue
		}
		candidates = append(candidates, NearestResult{MirrorHash: mh, Seq: seq, Distance: h.Distance})
	}

	allowedCollection, allowedModel, err := s.nearestFilterSets(ctx, candidates, filters)
	if err != nil {
		return nil, err
	}

	results := make([]NearestResult, 0, k)
	for _, c := range candidates {
		if allowedCollection != nil && !allowedCollection[c.MirrorHash] {
			continue
		}
		if allowedModel != nil && !allowedModel[vectorKey(c.MirrorHash, c.Seq)] {
			continue
		}
		results = append(results, c)
		if len(results) == k {
			break
		}
	}
	return results, nil
}

// nearestFilterSets builds membership sets for the mirror hashes that
// belong to filters.Collection and the (mirror_hash, seq) pairs that have
// a vectors row for filters.Model, scoped to the candidates supplied
// (avoids scanning the whole documents/vectors tables). A nil map means
// the corresponding filter was not requested and nothing should be
// excluded on that basis.
func (s *SQLiteStore) nearestFilterSets(ctx context.Context, candidates []NearestResult, filters NearestFilters) (map[string]bool, map[string]bool, error) {
	if len(candidates) == 0 || (filters.Collection == "" && filters.Model == "") {
		return nil, nil, nil
	}

	mirrorSet := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		mirrorSet[c.MirrorHash] = true
	}
	mirrors := make([]string, 0, len(mirrorSet))
	for mh := range mirrorSet {
		mirrors = append(mirrors, mh)
	}
	placeholders := make([]string, len(mirrors))
	args := make([]any, len(mirrors))
	for i, mh := range mirrors {
		placeholders[i] = "?"
		args[i] = mh
	}
	inClause := strings.Join(placeholders, ",")

	var allowedCollection map[string]bool
	if filters.Collection != "" {
		allowedCollection = make(map[string]bool)
		query := fmt.Sprintf(`
			SELECT DISTINCT mirror_hash FROM documents
			WHERE active = 1 AND collection = ? AND mirror_hash IN (%s)`, inClause)
		rows, err := s.db.QueryContext(ctx, query, append([]any{filters.Collection}, args...)...)
		if err != nil {
			return nil, nil, gnoerrors.QueryFailed("filtering search_nearest by collection", err)
		}
		for rows.Next() {
			var mh string
			if err := rows.Scan(&mh); err != nil {
				rows.Close()
				return nil, nil, gnoerrors.QueryFailed("scanning collection filter row", err)
			}
			allowedCollection[mh] = true
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, nil, gnoerrors.QueryFailed("reading collection filter rows", err)
		}
		rows.Close()
	}

	var allowedModel map[string]bool
	if filters.Model != "" {
		allowedModel = make(map[string]bool)
		query := fmt.Sprintf(`
			SELECT mirror_hash, seq FROM vectors
			WHERE model = ? AND mirror_hash IN (%s)`, inClause)
		rows, err := s.db.QueryContext(ctx, query, append([]any{filters.Model}, args...)...)
		if err != nil {
			return nil, nil, gnoerrors.QueryFailed("filtering search_nearest by model", err)
		}
		for rows.Next() {
			var mh string
			var seq int
			if err := rows.Scan(&mh, &seq); err != nil {
				rows.Close()
				return nil, nil, gnoerrors.QueryFailed("scanning model filter row", err)
			}
			allowedModel[vectorKey(mh, seq)] = true
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, nil, gnoerrors.QueryFailed("reading model filter rows", err)
		}
		rows.Close()
	}

	return allowedCollection, allowedModel, nil
}

func (s *SQLiteStore) VecDirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.vecDirty
}

func (s *SQLiteStore) SearchAvailable() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.search
}

func (s *SQLiteStore) PutLinks(ctx context.Context, sourceDocID int64, links []Link) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return gnoerrors.QueryFailed("beginning put_links transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM links WHERE source_doc_id = ?`, sourceDocID); err != nil {
		return gnoerrors.QueryFailed("clearing existing links", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO links (source_doc_id, target_ref, target_ref_norm, target_anchor,
		                    target_collection, link_type, link_text, start_line,
		                    start_col, end_line, end_col, source)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return gnoerrors.QueryFailed("preparing link insert", err)
	}
	defer stmt.Close()

	for _, l := range links {
		if _, err := stmt.ExecContext(ctx, sourceDocID, l.TargetRef, l.TargetRefNorm, l.TargetAnchor,
			l.TargetCollection, string(l.LinkType), l.LinkText, l.StartLine, l.StartCol, l.EndLine, l.EndCol, string(l.Source)); err != nil {
			return gnoerrors.QueryFailed("inserting link", err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) GetLinksForDoc(ctx context.Context, docID int64) ([]Link, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `
		SELECT source_doc_id, target_ref, target_ref_norm, target_anchor, target_collection,
		       link_type, link_text, start_line, start_col, end_line, end_col, source
		FROM links WHERE source_doc_id = ? ORDER BY start_line, start_col`, docID)
	if err != nil {
		return nil, gnoerrors.QueryFailed("get_links_for_doc", err)
	}
	defer rows.Close()
	return scanLinks(rows)
}

// GetBacklinksForDoc finds links whose target_ref_norm resolves to docID's
// document, ordered by (source_uri, start_line, start_col).
func (s *SQLiteStore) GetBacklinksForDoc(ctx context.Context, docID int64) ([]Link, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var collection, relPath, title string
	if err := s.db.QueryRowContext(ctx, `SELECT collection, rel_path, title FROM documents WHERE id = ?`, docID).
		Scan(&collection, &relPath, &title); err != nil {
		if err == sql.ErrNoRows {
			return nil, gnoerrors.NotFound("document not found", nil)
		}
		return nil, gnoerrors.QueryFailed("loading target document for backlinks", err)
	}

	normTitle := normalizeRef(title)
	normPath := normalizeRef(relPath)

	rows, err := s.db.QueryContext(ctx, `
		SELECT l.source_doc_id, l.target_ref, l.target_ref_norm, l.target_anchor,
		       l.target_collection, l.link_type, l.link_text, l.start_line,
		       l.start_col, l.end_line, l.end_col, l.source
		FROM links l
		JOIN documents sd ON sd.id = l.source_doc_id
		WHERE (l.target_ref_norm = ? OR l.target_ref_norm = ?)
		  AND (l.target_collection = '' OR l.target_collection = ?)
		ORDER BY sd.collection, sd.rel_path, l.start_line, l.start_col`,
		normTitle, normPath, collection)
	if err != nil {
		return nil, gnoerrors.QueryFailed("get_backlinks_for_doc", err)
	}
	defer rows.Close()
	return scanLinks(rows)
}

func scanLinks(rows *sql.Rows) ([]Link, error) {
	var links []Link
	for rows.Next() {
		var l Link
		var linkType, source string
		if err := rows.Scan(&l.SourceDocID, &l.TargetRef, &l.TargetRefNorm, &l.TargetAnchor,
			&l.TargetCollection, &linkType, &l.LinkText, &l.StartLine, &l.StartCol, &l.EndLine, &l.EndCol, &source); err != nil {
			return nil, gnoerrors.QueryFailed("scanning link row", err)
		}
		l.LinkType = LinkType(linkType)
		l.Source = LinkSource(source)
		links = append(links, l)
	}
	return links, rows.Err()
}

func normalizeRef(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func (s *SQLiteStore) RecordIngestError(ctx context.Context, e IngestError) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ingest_errors (collection, rel_path, occurred_at, code, message, details_json)
		VALUES (?,?,?,?,?,?)`,
		e.Collection, e.RelPath, e.OccurredAt.Unix(), e.Code, e.Message, e.DetailsJSON)
	if err != nil {
		return gnoerrors.QueryFailed("recording ingest error", err)
	}
	return nil
}

// CleanupOrphans removes content with no referring document, vectors with
// no referring chunk, and (implicitly, via the fts_chunks triggers) FTS
// rows with no chunk. Transactional and reentrant.
func (s *SQLiteStore) CleanupOrphans(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return gnoerrors.QueryFailed("beginning cleanup_orphans transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM content WHERE mirror_hash NOT IN (
			SELECT DISTINCT mirror_hash FROM documents WHERE mirror_hash != ''
		)`); err != nil {
		return gnoerrors.QueryFailed("removing orphaned content", err)
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM vectors WHERE (mirror_hash, seq) NOT IN (
			SELECT mirror_hash, seq FROM chunks
		)`); err != nil {
		return gnoerrors.QueryFailed("removing orphaned vectors", err)
	}

	return tx.Commit()
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.vec != nil {
		_ = s.vec.Close()
	}
	return s.db.Close()
}

func encodeFloat32s(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeFloat32s(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}

func splitVectorKey(id string) (mirrorHash string, seq int, ok bool) {
	idx := strings.LastIndexByte(id, ':')
	if idx < 0 {
		return "", 0, false
	}
	mirrorHash = id[:idx]
	if _, err := fmt.Sscanf(id[idx+1:], "%d", &seq); err != nil {
		return "", 0, false
	}
	return mirrorHash, seq, true
}

// Package ingest builds the knowledge base: load files, chunk, embed and
// store.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/smallnest/adaptiverag/log"
	"github.com/smallnest/adaptiverag/rag"
	"github.com/smallnest/adaptiverag/rag/loader"
)

// DefaultBatchSize is the number of chunks embedded per request.
const DefaultBatchSize = 64

// Report summarizes an indexing run.
type Report struct {
	Documents int
	Chunks    int
	Skipped   []string
	Failed    map[string]error
	// Removed lists sources dropped from the store because their file is
	// gone or no longer yields any chunk.
	Removed []string
}

// Indexer chunks, embeds and stores documents.
type Indexer struct {
	Embedder  rag.Embedder
	Store     rag.VectorStore
	Chunker   *rag.Chunker
	BatchSize int
	Logger    log.Logger
}

// NewIndexer creates an Indexer with the given chunk size and overlap.
func NewIndexer(embedder rag.Embedder, store rag.VectorStore, chunkSize, chunkOverlap int) *Indexer {
	return &Indexer{
		Embedder:  embedder,
		Store:     store,
		Chunker:   rag.NewChunker(chunkSize, chunkOverlap),
		BatchSize: DefaultBatchSize,
	}
}

// IndexDocuments chunks and embeds docs and ingests them in one call, so that
// each source is replaced atomically with respect to searches. A source whose
// documents produce no chunk is deleted from the store.
func (ix *Indexer) IndexDocuments(ctx context.Context, docs []rag.Document) (int, error) {
	chunks, err := ix.Chunker.Split(docs)
	if err != nil {
		return 0, err
	}

	empty := map[string]bool{}
	for _, d := range docs {
		empty[d.Source] = true
	}
	for _, c := range chunks {
		delete(empty, c.Source)
	}
	if len(chunks) > 0 {
		if err := ix.embed(ctx, chunks); err != nil {
			return 0, err
		}
		if err := ix.Store.Ingest(ctx, chunks); err != nil {
			return 0, fmt.Errorf("ingest: %w", err)
		}
	}
	for _, src := range slices.Sorted(maps.Keys(empty)) {
		if err := ix.Store.DeleteSource(ctx, src); err != nil {
			return len(chunks), fmt.Errorf("delete %s: %w", src, err)
		}
	}
	return len(chunks), nil
}

func (ix *Indexer) embed(ctx context.Context, chunks []rag.Chunk) error {
	batch := ix.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	for start := 0; start < len(chunks); start += batch {
		end := min(start+batch, len(chunks))
		texts := make([]string, end-start)
		for i := range texts {
			texts[i] = chunks[start+i].Text
		}
		vecs, err := ix.Embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed chunks %d-%d: %w", start, end, err)
		}
		if len(vecs) != len(texts) {
			return fmt.Errorf("embed chunks %d-%d: got %d vectors", start, end, len(vecs))
		}
		for i, v := range vecs {
			chunks[start+i].Embedding = v
		}
	}
	return nil
}

// IndexDirectory indexes every supported file under dir. A missing dir is
// created and yields an empty report. Unsupported files are skipped; a file
// that fails to load is recorded in Report.Failed, keeps its previous chunks
// and does not stop the run. Stored sources under dir with no matching file
// are removed once every file has been indexed.
func (ix *Indexer) IndexDirectory(ctx context.Context, dir string) (*Report, error) {
	logger := log.OrDefault(ix.Logger)
	report := &Report{Failed: map[string]error{}}

	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		logger.Info("source directory %s does not exist, creating it", dir)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
		return report, nil
	}

	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !loader.Supported(path) {
			logger.Debug("skipping unsupported file %s", path)
			report.Skipped = append(report.Skipped, path)
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	sort.Strings(files)

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		l, _ := loader.ForFile(path)
		docs, err := l.Load(ctx, path)
		if err != nil {
			logger.Warn("failed to load %s: %v", path, err)
			report.Failed[path] = err
			continue
		}
		if len(docs) == 0 {
			docs = []rag.Document{{Source: path}}
		}
		n, err := ix.IndexDocuments(ctx, docs)
		if err != nil {
			return report, fmt.Errorf("index %s: %w", path, err)
		}
		report.Documents++
		report.Chunks += n
		logger.Info("indexed %s: %d chunks", path, n)
	}

	if err := ix.prune(ctx, dir, files, report); err != nil {
		return report, err
	}
	return report, nil
}

// prune deletes stored sources that live under dir but are not among files.
func (ix *Indexer) prune(ctx context.Context, dir string, files []string, report *Report) error {
	st, err := ix.Store.Stats(ctx)
	if err != nil {
		return fmt.Errorf("stats: %w", err)
	}
	present := make(map[string]bool, len(files))
	for _, f := range files {
		present[f] = true
	}
	for _, src := range slices.Sorted(maps.Keys(st.BySource)) {
		if present[src] || !within(dir, src) {
			continue
		}
		if err := ix.Store.DeleteSource(ctx, src); err != nil {
			return fmt.Errorf("delete %s: %w", src, err)
		}
		log.OrDefault(ix.Logger).Info("removed %s: file no longer present", src)
		report.Removed = append(report.Removed, src)
	}
	return nil
}

func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

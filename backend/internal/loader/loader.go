package loader

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"spoke-graph/backend/internal/constants"
	"spoke-graph/backend/internal/graph"
	apperrors "spoke-graph/backend/pkg/errors"
	"spoke-graph/backend/pkg/logger"
)

// NoLimit disables early termination
const NoLimit = -1

const readBufferSize = 1 << 20

// Options controls a single import pass
type Options struct {
	// Limit stops the import once this many nodes+edges were added. NoLimit reads everything.
	Limit int
	// CountLines runs a pre-pass so progress can be reported as a percentage
	CountLines bool
	// ProgressEvery logs progress every N lines; zero disables progress lines
	ProgressEvery int
	Logger        *zap.Logger
}

// DefaultOptions returns an unbounded import with progress every 10000 lines
func DefaultOptions() Options {
	return Options{
		Limit:         NoLimit,
		ProgressEvery: constants.DefaultProgressEvery,
	}
}

// Result is the audit trail of an import pass. Only persisted documents are counted
// in NodesAdded and EdgesAdded.
type Result struct {
	NodesAdded   int  `json:"nodes_added"`
	EdgesAdded   int  `json:"edges_added"`
	Duplicates   int  `json:"duplicates"`
	Failed       int  `json:"failed"`
	Malformed    int  `json:"malformed"`
	Ignored      int  `json:"ignored"`
	LinesRead    int  `json:"lines_read"`
	LimitReached bool `json:"limit_reached"`
}

// Total returns nodes plus edges added
func (r Result) Total() int {
	return r.NodesAdded + r.EdgesAdded
}

// insertOutcome classifies a single persistence attempt
type insertOutcome int

const (
	outcomeInserted insertOutcome = iota
	outcomeDuplicate
	outcomeFailed
)

func classify(err error) insertOutcome {
	switch {
	case err == nil:
		return outcomeInserted
	case apperrors.IsDuplicateKey(err):
		return outcomeDuplicate
	default:
		return outcomeFailed
	}
}

// EnsureSchema creates the Nodes document collection and the Edges edge collection
// when they are missing. Safe to call on every run.
func EnsureSchema(ctx context.Context, store graph.Store) error {
	collections := []struct {
		name string
		kind graph.CollectionType
	}{
		{graph.NodeCollection, graph.CollectionTypeDocument},
		{graph.EdgeCollection, graph.CollectionTypeEdge},
	}

	for _, c := range collections {
		exists, err := store.HasCollection(ctx, c.name)
		if err != nil {
			return apperrors.NewProvisionFailed("collection "+c.name, err)
		}
		if exists {
			continue
		}
		if err := store.CreateCollection(ctx, c.name, c.kind); err != nil {
			var provErr *apperrors.ErrProvisionFailed
			if errors.As(err, &provErr) {
				return err
			}
			return apperrors.NewProvisionFailed("collection "+c.name, err)
		}
	}
	return nil
}

// LoadFromSource streams the newline-delimited JSON file at path into store.
// Bad lines and rejected documents are logged and skipped; only an unreadable
// source or a cancelled context stops the pass early with an error.
func LoadFromSource(ctx context.Context, path string, store graph.Store, opts Options) (Result, error) {
	log := opts.Logger
	if log == nil {
		log = logger.Named("loader")
	}

	var res Result

	total := 0
	if opts.CountLines {
		n, err := CountLines(path)
		if err != nil {
			return res, err
		}
		total = n
	}

	file, err := os.Open(path)
	if err != nil {
		return res, apperrors.NewSourceUnreadable(path, err)
	}
	defer file.Close()

	progress := newProgress(log, total, opts.ProgressEvery)
	reader := bufio.NewReaderSize(file, readBufferSize)

	for {
		if opts.Limit >= 0 && res.Total() >= opts.Limit {
			res.LimitReached = true
			break
		}
		if err := ctx.Err(); err != nil {
			return res, apperrors.NewContextCancelled("load "+path, err)
		}

		line, readErr := reader.ReadBytes('\n')
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return res, apperrors.NewSourceUnreadable(path, readErr)
		}
		if len(line) > 0 {
			res.LinesRead++
			loadLine(ctx, store, log, bytes.TrimSpace(line), res.LinesRead, &res)
			progress.tick(res)
		}
		if readErr != nil {
			break
		}
	}

	log.Info("Load complete",
		zap.String("file", path),
		zap.Int("lines", res.LinesRead),
		zap.Int("nodes_added", res.NodesAdded),
		zap.Int("edges_added", res.EdgesAdded),
		zap.Int("duplicates", res.Duplicates),
		zap.Int("failed", res.Failed),
		zap.Int("malformed", res.Malformed),
		zap.Bool("limit_reached", res.LimitReached),
	)
	return res, nil
}

func loadLine(ctx context.Context, store graph.Store, log *zap.Logger, line []byte, lineNo int, res *Result) {
	if len(line) == 0 {
		return
	}

	rec, err := parseLine(line)
	if err != nil {
		res.Malformed++
		log.Debug("Skipping malformed line", zap.Int("line", lineNo), zap.Error(err))
		return
	}

	switch rec.kind {
	case kindNode:
		err = store.InsertNode(ctx, rec.node)
		switch classify(err) {
		case outcomeInserted:
			res.NodesAdded++
		case outcomeDuplicate:
			res.Duplicates++
			log.Warn(fmt.Sprintf("A document with _key %s already exists. Skipping...", rec.node.Key),
				zap.String("collection", graph.NodeCollection),
				zap.String("key", rec.node.Key),
				zap.Int("line", lineNo),
			)
		default:
			res.Failed++
			log.Error("Failed to create document",
				zap.String("collection", graph.NodeCollection),
				zap.String("key", rec.node.Key),
				zap.Int("line", lineNo),
				zap.Error(err),
			)
		}

	case kindEdge:
		err = store.InsertEdge(ctx, rec.edge)
		switch classify(err) {
		case outcomeInserted:
			res.EdgesAdded++
		case outcomeDuplicate:
			res.Duplicates++
			log.Warn("Edge already exists. Skipping...",
				zap.String("from", rec.edge.From),
				zap.String("to", rec.edge.To),
				zap.Int("line", lineNo),
			)
		default:
			res.Failed++
			log.Error("Failed to create document",
				zap.String("collection", graph.EdgeCollection),
				zap.String("from", rec.edge.From),
				zap.String("to", rec.edge.To),
				zap.Int("line", lineNo),
				zap.Error(err),
			)
		}

	default:
		res.Ignored++
	}
}

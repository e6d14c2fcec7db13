package loader

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	apperrors "spoke-graph/backend/pkg/errors"
)

// CountLines counts newline-terminated lines plus a trailing unterminated one
func CountLines(path string) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, apperrors.NewSourceUnreadable(path, err)
	}
	defer file.Close()

	reader := bufio.NewReaderSize(file, readBufferSize)
	buf := make([]byte, 64*1024)
	count := 0
	last := byte('\n')
	for {
		n, err := reader.Read(buf)
		if n > 0 {
			count += bytes.Count(buf[:n], []byte{'\n'})
			last = buf[n-1]
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, apperrors.NewSourceUnreadable(path, err)
		}
	}
	if last != '\n' {
		count++
	}
	return count, nil
}

// progress logs periodic import status; it never influences iteration
type progress struct {
	log     *zap.Logger
	total   int
	every   int
	started time.Time
}

func newProgress(log *zap.Logger, total, every int) *progress {
	return &progress{log: log, total: total, every: every, started: time.Now()}
}

func (p *progress) tick(res Result) {
	if p.every <= 0 || res.LinesRead%p.every != 0 {
		return
	}

	fields := []zap.Field{
		zap.Int("lines", res.LinesRead),
		zap.Int("nodes_added", res.NodesAdded),
		zap.Int("edges_added", res.EdgesAdded),
		zap.Duration("elapsed", time.Since(p.started).Round(time.Millisecond)),
	}
	if p.total > 0 {
		fields = append(fields,
			zap.Int("total_lines", p.total),
			zap.Float64("percent", float64(res.LinesRead)*100/float64(p.total)),
		)
	}
	p.log.Info("Loading data", fields...)
}

package feed

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	apperrors "github.com/kbukum/tsengine/errors"
)

type csvConfig struct {
	header bool
	comma  rune
	closer io.Closer
}

// CSVOption configures CSV.
type CSVOption func(*csvConfig)

// WithHeader skips the first record.
func WithHeader() CSVOption {
	return func(c *csvConfig) { c.header = true }
}

// WithComma sets the field delimiter. Defaults to ','.
func WithComma(r rune) CSVOption {
	return func(c *csvConfig) { c.comma = r }
}

// WithCloser closes rc when the iterator is closed, typically the file the
// records are read from.
func WithCloser(rc io.Closer) CSVOption {
	return func(c *csvConfig) { c.closer = rc }
}

// CSV returns an iterator that decodes one value per CSV record with parse.
// Records are read lazily. A malformed record, or a record parse rejects,
// ends the iteration with an INVALID_INPUT error naming the line.
//
// The record slice handed to parse is reused for the next read; parse must
// copy it if it keeps any part of it beyond the call.
func CSV[T any](r io.Reader, parse func(record []string) (T, error), opts ...CSVOption) Iterator[T] {
	cfg := csvConfig{comma: ','}
	for _, opt := range opts {
		opt(&cfg)
	}
	reader := csv.NewReader(r)
	reader.Comma = cfg.comma
	reader.ReuseRecord = true
	reader.TrimLeadingSpace = true
	return &recordIter[T]{reader: reader, parse: parse, skip: cfg.header, closer: cfg.closer}
}

type recordIter[T any] struct {
	reader *csv.Reader
	parse  func([]string) (T, error)
	skip   bool
	closer io.Closer
	done   bool
}

func (it *recordIter[T]) Next(ctx context.Context) (result T, ok bool, err error) {
	for !it.done {
		if err := ctx.Err(); err != nil {
			return result, false, err
		}
		record, err := it.reader.Read()
		if errors.Is(err, io.EOF) {
			it.done = true
			break
		}
		if err != nil {
			it.done = true
			return result, false, apperrors.InvalidInput("csv", err.Error()).WithCause(err)
		}
		line, _ := it.reader.FieldPos(0)
		if it.skip {
			it.skip = false
			continue
		}
		v, err := it.parse(record)
		if err != nil {
			it.done = true
			return result, false, apperrors.InvalidInput("csv", fmt.Sprintf("line %d: %v", line, err)).
				WithCause(err).WithDetail("line", line)
		}
		return v, true, nil
	}
	return result, false, nil
}

func (it *recordIter[T]) Close() error {
	it.done = true
	if it.closer != nil {
		return it.closer.Close()
	}
	return nil
}

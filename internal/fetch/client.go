// Package fetch defines the external reporting-call collaborator: the
// interface the executor fetches raw records through, the transient-failure
// taxonomy, and the retry boundary the outer orchestration layer applies.
package fetch

import (
	"context"
	"io"

	"reportql/internal/domain"
)

// RecordStream is a finite lazy sequence of raw records. It is not
// restartable: once Next returns io.EOF or an error the stream is done.
type RecordStream interface {
	// Next returns the next record, or io.EOF when the stream ends.
	Next() (domain.Record, error)
	Close() error
}

// Client performs the remote reporting call for one account.
type Client interface {
	// Query streams the records for resolved query text against one account.
	Query(ctx context.Context, queryText, accountID string) (RecordStream, error)
	// QueryOnce materializes the full result.
	QueryOnce(ctx context.Context, queryText, accountID string) ([]domain.Record, error)
}

// Drain materializes a stream, closing it on every path.
func Drain(stream RecordStream) ([]domain.Record, error) {
	defer stream.Close() //nolint:errcheck

	var records []domain.Record
	for {
		rec, err := stream.Next()
		if err == io.EOF {
			return records, nil
		}
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
}

// sliceStream adapts a materialized slice to RecordStream.
type sliceStream struct {
	records []domain.Record
	pos     int
}

// NewSliceStream wraps already-materialized records in a RecordStream.
func NewSliceStream(records []domain.Record) RecordStream {
	return &sliceStream{records: records}
}

func (s *sliceStream) Next() (domain.Record, error) {
	if s.pos >= len(s.records) {
		return nil, io.EOF
	}
	rec := s.records[s.pos]
	s.pos++
	return rec, nil
}

func (s *sliceStream) Close() error { return nil }

package fetch

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"reportql/internal/domain"
)

// ReplayClient serves records from newline-delimited JSON files on disk,
// one file per account (<accountID>.jsonl under Dir). It stands in for the
// remote reporting service in local runs and tests; query text is accepted
// and ignored.
type ReplayClient struct {
	Dir string
}

// NewReplayClient builds a ReplayClient over a directory of jsonl files.
func NewReplayClient(dir string) *ReplayClient {
	return &ReplayClient{Dir: dir}
}

// Query reads the account's file and streams its records.
func (c *ReplayClient) Query(ctx context.Context, queryText, accountID string) (RecordStream, error) {
	records, err := c.QueryOnce(ctx, queryText, accountID)
	if err != nil {
		return nil, err
	}
	return NewSliceStream(records), nil
}

// QueryOnce materializes the account's records.
func (c *ReplayClient) QueryOnce(_ context.Context, _ string, accountID string) ([]domain.Record, error) {
	path := filepath.Join(c.Dir, accountID+".jsonl")
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &domain.TransientError{Code: 404,
				Err: fmt.Errorf("no replay data for account %s", accountID)}
		}
		return nil, err
	}
	defer f.Close() //nolint:errcheck

	var records []domain.Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var rec domain.Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return records, nil
}

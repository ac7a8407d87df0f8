// Package extractor holds the generic record sources.
package extractor

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/DjordjeVuckovic/etl-runner/internal/etl"
	"github.com/DjordjeVuckovic/etl-runner/internal/queue"
)

const DefaultChunkSize = 500

// CSVExtractor reads a CSV file with a header row. Each record is a
// map[string]string keyed by header.
//
// Options: path (required), delimiter (single character, default ","),
// chunk_size (rows per chunk in batch mode, default 500).
type CSVExtractor struct {
	open func(path string) (io.ReadCloser, error)
}

func NewCSVExtractor() *CSVExtractor {
	return &CSVExtractor{open: func(path string) (io.ReadCloser, error) { return os.Open(path) }}
}

func (e *CSVExtractor) Extract(ctx context.Context, sc etl.StageContext, chunk etl.ChunkFunc) (*queue.Queue[etl.Record], error) {
	path, err := sc.Options.RequiredString("path")
	if err != nil {
		return nil, err
	}
	size, err := chunkSize(sc.Options)
	if err != nil {
		return nil, err
	}

	f, err := e.open(path)
	if err != nil {
		return nil, etl.ExtractorError("extract", err, "failed to open %s", path)
	}
	defer f.Close()

	r, err := NewCSVReader(f, sc.Options.String("delimiter", ","))
	if err != nil {
		return nil, err
	}

	if chunk == nil {
		records := queue.New[etl.Record]()
		for {
			rec, err := r.Next()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return nil, etl.ExtractorError("extract", err, "failed to read %s", path)
			}
			records.Push(rec)
		}
		slog.Debug("CSV extracted", "path", path, "records", records.Len())
		return records, nil
	}

	batch := queue.New[etl.Record]()
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, etl.ExtractorError("extract", err, "failed to read %s", path)
		}
		batch.Push(rec)
		if batch.Len() == size {
			if err := chunk(ctx, batch); err != nil {
				return nil, err
			}
			batch = queue.New[etl.Record]()
		}
	}
	if !batch.IsEmpty() {
		if err := chunk(ctx, batch); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

// CSVReader yields header-keyed rows one at a time.
type CSVReader struct {
	reader  *csv.Reader
	headers []string
}

func NewCSVReader(reader io.Reader, delimiter string) (*CSVReader, error) {
	csvReader := csv.NewReader(reader)
	if delimiter != "" && delimiter != "," {
		r, n := utf8.DecodeRuneInString(delimiter)
		if n != len(delimiter) {
			return nil, etl.ConfigurationError("extract", "delimiter must be a single character, got %q", delimiter)
		}
		csvReader.Comma = r
	}

	headers, err := csvReader.Read()
	if errors.Is(err, io.EOF) {
		// Empty input has no rows either.
		return &CSVReader{reader: csvReader}, nil
	}
	if err != nil {
		return nil, etl.ExtractorError("extract", err, "failed to read header row")
	}
	// Spreadsheet exports often start with a byte order mark.
	headers[0] = strings.TrimPrefix(headers[0], "\ufeff")
	return &CSVReader{reader: csvReader, headers: headers}, nil
}

// Next returns io.EOF after the last row.
func (cr *CSVReader) Next() (map[string]string, error) {
	row, err := cr.reader.Read()
	if err != nil {
		return nil, err
	}
	record := make(map[string]string, len(cr.headers))
	for i, h := range cr.headers {
		record[h] = row[i]
	}
	return record, nil
}

func chunkSize(opts etl.Options) (int, error) {
	size, err := opts.Int("chunk_size", DefaultChunkSize)
	if err != nil {
		return 0, err
	}
	if size <= 0 {
		return 0, etl.ConfigurationError("extract", "chunk_size must be positive, got %d", size)
	}
	return size, nil
}

package audit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/parquet-go/parquet-go"
)

type EncodeResult struct {
	Data        []byte
	RecordCount int64
	FirstID     int64
	LastID      int64
	Oldest      time.Time
}

type parquetRecord struct {
	ID              int64  `parquet:"id"`
	RequestID       string `parquet:"request_id"`
	TraceID         string `parquet:"trace_id"`
	Command         string `parquet:"command"`
	SQL             string `parquet:"sql"`
	Safe            bool   `parquet:"safe"`
	ViolationsJSON  string `parquet:"violations_json"`
	Stage           string `parquet:"stage"`
	Outcome         string `parquet:"outcome"`
	RowCount        int64  `parquet:"row_count"`
	DurationMS      int64  `parquet:"duration_ms"`
	CreatedAtUnixMs int64  `parquet:"created_at_unix_ms"`
}

// EncodeParquet writes records, which must be sorted by id, to one parquet file.
func EncodeParquet(records []Record) (EncodeResult, error) {
	if len(records) == 0 {
		return EncodeResult{}, fmt.Errorf("records are required")
	}

	rows := make([]parquetRecord, 0, len(records))
	result := EncodeResult{FirstID: records[0].ID, LastID: records[len(records)-1].ID}
	for i, record := range records {
		if i > 0 && record.ID <= records[i-1].ID {
			return EncodeResult{}, fmt.Errorf("records are not sorted by id at %d", record.ID)
		}
		violations := record.Violations
		if violations == nil {
			violations = []string{}
		}
		violationsJSON, err := json.Marshal(violations)
		if err != nil {
			return EncodeResult{}, fmt.Errorf("marshal violations for record %d: %w", record.ID, err)
		}
		rows = append(rows, parquetRecord{
			ID:              record.ID,
			RequestID:       record.RequestID,
			TraceID:         record.TraceID,
			Command:         record.Command,
			SQL:             record.SQL,
			Safe:            record.Safe,
			ViolationsJSON:  string(violationsJSON),
			Stage:           record.Stage,
			Outcome:         record.Outcome,
			RowCount:        int64(record.RowCount),
			DurationMS:      record.DurationMS,
			CreatedAtUnixMs: record.CreatedAt.UnixMilli(),
		})
		if result.Oldest.IsZero() || record.CreatedAt.Before(result.Oldest) {
			result.Oldest = record.CreatedAt.UTC()
		}
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[parquetRecord](buf)
	if _, err := writer.Write(rows); err != nil {
		return EncodeResult{}, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return EncodeResult{}, fmt.Errorf("close parquet writer: %w", err)
	}

	result.Data = buf.Bytes()
	result.RecordCount = int64(len(rows))
	return result, nil
}

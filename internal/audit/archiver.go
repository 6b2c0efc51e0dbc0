package audit

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopdesk/shopdesk/internal/storage"
)

// Store is the audit table as seen by the archiver.
type Store interface {
	ListArchivable(ctx context.Context, before time.Time, limit int) ([]Record, error)
	DeleteArchived(ctx context.Context, firstID, lastID int64, before time.Time) (int64, error)
}

type ArchiverConfig struct {
	Interval      time.Duration
	RetentionAge  time.Duration
	BatchSize     int
	MaxBatchesRun int
}

type Archiver struct {
	Store       Store
	ObjectStore storage.Writer
	Config      ArchiverConfig
	Logger      *slog.Logger
	Clock       func() time.Time
}

type ArchiveSummary struct {
	Batches         int      `json:"batches"`
	RecordsArchived int64    `json:"records_archived"`
	RowsDeleted     int64    `json:"rows_deleted"`
	BytesWritten    int64    `json:"bytes_written"`
	Objects         []string `json:"objects"`
}

func (a *Archiver) Run(ctx context.Context) error {
	a.ensureDefaults()

	ticker := time.NewTicker(a.Config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			summary, err := a.RunOnce(ctx)
			if err != nil {
				if a.Logger != nil {
					a.Logger.ErrorContext(ctx, "audit archive cycle failed", slog.Any("error", err), slog.Any("summary", summary))
				}
				continue
			}
			if a.Logger != nil && summary.Batches > 0 {
				a.Logger.InfoContext(ctx, "audit archive cycle completed", slog.Any("summary", summary))
			}
		}
	}
}

// RunOnce archives records older than the retention age, one parquet object
// per batch, until a short batch is seen. Rows are deleted only after their
// object has been written and verified.
func (a *Archiver) RunOnce(ctx context.Context) (ArchiveSummary, error) {
	a.ensureDefaults()
	if a.Store == nil {
		return ArchiveSummary{}, fmt.Errorf("audit store is required")
	}
	if a.ObjectStore == nil {
		return ArchiveSummary{}, fmt.Errorf("object store is required")
	}

	cutoff := a.Clock().UTC().Add(-a.Config.RetentionAge)
	summary := ArchiveSummary{Objects: make([]string, 0)}
	for summary.Batches < a.Config.MaxBatchesRun {
		records, err := a.Store.ListArchivable(ctx, cutoff, a.Config.BatchSize)
		if err != nil {
			archiveRunsTotal.WithLabelValues("error").Inc()
			return summary, fmt.Errorf("list archivable audit records: %w", err)
		}
		if len(records) == 0 {
			break
		}

		key, written, err := a.archiveBatch(ctx, records)
		if err != nil {
			archiveRunsTotal.WithLabelValues("error").Inc()
			return summary, err
		}
		summary.Batches++
		summary.RecordsArchived += int64(len(records))
		summary.BytesWritten += written
		summary.Objects = append(summary.Objects, key)

		deleted, err := a.Store.DeleteArchived(ctx, records[0].ID, records[len(records)-1].ID, cutoff)
		if err != nil {
			archiveRunsTotal.WithLabelValues("error").Inc()
			return summary, fmt.Errorf("delete archived audit records %d-%d: %w", records[0].ID, records[len(records)-1].ID, err)
		}
		summary.RowsDeleted += deleted
		archivedRecordsTotal.Add(float64(len(records)))
		archiveBytesWritten.Add(float64(written))

		if len(records) < a.Config.BatchSize {
			break
		}
	}

	archiveRunsTotal.WithLabelValues("ok").Inc()
	return summary, nil
}

func (a *Archiver) archiveBatch(ctx context.Context, records []Record) (string, int64, error) {
	encoded, err := EncodeParquet(records)
	if err != nil {
		return "", 0, fmt.Errorf("encode audit batch: %w", err)
	}
	key, err := storage.BuildAuditArchivePath(encoded.Oldest, encoded.FirstID, encoded.LastID)
	if err != nil {
		return "", 0, err
	}
	size := int64(len(encoded.Data))
	if _, err := a.ObjectStore.Put(ctx, key, bytes.NewReader(encoded.Data), size, storage.PutOptions{ContentType: storage.ContentTypeParquet}); err != nil {
		return "", 0, fmt.Errorf("put audit archive %q: %w", key, err)
	}
	info, err := a.ObjectStore.Stat(ctx, key)
	if err != nil {
		return "", 0, fmt.Errorf("stat audit archive %q: %w", key, err)
	}
	if info.Size != size {
		if err := a.ObjectStore.Delete(ctx, key); err != nil && a.Logger != nil {
			a.Logger.WarnContext(ctx, "remove short audit archive failed", slog.String("key", key), slog.Any("error", err))
		}
		return "", 0, fmt.Errorf("audit archive %q size mismatch: wrote %d, stored %d", key, size, info.Size)
	}
	return key, size, nil
}

func (a *Archiver) ensureDefaults() {
	if a.Config.Interval <= 0 {
		a.Config.Interval = time.Hour
	}
	if a.Config.RetentionAge <= 0 {
		a.Config.RetentionAge = 30 * 24 * time.Hour
	}
	if a.Config.BatchSize <= 0 {
		a.Config.BatchSize = 5000
	}
	if a.Config.MaxBatchesRun <= 0 {
		a.Config.MaxBatchesRun = 20
	}
	if a.Clock == nil {
		a.Clock = time.Now
	}
}

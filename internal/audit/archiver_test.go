package audit

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/parquet-go/parquet-go"

	"github.com/shopdesk/shopdesk/internal/storage"
)

func TestEncodeParquet(t *testing.T) {
	created := time.Date(2026, time.September, 1, 12, 0, 0, 0, time.UTC)
	records := []Record{
		{ID: 7, RequestID: "req-1", Command: "find customer Bob", SQL: "SELECT id FROM customers LIMIT 5", Safe: true, Outcome: OutcomeOK, RowCount: 1, CreatedAt: created.Add(time.Minute)},
		{ID: 9, RequestID: "req-2", Command: "find everything", SQL: "DELETE FROM customers", Violations: []string{"forbidden_keyword: DELETE"}, Stage: "safety", Outcome: OutcomeRejected, CreatedAt: created},
	}

	result, err := EncodeParquet(records)
	if err != nil {
		t.Fatalf("EncodeParquet() error = %v", err)
	}
	if result.RecordCount != 2 || result.FirstID != 7 || result.LastID != 9 {
		t.Fatalf("unexpected result %+v", result)
	}
	if !result.Oldest.Equal(created) {
		t.Fatalf("Oldest = %v, want %v", result.Oldest, created)
	}

	reader := parquet.NewGenericReader[parquetRecord](bytes.NewReader(result.Data))
	defer func() { _ = reader.Close() }()
	rows := make([]parquetRecord, 2)
	count, err := reader.Read(rows)
	if err != nil && !errors.Is(err, io.EOF) {
		t.Fatalf("reader.Read() error = %v", err)
	}
	if count != 2 {
		t.Fatalf("read rows = %d", count)
	}
	if rows[0].ViolationsJSON != "[]" || rows[1].ViolationsJSON != `["forbidden_keyword: DELETE"]` {
		t.Fatalf("unexpected violations: %q %q", rows[0].ViolationsJSON, rows[1].ViolationsJSON)
	}
}

func TestEncodeParquetRejectsInvalidInput(t *testing.T) {
	if _, err := EncodeParquet(nil); err == nil {
		t.Fatal("expected error for empty batch")
	}
	if _, err := EncodeParquet([]Record{{ID: 2}, {ID: 1}}); err == nil {
		t.Fatal("expected error for unsorted batch")
	}
}

func TestArchiverRunOnceArchivesInBatches(t *testing.T) {
	now := time.Date(2026, time.October, 19, 8, 0, 0, 0, time.UTC)
	old := now.Add(-40 * 24 * time.Hour)
	store := &fakeStore{records: []Record{
		{ID: 1, CreatedAt: old},
		{ID: 2, CreatedAt: old},
		{ID: 3, CreatedAt: old.Add(time.Hour)},
		{ID: 4, CreatedAt: now},
	}}
	objects := newMemoryObjectStore()
	archiver := &Archiver{
		Store:       store,
		ObjectStore: objects,
		Config:      ArchiverConfig{RetentionAge: 30 * 24 * time.Hour, BatchSize: 2},
		Clock:       func() time.Time { return now },
	}

	summary, err := archiver.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	wantObjects := []string{
		"audit/date=2026-09-09/audit-1-2.parquet",
		"audit/date=2026-09-09/audit-3-3.parquet",
	}
	if diff := cmp.Diff(wantObjects, summary.Objects); diff != "" {
		t.Fatalf("Objects mismatch (-want +got):\n%s", diff)
	}
	if summary.Batches != 2 || summary.RecordsArchived != 3 || summary.RowsDeleted != 3 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if len(store.records) != 1 || store.records[0].ID != 4 {
		t.Fatalf("remaining records = %+v", store.records)
	}
	for _, key := range wantObjects {
		if _, ok := objects.objects[key]; !ok {
			t.Fatalf("object %q was not written", key)
		}
	}
}

func TestArchiverKeepsRowsWhenUploadFails(t *testing.T) {
	now := time.Date(2026, time.October, 19, 8, 0, 0, 0, time.UTC)
	store := &fakeStore{records: []Record{{ID: 1, CreatedAt: now.Add(-60 * 24 * time.Hour)}}}
	objects := newMemoryObjectStore()
	objects.putErr = errors.New("bucket unavailable")
	archiver := &Archiver{Store: store, ObjectStore: objects, Clock: func() time.Time { return now }}

	if _, err := archiver.RunOnce(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if len(store.records) != 1 || store.deleteCalls != 0 {
		t.Fatalf("records = %d, deleteCalls = %d", len(store.records), store.deleteCalls)
	}
}

func TestArchiverRemovesShortObjectAndKeepsRows(t *testing.T) {
	now := time.Date(2026, time.October, 19, 8, 0, 0, 0, time.UTC)
	store := &fakeStore{records: []Record{{ID: 5, CreatedAt: now.Add(-45 * 24 * time.Hour)}}}
	objects := newMemoryObjectStore()
	objects.truncate = true
	archiver := &Archiver{Store: store, ObjectStore: objects, Clock: func() time.Time { return now }}

	if _, err := archiver.RunOnce(context.Background()); err == nil {
		t.Fatal("expected size mismatch error")
	}
	if len(objects.objects) != 0 {
		t.Fatalf("short object was left behind: %v", objects.objects)
	}
	if len(store.records) != 1 || store.deleteCalls != 0 {
		t.Fatalf("records = %d, deleteCalls = %d", len(store.records), store.deleteCalls)
	}
}

func TestArchiverRequiresDependencies(t *testing.T) {
	if _, err := (&Archiver{ObjectStore: newMemoryObjectStore()}).RunOnce(context.Background()); err == nil {
		t.Fatal("expected error for missing store")
	}
	if _, err := (&Archiver{Store: &fakeStore{}}).RunOnce(context.Background()); err == nil {
		t.Fatal("expected error for missing object store")
	}
}

type fakeStore struct {
	records     []Record
	deleteCalls int
}

func (f *fakeStore) ListArchivable(_ context.Context, before time.Time, limit int) ([]Record, error) {
	out := make([]Record, 0, limit)
	for _, record := range f.records {
		if record.CreatedAt.Before(before) && len(out) < limit {
			out = append(out, record)
		}
	}
	return out, nil
}

func (f *fakeStore) DeleteArchived(_ context.Context, firstID, lastID int64, before time.Time) (int64, error) {
	f.deleteCalls++
	kept := f.records[:0]
	var deleted int64
	for _, record := range f.records {
		if record.ID >= firstID && record.ID <= lastID && record.CreatedAt.Before(before) {
			deleted++
			continue
		}
		kept = append(kept, record)
	}
	f.records = kept
	return deleted, nil
}

type memoryObjectStore struct {
	objects  map[string][]byte
	putErr   error
	truncate bool
}

func newMemoryObjectStore() *memoryObjectStore {
	return &memoryObjectStore{objects: map[string][]byte{}}
}

func (m *memoryObjectStore) Put(_ context.Context, key string, body io.Reader, _ int64, _ storage.PutOptions) (storage.ObjectInfo, error) {
	if m.putErr != nil {
		return storage.ObjectInfo{}, m.putErr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	if m.truncate {
		data = data[:len(data)/2]
	}
	m.objects[key] = data
	return storage.ObjectInfo{Key: key, Size: int64(len(data))}, nil
}

func (m *memoryObjectStore) Stat(_ context.Context, key string) (storage.ObjectInfo, error) {
	data, ok := m.objects[key]
	if !ok {
		return storage.ObjectInfo{}, storage.ErrObjectNotFound
	}
	return storage.ObjectInfo{Key: key, Size: int64(len(data))}, nil
}

func (m *memoryObjectStore) Delete(_ context.Context, key string) error {
	delete(m.objects, key)
	return nil
}

package query

import (
	"errors"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/shopdesk/shopdesk/internal/safety"
)

func TestApprove(t *testing.T) {
	validator := safety.NewValidator(safety.DefaultPolicy())
	if err := Approve(validator.Validate("SELECT id FROM customers LIMIT 1", nil)); err != nil {
		t.Fatalf("Approve(safe) error = %v", err)
	}
	if err := Approve(validator.Validate("DROP TABLE customers", nil)); !errors.Is(err, ErrNotApproved) {
		t.Fatalf("Approve(unsafe) error = %v", err)
	}
	if err := Approve(safety.Verdict{}); !errors.Is(err, ErrNotApproved) {
		t.Fatalf("Approve(zero) error = %v", err)
	}
}

func TestCollectNormalizesAndCaps(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"vin", "year"}).
		AddRow([]byte("1HGBH41JXMN109186"), int64(2021)).
		AddRow("2T1BURHE0JC012345", int64(2018)).
		AddRow("3VWFE21C04M000001", int64(2004)))

	rows, err := db.Query("SELECT vin, year FROM vehicles LIMIT 3")
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	defer func() { _ = rows.Close() }()

	result, err := Collect(rows, 2)
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if result.RowCount != 2 || !result.Truncated {
		t.Fatalf("RowCount = %d, Truncated = %v", result.RowCount, result.Truncated)
	}
	if result.Rows[0]["vin"] != "1HGBH41JXMN109186" {
		t.Fatalf("vin = %#v", result.Rows[0]["vin"])
	}
}

func TestExecutionErrorUnwraps(t *testing.T) {
	cause := errors.New("connection reset by peer")
	err := error(&ExecutionError{Op: "execute", Err: cause})
	if !errors.Is(err, cause) {
		t.Fatal("expected ExecutionError to unwrap to its cause")
	}
}

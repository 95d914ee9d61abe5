package worker

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestMaintenanceRun(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()
	m := NewMaintenanceWorker(db)

	mock.ExpectExec("UPDATE outreach_contacts").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("UPDATE outreach_workers").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM outreach_outcomes").
		WillReturnResult(sqlmock.NewResult(0, 120))

	m.run(context.Background())

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestMaintenancePurgeBatches(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()
	m := NewMaintenanceWorker(db)

	// A full batch triggers another pass; a short batch ends the loop.
	mock.ExpectExec("DELETE FROM outreach_outcomes").
		WillReturnResult(sqlmock.NewResult(0, maintenanceBatchSize))
	mock.ExpectExec("DELETE FROM outreach_outcomes").
		WillReturnResult(sqlmock.NewResult(0, 42))

	m.purgeOldOutcomes(context.Background())

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

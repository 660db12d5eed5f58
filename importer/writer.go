package importer

import (
	"context"
	"slices"

	"bitbucket.org/mmdatafocus/csvfilereader/models"
	"github.com/sirupsen/logrus"
)

type OrganizationStore interface {
	UpsertOrganizations(ctx context.Context, batch []models.Organization) error
}

type EmployeeStore interface {
	OrgLookup
	StaleEmployeeStore
	UpsertEmployees(ctx context.Context, batch []models.Employee) error
}

// organizationWriter upserts organization batches. The final batch of a run
// that saw at least one row carries the sentinel so employee references can
// always be pointed at it.
type organizationWriter struct {
	store OrganizationStore
	log   *logrus.Entry
}

func (w organizationWriter) Write(ctx context.Context, batch Batch[models.Organization]) (int, error) {
	rows := batch.Rows
	if batch.Final && len(rows) > 0 {
		rows = append(slices.Clip(rows), models.SentinelOrganization())
		w.log.Infof("%s creating organization for %s", DatasetOrganization.Tag(), models.SentinelOrgId)
	}
	if err := w.store.UpsertOrganizations(ctx, rows); err != nil {
		return 0, &StoreWriteError{Dataset: DatasetOrganization, Op: "upsert", Rows: len(rows), Err: err}
	}
	return len(rows), nil
}

// employeeWriter upserts employee batches as active; the store stamps updated_at.
type employeeWriter struct {
	store EmployeeStore
}

func (w employeeWriter) Write(ctx context.Context, batch Batch[models.Employee]) (int, error) {
	rows := make([]models.Employee, len(batch.Rows))
	for i, e := range batch.Rows {
		e.Active = true
		rows[i] = e
	}
	if err := w.store.UpsertEmployees(ctx, rows); err != nil {
		return 0, &StoreWriteError{Dataset: DatasetEmployee, Op: "upsert", Rows: len(rows), Err: err}
	}
	return len(rows), nil
}

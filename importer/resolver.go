package importer

import (
	"context"

	"bitbucket.org/mmdatafocus/csvfilereader/models"
	"github.com/sirupsen/logrus"
)

// OrgLookup answers which organization ids exist in the store.
type OrgLookup interface {
	ExistingOrgIds(ctx context.Context, orgIds []string) ([]string, error)
}

// OrgReferenceResolver rewrites employee org references that point at
// organizations missing from the store to the "UNKNOWN" sentinel.
type OrgReferenceResolver struct {
	Lookup OrgLookup
	Log    *logrus.Entry
}

// Resolve checks a batch right before it is written, so org ids flushed earlier
// in the same run are visible. It returns the batch to write and the number of
// corrected rows; the input batch is left untouched.
func (r *OrgReferenceResolver) Resolve(ctx context.Context, batch Batch[models.Employee]) (Batch[models.Employee], int, error) {
	seen := make(map[string]struct{})
	var orgIds []string
	for _, e := range batch.Rows {
		if e.OrgId == nil {
			continue
		}
		if _, ok := seen[*e.OrgId]; ok {
			continue
		}
		seen[*e.OrgId] = struct{}{}
		orgIds = append(orgIds, *e.OrgId)
	}
	if len(orgIds) == 0 {
		return batch, 0, nil
	}

	found, err := r.Lookup.ExistingOrgIds(ctx, orgIds)
	if err != nil {
		return batch, 0, &StoreWriteError{Dataset: DatasetEmployee, Op: "org existence check", Rows: batch.Len(), Err: err}
	}
	existing := make(map[string]struct{}, len(found))
	for _, id := range found {
		existing[id] = struct{}{}
	}

	out := Batch[models.Employee]{Seq: batch.Seq, Final: batch.Final, Rows: make([]models.Employee, len(batch.Rows))}
	corrected := 0
	for i, e := range batch.Rows {
		if e.OrgId != nil {
			if _, ok := existing[*e.OrgId]; !ok {
				r.logger().WithFields(logrus.Fields{
					"org_id": *e.OrgId,
					"email":  deref(e.Email),
				}).Warnf("%s org_id '%s' not found, setting to %s", DatasetEmployee.Tag(), *e.OrgId, models.SentinelOrgId)
				sentinel := models.SentinelOrgId
				e.OrgId = &sentinel
				corrected++
			}
		}
		out.Rows[i] = e
	}
	return out, corrected, nil
}

func (r *OrgReferenceResolver) logger() *logrus.Entry {
	if r.Log != nil {
		return r.Log
	}
	return logrus.NewEntry(logrus.StandardLogger())
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

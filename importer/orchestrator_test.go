package importer

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/csvfilereader/models"
	"github.com/sirupsen/logrus"
)

const orgHeader = "CompanyId,OrgId,OrgName,ParentId,TreeLevel\n"
const empHeader = "PersonId;Givenname;Lastname;WorkMobile;WorkPhone;Title;OrgId;PrimaryEMailAddress;ManagerId;ManagerCode\n"

type storedEmployee struct {
	models.Employee
	touched time.Time
}

// memStore is an in-memory Store whose clock advances one second per write.
type memStore struct {
	mu        sync.Mutex
	now       time.Time
	orgs      map[string]models.Organization
	emps      map[string]storedEmployee
	orgWrites [][]models.Organization
	empWrites [][]models.Employee

	clockReads []time.Time

	failOrgUpsert error
	failEmpUpsert error
}

func newMemStore() *memStore {
	return &memStore{
		now:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		orgs: map[string]models.Organization{},
		emps: map[string]storedEmployee{},
	}
}

func (s *memStore) tick() time.Time {
	s.now = s.now.Add(time.Second)
	return s.now
}

func (s *memStore) UpsertOrganizations(ctx context.Context, batch []models.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOrgUpsert != nil {
		return s.failOrgUpsert
	}
	s.orgWrites = append(s.orgWrites, batch)
	for _, o := range batch {
		s.orgs[deref(o.OrgId)] = o
	}
	return nil
}

func (s *memStore) UpsertEmployees(ctx context.Context, batch []models.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failEmpUpsert != nil {
		return s.failEmpUpsert
	}
	s.empWrites = append(s.empWrites, batch)
	at := s.tick()
	for _, e := range batch {
		s.emps[deref(e.PersonId)] = storedEmployee{Employee: e, touched: at}
	}
	return nil
}

func (s *memStore) ExistingOrgIds(ctx context.Context, orgIds []string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, id := range orgIds {
		if _, ok := s.orgs[id]; ok {
			out = append(out, id)
		}
	}
	return out, nil
}

func (s *memStore) CurrentTime(ctx context.Context) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.tick()
	s.clockReads = append(s.clockReads, now)
	return now, nil
}

func (s *memStore) DeactivateEmployeesNotUpdatedSince(ctx context.Context, t0 time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, e := range s.emps {
		if e.Active && e.touched.Before(t0) {
			e.Active = false
			e.touched = s.now
			s.emps[id] = e
			n++
		}
	}
	return n, nil
}

func (s *memStore) seedEmployee(personId, orgId string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emps[personId] = storedEmployee{
		Employee: models.Employee{PersonId: strPtr(personId), OrgId: strPtr(orgId), Active: true},
		touched:  s.tick(),
	}
}

type dirFiles struct {
	dir   string
	names map[Dataset]string
}

func (f dirFiles) Fetch(ctx context.Context, ds Dataset) (string, error) {
	path := filepath.Join(f.dir, f.names[ds])
	if _, err := os.Stat(path); err != nil {
		return "", err
	}
	return path, nil
}

type recordingArchiver struct {
	archived []Dataset
}

func (a *recordingArchiver) Archive(ctx context.Context, ds Dataset, path string) error {
	a.archived = append(a.archived, ds)
	return nil
}

type memRecorder struct {
	runs map[string]*models.ImportRun
}

func (r *memRecorder) CreateImportRun(ctx context.Context, run *models.ImportRun) error {
	copied := *run
	r.runs[run.RunId] = &copied
	return nil
}

func (r *memRecorder) FinishImportRun(ctx context.Context, run *models.ImportRun) error {
	copied := *run
	r.runs[run.RunId] = &copied
	return nil
}

type fixture struct {
	store    *memStore
	archiver *recordingArchiver
	recorder *memRecorder
	dir      string
	orch     *Orchestrator
}

func newFixture(t *testing.T, batchSize int) *fixture {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	f := &fixture{
		store:    newMemStore(),
		archiver: &recordingArchiver{},
		recorder: &memRecorder{runs: map[string]*models.ImportRun{}},
		dir:      t.TempDir(),
	}
	f.orch = New(Options{
		Store: f.store,
		Files: dirFiles{dir: f.dir, names: map[Dataset]string{
			DatasetOrganization: "organization.csv",
			DatasetEmployee:     "employee.csv",
		}},
		Archiver:              f.archiver,
		Recorder:              f.recorder,
		OrganizationBatchSize: batchSize,
		EmployeeBatchSize:     batchSize,
		Logger:                logger,
	})
	return f
}

func (f *fixture) write(t *testing.T, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(f.dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestImportOrganizations_AppendsSentinelToFinalBatch(t *testing.T) {
	f := newFixture(t, 500)
	f.write(t, "organization.csv", orgHeader+"1,A1,Sales,,2\n")

	if err := f.orch.ImportOrganizations(context.Background()); err != nil {
		t.Fatalf("ImportOrganizations error: %v", err)
	}
	if len(f.store.orgWrites) != 1 || len(f.store.orgWrites[0]) != 2 {
		t.Fatalf("expected one write of 2 rows, got %v", f.store.orgWrites)
	}
	sentinel, ok := f.store.orgs[models.SentinelOrgId]
	if !ok {
		t.Fatalf("expected sentinel organization to be written")
	}
	if deref(sentinel.OrgName) != "Övriga personer" || deref(sentinel.ParentOrgId) != "13" || deref(sentinel.TreeLevel) != "2" {
		t.Fatalf("unexpected sentinel: %+v", sentinel)
	}
	if f.orch.State() != StateCompleted {
		t.Fatalf("expected Completed, got %s", f.orch.State())
	}
	if len(f.archiver.archived) != 1 || f.archiver.archived[0] != DatasetOrganization {
		t.Fatalf("expected organization file archived, got %v", f.archiver.archived)
	}
}

func TestImportOrganizations_ExactBatchBoundaryHasNoSentinel(t *testing.T) {
	f := newFixture(t, 2)
	f.write(t, "organization.csv", orgHeader+"1,A1,Sales,,2\n1,A2,Support,A1,3\n")

	if err := f.orch.ImportOrganizations(context.Background()); err != nil {
		t.Fatalf("ImportOrganizations error: %v", err)
	}
	if len(f.store.orgWrites) != 1 || len(f.store.orgWrites[0]) != 2 {
		t.Fatalf("expected a single full batch, got %v", f.store.orgWrites)
	}
	if _, ok := f.store.orgs[models.SentinelOrgId]; ok {
		t.Fatalf("sentinel is only appended to a remainder batch")
	}
}

func TestImportOrganizations_RemainderCarriesSentinel(t *testing.T) {
	f := newFixture(t, 2)
	f.write(t, "organization.csv", orgHeader+"1,A1,Sales,,2\n1,A2,Support,A1,3\n1,A3,Ops,A1,3\n")

	if err := f.orch.ImportOrganizations(context.Background()); err != nil {
		t.Fatalf("ImportOrganizations error: %v", err)
	}
	if len(f.store.orgWrites) != 2 {
		t.Fatalf("expected 2 writes, got %d", len(f.store.orgWrites))
	}
	last := f.store.orgWrites[1]
	if len(last) != 2 || deref(last[1].OrgId) != models.SentinelOrgId {
		t.Fatalf("expected remainder plus sentinel, got %v", last)
	}
}

func TestImportOrganizations_HeaderOnlyWritesNothing(t *testing.T) {
	f := newFixture(t, 500)
	f.write(t, "organization.csv", orgHeader)

	if err := f.orch.ImportOrganizations(context.Background()); err != nil {
		t.Fatalf("ImportOrganizations error: %v", err)
	}
	if len(f.store.orgWrites) != 0 {
		t.Fatalf("expected no writes, got %v", f.store.orgWrites)
	}
}

func TestRun_ImportsEmployeesAndResolvesOrgs(t *testing.T) {
	f := newFixture(t, 500)
	f.write(t, "organization.csv", orgHeader+"1,A1,Sales,,2\n")
	f.write(t, "employee.csv", empHeader+
		"P1;Anna;Berg;;;Dev;A1;anna@x.se;;\n"+
		"P2;Bo;Ek;070;NULL;Ops;NoOrg;bo@x.se;P1;M1\n")

	if err := f.orch.Run(context.Background()); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if f.orch.State() != StateCompleted {
		t.Fatalf("expected Completed, got %s", f.orch.State())
	}

	p1 := f.store.emps["P1"]
	if !p1.Active || deref(p1.OrgId) != "A1" || p1.WorkMobile != nil || p1.ManagerId != nil {
		t.Fatalf("unexpected P1: %+v", p1.Employee)
	}
	p2 := f.store.emps["P2"]
	if !p2.Active || deref(p2.OrgId) != models.SentinelOrgId || p2.WorkPhone != nil || deref(p2.ManagerCode) != "M1" {
		t.Fatalf("unexpected P2: %+v", p2.Employee)
	}
	if len(f.archiver.archived) != 2 {
		t.Fatalf("expected both files archived, got %v", f.archiver.archived)
	}

	var corrected int
	for _, run := range f.recorder.runs {
		if run.Status != models.ImportRunStatusSuccess {
			t.Fatalf("expected successful run record, got %+v", run)
		}
		if run.Dataset == models.ImportDatasetEmployee {
			corrected = run.OrgsCorrected
		}
	}
	if len(f.recorder.runs) != 2 || corrected != 1 {
		t.Fatalf("expected 2 run records with 1 corrected org, got %d runs, %d corrected", len(f.recorder.runs), corrected)
	}
}

func TestImportEmployees_DeactivatesEmployeesMissingFromFile(t *testing.T) {
	f := newFixture(t, 1)
	f.store.orgs["A1"] = models.Organization{OrgId: strPtr("A1")}
	f.store.seedEmployee("P1", "A1")
	f.store.seedEmployee("GONE", "A1")
	f.write(t, "employee.csv", empHeader+"P1;Anna;Berg;;;Dev;A1;anna@x.se;;\nP3;Cia;Lund;;;QA;A1;;;\n")

	if err := f.orch.ImportEmployees(context.Background()); err != nil {
		t.Fatalf("ImportEmployees error: %v", err)
	}
	if f.store.emps["GONE"].Active {
		t.Fatalf("expected employee absent from the file to be deactivated")
	}
	if !f.store.emps["P1"].Active || !f.store.emps["P3"].Active {
		t.Fatalf("expected imported employees to stay active")
	}
	if len(f.store.empWrites) != 2 {
		t.Fatalf("expected 2 batches of 1, got %d", len(f.store.empWrites))
	}

	// A second identical run finds nothing new to deactivate.
	f.write(t, "employee.csv", empHeader+"P1;Anna;Berg;;;Dev;A1;anna@x.se;;\nP3;Cia;Lund;;;QA;A1;;;\n")
	if err := f.orch.ImportEmployees(context.Background()); err != nil {
		t.Fatalf("second ImportEmployees error: %v", err)
	}
	for _, run := range f.recorder.runs {
		if run.EmployeesDeactivated > 1 {
			t.Fatalf("unexpected deactivation count: %d", run.EmployeesDeactivated)
		}
	}
	if f.store.emps["GONE"].Active || !f.store.emps["P1"].Active {
		t.Fatalf("second run changed activity unexpectedly")
	}
}

func TestImportEmployees_HeaderOnlyDeactivatesEveryone(t *testing.T) {
	f := newFixture(t, 500)
	f.store.seedEmployee("P1", "A1")
	f.write(t, "employee.csv", empHeader)

	if err := f.orch.ImportEmployees(context.Background()); err != nil {
		t.Fatalf("ImportEmployees error: %v", err)
	}
	if f.store.emps["P1"].Active {
		t.Fatalf("expected P1 to be deactivated")
	}
}

func TestRun_OrganizationFailureSkipsEmployees(t *testing.T) {
	f := newFixture(t, 500)
	boom := errors.New("lock wait timeout")
	f.store.failOrgUpsert = boom
	f.store.seedEmployee("P1", "A1")
	f.write(t, "organization.csv", orgHeader+"1,A1,Sales,,2\n")
	f.write(t, "employee.csv", empHeader+"P2;Bo;Ek;;;Ops;A1;;;\n")

	err := f.orch.Run(context.Background())
	var importErr *ImportError
	if !errors.As(err, &importErr) || importErr.Dataset != DatasetOrganization {
		t.Fatalf("expected organization ImportError, got %v", err)
	}
	var storeErr *StoreWriteError
	if !errors.As(err, &storeErr) || !errors.Is(err, boom) {
		t.Fatalf("expected wrapped StoreWriteError, got %v", err)
	}
	if f.orch.State() != StateFailed {
		t.Fatalf("expected Failed, got %s", f.orch.State())
	}
	if len(f.store.empWrites) != 0 || !f.store.emps["P1"].Active {
		t.Fatalf("employee phase must not run after an organization failure")
	}
	if len(f.archiver.archived) != 0 {
		t.Fatalf("failed file must stay in place, archived %v", f.archiver.archived)
	}
}

func TestImportEmployees_DecodeErrorKeepsCommittedBatchesAndSkipsSweep(t *testing.T) {
	f := newFixture(t, 1)
	f.store.orgs["A1"] = models.Organization{OrgId: strPtr("A1")}
	f.store.seedEmployee("OLD", "A1")
	f.write(t, "employee.csv", empHeader+"P1;Anna;Berg;;;Dev;A1;;;\nP2;broken\n")

	err := f.orch.ImportEmployees(context.Background())
	var decErr *DecodeError
	if !errors.As(err, &decErr) || decErr.Line != 3 {
		t.Fatalf("expected DecodeError on line 3, got %v", err)
	}
	if _, ok := f.store.emps["P1"]; !ok {
		t.Fatalf("batch committed before the bad row should stay written")
	}
	if !f.store.emps["OLD"].Active {
		t.Fatalf("sweep must not run after a failed read")
	}
	for _, run := range f.recorder.runs {
		if run.Status != models.ImportRunStatusFailed || run.Error == nil {
			t.Fatalf("expected failed run record, got %+v", run)
		}
	}
}

func TestImportOrganizations_MissingFileFails(t *testing.T) {
	f := newFixture(t, 500)

	err := f.orch.ImportOrganizations(context.Background())
	var importErr *ImportError
	if !errors.As(err, &importErr) {
		t.Fatalf("expected ImportError, got %v", err)
	}
	if f.orch.State() != StateFailed {
		t.Fatalf("expected Failed, got %s", f.orch.State())
	}
}

func TestImportOrganizations_SingleRowFile(t *testing.T) {
	f := newFixture(t, 10)
	f.write(t, "organization.csv", "CompanyId,OrgId,OrgName,ParentId,TreeLevel\n1,A,Org A,13,1\n")

	if err := f.orch.ImportOrganizations(context.Background()); err != nil {
		t.Fatalf("ImportOrganizations error: %v", err)
	}
	if len(f.store.orgWrites) != 1 || len(f.store.orgWrites[0]) != 2 {
		t.Fatalf("expected one write of 2 rows, got %v", f.store.orgWrites)
	}
	a := f.store.orgWrites[0][0]
	if deref(a.CompanyId) != "1" || deref(a.OrgId) != "A" || deref(a.OrgName) != "Org A" || deref(a.ParentOrgId) != "13" || deref(a.TreeLevel) != "1" {
		t.Fatalf("unexpected organization row: %+v", a)
	}
	if deref(f.store.orgWrites[0][1].OrgId) != models.SentinelOrgId {
		t.Fatalf("expected sentinel as second row, got %+v", f.store.orgWrites[0][1])
	}
}

func TestImportEmployees_UnknownOrgScenario(t *testing.T) {
	f := newFixture(t, 10)
	f.write(t, "employee.csv", empHeader+"10;Anna;Svensson;;;Teacher;NoOrg;anna@test.com;;\n")

	if err := f.orch.ImportEmployees(context.Background()); err != nil {
		t.Fatalf("ImportEmployees error: %v", err)
	}
	if len(f.store.empWrites) != 1 || len(f.store.empWrites[0]) != 1 {
		t.Fatalf("expected one write of 1 row, got %v", f.store.empWrites)
	}
	e := f.store.empWrites[0][0]
	if deref(e.PersonId) != "10" || deref(e.FirstName) != "Anna" || deref(e.LastName) != "Svensson" ||
		deref(e.WorkTitle) != "Teacher" || deref(e.Email) != "anna@test.com" {
		t.Fatalf("unexpected employee: %+v", e)
	}
	if deref(e.OrgId) != models.SentinelOrgId || !e.Active {
		t.Fatalf("expected org UNKNOWN and active, got org=%q active=%v", deref(e.OrgId), e.Active)
	}
	if e.WorkMobile != nil || e.WorkPhone != nil || e.ManagerId != nil || e.ManagerCode != nil {
		t.Fatalf("expected blank fields to be absent: %+v", e)
	}
}

func TestImportOrganizations_RerunIsIdempotent(t *testing.T) {
	f := newFixture(t, 2)
	f.write(t, "organization.csv", orgHeader+"1,A1,Sales,,2\n1,A2,Support,A1,3\n1,A3,Ops,A1,3\n")

	if err := f.orch.ImportOrganizations(context.Background()); err != nil {
		t.Fatalf("first ImportOrganizations error: %v", err)
	}
	first := make(map[string]models.Organization, len(f.store.orgs))
	for id, o := range f.store.orgs {
		first[id] = o
	}
	writesAfterFirst := len(f.store.orgWrites)

	if err := f.orch.ImportOrganizations(context.Background()); err != nil {
		t.Fatalf("second ImportOrganizations error: %v", err)
	}
	if len(f.store.orgs) != len(first) || len(first) != 4 {
		t.Fatalf("expected the same 4 organizations after both runs, got %d then %d", len(first), len(f.store.orgs))
	}
	for id, o := range f.store.orgs {
		prev, ok := first[id]
		if !ok || deref(prev.OrgName) != deref(o.OrgName) || deref(prev.ParentOrgId) != deref(o.ParentOrgId) ||
			deref(prev.TreeLevel) != deref(o.TreeLevel) || deref(prev.CompanyId) != deref(o.CompanyId) {
			t.Fatalf("organization %s changed between identical runs: %+v -> %+v", id, prev, o)
		}
	}

	sentinels := 0
	for _, batch := range f.store.orgWrites[writesAfterFirst:] {
		for _, o := range batch {
			if deref(o.OrgId) == models.SentinelOrgId {
				sentinels++
			}
		}
	}
	if sentinels != 1 {
		t.Fatalf("expected exactly one sentinel row in the second run, got %d", sentinels)
	}
}

func TestImportEmployees_PresentEmployeeRefreshedAfterReferenceTime(t *testing.T) {
	f := newFixture(t, 500)
	f.store.orgs["A1"] = models.Organization{OrgId: strPtr("A1")}
	f.store.seedEmployee("P1", "A1")
	f.store.seedEmployee("GONE", "A1")
	before := f.store.emps["P1"].touched
	f.write(t, "employee.csv", empHeader+"P1;Anna;Berg;;;Dev;A1;anna@x.se;;\n")

	if err := f.orch.ImportEmployees(context.Background()); err != nil {
		t.Fatalf("ImportEmployees error: %v", err)
	}
	if len(f.store.clockReads) != 1 {
		t.Fatalf("expected the reference time to be read once, got %d", len(f.store.clockReads))
	}
	t0 := f.store.clockReads[0]
	if !before.Before(t0) {
		t.Fatalf("seeded employee should predate the reference time")
	}
	p1 := f.store.emps["P1"]
	if !p1.Active || p1.touched.Before(t0) {
		t.Fatalf("expected P1 active with updated_at >= %s, got active=%v at %s", t0, p1.Active, p1.touched)
	}
	if f.store.emps["GONE"].Active {
		t.Fatalf("expected GONE to be deactivated")
	}
}

func TestStalenessDeactivator_SweepUsesMarkedTime(t *testing.T) {
	store := newMemStore()
	store.seedEmployee("OLD", "A1")
	d := &StalenessDeactivator{Store: store}

	if _, err := d.Sweep(context.Background()); !errors.Is(err, ErrNotMarked) {
		t.Fatalf("expected ErrNotMarked before Mark, got %v", err)
	}
	if err := d.Mark(context.Background()); err != nil {
		t.Fatalf("Mark error: %v", err)
	}
	t0, ok := d.ReferenceTime()
	if !ok || t0.IsZero() {
		t.Fatalf("expected a reference time after Mark")
	}
	if err := store.UpsertEmployees(context.Background(), []models.Employee{{PersonId: strPtr("NEW"), Active: true}}); err != nil {
		t.Fatalf("UpsertEmployees error: %v", err)
	}

	n, err := d.Sweep(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("expected 1 deactivation, got %d err=%v", n, err)
	}
	if store.emps["OLD"].Active || !store.emps["NEW"].Active {
		t.Fatalf("expected only OLD to be deactivated")
	}
}

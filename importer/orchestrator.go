package importer

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"bitbucket.org/mmdatafocus/csvfilereader/config"
	"bitbucket.org/mmdatafocus/csvfilereader/models"
	"bitbucket.org/mmdatafocus/csvfilereader/utils"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "bitbucket.org/mmdatafocus/csvfilereader/importer"

const defaultBatchSize = 500

// FileSource hands the orchestrator a readable local path for a dataset.
type FileSource interface {
	Fetch(ctx context.Context, dataset Dataset) (string, error)
}

// FileArchiver moves a fully imported file out of the incoming location.
type FileArchiver interface {
	Archive(ctx context.Context, dataset Dataset, path string) error
}

// RunRecorder persists run history. Failures are logged, never returned.
type RunRecorder interface {
	CreateImportRun(ctx context.Context, run *models.ImportRun) error
	FinishImportRun(ctx context.Context, run *models.ImportRun) error
}

type Store interface {
	OrganizationStore
	EmployeeStore
}

type State string

const (
	StateNotStarted             State = "NotStarted"
	StateImportingOrganizations State = "ImportingOrganizations"
	StateImportingEmployees     State = "ImportingEmployees"
	StateCompleted              State = "Completed"
	StateFailed                 State = "Failed"
)

type Options struct {
	Store    Store
	Files    FileSource
	Archiver FileArchiver
	Recorder RunRecorder // optional
	Notifier Notifier    // optional

	OrganizationBatchSize int
	EmployeeBatchSize     int

	Logger *logrus.Logger
}

// Orchestrator sequences the organization and employee phases.
// It assumes at most one concurrent call per dataset; the trigger layer owns locking.
type Orchestrator struct {
	opts Options

	mu    sync.RWMutex
	state State
}

func New(opts Options) *Orchestrator {
	if opts.OrganizationBatchSize < 1 {
		opts.OrganizationBatchSize = defaultBatchSize
	}
	if opts.EmployeeBatchSize < 1 {
		opts.EmployeeBatchSize = defaultBatchSize
	}
	if opts.Logger == nil {
		opts.Logger = config.GetLogger()
	}
	return &Orchestrator{opts: opts, state: StateNotStarted}
}

// State is the latest state reached by any entry point.
func (o *Orchestrator) State() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

// Run imports organizations, then employees. A failed organization phase
// stops the run before any employee row is read.
func (o *Orchestrator) Run(ctx context.Context) error {
	if err := o.importOrganizations(ctx); err != nil {
		return err
	}
	if err := o.importEmployees(ctx); err != nil {
		return err
	}
	o.setState(StateCompleted)
	return nil
}

func (o *Orchestrator) ImportOrganizations(ctx context.Context) error {
	if err := o.importOrganizations(ctx); err != nil {
		return err
	}
	o.setState(StateCompleted)
	return nil
}

func (o *Orchestrator) ImportEmployees(ctx context.Context) error {
	if err := o.importEmployees(ctx); err != nil {
		return err
	}
	o.setState(StateCompleted)
	return nil
}

func (o *Orchestrator) importOrganizations(ctx context.Context) error {
	o.setState(StateImportingOrganizations)
	if err := o.runPhase(ctx, DatasetOrganization, o.organizationPhase); err != nil {
		o.setState(StateFailed)
		return err
	}
	return nil
}

func (o *Orchestrator) importEmployees(ctx context.Context) error {
	o.setState(StateImportingEmployees)
	if err := o.runPhase(ctx, DatasetEmployee, o.employeePhase); err != nil {
		o.setState(StateFailed)
		return err
	}
	return nil
}

type phaseFunc func(ctx context.Context, r io.Reader, log *logrus.Entry, stats *PhaseStats) error

func (o *Orchestrator) organizationPhase(ctx context.Context, r io.Reader, log *logrus.Entry, stats *PhaseStats) error {
	w := organizationWriter{store: o.opts.Store, log: log}
	return pipeline[models.Organization]{
		schema:    OrganizationSchema,
		batchSize: o.opts.OrganizationBatchSize,
		convert:   organizationFromRow,
		write:     w.Write,
		log:       log,
		stats:     stats,
	}.run(ctx, r)
}

func (o *Orchestrator) employeePhase(ctx context.Context, r io.Reader, log *logrus.Entry, stats *PhaseStats) error {
	resolver := &OrgReferenceResolver{Lookup: o.opts.Store, Log: log}
	deactivator := &StalenessDeactivator{Store: o.opts.Store}
	w := employeeWriter{store: o.opts.Store}
	return pipeline[models.Employee]{
		schema:    EmployeeSchema,
		batchSize: o.opts.EmployeeBatchSize,
		convert:   employeeFromRow,
		before:    deactivator.Mark,
		prepare: func(ctx context.Context, batch Batch[models.Employee]) (Batch[models.Employee], error) {
			out, corrected, err := resolver.Resolve(ctx, batch)
			stats.OrgsCorrected += corrected
			return out, err
		},
		write: w.Write,
		after: func(ctx context.Context) error {
			n, err := deactivator.Sweep(ctx)
			if err != nil {
				return err
			}
			stats.Deactivated = n
			t0, _ := deactivator.ReferenceTime()
			log.WithField("reference_time", t0).Infof("%s non updated employees set to inactive: %d", DatasetEmployee.Tag(), n)
			return nil
		},
		log:   log,
		stats: stats,
	}.run(ctx, r)
}

// runPhase acquires the dataset file, runs body over it and archives the file
// only when body succeeded. Every failure comes back as *ImportError.
func (o *Orchestrator) runPhase(ctx context.Context, ds Dataset, body phaseFunc) (err error) {
	runId := uuid.NewString()
	ctx = utils.SetRunIdInContext(ctx, runId)
	triggeredBy, ok := utils.GetTriggeredByFromContext(ctx)
	if !ok || triggeredBy == "" {
		triggeredBy = models.ImportTriggeredSchedule
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "csvimport."+string(ds), trace.WithAttributes(
		attribute.String("import.dataset", string(ds)),
		attribute.String("import.run_id", runId),
	))
	defer span.End()

	log := o.opts.Logger.WithFields(logrus.Fields{
		"dataset":      ds,
		"run_id":       runId,
		"triggered_by": triggeredBy,
	})
	if cid, ok := utils.GetCorrelationIdFromContext(ctx); ok {
		log = log.WithField("correlation_id", cid)
	}

	started := time.Now()
	run := &models.ImportRun{
		RunId:       runId,
		Dataset:     string(ds),
		Status:      models.ImportRunStatusRunning,
		TriggeredBy: triggeredBy,
		StartedAt:   started,
	}
	o.recordStart(ctx, log, run)

	var stats PhaseStats
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			config.LogError(o.opts.Logger, "importer", "runPhase", ds.Tag()+" import failed", runId, err)
		}
		o.finish(context.WithoutCancel(ctx), log, run, stats, started, err)
	}()

	path, err := o.opts.Files.Fetch(ctx, ds)
	if err != nil {
		return &ImportError{Dataset: ds, Err: fmt.Errorf("acquire file: %w", err)}
	}
	run.SourceFile = path
	log.WithField("file", path).Infof("%s importing", ds.Tag())

	if err := readFile(ctx, ds, path, log, &stats, body); err != nil {
		return &ImportError{Dataset: ds, Err: err}
	}
	if err := o.opts.Archiver.Archive(ctx, ds, path); err != nil {
		return &ImportError{Dataset: ds, Err: fmt.Errorf("archive file: %w", err)}
	}
	return nil
}

func readFile(ctx context.Context, ds Dataset, path string, log *logrus.Entry, stats *PhaseStats, body phaseFunc) error {
	f, err := os.Open(path)
	if err != nil {
		return &DecodeError{Dataset: ds, Err: err}
	}
	defer f.Close()
	return body(ctx, f, log, stats)
}

func (o *Orchestrator) recordStart(ctx context.Context, log *logrus.Entry, run *models.ImportRun) {
	if o.opts.Recorder == nil {
		return
	}
	if err := o.opts.Recorder.CreateImportRun(ctx, run); err != nil {
		log.WithError(err).Warn("could not record import run start")
	}
}

func (o *Orchestrator) finish(ctx context.Context, log *logrus.Entry, run *models.ImportRun, stats PhaseStats, started time.Time, err error) {
	finished := time.Now()
	run.FinishedAt = &finished
	run.DurationMs = finished.Sub(started).Milliseconds()
	run.RowsRead = stats.RowsRead
	run.RowsWritten = stats.RowsWritten
	run.Batches = stats.Batches
	run.OrgsCorrected = stats.OrgsCorrected
	run.EmployeesDeactivated = stats.Deactivated
	run.Status = models.ImportRunStatusSuccess
	if err != nil {
		msg := err.Error()
		run.Status = models.ImportRunStatusFailed
		run.Error = &msg
	}

	if o.opts.Recorder != nil {
		if recErr := o.opts.Recorder.FinishImportRun(ctx, run); recErr != nil {
			log.WithError(recErr).Warn("could not record import run result")
		}
	}

	log.WithFields(logrus.Fields{
		"status":         run.Status,
		"rows_read":      run.RowsRead,
		"rows_written":   run.RowsWritten,
		"batches":        run.Batches,
		"orgs_corrected": run.OrgsCorrected,
		"deactivated":    run.EmployeesDeactivated,
		"duration_ms":    run.DurationMs,
	}).Info("import phase finished")

	o.notify(ctx, log, run)
}

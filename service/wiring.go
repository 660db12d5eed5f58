package service

import (
	"context"

	"bitbucket.org/mmdatafocus/csvfilereader/config"
	"bitbucket.org/mmdatafocus/csvfilereader/filestore"
	"bitbucket.org/mmdatafocus/csvfilereader/importer"
	"bitbucket.org/mmdatafocus/csvfilereader/models"
	"bitbucket.org/mmdatafocus/csvfilereader/scheduler"
	"bitbucket.org/mmdatafocus/csvfilereader/utils"
	"github.com/sirupsen/logrus"
)

const (
	JobImportOrganizations = "import-organizations"
	JobImportEmployees     = "import-employees"
)

// NewFileSource picks the acquisition backend named by cfg.Source.
func NewFileSource(cfg config.ImportConfig, logger *logrus.Logger) importer.FileSource {
	names := filestore.FileNames{
		importer.DatasetOrganization: cfg.OrgFileName,
		importer.DatasetEmployee:     cfg.EmpFileName,
	}
	if cfg.Source == config.ImportSourceGCS {
		return &filestore.GCSSource{
			Bucket:      cfg.GCSBucket,
			Prefix:      cfg.GCSPrefix,
			IncomingDir: cfg.IncomingDir,
			Names:       names,
			Logger:      logger,
		}
	}
	return &filestore.LocalSource{
		DownloadDir: cfg.TempDownloadDir,
		IncomingDir: cfg.IncomingDir,
		Names:       names,
		Logger:      logger,
	}
}

func NewOrchestrator(cfg config.ImportConfig, store *models.ImportStore, logger *logrus.Logger) *importer.Orchestrator {
	opts := importer.Options{
		Store:                 store,
		Files:                 NewFileSource(cfg, logger),
		Archiver:              &filestore.Archiver{ProcessedDir: cfg.ProcessedDir, Logger: logger},
		Recorder:              cachingRecorder{RunRecorder: store, cache: utils.StoreLastImportRun},
		OrganizationBatchSize: cfg.OrganizationBatchSize,
		EmployeeBatchSize:     cfg.EmployeeBatchSize,
		Logger:                logger,
	}
	if cfg.EventsTopic != "" {
		opts.Notifier = importer.PubSubNotifier{Topic: cfg.EventsTopic}
	}
	return importer.New(opts)
}

// NewScheduler registers one job per dataset, each with its own lock. The
// employee job is chained after the organization job so a scheduled cycle
// never reads employees before the organization import has finished.
func NewScheduler(cfg config.ImportConfig, orch *importer.Orchestrator, locker scheduler.Locker, logger *logrus.Logger) (*scheduler.Scheduler, error) {
	s := scheduler.New(locker, logger)
	if err := s.Register(scheduler.Job{
		Name:                 JobImportOrganizations,
		Interval:             cfg.ImportInterval,
		LockAtMostFor:        cfg.OrganizationJob.LockAtMostFor,
		MaximumExecutionTime: cfg.OrganizationJob.MaximumExecutionTime,
		Run:                  orch.ImportOrganizations,
	}); err != nil {
		return nil, err
	}
	if err := s.Register(scheduler.Job{
		Name:                 JobImportEmployees,
		After:                JobImportOrganizations,
		LockAtMostFor:        cfg.EmployeeJob.LockAtMostFor,
		MaximumExecutionTime: cfg.EmployeeJob.MaximumExecutionTime,
		Run:                  orch.ImportEmployees,
	}); err != nil {
		return nil, err
	}
	return s, nil
}

// cachingRecorder persists runs to MySQL and mirrors finished ones into Redis.
type cachingRecorder struct {
	importer.RunRecorder
	cache func(ctx context.Context, run *models.ImportRun) error
}

func (r cachingRecorder) FinishImportRun(ctx context.Context, run *models.ImportRun) error {
	if err := r.RunRecorder.FinishImportRun(ctx, run); err != nil {
		return err
	}
	return r.cache(ctx, run)
}

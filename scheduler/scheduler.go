package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"bitbucket.org/mmdatafocus/csvfilereader/config"
	"bitbucket.org/mmdatafocus/csvfilereader/models"
	"bitbucket.org/mmdatafocus/csvfilereader/utils"
	"github.com/sirupsen/logrus"
)

const DefaultKeyPrefix = "csvimport:"

var ErrUnknownJob = errors.New("unknown job")

// Job is a periodic task. LockAtMostFor bounds how long the fleet-wide lock is
// held if the holder dies; MaximumExecutionTime bounds the run's context.
//
// A job with After set has no interval of its own: it runs right after every
// successful scheduled run of the named job, on the same instance.
type Job struct {
	Name                 string
	Interval             time.Duration
	After                string
	LockAtMostFor        time.Duration
	MaximumExecutionTime time.Duration
	Run                  func(ctx context.Context) error
}

type Scheduler struct {
	Locker    Locker
	Logger    *logrus.Logger
	KeyPrefix string

	mu    sync.Mutex
	jobs  map[string]Job
	order []string
}

func New(locker Locker, logger *logrus.Logger) *Scheduler {
	if logger == nil {
		logger = config.GetLogger()
	}
	return &Scheduler{
		Locker:    locker,
		Logger:    logger,
		KeyPrefix: DefaultKeyPrefix,
		jobs:      map[string]Job{},
	}
}

func (s *Scheduler) Register(job Job) error {
	if job.Name == "" || job.Run == nil {
		return errors.New("job name and run func are required")
	}
	if job.LockAtMostFor <= 0 {
		return fmt.Errorf("job %s: lock-at-most-for must be positive", job.Name)
	}
	if job.After == "" && job.Interval <= 0 {
		return fmt.Errorf("job %s: interval must be positive", job.Name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.Name]; ok {
		return fmt.Errorf("job %s already registered", job.Name)
	}
	if job.After != "" {
		if _, ok := s.jobs[job.After]; !ok {
			return fmt.Errorf("job %s: %w: %s", job.Name, ErrUnknownJob, job.After)
		}
	}
	s.jobs[job.Name] = job
	s.order = append(s.order, job.Name)
	return nil
}

func (s *Scheduler) job(name string) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[name]
	return job, ok
}

// TriggerNow runs the named job once, synchronously, under its lock.
// It returns ErrJobLocked when another instance holds the lock.
func (s *Scheduler) TriggerNow(ctx context.Context, name string, triggeredBy string) error {
	job, ok := s.job(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.execute(ctx, job, triggeredBy)
}

// followers lists the jobs chained after name, in registration order.
func (s *Scheduler) followers(name string) []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Job
	for _, n := range s.order {
		if s.jobs[n].After == name {
			out = append(out, s.jobs[n])
		}
	}
	return out
}

// Run fires every interval job until ctx is done. Chained jobs run from the
// loop of the job they follow.
func (s *Scheduler) Run(ctx context.Context) {
	s.mu.Lock()
	jobs := make([]Job, 0, len(s.order))
	for _, name := range s.order {
		if job := s.jobs[name]; job.After == "" {
			jobs = append(jobs, job)
		}
	}
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, job := range jobs {
		wg.Add(1)
		go func(job Job) {
			defer wg.Done()
			s.loop(ctx, job)
		}(job)
	}
	wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(job.Interval):
		}
		// Failures are logged by execute; the next tick runs regardless.
		s.runChain(ctx, job)
	}
}

// runChain executes job and, when it succeeds, each of its followers in turn.
func (s *Scheduler) runChain(ctx context.Context, job Job) {
	if err := s.execute(ctx, job, models.ImportTriggeredSchedule); err != nil {
		return
	}
	for _, next := range s.followers(job.Name) {
		if ctx.Err() != nil {
			return
		}
		s.runChain(ctx, next)
	}
}

func (s *Scheduler) execute(ctx context.Context, job Job, triggeredBy string) error {
	log := s.Logger.WithFields(logrus.Fields{"job": job.Name, "triggered_by": triggeredBy})

	lock, err := s.Locker.Obtain(ctx, s.KeyPrefix+job.Name, job.LockAtMostFor)
	if errors.Is(err, ErrJobLocked) {
		log.Warn("could not obtain lock; job already running elsewhere")
		return err
	}
	if err != nil {
		config.LogError(s.Logger, "scheduler", "execute", "error obtaining job lock", job.Name, err)
		return err
	}
	defer func() {
		if releaseErr := lock.Release(context.WithoutCancel(ctx)); releaseErr != nil {
			log.Warn("failed to release job lock: " + releaseErr.Error())
		}
	}()

	runCtx := utils.SetTriggeredByInContext(ctx, triggeredBy)
	runCtx = utils.SetCorrelationIdInContext(runCtx, utils.CorrelationIdFromContextOrNew(ctx))
	if job.MaximumExecutionTime > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, job.MaximumExecutionTime)
		defer cancel()
	}

	started := time.Now()
	log.Info("job started")
	if err := job.Run(runCtx); err != nil {
		config.LogError(s.Logger, "scheduler", "execute", "job failed", job.Name, err)
		return err
	}
	log.WithField("duration", time.Since(started).String()).Info("job finished")
	return nil
}

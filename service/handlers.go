package service

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"bitbucket.org/mmdatafocus/csvfilereader/importer"
	"bitbucket.org/mmdatafocus/csvfilereader/models"
	"bitbucket.org/mmdatafocus/csvfilereader/scheduler"
	"github.com/gin-gonic/gin"
)

type Trigger interface {
	TriggerNow(ctx context.Context, name string, triggeredBy string) error
}

type RunLister interface {
	ListImportRuns(ctx context.Context, dataset string, limit int) ([]models.ImportRun, error)
}

// RunJobs runs jobs in order and stops at the first failure, the way the
// startup run imports organizations before employees.
func RunJobs(ctx context.Context, t Trigger, triggeredBy string, jobs ...string) error {
	for _, job := range jobs {
		if err := t.TriggerNow(ctx, job, triggeredBy); err != nil {
			return err
		}
	}
	return nil
}

// TriggerHandler starts jobs in the background and answers 202. With
// ?wait=true it runs them inline and reports the outcome.
func TriggerHandler(t Trigger, jobs ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.EqualFold(c.Query("wait"), "true") {
			err := RunJobs(c.Request.Context(), t, models.ImportTriggeredManual, jobs...)
			switch {
			case err == nil:
				c.JSON(http.StatusOK, gin.H{"jobs": jobs, "status": models.ImportRunStatusSuccess})
			case errors.Is(err, scheduler.ErrJobLocked):
				c.JSON(http.StatusConflict, gin.H{"jobs": jobs, "error": err.Error()})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"jobs": jobs, "error": err.Error()})
			}
			return
		}

		ctx := context.WithoutCancel(c.Request.Context())
		go func() {
			_ = RunJobs(ctx, t, models.ImportTriggeredManual, jobs...)
		}()
		c.JSON(http.StatusAccepted, gin.H{"jobs": jobs, "status": "accepted"})
	}
}

func RunsHandler(l RunLister) gin.HandlerFunc {
	return func(c *gin.Context) {
		dataset := strings.TrimSpace(c.Query("dataset"))
		if dataset != "" && dataset != string(importer.DatasetOrganization) && dataset != string(importer.DatasetEmployee) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "dataset must be organization or employee"})
			return
		}
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

		runs, err := l.ListImportRuns(c.Request.Context(), dataset, limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"runs": runs})
	}
}

type StateReporter interface {
	State() importer.State
}

// LastRunReader returns the most recent finished run of a dataset, if any.
type LastRunReader func(ctx context.Context, dataset string) (*models.ImportRun, bool, error)

// StatusHandler reports this instance's orchestrator state and the last
// finished run per dataset as seen by any instance.
func StatusHandler(o StateReporter, lastRun LastRunReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		last := gin.H{}
		for _, ds := range []importer.Dataset{importer.DatasetOrganization, importer.DatasetEmployee} {
			run, ok, err := lastRun(c.Request.Context(), string(ds))
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			if ok {
				last[string(ds)] = run
			}
		}
		c.JSON(http.StatusOK, gin.H{"state": o.State(), "last_runs": last})
	}
}

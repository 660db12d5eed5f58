package importer

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/csvfilereader/config"
	"bitbucket.org/mmdatafocus/csvfilereader/models"
	"github.com/sirupsen/logrus"
)

// ImportEvent is published after every phase, successful or not.
type ImportEvent struct {
	RunId         string    `json:"run_id"`
	Dataset       string    `json:"dataset"`
	Status        string    `json:"status"`
	TriggeredBy   string    `json:"triggered_by"`
	RowsRead      int       `json:"rows_read"`
	RowsWritten   int       `json:"rows_written"`
	OrgsCorrected int       `json:"orgs_corrected"`
	Deactivated   int64     `json:"deactivated"`
	Error         string    `json:"error,omitempty"`
	FinishedAt    time.Time `json:"finished_at"`
}

type Notifier interface {
	ImportFinished(ctx context.Context, event ImportEvent) error
}

// PubSubNotifier publishes import events as JSON to a Pub/Sub topic.
type PubSubNotifier struct {
	Topic string
}

func (n PubSubNotifier) ImportFinished(ctx context.Context, event ImportEvent) error {
	_, err := config.PublishJSON(ctx, n.Topic, event)
	return err
}

func eventFromRun(run *models.ImportRun) ImportEvent {
	ev := ImportEvent{
		RunId:         run.RunId,
		Dataset:       run.Dataset,
		Status:        run.Status,
		TriggeredBy:   run.TriggeredBy,
		RowsRead:      run.RowsRead,
		RowsWritten:   run.RowsWritten,
		OrgsCorrected: run.OrgsCorrected,
		Deactivated:   run.EmployeesDeactivated,
	}
	if run.Error != nil {
		ev.Error = *run.Error
	}
	if run.FinishedAt != nil {
		ev.FinishedAt = *run.FinishedAt
	}
	return ev
}

func (o *Orchestrator) notify(ctx context.Context, log *logrus.Entry, run *models.ImportRun) {
	if o.opts.Notifier == nil {
		return
	}
	if err := o.opts.Notifier.ImportFinished(ctx, eventFromRun(run)); err != nil {
		log.WithError(err).Warn("could not publish import event")
	}
}

package filestore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"bitbucket.org/mmdatafocus/csvfilereader/importer"
	"github.com/sirupsen/logrus"
)

// Archiver keeps the last successfully imported file per dataset in ProcessedDir.
type Archiver struct {
	ProcessedDir string
	Logger       *logrus.Logger
}

// Archive deletes the previously processed copy of the file, then moves path into ProcessedDir.
func (a *Archiver) Archive(ctx context.Context, ds importer.Dataset, path string) error {
	logger := a.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	log := logrus.NewEntry(logger).WithField("dataset", ds)

	old := filepath.Join(a.ProcessedDir, filepath.Base(path))
	if err := deletePreviouslyProcessedFile(old, log); err != nil {
		return err
	}
	return moveFile(path, a.ProcessedDir, log)
}

func deletePreviouslyProcessedFile(path string, log *logrus.Entry) error {
	err := os.Remove(path)
	if err == nil {
		log.WithField("file", path).Info("old file deleted")
		return nil
	}
	if os.IsNotExist(err) {
		return nil
	}
	return fmt.Errorf("failed to delete file %s: %w", path, err)
}

func moveFile(path string, targetDir string, log *logrus.Entry) error {
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", targetDir, err)
	}
	target := filepath.Join(targetDir, filepath.Base(path))
	if err := os.Rename(path, target); err != nil {
		// Rename cannot cross filesystems; fall back to copy + remove.
		src, openErr := os.Open(path)
		if openErr != nil {
			return fmt.Errorf("failed to move processed file: %w", err)
		}
		_, copyErr := copyFile(src, target)
		src.Close()
		if copyErr != nil {
			return fmt.Errorf("failed to move processed file: %w", copyErr)
		}
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("failed to remove moved file %s: %w", path, err)
		}
	}
	log.Infof("moved file '%s' to '%s' after reading", path, targetDir)
	return nil
}

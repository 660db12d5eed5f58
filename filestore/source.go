package filestore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"bitbucket.org/mmdatafocus/csvfilereader/importer"
	"github.com/sirupsen/logrus"
)

// FileNames maps each dataset to its file name.
type FileNames map[importer.Dataset]string

func (n FileNames) lookup(ds importer.Dataset) (string, error) {
	name, ok := n[ds]
	if !ok || name == "" {
		return "", fmt.Errorf("no file name configured for dataset %q", ds)
	}
	return name, nil
}

func splitPath(p string) (string, string) {
	return filepath.Dir(p), filepath.Base(p)
}

// LocalSource stages a dataset file from a download directory into the
// incoming directory. With an empty DownloadDir the file is expected to be
// placed in IncomingDir by someone else.
type LocalSource struct {
	DownloadDir string
	IncomingDir string
	Names       FileNames
	Logger      *logrus.Logger
}

func (s *LocalSource) Fetch(ctx context.Context, ds importer.Dataset) (string, error) {
	name, err := s.Names.lookup(ds)
	if err != nil {
		return "", err
	}
	log := logrus.NewEntry(s.logger()).WithField("dataset", ds)
	dst := filepath.Join(s.IncomingDir, name)

	if s.DownloadDir != "" {
		if err := os.MkdirAll(s.IncomingDir, 0o755); err != nil {
			return "", err
		}
		src, err := os.Open(filepath.Join(s.DownloadDir, name))
		if err != nil {
			return "", fmt.Errorf("open download file: %w", err)
		}
		defer src.Close()
		if _, err := copyFile(src, dst); err != nil {
			return "", fmt.Errorf("stage %s into %s: %w", name, s.IncomingDir, err)
		}
	}

	if err := VerifyReadable(dst, ds.Tag(), log); err != nil {
		return "", err
	}
	log.Infof("%s file downloaded", ds.Tag())
	return dst, nil
}

func (s *LocalSource) logger() *logrus.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return logrus.StandardLogger()
}

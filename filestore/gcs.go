package filestore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"bitbucket.org/mmdatafocus/csvfilereader/importer"
	"cloud.google.com/go/storage"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

// newGCSClient prefers ADC (service account / GOOGLE_APPLICATION_CREDENTIALS).
// Explicit JSON can be provided with GCS_CREDENTIALS_JSON.
func newGCSClient(ctx context.Context) (*storage.Client, error) {
	if credJSON := os.Getenv("GCS_CREDENTIALS_JSON"); strings.TrimSpace(credJSON) != "" {
		return storage.NewClient(ctx, option.WithCredentialsJSON([]byte(credJSON)))
	}
	return storage.NewClient(ctx)
}

// GCSSource downloads gs://Bucket/Prefix<file name> into IncomingDir.
type GCSSource struct {
	Bucket      string
	Prefix      string
	IncomingDir string
	Names       FileNames
	Logger      *logrus.Logger
}

func (s *GCSSource) objectName(name string) string {
	prefix := strings.TrimPrefix(s.Prefix, "/")
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix + name
}

func (s *GCSSource) Fetch(ctx context.Context, ds importer.Dataset) (string, error) {
	if s.Bucket == "" {
		return "", fmt.Errorf("GCS_BUCKET is required")
	}
	name, err := s.Names.lookup(ds)
	if err != nil {
		return "", err
	}
	logger := s.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	log := logrus.NewEntry(logger).WithField("dataset", ds)

	client, err := newGCSClient(ctx)
	if err != nil {
		return "", err
	}
	defer client.Close()

	object := s.objectName(name)
	r, err := client.Bucket(s.Bucket).Object(object).NewReader(ctx)
	if err != nil {
		return "", fmt.Errorf("open gs://%s/%s: %w", s.Bucket, object, err)
	}
	defer r.Close()

	if err := os.MkdirAll(s.IncomingDir, 0o755); err != nil {
		return "", err
	}
	dst := filepath.Join(s.IncomingDir, name)
	n, err := copyFile(r, dst)
	if err != nil {
		return "", fmt.Errorf("download gs://%s/%s: %w", s.Bucket, object, err)
	}
	log.WithField("bytes", n).Infof("%s downloaded gs://%s/%s", ds.Tag(), s.Bucket, object)

	if err := VerifyReadable(dst, ds.Tag(), log); err != nil {
		return "", err
	}
	return dst, nil
}

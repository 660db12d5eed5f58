package filestore

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var ErrNotRegularFile = errors.New("not a regular file")

// VerifyReadable checks that path is an openable regular file and logs its size and first line.
func VerifyReadable(path string, tag string, log *logrus.Entry) error {
	log.Infof("%s checking file: %s", tag, path)

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("file does not exist: %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s: %w", path, ErrNotRegularFile)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("file not readable: %s: %w", path, err)
	}
	defer f.Close()

	firstLine, err := bufio.NewReader(f).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed reading file: %s: %w", path, err)
	}

	log.WithFields(logrus.Fields{
		"size_bytes": info.Size(),
		"first_line": strings.TrimRight(firstLine, "\r\n"),
	}).Infof("%s file OK", tag)
	return nil
}

// copyFile writes src to dst through a temp file in dst's directory, replacing dst.
func copyFile(src io.Reader, dst string) (int64, error) {
	dir, base := splitPath(dst)
	tmp, err := os.CreateTemp(dir, "."+base+".tmp-*")
	if err != nil {
		return 0, err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	n, err := io.Copy(tmp, src)
	if err != nil {
		_ = tmp.Close()
		return 0, err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		return 0, err
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return 0, err
	}
	return n, nil
}

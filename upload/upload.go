/*
Package upload pushes measurement csv files into a Nextcloud public share.
The transfer itself is done by curl, uploaded files are moved to archive/.
*/
package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/RUBclim/crowdbike/config"
)

const ArchiveDir = "archive"

// ErrCurl is a transfer that curl reported as failed
var ErrCurl = errors.New("curl upload failed")

// Runner executes a command and gives back what it printed
type Runner func(ctx context.Context, name string, args ...string) (stdout string, stderr string, err error)

// ExecRunner runs the real binary
func ExecRunner(ctx context.Context, name string, args ...string) (string, string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

type Result struct {
	File     string
	Archived string //new path when uploaded
	Stdout   string
	Stderr   string
	Err      error
}

func (r Result) OK() bool { return r.Err == nil }

type Uploader struct {
	LogDir  string
	Cloud   config.CloudConfig
	Verbose bool   //curl -v, stderr is then printed
	Curl    string //binary, default "curl"

	run Runner
	log *zap.Logger
}

func New(logDir string, cloud config.CloudConfig, log *zap.Logger) *Uploader {
	return &Uploader{LogDir: logDir, Cloud: cloud, Curl: "curl", run: ExecRunner, log: log.Named("upload")}
}

// WithRunner replaces curl execution, for tests
func (u *Uploader) WithRunner(run Runner) *Uploader {
	u.run = run
	return u
}

func baseURL(s string) string {
	if !strings.HasSuffix(s, "/") {
		s += "/"
	}
	return s
}

// Args is the curl command line for one file
func (u *Uploader) Args(path string) []string {
	flag := "-T"
	if u.Verbose {
		flag = "-vT"
	}
	return []string{
		flag, path,
		"-u", u.Cloud.FolderToken + ":" + u.Cloud.Passwd,
		"-H", "X-Requested-With:XMLHttpRequest",
		baseURL(u.Cloud.BaseURL) + "public.php/webdav/" + filepath.Base(path),
	}
}

// Pending lists the csv files waiting in the log dir, sorted
func (u *Uploader) Pending() ([]string, error) {
	entries, err := os.ReadDir(u.LogDir)
	if err != nil {
		return nil, fmt.Errorf("list %v: %w", u.LogDir, err)
	}
	var files []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			files = append(files, filepath.Join(u.LogDir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// NothingToDo is printed when the log dir holds no csv files
func (u *Uploader) NothingToDo() string {
	return fmt.Sprintf("Everything up to date. There are no files to upload in %q", u.LogDir)
}

/*
Upload sends every pending file. A file only counts as uploaded when curl
printed nothing on stdout and no "curl:" error on stderr. Failed files stay.
The returned error is only for problems before any transfer.
*/
func (u *Uploader) Upload(ctx context.Context, progress func(Result)) ([]Result, error) {
	if err := u.Cloud.Validate(); err != nil {
		return nil, err
	}
	archive := filepath.Join(u.LogDir, ArchiveDir)
	if err := os.MkdirAll(archive, 0o755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}
	files, err := u.Pending()
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		u.log.Info(u.NothingToDo())
		return nil, nil
	}

	results := make([]Result, 0, len(files))
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		u.log.Info("uploading to the cloud", zap.String("file", filepath.Base(file)))
		r := u.one(ctx, file, archive)
		if r.OK() {
			u.log.Info("uploaded", zap.String("file", r.File), zap.String("archived", r.Archived))
		} else {
			u.log.Error("upload failed", zap.String("file", r.File), zap.Error(r.Err), zap.String("stdout", r.Stdout), zap.String("stderr", r.Stderr))
		}
		results = append(results, r)
		if progress != nil {
			progress(r)
		}
	}
	return results, nil
}

func (u *Uploader) one(ctx context.Context, file string, archive string) Result {
	args := u.Args(file)
	u.log.Debug("curl call", zap.Strings("args", append([]string{u.Curl, args[0], args[1], "-u", "<hidden>"}, args[4:]...)))
	stdout, stderr, err := u.run(ctx, u.Curl, args...)
	r := Result{File: file, Stdout: stdout, Stderr: stderr}
	switch {
	case stdout != "" || strings.Contains(stderr, "curl:"):
		r.Err = fmt.Errorf("%w: %v", ErrCurl, curlMessage(stdout, stderr))
		return r
	case err != nil:
		r.Err = fmt.Errorf("%w: %v", ErrCurl, err)
		return r
	}
	target := filepath.Join(archive, filepath.Base(file))
	if err := os.Rename(file, target); err != nil {
		r.Err = fmt.Errorf("archive %v: %w", file, err)
		return r
	}
	r.Archived = target
	return r
}

// curlMessage picks the "curl: (6) Could not resolve host" part if there is one
func curlMessage(stdout string, stderr string) string {
	if i := strings.Index(stderr, "curl:"); 0 <= i {
		return strings.TrimSpace(stderr[i:])
	}
	return strings.TrimSpace(stdout)
}

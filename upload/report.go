package upload

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
)

const banner = "==================================== error ===================================="

/*
Report runs Upload and prints what happens on out, the command line flavour.
Returns the number of failed files.
*/
func (u *Uploader) Report(ctx context.Context, out io.Writer) (int, error) {
	failed := 0
	results, err := u.Upload(ctx, func(r Result) {
		fmt.Fprintf(out, "uploading: %v to the cloud\n", filepath.Base(r.File))
		if u.Verbose && r.Stderr != "" {
			fmt.Fprintln(out, strings.TrimRight(r.Stderr, "\n"))
		}
		if r.OK() {
			return
		}
		failed++
		red := color.New(color.FgRed)
		red.Fprintln(out, banner)
		if r.Stdout != "" {
			fmt.Fprintln(out, r.Stdout)
		}
		red.Fprintln(out, r.Err)
	})
	if err != nil {
		return failed, err
	}
	if len(results) == 0 {
		fmt.Fprintln(out, u.NothingToDo())
	}
	return failed, nil
}

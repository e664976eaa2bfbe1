package config

import (
	"bufio"
	"embed"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

//go:embed defaults/*.json
var defaults embed.FS

var defaultFiles = []string{"config.json", "calibration.json"}

/*
Setup writes the default config.json and calibration.json into dir.
An existing dir is only overwritten after the user answers yes on in.
Returns false when the user declined.
*/
func Setup(dir string, in io.Reader, out io.Writer) (bool, error) {
	if _, err := os.Stat(dir); err == nil {
		fmt.Fprintf(out, "the config directory %v already exists, if you continue, it will be overwritten (yes/no): ", dir)
		answer, _ := bufio.NewReader(in).ReadString('\n')
		switch strings.ToLower(strings.TrimSpace(answer)) {
		case "y", "yes":
		default:
			fmt.Fprintln(out, "aborted, nothing was changed")
			return false, nil
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, fmt.Errorf("create config dir %v: %w", dir, err)
	}
	for _, name := range defaultFiles {
		content, err := defaults.ReadFile("defaults/" + name)
		if err != nil {
			return false, err
		}
		target := filepath.Join(dir, name)
		if err := os.WriteFile(target, content, 0o644); err != nil {
			return false, fmt.Errorf("write %v: %w", target, err)
		}
	}
	fmt.Fprintf(out, "created config files in %v, edit config.json before starting\n", dir)
	return true, nil
}

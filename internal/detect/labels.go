package detect

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Labels maps class index to class name.
type Labels []string

// LoadLabels reads line-delimited class names. Reading stops at the first
// empty line or EOF, so trailing blank lines in label files are harmless.
func LoadLabels(r io.Reader) (Labels, error) {
	var labels Labels
	scan := bufio.NewScanner(r)
	for scan.Scan() {
		line := strings.TrimRight(scan.Text(), "\r")
		if line == "" {
			break
		}
		labels = append(labels, line)
	}
	if err := scan.Err(); err != nil {
		return nil, fmt.Errorf("failed to read labels: %w", err)
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("label list is empty")
	}
	return labels, nil
}

// LoadLabelsFile reads a label file from disk.
func LoadLabelsFile(path string) (Labels, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open labels: %w", err)
	}
	defer f.Close()
	return LoadLabels(f)
}

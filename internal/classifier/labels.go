package classifier

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/tphakala/leafnet-go/internal/errors"
	"github.com/tphakala/leafnet-go/internal/logger"
)

// Labels maps model output index i to the class name at position i.
type Labels []string

// Clone returns an independent copy.
func (l Labels) Clone() Labels {
	return slices.Clone(l)
}

// Validate checks that the label set is non-empty and free of blank or
// repeated names.
func (l Labels) Validate() error {
	if len(l) == 0 {
		return errors.Newf("label set is empty").
			Category(errors.CategoryLabelLoad).
			Build()
	}
	seen := make(map[string]int, len(l))
	for i, name := range l {
		if strings.TrimSpace(name) == "" {
			return errors.Newf("label %d is blank", i).
				Category(errors.CategoryLabelLoad).
				Context("label_index", i).
				Build()
		}
		if prev, dup := seen[name]; dup {
			return errors.Newf("label %q appears at %d and %d", name, prev, i).
				Category(errors.CategoryLabelLoad).
				Context("label", name).
				Build()
		}
		seen[name] = i
	}
	return nil
}

// ReadLabels reads one label per line. Surrounding whitespace is trimmed and
// blank lines are skipped.
func ReadLabels(r io.Reader) (Labels, error) {
	var labels Labels
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		labels = append(labels, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return labels, nil
}

// LoadLabels reads a label file from disk.
func LoadLabels(path string) (Labels, error) {
	start := time.Now()

	file, err := os.Open(path) //nolint:gosec // operator-configured path
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryFileIO).
			Context("label_path", path).
			Context("operation", "open").
			Timing("label-file-open", time.Since(start)).
			Build()
	}
	defer func() {
		if err := file.Close(); err != nil {
			GetLogger().Warn("Failed to close label file",
				logger.Error(err),
				logger.String("path", path))
		}
	}()

	labels, err := ReadLabels(file)
	if err != nil {
		return nil, errors.New(fmt.Errorf("read label file: %w", err)).
			Category(errors.CategoryLabelLoad).
			Context("label_path", path).
			Context("operation", "parse").
			Timing("label-file-load", time.Since(start)).
			Build()
	}
	return labels, nil
}

// ResolveLabels returns the label file contents when a path is configured,
// otherwise the inline list.
func ResolveLabels(cfg SlotConfig) (Labels, error) {
	if cfg.LabelPath != "" {
		return LoadLabels(cfg.LabelPath)
	}
	return Labels(cfg.Labels).Clone(), nil
}

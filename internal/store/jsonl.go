package store

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/Agfare/comet-watcher/internal/logging"
	"github.com/Agfare/comet-watcher/internal/record"
)

// maxLineBytes bounds a single persisted record.
const maxLineBytes = 4 << 20

// LoadResults rehydrates a result store from a JSON Lines log.
// A missing file yields an empty store. Malformed lines are logged and skipped.
// Warning flags are recomputed against threshold, so a changed threshold
// applies to every loaded record.
func LoadResults(path string, threshold float64) (*Results, error) {
	timer := logging.StartTimer(logging.CategoryStore, "LoadResults")
	defer timer.Stop()

	results := NewResults()
	err := readLines(path, func(lineNo int, line []byte) {
		var rec record.Result
		if err := json.Unmarshal(line, &rec); err != nil {
			logging.StoreWarn("%s:%d: skipping malformed result line: %v", path, lineNo, err)
			return
		}
		if err := checkResult(rec); err != nil {
			logging.StoreWarn("%s:%d: skipping malformed result line: %v", path, lineNo, err)
			return
		}
		rec.Warning = record.IsWarning(rec.Score, threshold)
		results.Upsert(rec.Key(), rec)
	})
	if err != nil {
		return nil, err
	}
	logging.StoreDebug("loaded %d results from %s", results.Len(), path)
	return results, nil
}

// LoadSkipped rehydrates a skipped-file store from a JSON Lines log.
func LoadSkipped(path string) (*Skipped, error) {
	skipped := NewSkipped()
	err := readLines(path, func(lineNo int, line []byte) {
		var rec record.Skipped
		if err := json.Unmarshal(line, &rec); err != nil {
			logging.StoreWarn("%s:%d: skipping malformed skipped line: %v", path, lineNo, err)
			return
		}
		if rec.File == "" {
			logging.StoreWarn("%s:%d: skipping malformed skipped line: missing file", path, lineNo)
			return
		}
		skipped.Upsert(rec.File, rec)
	})
	if err != nil {
		return nil, err
	}
	logging.StoreDebug("loaded %d skipped entries from %s", skipped.Len(), path)
	return skipped, nil
}

// FlushResults rewrites path with every record in results.
func FlushResults(path string, results *Results) error {
	return writeLines(path, results.Snapshot())
}

// FlushWarnings rewrites path with the warning subset of results.
func FlushWarnings(path string, results *Results) error {
	return writeLines(path, results.Warnings())
}

// FlushSkipped rewrites path with every entry in skipped.
func FlushSkipped(path string, skipped *Skipped) error {
	return writeLines(path, skipped.Snapshot())
}

// checkResult rejects lines that decode as JSON but do not describe a
// scored triple, such as null or {}.
func checkResult(rec record.Result) error {
	switch {
	case rec.File == "":
		return errors.New("missing file")
	case rec.Source == "":
		return errors.New("missing source")
	case rec.MTOutput == "":
		return errors.New("missing mt_output")
	case math.IsNaN(rec.Score) || math.IsInf(rec.Score, 0):
		return errors.New("non-finite score")
	}
	return nil
}

func readLines(path string, fn func(lineNo int, line []byte)) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		fn(lineNo, line)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	return nil
}

// writeLines replaces path atomically: records go to a temp file in the same
// directory which is then renamed over the target.
func writeLines[T any](path string, records []T) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)
	_ = tmp.Chmod(0644)

	w := bufio.NewWriter(tmp)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			tmp.Close()
			return fmt.Errorf("failed to encode record: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	logging.StoreDebug("wrote %d records to %s", len(records), path)
	return nil
}

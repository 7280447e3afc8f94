package pipeline

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/aluiziolira/dbl-equipment-scraper/models"
)

// ErrAlreadyWritten is returned by a second Write on the same writer.
var ErrAlreadyWritten = errors.New("pipeline: output already written")

// JSONWriter writes the collection as one indented JSON array.
type JSONWriter struct {
	path    string
	written bool
	mu      sync.Mutex
}

// NewJSONWriter prepares a writer for filename. The file itself only
// appears once Write succeeds.
func NewJSONWriter(filename string) (*JSONWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}
	return &JSONWriter{path: filename}, nil
}

// Write serializes records and replaces the target file atomically.
func (jw *JSONWriter) Write(records []*models.Equipment) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if jw.written {
		return ErrAlreadyWritten
	}
	if records == nil {
		records = []*models.Equipment{}
	}

	err := writeAtomic(jw.path, func(w io.Writer) error {
		return EncodeJSON(w, records)
	})
	if err != nil {
		return err
	}
	jw.written = true
	return nil
}

// Close is a no-op; Write leaves no open handles behind.
func (jw *JSONWriter) Close() error {
	return nil
}

// Validate ensures the JSON file was written and has data.
func (jw *JSONWriter) Validate() error {
	return validateFile(jw.path, "json")
}

// EncodeJSON writes records with four-space indentation, leaving non-ASCII
// characters and HTML metacharacters unescaped.
func EncodeJSON(w io.Writer, records []*models.Equipment) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}

// CSVWriter writes one flat row per record. Slots and condition groups are
// embedded as JSON cells.
type CSVWriter struct {
	path    string
	written bool
	mu      sync.Mutex
}

var csvHeader = []string{"id", "name", "url", "image", "slots", "conditions_data", "condition_logic", "condition_desc"}

// NewCSVWriter prepares a CSV writer for filename.
func NewCSVWriter(filename string) (*CSVWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}
	return &CSVWriter{path: filename}, nil
}

// Write renders all rows and replaces the target file atomically.
func (cw *CSVWriter) Write(records []*models.Equipment) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if cw.written {
		return ErrAlreadyWritten
	}

	err := writeAtomic(cw.path, func(w io.Writer) error {
		writer := csv.NewWriter(w)
		if err := writer.Write(csvHeader); err != nil {
			return fmt.Errorf("write csv header: %w", err)
		}
		for _, rec := range records {
			slots, err := jsonCell(rec.Slots)
			if err != nil {
				return err
			}
			conditions, err := jsonCell(rec.ConditionsData)
			if err != nil {
				return err
			}
			row := []string{
				rec.ID,
				rec.Name,
				rec.URL,
				rec.Image,
				slots,
				conditions,
				string(rec.ConditionLogic),
				rec.ConditionDesc,
			}
			if err := writer.Write(row); err != nil {
				return fmt.Errorf("write csv record: %w", err)
			}
		}
		writer.Flush()
		if err := writer.Error(); err != nil {
			return fmt.Errorf("flush csv records: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	cw.written = true
	return nil
}

// Close is a no-op; Write leaves no open handles behind.
func (cw *CSVWriter) Close() error {
	return nil
}

// Validate ensures the file has content besides the header.
func (cw *CSVWriter) Validate() error {
	return validateFile(cw.path, "csv")
}

func jsonCell(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("encode csv cell: %w", err)
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

// writeAtomic renders into a temp file next to path and renames it over
// path, so readers never observe a partial document.
func writeAtomic(path string, render func(io.Writer) error) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	buffer := bufio.NewWriter(tmp)
	if err = render(buffer); err != nil {
		return err
	}
	if err = buffer.Flush(); err != nil {
		return fmt.Errorf("flush %s: %w", path, err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", path, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err = os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename into %s: %w", path, err)
	}
	return nil
}

func validateFile(path, kind string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s file: %w", kind, err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("%s file is empty", kind)
	}
	return nil
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}

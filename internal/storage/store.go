// Package storage persists finished runs as a directory per run, with a JSON
// metadata file next to the sampled trajectory in CSV form.
package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/san-kum/fmulab/internal/sim"
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

// Dir returns the store root.
func (s *Store) Dir() string { return s.baseDir }

type RunMetadata struct {
	ID         string             `json:"id"`
	Model      string             `json:"model"`
	Mode       string             `json:"mode"`
	Timestamp  time.Time          `json:"timestamp"`
	StartTime  float64            `json:"start_time"`
	StopTime   float64            `json:"stop_time"`
	StepSize   float64            `json:"step_size"`
	Integrator string             `json:"integrator,omitempty"`
	Columns    []string           `json:"columns"`
	Steps      int                `json:"steps"`
	ElapsedMS  int64              `json:"elapsed_ms"`
	Final      map[string]float64 `json:"final"`
}

// RunInfo identifies the run being saved.
type RunInfo struct {
	Model      string
	Mode       string
	StartTime  float64
	StopTime   float64
	StepSize   float64
	Integrator string
}

// Save writes metadata.json and results.csv under a fresh run directory and
// returns the run ID.
func (s *Store) Save(info RunInfo, result *sim.Result) (string, error) {
	runID := uuid.NewString()
	runDir := filepath.Join(s.baseDir, runID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	meta := RunMetadata{
		ID:         runID,
		Model:      info.Model,
		Mode:       info.Mode,
		Timestamp:  time.Now(),
		StartTime:  info.StartTime,
		StopTime:   info.StopTime,
		StepSize:   info.StepSize,
		Integrator: info.Integrator,
		Columns:    result.Columns,
		Steps:      result.Steps,
		ElapsedMS:  result.Elapsed.Milliseconds(),
		Final:      result.Final(),
	}

	metaFile, err := os.Create(filepath.Join(runDir, "metadata.json"))
	if err != nil {
		return "", err
	}
	defer metaFile.Close()

	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return "", err
	}

	csvFile, err := os.Create(filepath.Join(runDir, "results.csv"))
	if err != nil {
		return "", err
	}
	defer csvFile.Close()

	if err := WriteCSV(csvFile, result); err != nil {
		return "", err
	}
	return runID, nil
}

// List returns the metadata of every stored run, newest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].Timestamp.After(runs[j].Timestamp)
	})
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, "metadata.json"))
	if err != nil {
		return nil, err
	}
	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// LoadResult reads the sampled trajectory of a stored run back.
func (s *Store) LoadResult(runID string) (*sim.Result, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, "results.csv"))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("storage: run %s has an empty results file", runID)
	}

	header := records[0]
	if len(header) < 1 || header[0] != "time" {
		return nil, fmt.Errorf("storage: run %s has a malformed header", runID)
	}
	result := &sim.Result{Columns: append([]string(nil), header[1:]...)}
	for _, record := range records[1:] {
		if len(record) != len(header) {
			return nil, fmt.Errorf("storage: run %s has a ragged row", runID)
		}
		t, err := strconv.ParseFloat(record[0], 64)
		if err != nil {
			return nil, fmt.Errorf("storage: run %s: %w", runID, err)
		}
		row := make([]float64, len(record)-1)
		for j, field := range record[1:] {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("storage: run %s: %w", runID, err)
			}
			row[j] = v
		}
		result.Times = append(result.Times, t)
		result.Values = append(result.Values, row)
	}
	return result, nil
}

// Delete removes a stored run.
func (s *Store) Delete(runID string) error {
	return os.RemoveAll(filepath.Join(s.baseDir, runID))
}

package storage

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"

	"github.com/san-kum/fmulab/internal/sim"
)

// WriteCSV writes a trajectory as a time column followed by one column per
// recorded variable.
func WriteCSV(w io.Writer, result *sim.Result) error {
	cw := csv.NewWriter(w)
	header := append([]string{"time"}, result.Columns...)
	if err := cw.Write(header); err != nil {
		return err
	}
	row := make([]string, len(header))
	for i, t := range result.Times {
		row[0] = strconv.FormatFloat(t, 'g', -1, 64)
		for j, v := range result.Values[i] {
			row[j+1] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

type exportData struct {
	Model      string             `json:"model,omitempty"`
	Mode       string             `json:"mode,omitempty"`
	Integrator string             `json:"integrator,omitempty"`
	Steps      int                `json:"steps"`
	Columns    []string           `json:"columns"`
	Times      []float64          `json:"times"`
	Values     [][]float64        `json:"values"`
	Final      map[string]float64 `json:"final"`
}

// WriteJSON writes a trajectory with its run info as a single indented JSON
// document.
func WriteJSON(w io.Writer, info RunInfo, result *sim.Result) error {
	data := exportData{
		Model:      info.Model,
		Mode:       info.Mode,
		Integrator: info.Integrator,
		Steps:      result.Steps,
		Columns:    result.Columns,
		Times:      result.Times,
		Values:     result.Values,
		Final:      result.Final(),
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

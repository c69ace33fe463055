package batch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/fmulab/internal/fmi2"
	"github.com/san-kum/fmulab/internal/refmodel"
	"github.com/san-kum/fmulab/internal/sim"
)

func springFactory() Factory {
	return func() (*fmi2.Instance, func() error, error) {
		inst, err := refmodel.Instantiate("batch", "spring_mass", fmi2.CoSimulation)
		if err != nil {
			return nil, nil, err
		}
		return inst, func() error { inst.Close(); return nil }, nil
	}
}

func TestSweepProduct(t *testing.T) {
	s := Sweep{Params: []Param{
		{Name: "k", Values: []any{1.0, 2.0, 3.0}},
		{Name: "c", Values: []any{0.1, 0.2}},
	}}
	cases, err := s.Cases()
	require.NoError(t, err)
	require.Len(t, cases, 6)
	assert.Equal(t, Case{"k": 1.0, "c": 0.1}, cases[0])
	assert.Equal(t, Case{"k": 1.0, "c": 0.2}, cases[1])
	assert.Equal(t, Case{"k": 3.0, "c": 0.2}, cases[5])
}

func TestSweepZip(t *testing.T) {
	s := Sweep{Mode: ModeZip, Params: []Param{
		{Name: "k", Values: []any{1.0, 2.0}},
		{Name: "c", Values: []any{0.1, 0.2}},
	}}
	cases, err := s.Cases()
	require.NoError(t, err)
	require.Len(t, cases, 2)
	assert.Equal(t, Case{"k": 2.0, "c": 0.2}, cases[1])
}

func TestSweepErrors(t *testing.T) {
	_, err := Sweep{}.Cases()
	assert.Error(t, err)

	_, err = Sweep{Mode: ModeZip, Params: []Param{
		{Name: "k", Values: []any{1.0, 2.0}},
		{Name: "c", Values: []any{0.1}},
	}}.Cases()
	assert.Error(t, err)

	_, err = Sweep{Mode: "diagonal", Params: []Param{
		{Name: "k", Values: []any{1.0}},
	}}.Cases()
	assert.Error(t, err)
}

func TestRunSweep(t *testing.T) {
	cases, err := Sweep{Params: []Param{
		{Name: "k", Values: []any{1.0, 4.0, 9.0}},
	}}.Cases()
	require.NoError(t, err)

	base := sim.Config{StopTime: 2.0, StepSize: 0.01, Record: []string{"x"}}
	report, err := Run(context.Background(), springFactory(), base, cases, Options{Workers: 2})
	require.NoError(t, err)
	require.NoError(t, report.FirstError())
	require.Len(t, report.Results, 3)
	assert.Equal(t, 0, report.Failed)

	for i, res := range report.Results {
		assert.Equal(t, i, res.Index)
		require.NotNil(t, res.Result, "case %d has no result", i)
		assert.Equal(t, cases[i], res.Case)
	}

	// Stiffer springs oscillate faster, so the final positions must differ.
	x0 := report.Results[0].Result.Final()["x"]
	x2 := report.Results[2].Result.Final()["x"]
	assert.NotEqual(t, x0, x2)

	stats, ok := report.Summary["x"]
	require.True(t, ok)
	assert.Equal(t, 3, stats.N)
	assert.GreaterOrEqual(t, stats.Max, stats.Min)
}

func TestRunReusesWorkerInstance(t *testing.T) {
	var mu sync.Mutex
	created := 0
	factory := func() (*fmi2.Instance, func() error, error) {
		mu.Lock()
		created++
		mu.Unlock()
		inst, err := refmodel.Instantiate("batch", "spring_mass", fmi2.CoSimulation)
		if err != nil {
			return nil, nil, err
		}
		return inst, func() error { inst.Close(); return nil }, nil
	}

	cases, err := Sweep{Params: []Param{
		{Name: "k", Values: []any{1.0, 2.0, 3.0, 4.0}},
	}}.Cases()
	require.NoError(t, err)

	base := sim.Config{StopTime: 0.5, StepSize: 0.01}
	report, err := Run(context.Background(), factory, base, cases, Options{Workers: 1})
	require.NoError(t, err)
	require.NoError(t, report.FirstError())
	assert.Equal(t, 1, created, "single worker should reset, not rebuild")
}

func TestRunFailFast(t *testing.T) {
	boom := errors.New("boom")
	var mu sync.Mutex
	calls := 0
	factory := func() (*fmi2.Instance, func() error, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return nil, nil, boom
	}

	cases := make([]Case, 16)
	for i := range cases {
		cases[i] = Case{"k": float64(i)}
	}
	report, err := Run(context.Background(), factory, sim.Config{StopTime: 1, StepSize: 0.1}, cases, Options{
		Workers:  2,
		FailFast: true,
	})
	require.NoError(t, err)
	assert.ErrorIs(t, report.FirstError(), boom)
	assert.Greater(t, report.Failed, 0)
	mu.Lock()
	defer mu.Unlock()
	assert.Less(t, calls, len(cases), "fail-fast should stop before exhausting cases")
}

func TestRunProgressAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := NewMetrics(reg)
	require.NoError(t, err)

	var mu sync.Mutex
	var seen []int
	cases, err := Sweep{Params: []Param{
		{Name: "k", Values: []any{1.0, 2.0}},
	}}.Cases()
	require.NoError(t, err)

	report, err := Run(context.Background(), springFactory(), sim.Config{StopTime: 0.5, StepSize: 0.01}, cases, Options{
		Workers: 1,
		Metrics: metrics,
		OnProgress: func(done, total int) {
			mu.Lock()
			seen = append(seen, done)
			mu.Unlock()
			assert.Equal(t, 2, total)
		},
	})
	require.NoError(t, err)
	require.NoError(t, report.FirstError())
	assert.Equal(t, []int{1, 2}, seen)

	n := testutil.ToFloat64(metrics.runs.WithLabelValues("ok"))
	assert.Equal(t, 2.0, n)
}

func TestRunCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cases := []Case{{"k": 1.0}, {"k": 2.0}}
	report, err := Run(ctx, springFactory(), sim.Config{StopTime: 1, StepSize: 0.01}, cases, Options{Workers: 1})
	require.NoError(t, err)
	assert.Error(t, report.FirstError())
	assert.Equal(t, len(cases), report.Failed)
}

func TestLoadSweep(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sweep.yaml")
	data := `mode: product
params:
  - name: k
    values: [1.0, 2.0]
  - name: c
    values: [0.1]
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	s, err := LoadSweep(path)
	require.NoError(t, err)
	cases, err := s.Cases()
	require.NoError(t, err)
	assert.Len(t, cases, 2)

	_, err = LoadSweep(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestRunElapsed(t *testing.T) {
	cases := []Case{{"k": 1.0}}
	report, err := Run(context.Background(), springFactory(), sim.Config{StopTime: 0.1, StepSize: 0.01}, cases, Options{})
	require.NoError(t, err)
	assert.Greater(t, report.Elapsed, time.Duration(0))
}

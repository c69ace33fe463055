package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/san-kum/fmulab/internal/analysis"
	"github.com/san-kum/fmulab/internal/batch"
	"github.com/san-kum/fmulab/internal/binding"
	"github.com/san-kum/fmulab/internal/config"
	"github.com/san-kum/fmulab/internal/fmi2"
	"github.com/san-kum/fmulab/internal/fmu"
	"github.com/san-kum/fmulab/internal/logging"
	"github.com/san-kum/fmulab/internal/modeldesc"
	"github.com/san-kum/fmulab/internal/refmodel"
	"github.com/san-kum/fmulab/internal/sim"
	"github.com/san-kum/fmulab/internal/storage"
	"github.com/san-kum/fmulab/internal/tui"
)

var (
	dataDir    string
	mode       string
	startTime  float64
	stopTime   float64
	stepSize   float64
	tolerance  float64
	integrator string
	record     []string
	setValues  []string
	configFile string
	sweepFile  string
	noSave     bool
	workers    int
	failFast   bool
	progress   bool
	fmuLogs    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "fmulab",
		Short: "FMI 2.0 simulation lab",
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".fmulab", "run store directory")

	infoCmd := &cobra.Command{
		Use:   "info [model.fmu|model]",
		Short: "show model description",
		Args:  cobra.ExactArgs(1),
		RunE:  showInfo,
	}

	validateCmd := &cobra.Command{
		Use:   "validate [model.fmu]",
		Short: "validate an FMU archive",
		Args:  cobra.ExactArgs(1),
		RunE:  validateFMU,
	}

	simulateCmd := &cobra.Command{
		Use:   "simulate [model.fmu|model]",
		Short: "run one simulation",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSimulate,
	}
	addRunFlags(simulateCmd)
	simulateCmd.Flags().StringVar(&configFile, "config", "", "run description file (yaml or json)")
	simulateCmd.Flags().BoolVar(&noSave, "no-save", false, "skip persisting the run")

	batchCmd := &cobra.Command{
		Use:   "batch [model.fmu|model]",
		Short: "run a parameter sweep",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runBatch,
	}
	addRunFlags(batchCmd)
	batchCmd.Flags().StringVar(&configFile, "config", "", "run description file with a sweep section")
	batchCmd.Flags().StringVar(&sweepFile, "sweep", "", "standalone sweep file (yaml)")
	batchCmd.Flags().IntVar(&workers, "workers", 0, "concurrent workers (0 = auto)")
	batchCmd.Flags().BoolVar(&failFast, "fail-fast", false, "stop after the first failure")
	batchCmd.Flags().BoolVar(&progress, "progress", true, "show a progress bar")

	demoCmd := &cobra.Command{
		Use:   "demo [model]",
		Short: "watch a built-in model live",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runDemo,
	}
	demoCmd.Flags().Float64Var(&stepSize, "step", 0.01, "communication step")
	demoCmd.Flags().Float64Var(&stopTime, "stop", 60.0, "stop time")

	modelsCmd := &cobra.Command{
		Use:   "models",
		Short: "list built-in reference models",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range refmodel.Models() {
				fmt.Println(name)
			}
			return nil
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list stored runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot a stored run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}

	exportCSVCmd := &cobra.Command{
		Use:   "export-csv [run_id]",
		Short: "write a stored run as CSV to stdout",
		Args:  cobra.ExactArgs(1),
		RunE:  exportCSV,
	}

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [run_id]",
		Short: "write a stored run as JSON to stdout",
		Args:  cobra.ExactArgs(1),
		RunE:  exportJSON,
	}

	exportSVGCmd := &cobra.Command{
		Use:   "export-svg [run_id]",
		Short: "write a stored run as an SVG plot to stdout",
		Args:  cobra.ExactArgs(1),
		RunE:  exportSVG,
	}

	analyzeCmd := &cobra.Command{
		Use:   "analyze [run_id]",
		Short: "frequency analysis of a stored run",
		Args:  cobra.ExactArgs(1),
		RunE:  analyzeRun,
	}

	configInitCmd := &cobra.Command{
		Use:   "config-init [path]",
		Short: "write a starter run description",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "fmulab.yaml"
			if len(args) > 0 {
				path = args[0]
			}
			if err := config.WriteTemplate(path); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", path)
			return nil
		},
	}

	rootCmd.AddCommand(infoCmd, validateCmd, simulateCmd, batchCmd, demoCmd, modelsCmd,
		listCmd, plotCmd, analyzeCmd, exportCSVCmd, exportJSONCmd, exportSVGCmd, configInitCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&mode, "mode", "", "execution mode: cs or me")
	cmd.Flags().Float64Var(&startTime, "start", 0, "start time")
	cmd.Flags().Float64Var(&stopTime, "stop", 0, "stop time (0 = model default)")
	cmd.Flags().Float64Var(&stepSize, "step", 0, "step size (0 = model default)")
	cmd.Flags().Float64Var(&tolerance, "tolerance", 0, "relative tolerance")
	cmd.Flags().StringVar(&integrator, "integrator", "rk4", "me integrator: euler, rk4, rk45")
	cmd.Flags().StringSliceVar(&record, "record", nil, "variables to record (default: all outputs)")
	cmd.Flags().StringArrayVar(&setValues, "set", nil, "start value override, name=value (repeatable)")
	cmd.Flags().BoolVar(&fmuLogs, "fmu-logs", false, "forward FMU log callbacks")
}

// resolveConfig merges the optional config file with command-line flags.
// Flags that were set explicitly win over the file.
func resolveConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := &config.Config{}
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg.Mode = config.ModeCS
		cfg.Run.Integrator = "rk4"
		cfg.Output.Format = "csv"
	}

	if len(args) > 0 {
		if looksLikeFMU(args[0]) {
			cfg.FMU, cfg.Model = args[0], ""
		} else {
			cfg.Model, cfg.FMU = args[0], ""
		}
	}
	if cmd.Flags().Changed("mode") {
		cfg.Mode = mode
	}
	if cmd.Flags().Changed("start") {
		cfg.Run.Start = startTime
	}
	if cmd.Flags().Changed("stop") {
		cfg.Run.Stop = stopTime
	}
	if cmd.Flags().Changed("step") {
		cfg.Run.Step = stepSize
	}
	if cmd.Flags().Changed("tolerance") {
		cfg.Run.Tolerance = tolerance
	}
	if cmd.Flags().Changed("integrator") {
		cfg.Run.Integrator = integrator
	}
	if cmd.Flags().Changed("record") {
		cfg.Run.Record = record
	}
	if cmd.Flags().Changed("workers") {
		cfg.Batch.Workers = workers
	}
	if cmd.Flags().Changed("fail-fast") {
		cfg.Batch.FailFast = failFast
	}
	for _, kv := range setValues {
		name, raw, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --set %q, want name=value", kv)
		}
		if cfg.Run.StartValues == nil {
			cfg.Run.StartValues = make(map[string]any)
		}
		cfg.Run.StartValues[name] = parseValue(raw)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func looksLikeFMU(arg string) bool {
	if strings.HasSuffix(arg, ".fmu") {
		return true
	}
	_, err := os.Stat(arg)
	return err == nil
}

func parseValue(raw string) any {
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}
	return raw
}

// openInstance builds an instance from either an FMU archive or a built-in
// reference model. The returned release function frees everything behind it.
func openInstance(cfg *config.Config, name string) (*fmi2.Instance, func(), error) {
	kind := fmi2.CoSimulation
	if cfg.Mode == config.ModeME {
		kind = fmi2.ModelExchange
	}
	log := logging.New("fmu")
	if !fmuLogs {
		log = logging.Nop{}
	}

	if cfg.Model != "" {
		inst, err := refmodel.Instantiate(name, cfg.Model, kind)
		if err != nil {
			return nil, nil, err
		}
		return inst, inst.Close, nil
	}

	f, err := fmu.Load(cfg.FMU)
	if err != nil {
		return nil, nil, err
	}
	mi, err := binding.Instantiate(f, name, kind, fmuLogs, log)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	release := func() {
		mi.Close()
		f.Close()
	}
	return mi.Inst, release, nil
}

func modelName(cfg *config.Config) string {
	if cfg.Model != "" {
		return cfg.Model
	}
	return cfg.FMU
}

func interruptContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func showInfo(cmd *cobra.Command, args []string) error {
	cfg := &config.Config{Mode: config.ModeCS}
	if looksLikeFMU(args[0]) {
		cfg.FMU = args[0]
	} else {
		cfg.Model = args[0]
	}

	inst, release, err := openInstance(cfg, "info")
	if err != nil {
		return err
	}
	defer release()
	md := inst.Description()

	fmt.Printf("model:       %s\n", md.ModelName)
	fmt.Printf("fmi version: %s\n", md.FMIVersion)
	fmt.Printf("guid:        %s\n", md.GUID)
	if md.GenerationTool != "" {
		fmt.Printf("tool:        %s\n", md.GenerationTool)
	}
	kinds := []string{}
	if md.CoSimulation != nil {
		kinds = append(kinds, "co-simulation")
	}
	if md.ModelExchange != nil {
		kinds = append(kinds, "model-exchange")
	}
	fmt.Printf("interfaces:  %s\n", strings.Join(kinds, ", "))
	states, err := md.ContinuousStates()
	if err != nil {
		return err
	}
	fmt.Printf("states:      %d\n", len(states))
	fmt.Printf("indicators:  %d\n", md.NumberOfEventIndicators)
	if exp := md.DefaultExperiment; exp != nil && exp.StopTime != nil {
		fmt.Printf("default stop: %g\n", *exp.StopTime)
	}

	fmt.Println()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tVR\tTYPE\tCAUSALITY\tVARIABILITY\tSTART")
	for _, v := range md.Variables {
		start := ""
		if sv, ok := v.StartValue(); ok {
			start = fmt.Sprintf("%v", sv)
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\n",
			v.Name, v.ValueReference, v.Type(), v.Causality, v.EffectiveVariability(), start)
	}
	return w.Flush()
}

func validateFMU(cmd *cobra.Command, args []string) error {
	f, err := fmu.Load(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	md := f.Description
	states, err := md.ContinuousStates()
	if err != nil {
		return err
	}
	fmt.Printf("%s: ok\n", args[0])
	fmt.Printf("model %s, %d variables, %d states\n",
		md.ModelName, len(md.Variables), len(states))

	ident := ""
	if md.CoSimulation != nil {
		ident = md.CoSimulation.ModelIdentifier
	} else if md.ModelExchange != nil {
		ident = md.ModelExchange.ModelIdentifier
	}
	if _, err := f.BinaryPath(ident); err != nil {
		fmt.Printf("warning: %v\n", err)
	}
	return nil
}

func runSimulate(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd, args)
	if err != nil {
		return err
	}
	simCfg, err := cfg.SimConfig()
	if err != nil {
		return err
	}

	inst, release, err := openInstance(cfg, "run")
	if err != nil {
		return err
	}
	defer release()

	ctx, cancel := interruptContext()
	defer cancel()

	fmt.Printf("simulating %s (%s)...\n", modelName(cfg), cfg.Mode)
	result, err := sim.Simulate(ctx, inst, simCfg)
	if err != nil {
		return err
	}

	fmt.Printf("completed in %v (%d steps, %d samples)\n", result.Elapsed, result.Steps, len(result.Times))
	final := result.Final()
	for _, name := range finalColumns(final) {
		fmt.Printf("  %s = %.6g\n", name, final[name])
	}

	if noSave {
		return nil
	}
	st := storage.New(storeDir(cfg))
	if err := st.Init(); err != nil {
		return err
	}
	runID, err := st.Save(runInfo(cfg, simCfg), result)
	if err != nil {
		return err
	}
	fmt.Printf("run id: %s\n", runID)
	return nil
}

func finalColumns(final map[string]float64) []string {
	cols := make([]string, 0, len(final))
	for name := range final {
		cols = append(cols, name)
	}
	sort.Strings(cols)
	return cols
}

func storeDir(cfg *config.Config) string {
	if cfg.Output.Dir != "" {
		return cfg.Output.Dir
	}
	return dataDir
}

func runInfo(cfg *config.Config, simCfg sim.Config) storage.RunInfo {
	return storage.RunInfo{
		Model:      modelName(cfg),
		Mode:       cfg.Mode,
		StartTime:  simCfg.StartTime,
		StopTime:   simCfg.StopTime,
		StepSize:   simCfg.StepSize,
		Integrator: cfg.Run.Integrator,
	}
}

func runBatch(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd, args)
	if err != nil {
		return err
	}
	if sweepFile != "" {
		s, err := batch.LoadSweep(sweepFile)
		if err != nil {
			return err
		}
		cfg.Sweep = s
	}
	if cfg.Sweep == nil {
		return fmt.Errorf("batch needs a sweep section in the config file or a --sweep file")
	}
	cases, err := cfg.Sweep.Cases()
	if err != nil {
		return err
	}
	simCfg, err := cfg.SimConfig()
	if err != nil {
		return err
	}

	kind := fmi2.CoSimulation
	if cfg.Mode == config.ModeME {
		kind = fmi2.ModelExchange
	}
	factory := instanceFactory(cfg, kind)

	metrics, err := batch.NewMetrics(nil)
	if err != nil {
		return err
	}
	opts := batch.Options{
		Workers:  cfg.Batch.Workers,
		FailFast: cfg.Batch.FailFast,
		Metrics:  metrics,
		Log:      logging.New("batch"),
	}

	ctx, cancel := interruptContext()
	defer cancel()

	fmt.Printf("running %d cases over %s (%s)...\n", len(cases), modelName(cfg), cfg.Mode)

	var report *batch.Report
	if progress {
		updates := make(chan tui.ProgressMsg, len(cases))
		opts.OnProgress = func(done, total int) {
			updates <- tui.ProgressMsg{Done: done, Total: total}
		}
		errCh := make(chan error, 1)
		go func() {
			var runErr error
			report, runErr = batch.Run(ctx, factory, simCfg, cases, opts)
			close(updates)
			errCh <- runErr
		}()
		if err := tui.NewProgress(updates).Run(); err != nil {
			return err
		}
		if err := <-errCh; err != nil {
			return err
		}
	} else {
		report, err = batch.Run(ctx, factory, simCfg, cases, opts)
		if err != nil {
			return err
		}
	}

	fmt.Printf("finished in %v, %d/%d ok\n\n", report.Elapsed.Round(time.Millisecond),
		len(report.Results)-report.Failed, len(report.Results))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "COLUMN\tN\tMEAN\tSTD\tMIN\tMAX")
	cols := make([]string, 0, len(report.Summary))
	for col := range report.Summary {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	for _, col := range cols {
		s := report.Summary[col]
		fmt.Fprintf(w, "%s\t%d\t%.6g\t%.6g\t%.6g\t%.6g\n", col, s.N, s.Mean, s.Std, s.Min, s.Max)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if report.Failed > 0 {
		for _, r := range report.Results {
			if r.Err != nil {
				fmt.Printf("case %d %v: %v\n", r.Index, r.Case, r.Err)
			}
		}
		return fmt.Errorf("%d of %d cases failed", report.Failed, len(report.Results))
	}
	return nil
}

func instanceFactory(cfg *config.Config, kind fmi2.Kind) batch.Factory {
	if cfg.Model != "" {
		return func() (*fmi2.Instance, func() error, error) {
			inst, err := refmodel.Instantiate("batch", cfg.Model, kind)
			if err != nil {
				return nil, nil, err
			}
			return inst, func() error { inst.Close(); return nil }, nil
		}
	}
	return func() (*fmi2.Instance, func() error, error) {
		f, err := fmu.Load(cfg.FMU)
		if err != nil {
			return nil, nil, err
		}
		mi, err := binding.Instantiate(f, "batch", kind, false, logging.Nop{})
		if err != nil {
			f.Close()
			return nil, nil, err
		}
		return mi.Inst, func() error {
			err := mi.Close()
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			return err
		}, nil
	}
}

func runDemo(cmd *cobra.Command, args []string) error {
	model := "bouncing_ball"
	if len(args) > 0 {
		model = args[0]
	}
	inst, err := refmodel.Instantiate("demo", model, fmi2.CoSimulation)
	if err != nil {
		return err
	}
	defer inst.Close()

	if err := inst.SetupExperiment(0, &stopTime, nil); err != nil {
		return err
	}
	if err := inst.EnterInitializationMode(); err != nil {
		return err
	}
	if err := inst.ExitInitializationMode(); err != nil {
		return err
	}

	names := []string{}
	for _, v := range inst.Description().Outputs() {
		if v.Type() == modeldesc.TypeString {
			continue
		}
		names = append(names, v.Name)
	}
	if len(names) == 0 {
		return fmt.Errorf("model %s declares no outputs", model)
	}
	return tui.NewWatch(inst, names, stepSize, stopTime).Run()
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tMODEL\tMODE\tTIME\tSTOP\tSTEP\tSAMPLES")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.2fs\t%.4fs\t%d\n",
			run.ID,
			run.Model,
			run.Mode,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.StopTime,
			run.StepSize,
			run.Steps,
		)
	}
	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	result, err := st.LoadResult(args[0])
	if err != nil {
		return err
	}
	if len(result.Times) == 0 {
		return fmt.Errorf("no data to plot")
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("model: %s (%s)\n", meta.Model, meta.Mode)
	fmt.Printf("samples: %d\n\n", len(result.Times))

	maxPlots := 6
	for j, col := range result.Columns {
		if j >= maxPlots {
			fmt.Printf("(%d more columns not shown)\n", len(result.Columns)-maxPlots)
			break
		}
		data, _ := result.Column(col)
		graph := asciigraph.Plot(data,
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption(col+" vs time"),
		)
		fmt.Println(graph)
		fmt.Println()
	}
	return nil
}

func analyzeRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	result, err := st.LoadResult(args[0])
	if err != nil {
		return err
	}
	if len(result.Times) < 2 {
		return fmt.Errorf("not enough samples to analyze")
	}
	dt := result.Times[1] - result.Times[0]

	fmt.Printf("frequency analysis: %s\n", meta.ID)
	fmt.Printf("model: %s\n\n", meta.Model)

	for _, col := range result.Columns {
		data, _ := result.Column(col)
		ps := analysis.PowerSpectrum(data)
		plotData := ps[:len(ps)/4]

		graph := asciigraph.Plot(plotData,
			asciigraph.Height(12),
			asciigraph.Width(80),
			asciigraph.Caption(fmt.Sprintf("power spectrum (%s)", col)),
		)
		fmt.Println(graph)
		fmt.Printf("dominant frequency: %.3f Hz\n\n", analysis.DominantFrequency(data, dt))
	}
	return nil
}

func exportCSV(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	result, err := st.LoadResult(args[0])
	if err != nil {
		return err
	}
	return storage.WriteCSV(os.Stdout, result)
}

func exportJSON(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	result, err := st.LoadResult(args[0])
	if err != nil {
		return err
	}
	info := storage.RunInfo{Model: meta.Model, Mode: meta.Mode, Integrator: meta.Integrator}
	return storage.WriteJSON(os.Stdout, info, result)
}

func exportSVG(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	result, err := st.LoadResult(args[0])
	if err != nil {
		return err
	}
	return storage.WriteSVG(os.Stdout, result, 800, 400)
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"
	"github.com/ukydev/cmms-risk/internal/app"
	"github.com/ukydev/cmms-risk/internal/db/memstore"
	"github.com/ukydev/cmms-risk/internal/model"
	"github.com/ukydev/cmms-risk/internal/notify"
	"github.com/ukydev/cmms-risk/internal/predictor"
	"github.com/ukydev/cmms-risk/internal/report"
	"github.com/ukydev/cmms-risk/internal/synth"
)

type trainCommand struct {
	modelPath string
	folds     int
}

var _ subcommands.Command = &trainCommand{}

func (*trainCommand) Name() string     { return "train" }
func (*trainCommand) Synopsis() string { return "train a model on the maintenance history and save it" }
func (*trainCommand) Usage() string {
	return `train [-model path] [-cv k]:
  Build snapshots over the lookback period, fit the configured model, tune the
  decision threshold and save the artifact.
`
}

func (c *trainCommand) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.modelPath, "model", "", "artifact path (default $MODEL_PATH)")
	f.IntVar(&c.folds, "cv", 0, "also report k-fold cross-validated ROC-AUC when k > 1")
}

func (c *trainCommand) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	rt := runtimeFrom(args)
	a, err := rt.open(ctx)
	if err != nil {
		rt.log.WithError(err).Error("Failed to open datastore")
		return subcommands.ExitFailure
	}
	defer a.Close()

	path := orDefault(c.modelPath, rt.cfg.ModelPath)
	art, err := a.Pipeline.TrainAndSave(ctx, rt.now(), path)
	if errors.Is(err, model.ErrNoPositiveSamples) {
		rt.log.WithError(err).Error("Not enough failures in the history to train")
		return subcommands.ExitFailure
	}
	if err != nil {
		rt.log.WithError(err).Error("Training failed")
		return subcommands.ExitFailure
	}
	printTraining(rt.out, art, path)

	if c.folds > 1 {
		cv, err := a.Pipeline.CrossValidate(ctx, rt.now(), c.folds)
		if err != nil {
			rt.log.WithError(err).Error("Cross-validation failed")
			return subcommands.ExitFailure
		}
		fmt.Fprintf(rt.out, "\nCross-validated ROC-AUC (%d folds): %.4f (+/- %.4f)\n", cv.Folds, cv.Mean, 2*cv.Std)
		if cv.Undefined > 0 {
			fmt.Fprintf(rt.out, "  %d fold(s) had a single class and were not scored\n", cv.Undefined)
		}
	}
	return subcommands.ExitSuccess
}

func printTraining(w io.Writer, art *model.Artifact, path string) {
	fmt.Fprintf(w, "Model %s (%s) saved to %s\n", art.ID, art.ModelType, path)
	fmt.Fprintf(w, "Decision threshold: %.2f\n\n", art.Threshold)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SPLIT\tSAMPLES\tPOSITIVES\tROC-AUC\tPRECISION\tRECALL\tF1")
	for _, split := range []string{model.SplitTraining, model.SplitValidation, model.SplitTest} {
		m, ok := art.Metrics[split]
		if !ok {
			continue
		}
		auc := "n/a"
		if m.ROCAUC != nil {
			auc = fmt.Sprintf("%.4f", *m.ROCAUC)
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%.4f\t%.4f\t%.4f\n", split, m.Samples, m.Positives, auc, m.Precision, m.Recall, m.F1)
	}
	tw.Flush()

	if n := min(10, len(art.FeatureImportances)); n > 0 {
		fmt.Fprintln(w, "\nTop features:")
		for _, imp := range art.FeatureImportances[:n] {
			fmt.Fprintf(w, "  %-32s %.4f\n", imp.Feature, imp.Importance)
		}
	}
	for _, warn := range art.Warnings {
		fmt.Fprintf(w, "WARNING: %s\n", warn)
	}
}

type predictCommand struct {
	threshold float64
	top       int
	asJSON    bool
	noAlerts  bool
}

var _ subcommands.Command = &predictCommand{}

func (*predictCommand) Name() string     { return "predict" }
func (*predictCommand) Synopsis() string { return "score all eligible equipment with the saved model" }
func (*predictCommand) Usage() string {
	return `predict [-threshold p] [-top n] [-json] [-no-alerts]:
  Print the risk summary and the equipment above the high-risk threshold.
  Critical equipment is published to MQTT when MQTT_BROKER is set.
`
}

func (c *predictCommand) SetFlags(f *flag.FlagSet) {
	f.Float64Var(&c.threshold, "threshold", -1, "high-risk probability cut-off (default $HIGH_RISK_THRESHOLD)")
	f.IntVar(&c.top, "top", 20, "maximum high-risk rows to print")
	f.BoolVar(&c.asJSON, "json", false, "print the full batch as JSON")
	f.BoolVar(&c.noAlerts, "no-alerts", false, "do not publish MQTT alerts")
}

func (c *predictCommand) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	rt := runtimeFrom(args)
	threshold := c.threshold
	if threshold < 0 {
		threshold = rt.cfg.HighRiskThreshold
	}
	if threshold > 1 {
		rt.log.WithField("threshold", threshold).Error("Threshold must be within [0, 1]")
		return subcommands.ExitUsageError
	}

	a, batch, status := score(ctx, rt)
	if status != subcommands.ExitSuccess {
		return status
	}
	defer a.Close()

	if c.asJSON {
		enc := json.NewEncoder(rt.out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(batch); err != nil {
			rt.log.WithError(err).Error("Failed to encode predictions")
			return subcommands.ExitFailure
		}
	} else {
		printPredictions(rt.out, batch, threshold, c.top)
	}

	if rt.cfg.AlertsEnabled() && !c.noAlerts {
		if err := publishAlerts(rt, batch); err != nil {
			rt.log.WithError(err).Warn("Some risk alerts were not published")
		}
	}
	return subcommands.ExitSuccess
}

// score opens the datastore, loads the model and scores every eligible
// equipment. The returned App is open only on success.
func score(ctx context.Context, rt *runtime) (*app.App, predictor.Batch, subcommands.ExitStatus) {
	a, err := rt.open(ctx)
	if err != nil {
		rt.log.WithError(err).Error("Failed to open datastore")
		return nil, predictor.Batch{}, subcommands.ExitFailure
	}
	batch, err := predictWith(ctx, rt, a)
	if err != nil {
		a.Close()
		return nil, predictor.Batch{}, subcommands.ExitFailure
	}
	return a, batch, subcommands.ExitSuccess
}

func predictWith(ctx context.Context, rt *runtime, a *app.App) (predictor.Batch, error) {
	p, err := a.Predictor(predictor.WithClock(rt.now))
	if err != nil {
		rt.log.WithError(err).Error("Failed to load model")
		return predictor.Batch{}, err
	}
	batch, err := p.PredictAll(ctx)
	if errors.Is(err, predictor.ErrNoModel) {
		rt.log.WithField("model_path", rt.cfg.ModelPath).Error("No trained model found; run riskctl train first")
		return batch, err
	}
	if err != nil {
		rt.log.WithError(err).Error("Prediction failed")
	}
	return batch, err
}

func printPredictions(w io.Writer, batch predictor.Batch, threshold float64, top int) {
	sum := report.Summarize(batch.Results)
	fmt.Fprintf(w, "Scored %d equipment with model %s\n\n", sum.Total, batch.ModelID)
	for _, b := range predictor.Buckets {
		fmt.Fprintf(w, "  %-8s %5d (%5.1f%%)\n", b, sum.Counts[b], sum.Percent(b))
	}

	high := predictor.FilterAbove(batch.Results, threshold)
	fmt.Fprintf(w, "\n%d equipment above %.2f\n", len(high), threshold)
	if len(high) == 0 {
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "EQUIPMENT\tLOCATION\tPROBABILITY\tRISK")
	for _, r := range high[:min(top, len(high))] {
		fmt.Fprintf(tw, "%s\t%s\t%.3f\t%s\n", r.EquipmentNo, r.Location, r.Probability, r.Bucket)
	}
	tw.Flush()
}

func publishAlerts(rt *runtime, batch predictor.Batch) error {
	mcfg := rt.cfg.MQTT()
	client, disconnect, err := rt.dialMQTT(mcfg)
	if err != nil {
		return err
	}
	defer disconnect()
	_, err = notify.NewAlerter(client, mcfg.Topic, rt.log).PublishCritical(batch)
	return err
}

type reportCommand struct {
	output string
	top    int
}

var _ subcommands.Command = &reportCommand{}

func (*reportCommand) Name() string     { return "report" }
func (*reportCommand) Synopsis() string { return "write the text risk report" }
func (*reportCommand) Usage() string {
	return `report [-o path] [-top n]:
  Score all eligible equipment and write the risk report. Use -o - for stdout.
`
}

func (c *reportCommand) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.output, "o", "", "report path (default $REPORT_PATH)")
	f.IntVar(&c.top, "top", 0, "rows in the ranked table (default $REPORT_TOP_N)")
}

func (c *reportCommand) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	rt := runtimeFrom(args)
	a, batch, status := score(ctx, rt)
	if status != subcommands.ExitSuccess {
		return status
	}
	defer a.Close()

	top := c.top
	if top <= 0 {
		top = rt.cfg.ReportTopN
	}
	text := report.Generate(batch, report.Options{TopN: top, Now: rt.now()})
	path := orDefault(c.output, rt.cfg.ReportPath)
	if path == "-" {
		fmt.Fprint(rt.out, text)
		return subcommands.ExitSuccess
	}
	if err := report.WriteFile(path, text); err != nil {
		rt.log.WithError(err).Error("Failed to write report")
		return subcommands.ExitFailure
	}
	fmt.Fprintf(rt.out, "Report written to %s\n", path)
	return subcommands.ExitSuccess
}

type demoCommand struct {
	equipment int
	days      int
	seed      int64
	modelPath string
}

var _ subcommands.Command = &demoCommand{}

func (*demoCommand) Name() string     { return "demo" }
func (*demoCommand) Synopsis() string { return "train and report on synthetic history, no datastore needed" }
func (*demoCommand) Usage() string {
	return `demo [-equipment n] [-days d] [-seed s] [-model path]:
  Generate synthetic maintenance history in memory, train on it and print the
  risk report.
`
}

func (c *demoCommand) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.equipment, "equipment", 60, "number of synthetic equipment")
	f.IntVar(&c.days, "days", 450, "days of synthetic history")
	f.Int64Var(&c.seed, "seed", 42, "generator seed")
	f.StringVar(&c.modelPath, "model", "", "keep the trained artifact at this path")
}

func (c *demoCommand) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	rt := runtimeFrom(args)
	now := rt.now()
	store := memstore.New()
	h := synth.Generate(synth.Options{Equipment: c.equipment, Days: c.days, Now: now, Seed: c.seed})
	if err := synth.Load(ctx, store, h); err != nil {
		rt.log.WithError(err).Error("Failed to load synthetic history")
		return subcommands.ExitFailure
	}
	rt.log.WithFields(logrus.Fields{
		"equipment":  len(h.Equipment),
		"pms":        len(h.PMs),
		"corrective": len(h.Corrective),
	}).Info("Generated synthetic history")

	path := c.modelPath
	if path == "" {
		dir, err := os.MkdirTemp("", "riskctl-demo-")
		if err != nil {
			rt.log.WithError(err).Error("Failed to create temp dir")
			return subcommands.ExitFailure
		}
		defer os.RemoveAll(dir)
		path = filepath.Join(dir, "model.json.gz")
	}

	cfg := *rt.cfg
	cfg.ModelPath = path
	a := app.WithSource(&cfg, rt.log, store)
	defer a.Close()

	art, err := a.Pipeline.TrainAndSave(ctx, now, path)
	if err != nil {
		rt.log.WithError(err).Error("Training failed")
		return subcommands.ExitFailure
	}
	printTraining(rt.out, art, path)

	demoRT := *rt
	demoRT.cfg = &cfg
	batch, err := predictWith(ctx, &demoRT, a)
	if err != nil {
		return subcommands.ExitFailure
	}
	fmt.Fprintln(rt.out)
	fmt.Fprint(rt.out, report.Generate(batch, report.Options{TopN: cfg.ReportTopN, Now: now}))
	return subcommands.ExitSuccess
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/copperline/tagmap/internal/store"
)

func runExport(args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	runFlag := fs.String("run", "", "Run id or unique prefix (default: latest)")
	whatFlag := fs.String("what", "", "Artifact: labelings, loadings, variance, or assignments")
	formatFlag := fs.String("format", "csv", "Output format: csv or json")
	outFlag := fs.String("out", "", "Write to a file instead of stdout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if len(fs.Args()) > 0 {
		return fmt.Errorf("unexpected argument: %s", fs.Args()[0])
	}

	what := strings.ToLower(strings.TrimSpace(*whatFlag))
	if what == "" {
		return fmt.Errorf("usage: tagmap export --what labelings|loadings|variance|assignments [--run <id>] [--format csv|json] [--out <path>]")
	}
	format := strings.ToLower(strings.TrimSpace(*formatFlag))
	if format != "csv" && format != "json" {
		return fmt.Errorf("unsupported format: %s (supported: csv, json)", format)
	}

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()
	ctx := context.Background()

	// Assignments are raw import data; everything else hangs off a run.
	var run *store.Run
	if what != "assignments" {
		run, err = s.FindRun(ctx, *runFlag)
		if err != nil {
			return err
		}
		if run == nil {
			if *runFlag == "" {
				return fmt.Errorf("no analysis runs found (run 'tagmap analyze' first)")
			}
			return fmt.Errorf("run %q not found", *runFlag)
		}
	}

	var header []string
	var rows [][]string
	var payload interface{}

	switch what {
	case "labelings":
		header, rows, payload, err = exportLabelings(ctx, s, run.ID)
	case "loadings":
		header, rows, payload, err = exportLoadings(ctx, s, run.ID)
	case "variance":
		header, rows, payload, err = exportVariance(ctx, s, run.ID)
	case "assignments":
		header, rows, payload, err = exportAssignments(ctx, s)
	default:
		return fmt.Errorf("unknown artifact %q (supported: labelings, loadings, variance, assignments)", what)
	}
	if err != nil {
		return err
	}

	out := os.Stdout
	if *outFlag != "" {
		f, err := os.Create(expandUserPath(*outFlag))
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	if format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(payload); err != nil {
			return fmt.Errorf("encoding %s: %w", what, err)
		}
	} else {
		w := csv.NewWriter(out)
		if err := w.Write(header); err != nil {
			return fmt.Errorf("writing %s header: %w", what, err)
		}
		for _, row := range rows {
			if err := w.Write(row); err != nil {
				return fmt.Errorf("writing %s row: %w", what, err)
			}
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return fmt.Errorf("flushing %s: %w", what, err)
		}
	}

	if *outFlag != "" {
		fmt.Printf("Wrote %d %s rows to %s\n", len(rows), what, *outFlag)
	}
	return nil
}

// exportLabelings joins both labeling variants on the talk, one row per
// labeled talk.
func exportLabelings(ctx context.Context, s store.Store, runID string) ([]string, [][]string, interface{}, error) {
	talks, err := s.ListTalks(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	tagLabels, err := s.Labeling(ctx, runID, store.VariantTags)
	if err != nil {
		return nil, nil, nil, err
	}
	pcaLabels, err := s.Labeling(ctx, runID, store.VariantPCA)
	if err != nil {
		return nil, nil, nil, err
	}

	type labeledTalk struct {
		URL        string `json:"url"`
		Title      string `json:"title,omitempty"`
		TagCluster int    `json:"tag_cluster"`
		PCACluster int    `json:"pca_cluster"`
	}

	recs := make([]labeledTalk, 0, len(tagLabels))
	rows := make([][]string, 0, len(tagLabels))
	for _, t := range talks {
		tc, ok := tagLabels[t.ID]
		if !ok {
			continue
		}
		pc := pcaLabels[t.ID]
		recs = append(recs, labeledTalk{URL: t.URL, Title: t.Title, TagCluster: tc, PCACluster: pc})
		rows = append(rows, []string{t.URL, t.Title, strconv.Itoa(tc), strconv.Itoa(pc)})
	}

	return []string{"url", "title", "tag_cluster", "pca_cluster"}, rows, recs, nil
}

func exportLoadings(ctx context.Context, s store.Store, runID string) ([]string, [][]string, interface{}, error) {
	loadings, err := s.RunLoadings(ctx, runID)
	if err != nil {
		return nil, nil, nil, err
	}

	rows := make([][]string, 0, len(loadings))
	for _, l := range loadings {
		rows = append(rows, []string{
			strconv.Itoa(l.Ordinal),
			l.Tag,
			strconv.FormatFloat(l.Weight, 'g', -1, 64),
		})
	}
	return []string{"component", "tag", "weight"}, rows, loadings, nil
}

func exportVariance(ctx context.Context, s store.Store, runID string) ([]string, [][]string, interface{}, error) {
	comps, err := s.ComponentSummary(ctx, runID)
	if err != nil {
		return nil, nil, nil, err
	}

	type varianceRec struct {
		Component  int     `json:"component"`
		Variance   float64 `json:"variance"`
		Fraction   float64 `json:"fraction"`
		Cumulative float64 `json:"cumulative"`
	}

	recs := make([]varianceRec, 0, len(comps))
	rows := make([][]string, 0, len(comps))
	cumulative := 0.0
	for _, c := range comps {
		cumulative += c.Fraction
		recs = append(recs, varianceRec{Component: c.Ordinal, Variance: c.Variance, Fraction: c.Fraction, Cumulative: cumulative})
		rows = append(rows, []string{
			strconv.Itoa(c.Ordinal),
			strconv.FormatFloat(c.Variance, 'g', -1, 64),
			strconv.FormatFloat(c.Fraction, 'g', -1, 64),
			strconv.FormatFloat(cumulative, 'g', -1, 64),
		})
	}
	return []string{"component", "variance", "fraction", "cumulative"}, rows, recs, nil
}

func exportAssignments(ctx context.Context, s store.Store) ([]string, [][]string, interface{}, error) {
	assignments, err := s.AllAssignments(ctx)
	if err != nil {
		return nil, nil, nil, err
	}

	rows := make([][]string, 0, len(assignments))
	for _, a := range assignments {
		rows = append(rows, []string{a.URL, a.Tag, strconv.Itoa(a.Position)})
	}
	return []string{"url", "tag", "position"}, rows, assignments, nil
}

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/copperline/tagmap/internal/report"
	"github.com/copperline/tagmap/internal/store"
)

func runReport(args []string) error {
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	runFlag := fs.String("run", "", "Run id or unique prefix (default: latest)")
	variantFlag := fs.String("variant", "", "Show one labeling only: tags or pca")
	formatFlag := fs.String("format", "", "Output format: table, json, or list")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if len(fs.Args()) > 0 {
		return fmt.Errorf("unexpected argument: %s", fs.Args()[0])
	}

	variant := strings.ToLower(strings.TrimSpace(*variantFlag))
	if variant != "" && variant != store.VariantTags && variant != store.VariantPCA {
		return fmt.Errorf("unknown variant %q (supported: tags, pca)", variant)
	}

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	engine := report.NewEngine(s, getDBPath())
	rep, err := engine.GetRunReport(context.Background(), *runFlag)
	if err != nil {
		return err
	}

	format := strings.ToLower(strings.TrimSpace(*formatFlag))
	if format == "" {
		if isTTY() {
			format = "table"
		} else {
			format = "json"
		}
	}

	switch format {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	case "table":
		outputReportTable(rep, variant)
		return nil
	case "list":
		outputReportList(rep, variant)
		return nil
	default:
		return fmt.Errorf("unsupported format: %s (supported: table, json, list)", format)
	}
}

func outputReportTable(rep *report.RunReport, variant string) {
	r := rep.Run
	fmt.Printf("Run %s — %s linkage, cut %.2f, %d components\n", shortID(r.ID), r.Linkage, r.CutHeight, r.Components)
	fmt.Printf("Created %s", r.CreatedAt.UTC().Format("2006-01-02 15:04 UTC"))
	if r.Source != "" {
		fmt.Printf(" from %s", r.Source)
	}
	fmt.Println()
	fmt.Printf("%d talks, %d tags", r.TalkCount, r.TagCount)
	if len(r.DroppedTags) > 0 {
		fmt.Printf(" (dropped for zero variance: %s)", strings.Join(r.DroppedTags, ", "))
	}
	fmt.Println()

	if variant == "" || variant == store.VariantTags {
		fmt.Printf("\nTag-space clusters (%d):\n", len(rep.TagClusters))
		outputClusterTable(rep.TagClusters)
	}
	if variant == "" || variant == store.VariantPCA {
		fmt.Printf("\nComponent-space clusters (%d):\n", len(rep.PCAClusters))
		outputClusterTable(rep.PCAClusters)
	}

	if len(rep.Variance) > 0 {
		fmt.Println("\nExplained variance:")
		fmt.Printf("  %-10s %-10s %-10s %s\n", "COMPONENT", "VARIANCE", "FRACTION", "CUMULATIVE")
		for _, v := range rep.Variance {
			fmt.Printf("  %-10d %-10.3f %-10.3f %.3f\n", v.Component, v.Variance, v.Fraction, v.Cumulative)
		}
	}

	if variant == "" {
		fmt.Printf("\nLabeling agreement (Rand index): %.3f\n", rep.Agreement)
	}
}

func outputClusterTable(rows []report.ClusterRow) {
	if len(rows) == 0 {
		fmt.Println("  (none)")
		return
	}
	fmt.Printf("  %-8s %-6s %s\n", "CLUSTER", "SIZE", "TOP TAGS")
	for _, c := range rows {
		top := strings.Join(c.TopTags, ", ")
		if len(top) > 60 {
			top = top[:59] + "…"
		}
		fmt.Printf("  %-8d %-6d %s\n", c.Cluster, c.Size, top)
	}
}

func outputReportList(rep *report.RunReport, variant string) {
	fmt.Printf("run %s (%s, cut %.2f)\n", rep.Run.ID, rep.Run.Linkage, rep.Run.CutHeight)
	if variant == "" || variant == store.VariantTags {
		for _, c := range rep.TagClusters {
			fmt.Printf("- tags/%d (%d talks): %s\n", c.Cluster, c.Size, strings.Join(c.TopTags, ", "))
		}
	}
	if variant == "" || variant == store.VariantPCA {
		for _, c := range rep.PCAClusters {
			fmt.Printf("- pca/%d (%d talks): %s\n", c.Cluster, c.Size, strings.Join(c.TopTags, ", "))
		}
	}
	fmt.Printf("\nagreement %.3f\n", rep.Agreement)
}

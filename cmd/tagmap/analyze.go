package main

import (
	"context"
	"flag"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/copperline/tagmap/internal/analyze"
	"github.com/copperline/tagmap/internal/cluster"
	"github.com/copperline/tagmap/internal/config"
)

func runAnalyze(args []string) error {
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	linkageFlag := fs.String("linkage", "", "Linkage rule: complete or average (default: complete)")
	cutFlag := fs.Float64("cut", 0, "Dendrogram cut height (default: 0.40)")
	componentsFlag := fs.Int("components", 0, "Principal components to keep (default: 16)")
	sourceFlag := fs.String("source", "", "Label recorded as the run's source")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if len(fs.Args()) > 0 {
		return fmt.Errorf("unexpected argument: %s", fs.Args()[0])
	}

	opts := analyze.Options{
		CutHeight:  *cutFlag,
		Components: *componentsFlag,
		Source:     *sourceFlag,
	}

	// Unset knobs fall back to the config file before the built-in defaults.
	linkageName := *linkageFlag
	if cfg, err := config.ResolveConfig(config.ResolveOptions{}); err == nil {
		if linkageName == "" {
			linkageName = cfg.Linkage.Value
		}
		if opts.CutHeight == 0 && cfg.CutHeight.Value != "" {
			if v, err := strconv.ParseFloat(cfg.CutHeight.Value, 64); err == nil {
				opts.CutHeight = v
			}
		}
		if opts.Components == 0 && cfg.Components.Value != "" {
			if v, err := strconv.Atoi(cfg.Components.Value); err == nil {
				opts.Components = v
			}
		}
	}
	if linkageName != "" {
		link, err := cluster.ParseLinkage(linkageName)
		if err != nil {
			return err
		}
		opts.Linkage = link
	}

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	started := time.Now()
	result, err := analyze.NewRunner(s).Run(context.Background(), opts)
	if err != nil {
		return err
	}

	fmt.Printf("Run %s (%s linkage, cut %.2f)\n", shortID(result.RunID), result.Linkage, result.CutHeight)
	fmt.Printf("  Talks:        %d analyzed", result.TalkCount)
	if result.TalksWithoutTags > 0 {
		fmt.Printf(" (%d untagged skipped)", result.TalksWithoutTags)
	}
	fmt.Println()
	fmt.Printf("  Tags:         %d distinct\n", result.TagCount)
	if len(result.DroppedTags) > 0 {
		fmt.Printf("  Dropped:      %s (no variance)\n", strings.Join(result.DroppedTags, ", "))
	}
	fmt.Printf("  Tag clusters: %d\n", result.TagClusters)
	fmt.Printf("  PCA clusters: %d (over %d components)\n", result.PCAClusters, result.Components)
	fmt.Printf("  Agreement:    %.3f\n", result.Agreement)
	if globalVerbose {
		fmt.Printf("  Elapsed:      %s\n", time.Since(started).Round(time.Millisecond))
	}
	fmt.Printf("\nNext: tagmap report --run %s\n", shortID(result.RunID))
	return nil
}

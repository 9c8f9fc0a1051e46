package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/copperline/tagmap/internal/projection"
	"github.com/copperline/tagmap/internal/topics"
)

func runTopics(args []string) error {
	fs := flag.NewFlagSet("topics", flag.ContinueOnError)
	runFlag := fs.String("run", "", "Run id or unique prefix (default: latest)")
	topicsFlag := fs.Int("topics", 0, "Number of topics to fit (default: 8)")
	jsonFlag := fs.Bool("json", false, "JSON output")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if len(fs.Args()) > 0 {
		return fmt.Errorf("unexpected argument: %s", fs.Args()[0])
	}

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	result, err := topics.NewModeler(s).Fit(context.Background(), *runFlag, topics.Options{Topics: *topicsFlag})
	if err != nil {
		return err
	}

	if *jsonFlag {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	fmt.Printf("Fitted %d topics over %d talks (run %s)\n\n", len(result.Topics), result.Talks, shortID(result.RunID))
	for _, topic := range result.Topics {
		fmt.Printf("  Topic %d: %s\n", topic.Ordinal, strings.Join(topic.Terms, ", "))
	}
	fmt.Printf("\nNext: tagmap report --run %s\n", shortID(result.RunID))
	return nil
}

func runMap(args []string) error {
	fs := flag.NewFlagSet("map", flag.ContinueOnError)
	runFlag := fs.String("run", "", "Run id or unique prefix (default: latest)")
	perplexityFlag := fs.Float64("perplexity", 0, "t-SNE perplexity (default: 30)")
	jsonFlag := fs.Bool("json", false, "JSON output")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if len(fs.Args()) > 0 {
		return fmt.Errorf("unexpected argument: %s", fs.Args()[0])
	}

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	result, err := projection.NewProjector(s).Build(context.Background(), *runFlag, projection.Options{Perplexity: *perplexityFlag})
	if err != nil {
		return err
	}

	if *jsonFlag {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	if result.Embedded {
		fmt.Printf("Projected %d talks onto a 2-D map (run %s)\n", result.Points, shortID(result.RunID))
	} else {
		fmt.Printf("Stored %d map points from the first two score columns (run %s)\n", result.Points, shortID(result.RunID))
		fmt.Println("Too few scored talks for a t-SNE embedding; kept raw component scores.")
	}
	return nil
}

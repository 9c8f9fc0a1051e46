package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/copperline/tagmap/internal/config"
	"github.com/copperline/tagmap/internal/dataset"
)

func runImport(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: tagmap import <file.csv> [--id-col <name>] [--tags-col <name>] [--title-col <name>]")
	}

	var paths []string
	loader := dataset.Loader{}

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--id-col" && i+1 < len(args):
			i++
			loader.IDColumn = args[i]
		case strings.HasPrefix(args[i], "--id-col="):
			loader.IDColumn = strings.TrimPrefix(args[i], "--id-col=")
		case args[i] == "--tags-col" && i+1 < len(args):
			i++
			loader.TagsColumn = args[i]
		case strings.HasPrefix(args[i], "--tags-col="):
			loader.TagsColumn = strings.TrimPrefix(args[i], "--tags-col=")
		case args[i] == "--title-col" && i+1 < len(args):
			i++
			loader.TitleColumn = args[i]
		case strings.HasPrefix(args[i], "--title-col="):
			loader.TitleColumn = strings.TrimPrefix(args[i], "--title-col=")
		case strings.HasPrefix(args[i], "-"):
			return fmt.Errorf("unknown flag: %s", args[i])
		default:
			paths = append(paths, args[i])
		}
	}

	if len(paths) != 1 {
		return fmt.Errorf("usage: tagmap import <file.csv> [--id-col <name>] [--tags-col <name>] [--title-col <name>]")
	}
	path := paths[0]
	if !loader.CanHandle(path) {
		return fmt.Errorf("unsupported file type %q (want .csv or .tsv)", filepath.Ext(path))
	}

	// Column names fall back to the config file before the loader defaults.
	if cfg, err := config.ResolveConfig(config.ResolveOptions{}); err == nil {
		if loader.IDColumn == "" {
			loader.IDColumn = cfg.IDColumn.Value
		}
		if loader.TagsColumn == "" {
			loader.TagsColumn = cfg.TagsColumn.Value
		}
		if loader.TitleColumn == "" {
			loader.TitleColumn = cfg.TitleColumn.Value
		}
	}

	loaded, err := loader.Load(path)
	if err != nil {
		return err
	}
	if len(loaded.Talks) == 0 {
		return fmt.Errorf("%s: no importable rows", path)
	}

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	result, err := s.ImportTalks(context.Background(), loaded.Talks)
	if err != nil {
		return fmt.Errorf("importing talks: %w", err)
	}

	fmt.Printf("Imported %d talks (%d tag assignments) from %s\n", result.Imported, result.Assignments, filepath.Base(path))
	if result.Skipped > 0 {
		fmt.Printf("Skipped %d talks already present\n", result.Skipped)
	}
	if loaded.SkippedEmpty > 0 {
		fmt.Printf("Skipped %d rows with a blank identifier\n", loaded.SkippedEmpty)
	}
	fmt.Println("\nNext: tagmap analyze")
	return nil
}

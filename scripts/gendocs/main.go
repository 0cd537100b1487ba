// Package main generates markdown reference pages for dbal from the CLI
// command tree, the configuration structs and the dialect registry.
//
// Usage:
//
//	go run ./scripts/gendocs -gen=cli -outdir=docs/cli
//	go run ./scripts/gendocs -gen=config -outdir=docs/reference
//	go run ./scripts/gendocs -gen=dialects -outdir=docs/reference
//	go run ./scripts/gendocs -gen=all
package main

import (
	"flag"
	"log"
	"os"
	"path/filepath"
)

var (
	genFlag    = flag.String("gen", "all", "what to generate: cli, config, dialects, all")
	outDirFlag = flag.String("outdir", "", "output directory (defaults based on gen type)")
)

type generator struct {
	name       string
	defaultDir string
	run        func(outDir string) error
}

var generators = []generator{
	{name: "cli", defaultDir: filepath.Join("docs", "cli"), run: generateCLIDocs},
	{name: "config", defaultDir: filepath.Join("docs", "reference"), run: generateConfigDocs},
	{name: "dialects", defaultDir: filepath.Join("docs", "reference"), run: generateDialectDocs},
}

func main() {
	flag.Parse()

	projectRoot, err := findProjectRoot()
	if err != nil {
		log.Fatalf("failed to find project root: %v", err)
	}
	log.Printf("Project root: %s", projectRoot)

	matched := false
	for _, g := range generators {
		if *genFlag != "all" && *genFlag != g.name {
			continue
		}
		matched = true

		outDir := filepath.Join(projectRoot, g.defaultDir)
		if *outDirFlag != "" && *genFlag != "all" {
			outDir = *outDirFlag
		}
		if err := g.run(outDir); err != nil {
			log.Fatalf("failed to generate %s docs: %v", g.name, err)
		}
	}
	if !matched {
		log.Fatalf("unknown -gen value: %s (use: cli, config, dialects, all)", *genFlag)
	}

	log.Println("Done!")
}

// findProjectRoot walks up from current directory to find go.mod.
func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", os.ErrNotExist
		}
		dir = parent
	}
}

func writePage(outDir, name string, w *MarkdownWriter) error {
	if err := os.MkdirAll(outDir, 0750); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(outDir, name), w.Bytes(), 0600); err != nil {
		return err
	}
	log.Printf("  Generated %s", name)
	return nil
}

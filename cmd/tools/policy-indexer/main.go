// cmd/tools/policy-indexer/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v2"

	"mortgage-underwriting/internal/common/config"
	"mortgage-underwriting/internal/common/database"
	"mortgage-underwriting/internal/common/logger"
	"mortgage-underwriting/internal/underwriting/policies"
)

// Manifest lists policy pages explicitly instead of walking a directory.
// Paths are relative to the manifest file.
type Manifest struct {
	Index string `yaml:"index"`
	Pages []struct {
		ID   string `yaml:"id"`
		Path string `yaml:"path"`
	} `yaml:"pages"`
}

func main() {
	dir := flag.String("dir", "", "Directory of .txt/.md policy pages (defaults to policies.dir from config)")
	manifestPath := flag.String("manifest", "", "YAML manifest listing policy pages; overrides -dir")
	index := flag.String("index", "", "Target index (defaults to policies.index from config)")
	configPath := flag.String("config", "", "Optional config file; environment configuration is used when empty")
	timeout := flag.Duration("timeout", 2*time.Minute, "Overall timeout")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	log := logger.NewStructured(cfg.Logging.Level, cfg.Logging.Format, "stderr")

	pages, manifestIndex, err := loadPages(*dir, *manifestPath, cfg.Policies.Dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading policy pages: %v\n", err)
		os.Exit(1)
	}

	target := firstNonEmpty(*index, manifestIndex, cfg.Policies.Index)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	es, err := database.NewElasticsearch(cfg.Database.Elasticsearch)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating Elasticsearch client: %v\n", err)
		os.Exit(1)
	}
	if err := database.WaitFor(ctx, "elasticsearch", es, database.DefaultRetryPolicy, log); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := policies.EnsureIndex(ctx, es.Client, target); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating index: %v\n", err)
		os.Exit(1)
	}
	n, err := policies.IndexPages(ctx, es.Client, target, pages)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error after indexing %d pages: %v\n", n, err)
		os.Exit(1)
	}
	fmt.Printf("Indexed %d policy pages into %s\n", n, target)
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Load()
	}
	return config.LoadFromFile(path)
}

// loadPages reads the manifest when one is given, else the directory. The
// second return value is the index named by the manifest, if any.
func loadPages(dir, manifestPath, defaultDir string) ([]policies.Page, string, error) {
	if manifestPath != "" {
		return loadManifest(manifestPath)
	}
	if dir == "" {
		dir = defaultDir
	}
	pages, err := policies.LoadDir(dir)
	return pages, "", err
}

func loadManifest(path string) ([]policies.Page, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, "", fmt.Errorf("parse manifest %s: %w", path, err)
	}
	if len(m.Pages) == 0 {
		return nil, "", policies.ErrNoPolicyPages
	}

	base := filepath.Dir(path)
	pages := make([]policies.Page, 0, len(m.Pages))
	for i, p := range m.Pages {
		if p.Path == "" {
			return nil, "", fmt.Errorf("manifest page %d has no path", i)
		}
		full := p.Path
		if !filepath.IsAbs(full) {
			full = filepath.Join(base, full)
		}
		text, err := os.ReadFile(full)
		if err != nil {
			return nil, "", err
		}
		id := p.ID
		if id == "" {
			id = filepath.ToSlash(p.Path)
		}
		pages = append(pages, policies.Page{ID: id, Text: string(text)})
	}
	return pages, m.Index, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/herald-crm/herald/pkg/config"
)

// ValidateCmd loads a configuration file, reporting defaults-applied,
// env-expanded errors the way the loader sees them.
type ValidateCmd struct {
	Path string `arg:"" help:"Configuration file path." type:"path"`

	Format      string `short:"f" help:"Output format." default:"text" enum:"text,json"`
	PrintConfig bool   `short:"p" name:"print-config" help:"Print the expanded configuration (defaults applied, env vars resolved)."`
}

func (c *ValidateCmd) Run() error {
	cfg, loader, err := config.LoadConfigFile(context.Background(), c.Path)
	if err != nil {
		if c.Format == "json" {
			out, _ := json.Marshal(map[string]any{"valid": false, "file": c.Path, "error": err.Error()})
			fmt.Println(string(out))
			os.Exit(1)
		}
		return fmt.Errorf("%s: %w", c.Path, err)
	}
	defer loader.Close()

	if c.PrintConfig {
		expanded, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("encode expanded config: %w", err)
		}
		fmt.Print(string(expanded))
		return nil
	}

	if c.Format == "json" {
		out, _ := json.Marshal(map[string]any{
			"valid":     true,
			"file":      c.Path,
			"endpoints": len(cfg.Endpoints),
			"models":    len(cfg.Models),
			"agents":    len(cfg.Agents),
		})
		fmt.Println(string(out))
		return nil
	}

	fmt.Printf("%s: valid (%d endpoints, %d models)\n", c.Path, len(cfg.Endpoints), len(cfg.Models))
	return nil
}

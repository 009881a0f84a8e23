// Command herald is the CLI for the Herald CRM platform.
//
// Usage:
//
//	herald validate herald.yaml
//	herald ingest --config herald.yaml --collection sales_knowledge ./docs
//	herald query --config herald.yaml "如何缩短成交周期"
//	herald chat --config herald.yaml --agent sales
//	herald discover --config herald.yaml --industry 制造业 --region 华东
package main

import (
	"fmt"
	"runtime/debug"

	"github.com/alecthomas/kong"

	"github.com/herald-crm/herald/pkg/config"
	"github.com/herald-crm/herald/pkg/runtime"
)

// CLI defines the command-line interface.
type CLI struct {
	Version  VersionCmd  `cmd:"" help:"Show version information."`
	Validate ValidateCmd `cmd:"" help:"Validate a configuration file."`
	Ingest   IngestCmd   `cmd:"" help:"Load documents into a knowledge collection."`
	Query    QueryCmd    `cmd:"" help:"Ask the knowledge base one question."`
	Chat     ChatCmd     `cmd:"" help:"Talk to an agent interactively."`
	Discover DiscoverCmd `cmd:"" help:"Run the customer discovery workflow."`

	Config  string `short:"c" help:"Path to the config file." type:"path" env:"HERALD_CONFIG"`
	APIKey  string `name:"api-key" help:"API key for zero-config mode." env:"OPENAI_API_KEY"`
	BaseURL string `name:"base-url" help:"OpenAI-compatible endpoint for zero-config mode."`
	Model   string `help:"Model for zero-config mode."`

	LogLevel  string `name:"log-level" help:"Log level (debug, info, warn, error)." env:"LOG_LEVEL"`
	LogFile   string `name:"log-file" help:"Log file path (empty = stderr)." env:"LOG_FILE"`
	LogFormat string `name:"log-format" help:"Log format (simple, verbose)." env:"LOG_FORMAT"`
}

// options translates the global flags into runtime options.
func (c *CLI) options() runtime.Options {
	return runtime.Options{
		ConfigFile: c.Config,
		BaseURL:    c.BaseURL,
		APIKey:     c.APIKey,
		Model:      c.Model,
		LogLevel:   c.LogLevel,
		LogFile:    c.LogFile,
		LogFormat:  c.LogFormat,
	}
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "" && info.Main.Version != "(devel)" {
			version = info.Main.Version
		}
	}
	fmt.Printf("herald %s\n", version)
	return nil
}

func main() {
	_ = config.LoadEnvFiles()

	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("herald"),
		kong.Description("Herald - AI-assisted CRM platform"),
		kong.UsageOnError(),
	)

	ctx.FatalIfErrorf(ctx.Run(&cli))
}

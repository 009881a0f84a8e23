package tools

import (
	"fmt"
	"time"
)

// DefaultTimeout bounds a single tool execution unless configured otherwise.
const DefaultTimeout = 30 * time.Second

// Config configures the tool registry.
//
// Example YAML:
//
//	tools:
//	  tool_timeout: 30s
//	  mcp_servers:
//	    - name: docs
//	      url: http://localhost:8811/mcp
type Config struct {
	// Timeout bounds one tool handler invocation. Default: 30s.
	Timeout time.Duration `yaml:"tool_timeout,omitempty"`

	// MCPServers lists external MCP tool servers whose tools are
	// discovered and registered at startup.
	MCPServers []MCPServerConfig `yaml:"mcp_servers,omitempty"`
}

// SetDefaults applies default values.
func (c *Config) SetDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	for i := range c.MCPServers {
		c.MCPServers[i].SetDefaults()
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.MCPServers))
	for i := range c.MCPServers {
		s := &c.MCPServers[i]
		if err := s.Validate(); err != nil {
			return fmt.Errorf("mcp_servers[%d]: %w", i, err)
		}
		if seen[s.Name] {
			return fmt.Errorf("mcp_servers[%d]: duplicate name %q", i, s.Name)
		}
		seen[s.Name] = true
	}
	return nil
}

// MCPServerConfig describes one MCP tool server.
//
// HTTP transports need a url; the stdio transport needs a command. When
// transport is empty it is inferred from whichever of the two is set.
type MCPServerConfig struct {
	// Name identifies the server; discovered tool names are registered
	// as "<name>_<tool>".
	Name string `yaml:"name"`

	// Transport is "streamable-http" or "stdio".
	Transport string `yaml:"transport,omitempty"`

	// URL of the MCP endpoint (HTTP transports).
	URL string `yaml:"url,omitempty"`

	// Command to spawn (stdio transport).
	Command string `yaml:"command,omitempty"`

	// Args for the spawned command.
	Args []string `yaml:"args,omitempty"`

	// Env for the spawned command.
	Env map[string]string `yaml:"env,omitempty"`

	// Filter limits which discovered tools are registered. Empty means all.
	Filter []string `yaml:"filter,omitempty"`
}

// SetDefaults applies default values.
func (c *MCPServerConfig) SetDefaults() {
	if c.Transport == "" {
		if c.Command != "" {
			c.Transport = "stdio"
		} else {
			c.Transport = "streamable-http"
		}
	}
}

// Validate checks the server configuration.
func (c *MCPServerConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}

	validTransports := map[string]bool{
		"streamable-http": true,
		"stdio":           true,
	}
	if c.Transport != "" && !validTransports[c.Transport] {
		return fmt.Errorf("invalid transport %q (valid: streamable-http, stdio)", c.Transport)
	}

	switch c.Transport {
	case "stdio":
		if c.Command == "" {
			return fmt.Errorf("server %q: command is required for stdio transport", c.Name)
		}
	default:
		if c.URL == "" {
			return fmt.Errorf("server %q: url is required for %s transport", c.Name, c.Transport)
		}
	}
	return nil
}

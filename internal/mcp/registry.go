package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/mark3labs/mcp-go/client"
	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Command string   `json:"command" yaml:"command"`
	Env     []string `json:"env" yaml:"env"`
	Args    []string `json:"args" yaml:"args"`
}

// ServerRegistry is the standard mcpServers config shape.
type ServerRegistry struct {
	MCPServers map[string]ServerConfig `json:"mcpServers" yaml:"mcpServers"`
}

func loadRegistry(path string) (*ServerRegistry, error) {
	configBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading registry: %w", err)
	}

	var registry ServerRegistry
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(configBytes, &registry)
	default:
		err = json.Unmarshal(configBytes, &registry)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing registry: %w", err)
	}
	return &registry, nil
}

// ConnectRegistry launches the named servers from an mcpServers
// registry file (JSON, or YAML by extension). An empty name list
// starts every server in the registry.
func ConnectRegistry(ctx context.Context, path string, serverNames []string) (*Session, error) {
	registry, err := loadRegistry(path)
	if err != nil {
		return nil, err
	}

	if len(serverNames) == 0 {
		for name := range registry.MCPServers {
			serverNames = append(serverNames, name)
		}
		sort.Strings(serverNames)
	}

	clients := make(map[string]*client.Client)
	closeAll := func() {
		for _, c := range clients {
			c.Close()
		}
	}

	for _, name := range serverNames {
		serverConfig, ok := registry.MCPServers[name]
		if !ok {
			closeAll()
			return nil, fmt.Errorf("server %s not found in registry", name)
		}
		if _, dup := clients[name]; dup {
			closeAll()
			return nil, fmt.Errorf("server added twice: %s", name)
		}

		c, err := client.NewStdioMCPClient(serverConfig.Command, serverConfig.Env, serverConfig.Args...)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("starting server %s: %w", name, err)
		}
		clients[name] = c
	}

	return newSession(ctx, clients)
}

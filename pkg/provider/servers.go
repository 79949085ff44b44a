package provider

import "github.com/neodify/neodify/pkg/store"

// ServerTransport is the normalized tool server transport.
type ServerTransport string

const (
	TransportHTTP  ServerTransport = "http"
	TransportSSE   ServerTransport = "sse"
	TransportStdio ServerTransport = "stdio"
)

// ServerConfig is a tool server binding translated into the shape a
// provider consumes. URL transports carry endpoint and headers; stdio
// transports carry command, args and env.
type ServerConfig struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Transport ServerTransport   `json:"transport"`
	URL       string            `json:"url,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
	Command   string            `json:"command,omitempty"`
	Args      []string          `json:"args,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
}

// TranslateServers maps tool server records to provider server configs.
// A binding that is disabled or missing its mode-required field (an
// http/sse server without an endpoint, a stdio server without a
// command) is dropped rather than failing the run.
func TranslateServers(mcps []store.MCP) []ServerConfig {
	var servers []ServerConfig
	for _, mcp := range mcps {
		if !mcp.Enabled {
			continue
		}
		switch mcp.Mode {
		case store.MCPModeHTTP:
			if mcp.Endpoint == "" {
				continue
			}
			servers = append(servers, ServerConfig{
				ID:        mcp.ID,
				Name:      mcp.Name,
				Transport: TransportHTTP,
				URL:       mcp.Endpoint,
				Headers:   mcp.Headers,
			})
		case store.MCPModeSSE:
			if mcp.Endpoint == "" {
				continue
			}
			servers = append(servers, ServerConfig{
				ID:        mcp.ID,
				Name:      mcp.Name,
				Transport: TransportSSE,
				URL:       mcp.Endpoint,
				Headers:   mcp.Headers,
			})
		case store.MCPModeUvx, store.MCPModeNpx:
			if mcp.Command == "" {
				continue
			}
			servers = append(servers, ServerConfig{
				ID:        mcp.ID,
				Name:      mcp.Name,
				Transport: TransportStdio,
				Command:   mcp.Command,
				Args:      mcp.Args,
				Env:       mcp.Env,
			})
		}
	}
	return servers
}

func serverNames(servers []ServerConfig) []string {
	names := make([]string, 0, len(servers))
	for _, s := range servers {
		names = append(names, s.Name)
	}
	return names
}

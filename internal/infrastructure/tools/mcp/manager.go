package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/onamfc/rag-chat/internal/core/domain"
	"github.com/onamfc/rag-chat/internal/core/ports"
)

// Manager runs the configured tool servers and routes calls to them. The
// configuration order is significant: when two servers advertise the same
// tool name, the first configured server wins.
type Manager struct {
	servers []*ServerProcess
	logger  *slog.Logger
}

func NewManager(configs []ServerConfig, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	servers := make([]*ServerProcess, 0, len(configs))
	for _, cfg := range configs {
		servers = append(servers, NewServerProcess(cfg, logger))
	}
	return &Manager{servers: servers, logger: logger}
}

var _ ports.ToolRunner = (*Manager)(nil)

// Start launches every server concurrently. A server that fails to start is
// logged and left out of routing; the others keep working.
func (m *Manager) Start(ctx context.Context) {
	var wg sync.WaitGroup
	for _, server := range m.servers {
		wg.Add(1)
		go func(server *ServerProcess) {
			defer wg.Done()
			if err := server.Start(ctx); err != nil {
				m.logger.Error("tool server failed to start", "tool_server", server.Name(), "error", err)
			}
		}(server)
	}
	wg.Wait()
}

// Tools aggregates the advertised tools of every running server, with
// shadowed duplicates removed.
func (m *Manager) Tools() []domain.Tool {
	seen := make(map[string]bool)
	var out []domain.Tool
	for _, server := range m.servers {
		if server.State() != StateRunning {
			continue
		}
		for _, tool := range server.Tools() {
			if seen[tool.Name] {
				continue
			}
			seen[tool.Name] = true
			out = append(out, toDomainTool(tool))
		}
	}
	return out
}

func (m *Manager) CallTool(ctx context.Context, name string, args map[string]any) (json.RawMessage, error) {
	for _, server := range m.servers {
		if server.State() != StateRunning || !server.Has(name) {
			continue
		}
		return server.CallTool(ctx, name, args)
	}
	return nil, domain.WrapError(domain.ErrToolNotFound, "call tool", fmt.Errorf("no running server advertises %q", name))
}

// Shutdown stops every server. Idempotent.
func (m *Manager) Shutdown(ctx context.Context) {
	var wg sync.WaitGroup
	for _, server := range m.servers {
		wg.Add(1)
		go func(server *ServerProcess) {
			defer wg.Done()
			if err := server.Shutdown(ctx); err != nil {
				m.logger.Warn("tool server shutdown", "tool_server", server.Name(), "error", err)
			}
		}(server)
	}
	wg.Wait()
}

func toDomainTool(tool mcp.Tool) domain.Tool {
	schema, err := json.Marshal(tool.InputSchema)
	if err != nil {
		schema = json.RawMessage(`{"type":"object"}`)
	}
	return domain.Tool{
		Name:        tool.Name,
		Description: tool.Description,
		InputSchema: schema,
	}
}

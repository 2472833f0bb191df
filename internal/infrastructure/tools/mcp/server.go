package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/onamfc/rag-chat/internal/core/domain"
)

type ServerState string

const (
	StateRunning ServerState = "running"
	StateStopped ServerState = "stopped"
	StateFailed  ServerState = "failed"
)

const (
	defaultStartTimeout  = 20 * time.Second
	defaultCallTimeout   = 30 * time.Second
	defaultShutdownGrace = 5 * time.Second
)

type ServerConfig struct {
	Name          string
	Command       string
	Args          []string
	Env           []string
	WorkDir       string
	StartTimeout  time.Duration
	CallTimeout   time.Duration
	ShutdownGrace time.Duration
}

func (c ServerConfig) normalize() ServerConfig {
	if c.StartTimeout <= 0 {
		c.StartTimeout = defaultStartTimeout
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = defaultCallTimeout
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = defaultShutdownGrace
	}
	return c
}

// ServerProcess owns one tool server subprocess. The protocol is
// half-duplex: exactly one request is in flight at a time, serialized by
// callMu, and the response must carry the matching id. Any violation marks
// the process failed and later calls are refused.
type ServerProcess struct {
	cfg    ServerConfig
	logger *slog.Logger

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	lines  chan []byte
	waited chan struct{}
	done   chan struct{}

	doneOnce sync.Once

	callMu sync.Mutex
	nextID atomic.Int64

	stateMu sync.Mutex
	state   ServerState

	shutdownOnce sync.Once

	serverInfo mcp.Implementation
	tools      []mcp.Tool
}

func NewServerProcess(cfg ServerConfig, logger *slog.Logger) *ServerProcess {
	if logger == nil {
		logger = slog.Default()
	}
	return &ServerProcess{
		cfg:    cfg.normalize(),
		logger: logger.With("tool_server", cfg.Name),
		state:  StateStopped,
	}
}

func (s *ServerProcess) Name() string { return s.cfg.Name }

func (s *ServerProcess) State() ServerState {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

func (s *ServerProcess) setState(state ServerState) {
	s.stateMu.Lock()
	s.state = state
	s.stateMu.Unlock()
}

// Start launches the subprocess and performs the MCP handshake: initialize,
// the initialized notification, then tools/list. The whole sequence is
// bounded by StartTimeout.
func (s *ServerProcess) Start(ctx context.Context) error {
	cmd := exec.Command(s.cfg.Command, s.cfg.Args...)
	cmd.Dir = s.cfg.WorkDir
	cmd.Env = append(os.Environ(), s.cfg.Env...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return domain.WrapError(domain.ErrToolExecution, "start tool server", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return domain.WrapError(domain.ErrToolExecution, "start tool server", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return domain.WrapError(domain.ErrToolExecution, "start tool server", err)
	}
	if err := cmd.Start(); err != nil {
		return domain.WrapError(domain.ErrToolExecution, "start tool server", err)
	}

	s.cmd = cmd
	s.stdin = stdin
	s.lines = make(chan []byte, 8)
	s.waited = make(chan struct{})
	s.done = make(chan struct{})
	s.setState(StateRunning)

	var readers sync.WaitGroup
	readers.Add(2)
	go s.readLines(stdout, &readers)
	go s.drainStderr(stderr, &readers)
	go func() {
		readers.Wait()
		if err := cmd.Wait(); err != nil {
			s.logger.Debug("tool server exited", "error", err)
		}
		close(s.waited)
	}()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.StartTimeout)
	defer cancel()
	if err := s.handshake(ctx); err != nil {
		s.fail()
		killErr := s.terminate(context.Background())
		if killErr != nil {
			s.logger.Warn("terminate after failed handshake", "error", killErr)
		}
		return err
	}
	s.logger.Info("tool server ready", "tools", len(s.tools))
	return nil
}

func (s *ServerProcess) readLines(stdout io.Reader, readers *sync.WaitGroup) {
	defer readers.Done()
	defer close(s.lines)
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := make([]byte, len(scanner.Bytes()))
		copy(line, scanner.Bytes())
		// Unsolicited notifications can pile up with no call in flight;
		// the send must never outlive the process.
		select {
		case s.lines <- line:
		case <-s.done:
			return
		}
	}
	if err := scanner.Err(); err != nil {
		s.logger.Debug("tool server stdout closed", "error", err)
	}
}

func (s *ServerProcess) drainStderr(stderr io.Reader, readers *sync.WaitGroup) {
	defer readers.Done()
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		s.logger.Debug("tool server stderr", "line", scanner.Text())
	}
}

func (s *ServerProcess) handshake(ctx context.Context) error {
	initParams := struct {
		ProtocolVersion string                 `json:"protocolVersion"`
		Capabilities    mcp.ClientCapabilities `json:"capabilities"`
		ClientInfo      mcp.Implementation     `json:"clientInfo"`
	}{
		ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
		Capabilities:    mcp.ClientCapabilities{},
		ClientInfo:      mcp.Implementation{Name: "rag-chat", Version: "1.0.0"},
	}

	raw, err := s.call(ctx, "initialize", initParams)
	if err != nil {
		return err
	}
	var initResult mcp.InitializeResult
	if err := json.Unmarshal(raw, &initResult); err != nil {
		return domain.WrapError(domain.ErrToolExecution, "initialize tool server", err)
	}
	s.serverInfo = initResult.ServerInfo

	if err := s.notify("notifications/initialized", nil); err != nil {
		return err
	}

	raw, err = s.call(ctx, "tools/list", nil)
	if err != nil {
		return err
	}
	var listResult mcp.ListToolsResult
	if err := json.Unmarshal(raw, &listResult); err != nil {
		return domain.WrapError(domain.ErrToolExecution, "list tools", err)
	}
	s.tools = listResult.Tools
	return nil
}

// Tools returns the tool list captured during the handshake.
func (s *ServerProcess) Tools() []mcp.Tool {
	return s.tools
}

// Has reports whether the server advertised a tool with this name.
func (s *ServerProcess) Has(name string) bool {
	for _, tool := range s.tools {
		if tool.Name == name {
			return true
		}
	}
	return false
}

// CallTool invokes a named tool. A result flagged isError becomes
// ErrToolExecution with the textual content as the message.
func (s *ServerProcess) CallTool(ctx context.Context, name string, args map[string]any) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()

	params := struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments,omitempty"`
	}{Name: name, Arguments: args}

	raw, err := s.call(ctx, "tools/call", params)
	if err != nil {
		return nil, err
	}

	var flagged struct {
		IsError bool `json:"isError"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(raw, &flagged); err != nil {
		return nil, domain.WrapError(domain.ErrToolExecution, "call tool "+name, err)
	}
	if flagged.IsError {
		msg := "tool reported an error"
		for _, content := range flagged.Content {
			if content.Type == "text" && content.Text != "" {
				msg = content.Text
				break
			}
		}
		return nil, domain.WrapError(domain.ErrToolExecution, "call tool "+name, fmt.Errorf("%s", msg))
	}
	return raw, nil
}

// call sends one request and blocks until its response arrives. Server
// notifications interleaved on stdout are logged and skipped; a response
// with the wrong id is a protocol violation and poisons the process.
func (s *ServerProcess) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	s.callMu.Lock()
	defer s.callMu.Unlock()

	if s.State() != StateRunning {
		return nil, domain.WrapError(domain.ErrToolExecution, method, fmt.Errorf("tool server %s is not running", s.cfg.Name))
	}

	id := s.nextID.Add(1)
	if err := s.send(rpcRequest{JSONRPC: jsonrpcVersion, ID: id, Method: method, Params: params}); err != nil {
		s.fail()
		return nil, domain.WrapError(domain.ErrToolExecution, method, err)
	}

	for {
		select {
		case <-ctx.Done():
			// The response may still be in flight; the pipe state is
			// unknown, so the process cannot be trusted anymore.
			s.fail()
			return nil, domain.WrapError(domain.ErrToolExecution, method, ctx.Err())
		case line, ok := <-s.lines:
			if !ok {
				s.fail()
				return nil, domain.WrapError(domain.ErrToolExecution, method, fmt.Errorf("tool server %s closed its stdout", s.cfg.Name))
			}
			var msg rpcMessage
			if err := json.Unmarshal(line, &msg); err != nil {
				s.fail()
				return nil, domain.WrapError(domain.ErrToolExecution, method, fmt.Errorf("malformed frame: %w", err))
			}
			if msg.Method != "" {
				s.logger.Debug("skipping server message", "method", msg.Method)
				continue
			}
			if msg.ID == nil || *msg.ID != id {
				s.fail()
				return nil, domain.WrapError(domain.ErrToolExecution, method, fmt.Errorf("response id mismatch"))
			}
			if msg.Error != nil {
				return nil, domain.WrapError(domain.ErrToolExecution, method, msg.Error)
			}
			if msg.Result == nil {
				s.fail()
				return nil, domain.WrapError(domain.ErrToolExecution, method, fmt.Errorf("response carries neither result nor error"))
			}
			return msg.Result, nil
		}
	}
}

func (s *ServerProcess) notify(method string, params any) error {
	s.callMu.Lock()
	defer s.callMu.Unlock()
	if err := s.send(rpcNotification{JSONRPC: jsonrpcVersion, Method: method, Params: params}); err != nil {
		s.fail()
		return domain.WrapError(domain.ErrToolExecution, method, err)
	}
	return nil
}

func (s *ServerProcess) send(msg any) error {
	frame, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	frame = append(frame, '\n')
	if _, err := s.stdin.Write(frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

func (s *ServerProcess) fail() {
	s.setState(StateFailed)
}

// Shutdown stops the subprocess: close stdin, SIGTERM, then SIGKILL after
// the grace period. Safe to call more than once.
func (s *ServerProcess) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		if s.cmd == nil {
			return
		}
		if s.State() == StateRunning {
			s.setState(StateStopped)
		}
		err = s.terminate(ctx)
	})
	return err
}

func (s *ServerProcess) terminate(ctx context.Context) error {
	s.doneOnce.Do(func() { close(s.done) })
	_ = s.stdin.Close()
	_ = s.cmd.Process.Signal(syscall.SIGTERM)

	grace := time.NewTimer(s.cfg.ShutdownGrace)
	defer grace.Stop()
	select {
	case <-s.waited:
		return nil
	case <-ctx.Done():
	case <-grace.C:
	}

	_ = s.cmd.Process.Kill()
	<-s.waited
	return nil
}

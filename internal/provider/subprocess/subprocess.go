// Package subprocess implements the Provider Abstraction (spec §4.6) backed
// by a local CLI agent binary, in two modes: one-shot (spawn, capture
// stdout, exit) and session (a long-lived child per agent id speaking
// line-delimited JSON-RPC 2.0 over stdin/stdout).
package subprocess

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/provider"
	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/registry"
)

// minPartialChars is the smallest amount of captured, non-whitespace output
// a timed-out one-shot invocation must have produced to be treated as a
// successful partial response rather than a timeout failure.
const minPartialChars = 20

// Client implements provider.Provider by spawning cfg.BinaryPath. When
// cfg.Transport is registry.TransportStdio, Send reuses one long-lived
// session per agent id; otherwise each Send spawns a fresh one-shot process.
type Client struct {
	mu       sync.Mutex
	sessions map[string]*session
}

// New constructs a subprocess-backed Client.
func New() *Client {
	return &Client{sessions: make(map[string]*session)}
}

func (c *Client) Capabilities() provider.Capabilities {
	return provider.Capabilities{
		SupportsTokenCounting: false,
		SupportsStreaming:     false,
		BillingModel:          provider.BillingFree,
		SupportsConcurrency:   false,
		SupportsACP:           true,
	}
}

func (c *Client) Send(ctx context.Context, cfg registry.Config, prompt string, maxTokens int, timeoutMs int) (provider.Response, error) {
	timeout := provider.EffectiveTimeout(timeoutMs, cfg.TimeoutMs)
	if cfg.Transport == registry.TransportStdio {
		return c.sendSession(ctx, cfg, prompt, timeout)
	}
	return sendOneShot(ctx, cfg, prompt, timeout)
}

// Close terminates every live session. Call during manager shutdown.
func (c *Client) Close() {
	c.mu.Lock()
	sessions := make([]*session, 0, len(c.sessions))
	for id, s := range c.sessions {
		sessions = append(sessions, s)
		delete(c.sessions, id)
	}
	c.mu.Unlock()
	for _, s := range sessions {
		s.close()
	}
}

// --- one-shot mode ---

// sendOneShot spawns cfg.BinaryPath with cfg.CliArgs, writes prompt to
// stdin, and captures stdout. If the process has not exited by timeout but
// has already produced at least minPartialChars of non-whitespace output,
// the captured prefix is returned as a successful partial response; an
// empty or too-short capture at timeout is a failure.
func sendOneShot(ctx context.Context, cfg registry.Config, prompt string, timeout time.Duration) (provider.Response, error) {
	start := time.Now()
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if cfg.BinaryPath == "" {
		return provider.Response{
			AgentID: cfg.ID, Success: false,
			Error: "subprocess: binary path is not configured", Timestamp: time.Now(),
		}, nil
	}

	cmd := exec.CommandContext(runCtx, cfg.BinaryPath, cfg.CliArgs...)
	if cfg.Cwd != "" {
		cmd.Dir = cfg.Cwd
	}
	if len(cfg.Env) > 0 {
		cmd.Env = append(cmd.Environ(), cfg.Env...)
	}
	cmd.Stdin = strings.NewReader(prompt)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = io.Discard

	err := cmd.Run()
	latency := time.Since(start).Milliseconds()
	captured := strings.TrimSpace(out.String())

	if err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) && nonWhitespaceLen(captured) >= minPartialChars {
			return provider.Response{
				AgentID: cfg.ID, Content: captured, LatencyMs: latency,
				Success: true, Timestamp: time.Now(),
			}, nil
		}
		return provider.Response{
			AgentID: cfg.ID, Success: false,
			Error:     fmt.Sprintf("subprocess: %v", err),
			LatencyMs: latency, Timestamp: time.Now(),
		}, nil
	}

	return provider.Response{
		AgentID: cfg.ID, Content: captured, LatencyMs: latency,
		Success: true, Timestamp: time.Now(),
	}, nil
}

func nonWhitespaceLen(s string) int {
	n := 0
	for _, r := range s {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			n++
		}
	}
	return n
}

// --- session mode ---

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type pendingCall struct {
	ch chan rpcResponse
}

// session is a long-lived child process associated with one agent id,
// spoken to over line-delimited JSON-RPC 2.0. Lines on stdout that do not
// parse as a JSON-RPC response (banners, log noise) are discarded.
type session struct {
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[uint64]*pendingCall
	nextID    uint64

	closed   chan struct{}
	closeOne sync.Once
}

func startSession(cfg registry.Config) (*session, error) {
	if cfg.BinaryPath == "" {
		return nil, errors.New("subprocess: binary path is not configured")
	}
	cmd := exec.Command(cfg.BinaryPath, cfg.CliArgs...)
	if cfg.Cwd != "" {
		cmd.Dir = cfg.Cwd
	}
	if len(cfg.Env) > 0 {
		cmd.Env = append(cmd.Environ(), cfg.Env...)
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	s := &session{
		cmd:     cmd,
		stdin:   stdin,
		pending: make(map[uint64]*pendingCall),
		closed:  make(chan struct{}),
	}
	go s.readLoop(stdout)
	return s, nil
}

func (s *session) readLoop(stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || line[0] != '{' {
			continue
		}
		var resp rpcResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			continue
		}
		s.pendingMu.Lock()
		call, ok := s.pending[resp.ID]
		if ok {
			delete(s.pending, resp.ID)
		}
		s.pendingMu.Unlock()
		if ok {
			call.ch <- resp
		}
	}
	s.close()
}

func (s *session) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	s.pendingMu.Lock()
	s.nextID++
	id := s.nextID
	call := &pendingCall{ch: make(chan rpcResponse, 1)}
	s.pending[id] = call
	s.pendingMu.Unlock()

	req := rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}
	data, err := json.Marshal(req)
	if err != nil {
		s.removePending(id)
		return nil, err
	}

	s.writeMu.Lock()
	_, werr := s.stdin.Write(append(data, '\n'))
	s.writeMu.Unlock()
	if werr != nil {
		s.removePending(id)
		return nil, werr
	}

	select {
	case resp := <-call.ch:
		if resp.Error != nil {
			return nil, fmt.Errorf("subprocess: rpc error %d: %s", resp.Error.Code, resp.Error.Message)
		}
		return resp.Result, nil
	case <-ctx.Done():
		// Evict the pending entry without killing the child: the call may
		// still complete and its response is simply dropped on arrival.
		s.removePending(id)
		return nil, ctx.Err()
	case <-s.closed:
		return nil, errors.New("subprocess: session closed")
	}
}

func (s *session) removePending(id uint64) {
	s.pendingMu.Lock()
	delete(s.pending, id)
	s.pendingMu.Unlock()
}

// close sends SIGTERM and escalates to SIGKILL if the child has not exited
// within the grace period.
func (s *session) close() {
	s.closeOne.Do(func() {
		close(s.closed)
		_ = s.stdin.Close()
		if s.cmd.Process == nil {
			return
		}
		_ = s.cmd.Process.Signal(terminateSignal())
		done := make(chan struct{})
		go func() { _ = s.cmd.Wait(); close(done) }()
		select {
		case <-done:
		case <-time.After(4 * time.Second):
			_ = s.cmd.Process.Kill()
			<-done
		}
	})
}

func (c *Client) sendSession(ctx context.Context, cfg registry.Config, prompt string, timeout time.Duration) (provider.Response, error) {
	start := time.Now()

	c.mu.Lock()
	s, ok := c.sessions[cfg.ID]
	if !ok {
		newSession, err := startSession(cfg)
		if err != nil {
			c.mu.Unlock()
			return provider.Response{
				AgentID: cfg.ID, Success: false,
				Error: fmt.Sprintf("subprocess: start session: %v", err), Timestamp: time.Now(),
			}, nil
		}
		s = newSession
		c.sessions[cfg.ID] = s
	}
	c.mu.Unlock()

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := s.call(callCtx, "prompt", map[string]any{"text": prompt})
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return provider.Response{
			AgentID: cfg.ID, Success: false,
			Error:     fmt.Sprintf("subprocess: %v", err),
			LatencyMs: latency, Timestamp: time.Now(),
		}, nil
	}

	var payload struct {
		Content string `json:"content"`
	}
	content := ""
	if len(result) > 0 {
		if err := json.Unmarshal(result, &payload); err == nil {
			content = payload.Content
		} else {
			content = string(result)
		}
	}

	return provider.Response{
		AgentID: cfg.ID, Content: content, LatencyMs: latency,
		Success: true, Timestamp: time.Now(),
	}, nil
}

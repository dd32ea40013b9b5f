package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	logx "github.com/gasdesk/agent-server/pkg/logger"
)

// ErrClosed is returned for calls on a closed client.
var ErrClosed = errors.New("mcp client closed")

const maxFrame = 4 << 20

// StdioOptions configures the child process.
type StdioOptions struct {
	Command       string
	Args          []string
	Env           []string
	Dir           string
	ClientName    string
	ClientVersion string
	InitTimeout   time.Duration
}

type callResult struct {
	resp Response
	err  error
}

// Client multiplexes concurrent requests over one stdio session by request id.
type Client struct {
	w         io.WriteCloser
	cmd       *exec.Cmd
	pending   map[uint64]chan callResult
	pendingMu sync.Mutex
	writeMu   sync.Mutex
	nextID    uint64

	closed    chan struct{}
	closeOnce sync.Once
	closeErr  error
	errMu     sync.Mutex
}

// NewClient runs a session over an existing reader/writer pair.
func NewClient(r io.Reader, w io.WriteCloser) *Client {
	c := &Client{
		w:       w,
		pending: make(map[uint64]chan callResult),
		closed:  make(chan struct{}),
	}
	go c.readLoop(r)
	return c
}

// Start launches the command, performs the initialize handshake and returns a
// client bound to the child's stdin/stdout.
func Start(ctx context.Context, opts StdioOptions) (*Client, error) {
	if opts.Command == "" {
		return nil, errors.New("command is required")
	}
	cmd := exec.Command(opts.Command, opts.Args...)
	cmd.Dir = opts.Dir
	if len(opts.Env) > 0 {
		cmd.Env = append(os.Environ(), opts.Env...)
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", opts.Command, err)
	}

	c := NewClient(stdout, stdin)
	c.cmd = cmd

	initCtx := ctx
	if opts.InitTimeout > 0 {
		var cancel context.CancelFunc
		initCtx, cancel = context.WithTimeout(ctx, opts.InitTimeout)
		defer cancel()
	}
	if _, err := c.Initialize(initCtx, ClientInfo{Name: opts.ClientName, Version: opts.ClientVersion}); err != nil {
		_ = c.Close()
		return nil, err
	}
	logx.Info().Str("command", opts.Command).Int("pid", cmd.Process.Pid).Msg("natural gas data process started")
	return c, nil
}

// Initialize performs the handshake and sends the initialized notification.
func (c *Client) Initialize(ctx context.Context, info ClientInfo) (InitializeResult, error) {
	if info.Name == "" {
		info.Name = "gasdesk-agent"
	}
	if info.Version == "" {
		info.Version = "dev"
	}
	var res InitializeResult
	params := InitializeParams{ProtocolVersion: ProtocolVersion, Capabilities: map[string]any{}, ClientInfo: info}
	if err := c.call(ctx, MethodInitialize, params, &res); err != nil {
		return res, fmt.Errorf("initialize: %w", err)
	}
	if err := c.notify(MethodInitialized); err != nil {
		return res, fmt.Errorf("initialized: %w", err)
	}
	return res, nil
}

func (c *Client) ListTools(ctx context.Context) ([]ToolDefinition, error) {
	var res ListToolsResult
	if err := c.call(ctx, MethodToolsList, struct{}{}, &res); err != nil {
		return nil, fmt.Errorf("tools/list: %w", err)
	}
	return res.Tools, nil
}

// CallTool runs tools/call. A result flagged isError is returned as is; only
// protocol and transport failures produce an error.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (CallResult, error) {
	if args == nil {
		args = map[string]any{}
	}
	var res CallResult
	if err := c.call(ctx, MethodToolsCall, CallParams{Name: name, Arguments: args}, &res); err != nil {
		return res, fmt.Errorf("tools/call %s: %w", name, err)
	}
	return res, nil
}

// Close ends the session and kills the child process, if any.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		_ = c.w.Close()
		if c.cmd != nil {
			if c.cmd.ProcessState == nil {
				_ = c.cmd.Process.Kill()
			}
			_ = c.cmd.Wait()
		}
		close(c.closed)
	})
	return nil
}

func (c *Client) call(ctx context.Context, method string, params any, result any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	id := c.next()
	ch := make(chan callResult, 1)
	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()

	if err := c.write(Request{JSONRPC: jsonrpcVersion, ID: &id, Method: method, Params: raw}); err != nil {
		c.removePending(id)
		return err
	}

	select {
	case res := <-ch:
		if res.err != nil {
			return res.err
		}
		if res.resp.Error != nil {
			return res.resp.Error
		}
		if result != nil && len(res.resp.Result) > 0 {
			if err := json.Unmarshal(res.resp.Result, result); err != nil {
				return fmt.Errorf("decode result: %w", err)
			}
		}
		return nil
	case <-ctx.Done():
		c.removePending(id)
		return ctx.Err()
	case <-c.closed:
		return c.closeError()
	}
}

func (c *Client) notify(method string) error {
	return c.write(Request{JSONRPC: jsonrpcVersion, Method: method})
}

func (c *Client) write(req Request) error {
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	select {
	case <-c.closed:
		return c.closeError()
	default:
	}
	if _, err := c.w.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", req.Method, err)
	}
	return nil
}

func (c *Client) readLoop(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64<<10), maxFrame)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var resp Response
		if err := json.Unmarshal(line, &resp); err != nil {
			logx.Warn().Err(err).Msg("skipping malformed frame from natural gas data process")
			continue
		}
		if resp.ID == nil {
			continue
		}
		c.pendingMu.Lock()
		ch, ok := c.pending[*resp.ID]
		if ok {
			delete(c.pending, *resp.ID)
		}
		c.pendingMu.Unlock()
		if ok {
			ch <- callResult{resp: resp}
		}
	}
	err := scanner.Err()
	if err == nil {
		err = io.EOF
	}
	c.failPending(fmt.Errorf("%w: %w", ErrClosed, err))
}

func (c *Client) failPending(err error) {
	c.setCloseError(err)
	c.pendingMu.Lock()
	for id, ch := range c.pending {
		delete(c.pending, id)
		ch <- callResult{err: err}
	}
	c.pendingMu.Unlock()
	_ = c.Close()
}

func (c *Client) removePending(id uint64) {
	c.pendingMu.Lock()
	delete(c.pending, id)
	c.pendingMu.Unlock()
}

func (c *Client) next() uint64 {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	c.nextID++
	return c.nextID
}

func (c *Client) setCloseError(err error) {
	c.errMu.Lock()
	if c.closeErr == nil {
		c.closeErr = err
	}
	c.errMu.Unlock()
}

func (c *Client) closeError() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if c.closeErr == nil {
		return ErrClosed
	}
	return c.closeErr
}

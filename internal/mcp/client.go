package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// DefaultToolTimeout bounds a single tools/call round trip when the caller
// does not configure one.
const DefaultToolTimeout = 15 * time.Second

// ErrNotConnected is returned by CallTool before a successful Connect.
var ErrNotConnected = errors.New("tool server not connected")

// ToolInfo describes a tool advertised by the server.
type ToolInfo struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

// Client talks JSON-RPC 2.0 to the tool server over a subprocess's stdio.
// Safe for concurrent use: writes are serialized and responses are matched to
// callers by request ID.
type Client struct {
	cmdArgs []string
	timeout time.Duration

	mu        sync.Mutex
	connected bool
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	nextID    int64
	pending   map[int64]chan *jsonrpcResponse
	tools     map[string]*ToolInfo
	schemas   map[string]*gojsonschema.Schema
	readDone  chan struct{}
}

// NewClient creates a client that will launch cmdArgs as the tool server
// subprocess on Connect.
func NewClient(cmdArgs []string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultToolTimeout
	}
	return &Client{
		cmdArgs: cmdArgs,
		timeout: timeout,
		pending: make(map[int64]chan *jsonrpcResponse),
		tools:   make(map[string]*ToolInfo),
		schemas: make(map[string]*gojsonschema.Schema),
	}
}

// Connect launches the subprocess, performs the initialize handshake, and
// caches the advertised tool list. Calling Connect on a connected client is a
// no-op so startup paths may retry freely.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	if len(c.cmdArgs) == 0 {
		c.mu.Unlock()
		return errors.New("tool server command not configured")
	}

	cmd := exec.Command(c.cmdArgs[0], c.cmdArgs[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("tool server stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("tool server stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("starting tool server: %w", err)
	}

	c.cmd = cmd
	c.stdin = stdin
	c.connected = true
	c.readDone = make(chan struct{})
	go c.readLoop(stdout)
	c.mu.Unlock()

	if err := c.handshake(ctx); err != nil {
		c.Close()
		return err
	}
	log.Info().Int("tools", len(c.tools)).Msg("tool_server_connected")
	return nil
}

// ConnectStreams attaches the client to an already-running server over the
// given streams instead of launching a subprocess. Used in tests.
func (c *Client) ConnectStreams(ctx context.Context, in io.Reader, out io.WriteCloser) error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	c.stdin = out
	c.connected = true
	c.readDone = make(chan struct{})
	go c.readLoop(in)
	c.mu.Unlock()

	return c.handshake(ctx)
}

func (c *Client) handshake(ctx context.Context) error {
	if _, err := c.roundTrip(ctx, "initialize", nil); err != nil {
		return fmt.Errorf("tool server handshake: %w", err)
	}
	return c.refreshTools(ctx)
}

// refreshTools fetches tools/list and rebuilds the schema cache.
func (c *Client) refreshTools(ctx context.Context) error {
	raw, err := c.roundTrip(ctx, "tools/list", nil)
	if err != nil {
		return fmt.Errorf("listing tools: %w", err)
	}

	var list toolsListResult
	if err := json.Unmarshal(raw, &list); err != nil {
		return fmt.Errorf("decoding tool list: %w", err)
	}

	tools := make(map[string]*ToolInfo, len(list.Tools))
	schemas := make(map[string]*gojsonschema.Schema, len(list.Tools))
	for _, d := range list.Tools {
		tools[d.Name] = &ToolInfo{Name: d.Name, Description: d.Description, InputSchema: d.InputSchema}
		if len(d.InputSchema) == 0 {
			continue
		}
		schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(d.InputSchema))
		if err != nil {
			log.Warn().Err(err).Str("tool", d.Name).Msg("tool_schema_invalid")
			continue
		}
		schemas[d.Name] = schema
	}

	c.mu.Lock()
	c.tools = tools
	c.schemas = schemas
	c.mu.Unlock()
	return nil
}

// Tools returns the cached tool descriptors from the last tools/list.
func (c *Client) Tools() []*ToolInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*ToolInfo, 0, len(c.tools))
	for _, t := range c.tools {
		out = append(out, t)
	}
	return out
}

// CallTool invokes a tool and returns its raw result. All failures come back
// as *ToolError; arguments are validated against the tool's advertised schema
// before anything crosses the wire.
func (c *Client) CallTool(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error) {
	ctx, span := tracer.Start(ctx, "mcp.client.call")
	span.SetAttributes(attribute.String("tool.name", name))
	defer span.End()

	c.mu.Lock()
	connected := c.connected
	schema := c.schemas[name]
	_, known := c.tools[name]
	c.mu.Unlock()

	if !connected {
		return nil, transportErr(name, ErrNotConnected)
	}
	if !known {
		return nil, remoteErr(name, fmt.Errorf("unknown tool %q", name))
	}
	if schema != nil && len(args) > 0 {
		result, err := schema.Validate(gojsonschema.NewBytesLoader(args))
		if err != nil {
			return nil, remoteErr(name, fmt.Errorf("validating arguments: %w", err))
		}
		if !result.Valid() {
			return nil, remoteErr(name, fmt.Errorf("invalid arguments: %s", result.Errors()[0].String()))
		}
	}

	params, err := json.Marshal(toolsCallParams{Name: name, Arguments: args})
	if err != nil {
		return nil, transportErr(name, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := c.roundTrip(ctx, "tools/call", params)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		var rpcErr *rpcError
		switch {
		case errors.As(err, &rpcErr):
			return nil, remoteErr(name, err)
		case errors.Is(err, context.DeadlineExceeded):
			return nil, timeoutErr(name, err)
		default:
			return nil, transportErr(name, err)
		}
	}

	var wrapped struct {
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, transportErr(name, fmt.Errorf("decoding tool result: %w", err))
	}
	return wrapped.Content, nil
}

// Error implements error so rpc failures can round-trip through errors.As.
func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// roundTrip sends one request and waits for the matching response or ctx done.
func (c *Client) roundTrip(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error) {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	c.nextID++
	id := c.nextID
	ch := make(chan *jsonrpcResponse, 1)
	c.pending[id] = ch
	stdin := c.stdin
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	data, err := json.Marshal(jsonrpcRequest{JSONRPC: jsonrpcVersion, Method: method, Params: params, ID: id})
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	_, err = stdin.Write(append(data, '\n'))
	c.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("writing request: %w", err)
	}

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// readLoop demultiplexes response lines to pending callers by ID.
func (c *Client) readLoop(r io.Reader) {
	defer close(c.readDone)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		var resp jsonrpcResponse
		if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
			log.Warn().Err(err).Msg("tool_server_bad_frame")
			continue
		}
		idFloat, ok := resp.ID.(float64)
		if !ok {
			continue
		}
		id := int64(idFloat)

		c.mu.Lock()
		ch, ok := c.pending[id]
		c.mu.Unlock()
		if ok {
			ch <- &resp
		}
	}

	// The pipe is gone; fail anything still waiting.
	c.mu.Lock()
	c.connected = false
	for id, ch := range c.pending {
		ch <- &jsonrpcResponse{Error: &rpcError{Code: codeInternalError, Message: "tool server connection lost"}}
		delete(c.pending, id)
	}
	c.mu.Unlock()
	log.Warn().Msg("tool_server_disconnected")
}

// Close shuts the connection down and reaps the subprocess if one was started.
func (c *Client) Close() {
	c.mu.Lock()
	if !c.connected && c.cmd == nil {
		c.mu.Unlock()
		return
	}
	c.connected = false
	stdin := c.stdin
	cmd := c.cmd
	c.cmd = nil
	c.mu.Unlock()

	if stdin != nil {
		_ = stdin.Close()
	}
	if cmd != nil {
		_ = cmd.Wait()
	}
}

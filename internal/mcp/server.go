package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/DawoodTahir/MCP-Chatbot/internal/tools"
)

// Server reads newline-delimited JSON-RPC 2.0 requests from in, dispatches
// them against the tool registry, and writes responses to out. One response
// line per request line; responses may interleave across concurrent calls but
// each line is written atomically.
type Server struct {
	registry *tools.Registry
	in       io.Reader
	out      io.Writer
	writeMu  sync.Mutex
}

// NewServer creates a tool server over the given streams (stdin/stdout in
// production, pipes in tests).
func NewServer(registry *tools.Registry, in io.Reader, out io.Writer) *Server {
	return &Server{registry: registry, in: in, out: out}
}

// Serve processes requests until in is closed or ctx is cancelled. Each
// request is handled on its own goroutine so a slow tool does not block the
// read loop.
func (s *Server) Serve(ctx context.Context) error {
	scanner := bufio.NewScanner(s.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var wg sync.WaitGroup
	for scanner.Scan() {
		if ctx.Err() != nil {
			break
		}
		line := make([]byte, len(scanner.Bytes()))
		copy(line, scanner.Bytes())

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleLine(ctx, line)
		}()
	}
	wg.Wait()
	if err := scanner.Err(); err != nil {
		return err
	}
	return ctx.Err()
}

func (s *Server) handleLine(ctx context.Context, line []byte) {
	var req jsonrpcRequest
	if err := json.Unmarshal(line, &req); err != nil {
		s.writeResponse(&jsonrpcResponse{
			JSONRPC: jsonrpcVersion,
			Error:   &rpcError{Code: codeParseError, Message: "invalid JSON: " + err.Error()},
		})
		return
	}
	if req.JSONRPC != jsonrpcVersion {
		s.writeResponse(&jsonrpcResponse{
			JSONRPC: jsonrpcVersion,
			ID:      req.ID,
			Error:   &rpcError{Code: codeInvalidRequest, Message: "jsonrpc must be 2.0"},
		})
		return
	}

	var resp *jsonrpcResponse
	switch req.Method {
	case "initialize":
		resp = s.handleInitialize(req.ID)
	case "tools/list":
		resp = s.handleToolsList(ctx, req.ID)
	case "tools/call":
		resp = s.handleToolsCall(ctx, &req)
	default:
		resp = &jsonrpcResponse{
			JSONRPC: jsonrpcVersion,
			ID:      req.ID,
			Error:   &rpcError{Code: codeMethodNotFound, Message: "method not found: " + req.Method},
		}
	}
	s.writeResponse(resp)
}

func (s *Server) handleInitialize(id interface{}) *jsonrpcResponse {
	result, _ := json.Marshal(initializeResult{
		ProtocolVersion: protocolVersion,
		ServerInfo:      map[string]string{"name": "chatbot-tool-server"},
	})
	return &jsonrpcResponse{JSONRPC: jsonrpcVersion, ID: id, Result: result}
}

func (s *Server) handleToolsList(ctx context.Context, id interface{}) *jsonrpcResponse {
	_, span := tracer.Start(ctx, "mcp.tools.list")
	defer span.End()

	list := s.registry.List()
	descriptors := make([]toolDescriptor, 0, len(list))
	for _, t := range list {
		descriptors = append(descriptors, toolDescriptor{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: t.InputSchema(),
		})
	}
	span.SetAttributes(attribute.Int("tools.count", len(descriptors)))

	result, _ := json.Marshal(toolsListResult{Tools: descriptors})
	return &jsonrpcResponse{JSONRPC: jsonrpcVersion, ID: id, Result: result}
}

func (s *Server) handleToolsCall(ctx context.Context, req *jsonrpcRequest) *jsonrpcResponse {
	ctx, span := tracer.Start(ctx, "mcp.tools.call")
	defer span.End()

	var params toolsCallParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return &jsonrpcResponse{JSONRPC: jsonrpcVersion, ID: req.ID, Error: &rpcError{Code: codeInvalidParams, Message: "invalid params: " + err.Error()}}
		}
	}
	if params.Name == "" {
		return &jsonrpcResponse{JSONRPC: jsonrpcVersion, ID: req.ID, Error: &rpcError{Code: codeInvalidParams, Message: "tool name is required"}}
	}
	span.SetAttributes(attribute.String("tool.name", params.Name))

	tool, ok := s.registry.Get(params.Name)
	if !ok {
		return &jsonrpcResponse{JSONRPC: jsonrpcVersion, ID: req.ID, Error: &rpcError{Code: codeServerError, Message: "tool not found: " + params.Name}}
	}

	result, err := tool.Execute(ctx, params.Arguments)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Warn().Err(err).Str("tool", params.Name).Msg("tool_execution_failed")
		return &jsonrpcResponse{JSONRPC: jsonrpcVersion, ID: req.ID, Error: &rpcError{Code: codeServerError, Message: err.Error()}}
	}

	wrapped, _ := json.Marshal(map[string]json.RawMessage{"content": result})
	return &jsonrpcResponse{JSONRPC: jsonrpcVersion, ID: req.ID, Result: wrapped}
}

// writeResponse serializes a response as one line. The mutex keeps lines from
// concurrent handlers from interleaving.
func (s *Server) writeResponse(resp *jsonrpcResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		log.Error().Err(err).Msg("tool_server_encode_failed")
		return
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, _ = s.out.Write(append(data, '\n'))
}

package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"golang.org/x/sync/errgroup"

	logx "github.com/gasdesk/agent-server/pkg/logger"
)

// Handler runs one tool. Its result is sent back as JSON text content; an
// error becomes an isError result.
type Handler func(ctx context.Context, args map[string]any) (any, error)

type serverTool struct {
	def     ToolDefinition
	handler Handler
}

// Server answers initialize, tools/list and tools/call on a stdio stream.
type Server struct {
	info  ClientInfo
	tools []serverTool
	index map[string]int
}

func NewServer(name, version string) *Server {
	return &Server{info: ClientInfo{Name: name, Version: version}, index: map[string]int{}}
}

// Handle adds a tool; definitions are listed in registration order.
func (s *Server) Handle(def ToolDefinition, h Handler) {
	if i, ok := s.index[def.Name]; ok {
		s.tools[i] = serverTool{def: def, handler: h}
		return
	}
	s.index[def.Name] = len(s.tools)
	s.tools = append(s.tools, serverTool{def: def, handler: h})
}

// Serve reads one request per line until r is exhausted or ctx is done.
// Requests are handled concurrently; responses may be written out of order.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	var writeMu sync.Mutex
	send := func(resp Response) {
		data, err := json.Marshal(resp)
		if err != nil {
			logx.Error().Err(err).Msg("encode response")
			return
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		if _, err := w.Write(append(data, '\n')); err != nil {
			logx.Error().Err(err).Msg("write response")
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64<<10), maxFrame)
	for scanner.Scan() {
		if ctx.Err() != nil {
			break
		}
		line := append([]byte(nil), scanner.Bytes()...)
		if len(line) == 0 {
			continue
		}
		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			send(Response{JSONRPC: jsonrpcVersion, Error: &RPCError{Code: CodeParseError, Message: "Parse error: " + err.Error()}})
			continue
		}
		g.Go(func() error {
			if resp, ok := s.dispatch(gctx, req); ok {
				send(resp)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read requests: %w", err)
	}
	return nil
}

// dispatch returns false for notifications, which get no reply.
func (s *Server) dispatch(ctx context.Context, req Request) (Response, bool) {
	resp := Response{JSONRPC: jsonrpcVersion, ID: req.ID}
	var (
		result any
		rpcErr *RPCError
	)
	switch req.Method {
	case MethodInitialize:
		result = InitializeResult{
			ProtocolVersion: ProtocolVersion,
			Capabilities:    map[string]any{"tools": map[string]any{}},
			ServerInfo:      s.info,
		}
	case MethodInitialized:
		result = struct{}{}
	case MethodToolsList:
		defs := make([]ToolDefinition, 0, len(s.tools))
		for _, t := range s.tools {
			defs = append(defs, t.def)
		}
		result = ListToolsResult{Tools: defs}
	case MethodToolsCall:
		var p CallParams
		if len(req.Params) > 0 {
			if err := json.Unmarshal(req.Params, &p); err != nil {
				rpcErr = &RPCError{Code: CodeInvalidParams, Message: "Invalid params: " + err.Error()}
				break
			}
		}
		i, ok := s.index[p.Name]
		if !ok {
			rpcErr = &RPCError{Code: CodeInvalidParams, Message: "Unknown tool: " + p.Name}
			break
		}
		result = s.call(ctx, s.tools[i], p.Arguments)
	default:
		rpcErr = &RPCError{Code: CodeMethodNotFound, Message: "Method not found: " + req.Method}
	}

	if req.ID == nil {
		return resp, false
	}
	if rpcErr != nil {
		resp.Error = rpcErr
		return resp, true
	}
	raw, err := json.Marshal(result)
	if err != nil {
		resp.Error = &RPCError{Code: CodeInternalError, Message: err.Error()}
		return resp, true
	}
	resp.Result = raw
	return resp, true
}

func (s *Server) call(ctx context.Context, t serverTool, args map[string]any) CallResult {
	if args == nil {
		args = map[string]any{}
	}
	v, err := t.handler(ctx, args)
	if err != nil {
		logx.Warn().Str("tool", t.def.Name).Err(err).Msg("tool call failed")
		return CallResult{Content: []Content{{Type: "text", Text: "Error: " + err.Error()}}, IsError: true}
	}
	text, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return CallResult{Content: []Content{{Type: "text", Text: "Error: " + err.Error()}}, IsError: true}
	}
	return CallResult{Content: []Content{{Type: "text", Text: string(text)}}}
}

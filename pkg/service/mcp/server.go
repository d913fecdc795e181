package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kioku/pkg/model"
	"github.com/m-mizutani/kioku/pkg/usecase/memory"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Server exposes the memory engine's operations as MCP tools over stdio so
// an agent can remember, recall and forget memories.
type Server struct {
	engine *memory.UseCase
	server *mcp.Server
}

// NewServer builds the MCP server and registers the memory tools
func NewServer(engine *memory.UseCase, version string) *Server {
	s := &Server{
		engine: engine,
		server: mcp.NewServer(&mcp.Implementation{
			Name:    "kioku",
			Version: version,
		}, nil),
	}

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "remember_memory",
		Description: "Store a memory for later retrieval",
	}, s.remember)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "recall_memories",
		Description: "Retrieve memories relevant to a query using hybrid vector and keyword search",
	}, s.recall)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "forget_memory",
		Description: "Delete a memory by ID",
	}, s.forget)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "memory_stats",
		Description: "Report memory engine statistics",
	}, s.stats)

	return s
}

// Run serves MCP requests over stdio until the context is cancelled
func (s *Server) Run(ctx context.Context) error {
	if err := s.server.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return goerr.Wrap(err, "mcp server failed")
	}
	return nil
}

type rememberParams struct {
	Content string   `json:"content" jsonschema:"Text content of the memory"`
	Type    string   `json:"type,omitempty" jsonschema:"Memory type: fact, episode, relation or reflection"`
	Source  string   `json:"source,omitempty" jsonschema:"Source or category tag"`
	Tags    []string `json:"tags,omitempty" jsonschema:"Free-form tags"`
}

func (s *Server) remember(ctx context.Context, req *mcp.CallToolRequest, params *rememberParams) (*mcp.CallToolResult, any, error) {
	m, err := s.engine.Write(ctx, memory.WriteInput{
		Content: params.Content,
		Type:    model.MemoryType(params.Type),
		Source:  params.Source,
		Tags:    params.Tags,
	})
	if err != nil {
		return nil, nil, err
	}

	return textResult(fmt.Sprintf("stored memory %s (importance %.2f)", m.ID, m.Importance)), nil, nil
}

type recallParams struct {
	Query string `json:"query" jsonschema:"Natural language query"`
	Limit int    `json:"limit,omitempty" jsonschema:"Maximum number of memories to return"`
}

func (s *Server) recall(ctx context.Context, req *mcp.CallToolRequest, params *recallParams) (*mcp.CallToolResult, any, error) {
	result, err := s.engine.Retrieve(ctx, params.Query, params.Limit, memory.Filters{})
	if err != nil {
		return nil, nil, err
	}

	if result.NoRelevantMemory {
		return textResult("no relevant memories found"), nil, nil
	}

	var b strings.Builder
	for i, r := range result.Results {
		m, err := s.engine.Get(ctx, r.ID)
		if err != nil {
			continue
		}
		fmt.Fprintf(&b, "%d. [%s] (%.3f) %s\n", i+1, m.ID.Short(), r.Score, m.Content)
	}
	fmt.Fprintf(&b, "strategy=%s candidates=%d elapsed=%dms",
		result.Strategy, result.TotalCandidates, result.ElapsedMillis)

	return textResult(b.String()), nil, nil
}

type forgetParams struct {
	MemoryID string `json:"memory_id" jsonschema:"ID of the memory to delete"`
}

func (s *Server) forget(ctx context.Context, req *mcp.CallToolRequest, params *forgetParams) (*mcp.CallToolResult, any, error) {
	if err := s.engine.Forget(ctx, model.MemoryID(params.MemoryID)); err != nil {
		return nil, nil, err
	}
	return textResult(fmt.Sprintf("forgot memory %s", params.MemoryID)), nil, nil
}

type statsParams struct{}

func (s *Server) stats(ctx context.Context, req *mcp.CallToolRequest, params *statsParams) (*mcp.CallToolResult, any, error) {
	stats := s.engine.Stats(ctx)

	var b strings.Builder
	fmt.Fprintf(&b, "total=%d archived=%d\n", stats.Total, stats.Archived)
	fmt.Fprintf(&b, "indexed=%d pending=%d failed=%d\n",
		stats.ByState[model.VectorStateIndexed],
		stats.ByState[model.VectorStatePending],
		stats.ByState[model.VectorStateFailed])
	fmt.Fprintf(&b, "vector_live=%d vector_tombstoned=%d cache_entries=%d queue_depth=%d",
		stats.VectorLive, stats.VectorTombstoned, stats.CacheEntries, stats.QueueDepth)

	return textResult(b.String()), nil, nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

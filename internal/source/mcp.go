package source

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/groundcheck/internal/model"
)

var mcpImplementation = &mcp.Implementation{Name: "groundcheck", Version: "1.0.0"}

// MCPSource delegates searches to a tool on an MCP server. It can stand in
// for any built-in source kind.
type MCPSource struct {
	kind    model.SourceKind
	tool    string
	session *mcp.ClientSession
	mu      sync.Mutex
	logger  *slog.Logger
}

// mcpResult is the item shape accepted from MCP tools. Field aliases cover
// the common search-server conventions.
type mcpResult struct {
	Title          string  `json:"title"`
	Content        string  `json:"content"`
	Snippet        string  `json:"snippet"`
	URL            string  `json:"url"`
	Link           string  `json:"link"`
	Score          float64 `json:"score"`
	RelevanceScore float64 `json:"relevance_score"`
}

// ConnectMCP opens a session over transport and returns a source that calls
// tool for every search.
func ConnectMCP(ctx context.Context, kind model.SourceKind, transport mcp.Transport, tool string, logger *slog.Logger) (*MCPSource, error) {
	if tool == "" {
		return nil, &ConfigurationError{Source: kind, Reason: "MCP tool name is required"}
	}
	if logger == nil {
		logger = slog.Default()
	}

	client := mcp.NewClient(mcpImplementation, nil)
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("connect MCP server for %s: %w", kind, err)
	}

	return &MCPSource{
		kind:    kind,
		tool:    tool,
		session: session,
		logger:  logger.With("component", "mcp_source", "source", string(kind)),
	}, nil
}

// ConnectMCPCommand starts an MCP server subprocess and connects to it over
// stdio.
func ConnectMCPCommand(ctx context.Context, kind model.SourceKind, command string, args []string, tool string, logger *slog.Logger) (*MCPSource, error) {
	if strings.TrimSpace(command) == "" {
		return nil, &ConfigurationError{Source: kind, Reason: "MCP command is required"}
	}
	transport := &mcp.CommandTransport{Command: exec.Command(command, args...)}
	return ConnectMCP(ctx, kind, transport, tool, logger)
}

func (m *MCPSource) Kind() model.SourceKind { return m.kind }

func (m *MCPSource) Search(ctx context.Context, query string, limit int) ([]model.EvidenceItem, error) {
	m.mu.Lock()
	session := m.session
	m.mu.Unlock()
	if session == nil {
		return nil, fmt.Errorf("%s: MCP session closed", m.kind)
	}

	res, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name: m.tool,
		Arguments: map[string]any{
			"query": query,
			"limit": limit,
		},
	})
	if err != nil {
		return nil, classifyTransport(m.kind, err)
	}
	if res.IsError {
		return nil, fmt.Errorf("%s: MCP tool %s failed: %s", m.kind, m.tool, textOf(res))
	}

	results, err := decodeMCPResults(res)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", m.kind, err)
	}

	items := make([]model.EvidenceItem, 0, len(results))
	for _, r := range results {
		if limit > 0 && len(items) >= limit {
			break
		}
		content := firstNonEmpty(r.Content, r.Snippet)
		relevance := r.RelevanceScore
		if relevance == 0 {
			relevance = r.Score
		}
		if relevance == 0 {
			relevance = 0.5
		}
		items = append(items, model.EvidenceItem{
			SourceID:      m.kind,
			Title:         r.Title,
			Content:       truncate(content, maxContentLength),
			URL:           firstNonEmpty(r.URL, r.Link),
			BaseRelevance: clamp01(relevance),
			MatchType:     matchType(query, r.Title, content),
		})
	}
	m.logger.Debug("MCP search completed", "tool", m.tool, "results", len(items))
	return items, nil
}

// Close ends the MCP session.
func (m *MCPSource) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil
	}
	err := m.session.Close()
	m.session = nil
	return err
}

// decodeMCPResults accepts either a JSON array of results or an object with
// a results field, from text content first and structured content second.
func decodeMCPResults(res *mcp.CallToolResult) ([]mcpResult, error) {
	var raw []byte
	if text := textOf(res); text != "" {
		raw = []byte(text)
	} else if res.StructuredContent != nil {
		b, err := json.Marshal(res.StructuredContent)
		if err != nil {
			return nil, fmt.Errorf("encode structured content: %w", err)
		}
		raw = b
	}
	if len(raw) == 0 {
		return nil, nil
	}

	var list []mcpResult
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	var wrapped struct {
		Results []mcpResult `json:"results"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("decode MCP results: %w", err)
	}
	return wrapped.Results, nil
}

func textOf(res *mcp.CallToolResult) string {
	var parts []string
	for _, c := range res.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

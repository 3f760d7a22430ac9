// Package mcp provides Model Context Protocol server functionality.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/vectorgate/vectorgate/domain/apperr"
	"github.com/vectorgate/vectorgate/domain/service"
)

// Server wraps the MCP server with vectorgate's nine store/query tools.
type Server struct {
	mcpServer         *server.MCPServer
	engine            *service.Engine
	version           string
	defaultCollection string
	logger            *slog.Logger
}

const instructions = "This server exposes a collection-aware semantic storage and " +
	"search gateway backed by a vector database. Every collection is bound to " +
	"exactly one embedding model, decided the first time the collection is used.\n\n" +
	"**Available tools:**\n" +
	"- store(collection, information, metadata?) - Embed and index one document\n" +
	"- bulk_store(collection, documents, metadata_list?, batch_size?) - Embed and index many documents\n" +
	"- find(collection, query, limit?, score_threshold?) - Semantic search over a collection\n" +
	"- get_point(collection, id) - Retrieve one stored point by id\n" +
	"- update_payload(collection, point_ids, payload, key?) - Merge fields into one or more points' payloads\n" +
	"- delete_points(collection, point_ids) - Remove points by id\n" +
	"- list_collections() - List every collection known to the backend\n" +
	"- collection_info(collection) - Detailed view of one collection\n" +
	"- model_mappings() - Report the configured collection-name to model resolution rules\n\n" +
	"A collection name is resolved to a model via an exact mapping, then substring " +
	"pattern rules, then a configured default. The resolution is fixed the first time " +
	"a collection is created and never changes afterward."

// NewServer creates an MCP server wired to engine. defaultCollection, if
// non-empty, is used by every collection-taking tool when the caller
// omits the collection argument.
func NewServer(engine *service.Engine, version, defaultCollection string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{engine: engine, version: version, defaultCollection: defaultCollection, logger: logger}

	mcpServer := server.NewMCPServer(
		"vectorgate",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, false),
		server.WithInstructions(instructions),
	)

	s.registerTools(mcpServer)

	s.mcpServer = mcpServer
	return s
}

func (s *Server) registerTools(mcpServer *server.MCPServer) {
	mcpServer.AddTool(mcp.NewTool("store",
		mcp.WithDescription("Embed a single document and index it in a collection"),
		mcp.WithString("collection", mcp.Description("Collection name; falls back to the server's default collection when omitted")),
		mcp.WithString("information", mcp.Required(), mcp.Description("Text to embed and store")),
		mcp.WithObject("metadata", mcp.Description("Arbitrary JSON metadata attached to the point")),
	), s.handleStore)

	mcpServer.AddTool(mcp.NewTool("bulk_store",
		mcp.WithDescription("Embed and index many documents in one call"),
		mcp.WithString("collection", mcp.Description("Collection name; falls back to the server's default collection when omitted")),
		mcp.WithArray("documents", mcp.Required(),
			mcp.Description("Texts to embed and store, in order"),
			mcp.Items(map[string]any{"type": "string"}),
		),
		mcp.WithArray("metadata_list",
			mcp.Description("Per-document metadata, positional with documents; omit for no metadata"),
			mcp.Items(map[string]any{"type": "object"}),
		),
		mcp.WithNumber("batch_size", mcp.Description("Documents embedded and upserted per chunk (default server-configured)")),
	), s.handleBulkStore)

	mcpServer.AddTool(mcp.NewTool("find",
		mcp.WithDescription("Semantic search: embed a query and return the closest points in a collection"),
		mcp.WithString("collection", mcp.Description("Collection name; falls back to the server's default collection when omitted")),
		mcp.WithString("query", mcp.Required(), mcp.Description("Natural language query text")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of results (default server-configured)")),
		mcp.WithNumber("score_threshold", mcp.Description("Minimum similarity score to include (default server-configured)")),
	), s.handleFind)

	mcpServer.AddTool(mcp.NewTool("get_point",
		mcp.WithDescription("Retrieve a single stored point by id"),
		mcp.WithString("collection", mcp.Description("Collection name; falls back to the server's default collection when omitted")),
		mcp.WithString("id", mcp.Required(), mcp.Description("Point id returned by a prior store or bulk_store call")),
	), s.handleGetPoint)

	mcpServer.AddTool(mcp.NewTool("update_payload",
		mcp.WithDescription("Merge fields into one or more points' payloads"),
		mcp.WithString("collection", mcp.Description("Collection name; falls back to the server's default collection when omitted")),
		mcp.WithArray("point_ids", mcp.Required(),
			mcp.Description("Point ids to update"),
			mcp.Items(map[string]any{"type": "string"}),
		),
		mcp.WithObject("payload", mcp.Required(), mcp.Description("Fields to merge into the existing payload")),
		mcp.WithString("key", mcp.Description("Dotted path to merge payload under, instead of the payload root")),
	), s.handleUpdatePayload)

	mcpServer.AddTool(mcp.NewTool("delete_points",
		mcp.WithDescription("Remove points by id. Deleting an already-absent id is a no-op success."),
		mcp.WithString("collection", mcp.Description("Collection name; falls back to the server's default collection when omitted")),
		mcp.WithArray("point_ids", mcp.Required(),
			mcp.Description("Point ids to delete"),
			mcp.Items(map[string]any{"type": "string"}),
		),
	), s.handleDeletePoints)

	mcpServer.AddTool(mcp.NewTool("list_collections",
		mcp.WithDescription("List every collection known to the backend"),
	), s.handleListCollections)

	mcpServer.AddTool(mcp.NewTool("collection_info",
		mcp.WithDescription("Get the detailed view of a single collection: vector geometry, point count, index status"),
		mcp.WithString("collection", mcp.Description("Collection name; falls back to the server's default collection when omitted")),
	), s.handleCollectionInfo)

	mcpServer.AddTool(mcp.NewTool("model_mappings",
		mcp.WithDescription("Report the configured collection-name to model resolution rules and the registered models"),
	), s.handleModelMappings)
}

func (s *Server) handleStore(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	collectionName, errResult := s.collectionArg(request)
	if errResult != nil {
		return errResult, nil
	}
	information, err := request.RequireString("information")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("information is required: %v", err)), nil
	}
	metadata := argObject(request, "metadata")

	result, err := s.engine.Store(ctx, collectionName, information, metadata)
	if err != nil {
		return toolError(err)
	}
	return jsonResult(result)
}

func (s *Server) handleBulkStore(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	collectionName, errResult := s.collectionArg(request)
	if errResult != nil {
		return errResult, nil
	}
	documents, err := argStringSlice(request, "documents")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("documents: %v", err)), nil
	}
	if len(documents) == 0 {
		return mcp.NewToolResultError("documents is required and must not be empty"), nil
	}
	metadataList, err := argObjectSlice(request, "metadata_list")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("metadata_list: %v", err)), nil
	}
	batchSize := int(request.GetFloat("batch_size", 0))

	result, err := s.engine.BulkStore(ctx, collectionName, documents, metadataList, batchSize)
	if err != nil {
		return toolError(err)
	}
	return jsonResult(result)
}

func (s *Server) handleFind(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	collectionName, errResult := s.collectionArg(request)
	if errResult != nil {
		return errResult, nil
	}
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query is required: %v", err)), nil
	}
	limit := int(request.GetFloat("limit", 0))
	threshold := float32(request.GetFloat("score_threshold", 0))

	result, err := s.engine.Find(ctx, collectionName, query, limit, threshold)
	if err != nil {
		return toolError(err)
	}
	return jsonResult(result)
}

func (s *Server) handleGetPoint(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	collectionName, errResult := s.collectionArg(request)
	if errResult != nil {
		return errResult, nil
	}
	pointID, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("id is required: %v", err)), nil
	}

	point, err := s.engine.GetPoint(ctx, collectionName, pointID)
	if err != nil {
		return toolError(err)
	}
	return jsonResult(struct {
		ID       string         `json:"id"`
		Document string         `json:"document"`
		Metadata map[string]any `json:"metadata"`
	}{ID: point.ID, Document: point.Payload.Document(), Metadata: point.Payload.Metadata()})
}

func (s *Server) handleUpdatePayload(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	collectionName, errResult := s.collectionArg(request)
	if errResult != nil {
		return errResult, nil
	}
	pointIDs, err := argStringSlice(request, "point_ids")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("point_ids: %v", err)), nil
	}
	if len(pointIDs) == 0 {
		return mcp.NewToolResultError("point_ids is required and must not be empty"), nil
	}
	payload := argObject(request, "payload")
	if payload == nil {
		return mcp.NewToolResultError("payload is required"), nil
	}
	key := request.GetString("key", "")

	result, err := s.engine.UpdatePayload(ctx, collectionName, pointIDs, payload, key)
	if err != nil {
		return toolError(err)
	}
	return jsonResult(result)
}

func (s *Server) handleDeletePoints(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	collectionName, errResult := s.collectionArg(request)
	if errResult != nil {
		return errResult, nil
	}
	pointIDs, err := argStringSlice(request, "point_ids")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("point_ids: %v", err)), nil
	}
	if len(pointIDs) == 0 {
		return mcp.NewToolResultError("point_ids is required and must not be empty"), nil
	}

	result, err := s.engine.DeletePoints(ctx, collectionName, pointIDs)
	if err != nil {
		return toolError(err)
	}
	return jsonResult(result)
}

func (s *Server) handleListCollections(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	collections, err := s.engine.ListCollections(ctx)
	if err != nil {
		return toolError(err)
	}
	return jsonResult(collections)
}

func (s *Server) handleCollectionInfo(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	collectionName, errResult := s.collectionArg(request)
	if errResult != nil {
		return errResult, nil
	}

	detail, err := s.engine.CollectionInfo(ctx, collectionName)
	if err != nil {
		return toolError(err)
	}
	return jsonResult(detail)
}

func (s *Server) handleModelMappings(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.engine.ModelMappings())
}

// collectionArg resolves the collection a tool call targets: the explicit
// argument, else the server's configured default. A nil second value
// means the name is usable.
func (s *Server) collectionArg(request mcp.CallToolRequest) (string, *mcp.CallToolResult) {
	name := request.GetString("collection", "")
	if name == "" {
		name = s.defaultCollection
	}
	if name == "" {
		return "", mcp.NewToolResultError("collection is required (no default collection configured)")
	}
	return name, nil
}

// toolError translates a core apperr.Error into a tool-level error result.
// The request itself succeeded; the operation failed for a reason the
// caller can act on, so it is reported as CallToolResult content rather
// than a transport-level error.
func toolError(err error) (*mcp.CallToolResult, error) {
	kind := apperr.KindOf(err)
	if kind == "" {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultError(fmt.Sprintf("%s: %v", kind, err)), nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// argObject extracts a map-typed argument, returning nil if absent or
// not an object.
func argObject(request mcp.CallToolRequest, key string) map[string]any {
	args := request.GetArguments()
	v, ok := args[key].(map[string]any)
	if !ok {
		return nil
	}
	return v
}

// argStringSlice extracts an array-of-string argument, returning an
// error if present but not every element is a string.
func argStringSlice(request mcp.CallToolRequest, key string) ([]string, error) {
	args := request.GetArguments()
	raw, ok := args[key]
	if !ok || raw == nil {
		return nil, nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("must be an array of strings")
	}
	out := make([]string, 0, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("element %d must be a string", i)
		}
		out = append(out, s)
	}
	return out, nil
}

// argObjectSlice extracts an array-of-object argument, returning an
// error if present but not every element is an object.
func argObjectSlice(request mcp.CallToolRequest, key string) ([]map[string]any, error) {
	args := request.GetArguments()
	raw, ok := args[key]
	if !ok || raw == nil {
		return nil, nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("must be an array of objects")
	}
	out := make([]map[string]any, 0, len(items))
	for i, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("element %d must be an object", i)
		}
		out = append(out, m)
	}
	return out, nil
}

// MCPServer returns the underlying server.MCPServer, for mounting as a
// streamable-HTTP handler.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio runs the server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

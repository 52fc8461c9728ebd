package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gamma-omg/legal-rag/rag"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

type ragService interface {
	Retrieve(ctx context.Context, query string, k int) ([]rag.Result, error)
	Ask(ctx context.Context, query string) (rag.Answer, error)
}

func NewRagServer(svc ragService, results int) *server.MCPServer {
	retrieve := mcp.NewTool("retrieve",
		mcp.WithDescription("Search the legal documents and return the passages most relevant to the query"),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search query"),
		),
		mcp.WithNumber("k",
			mcp.Description("Number of passages to return"),
			mcp.DefaultNumber(float64(results)),
		))

	ask := mcp.NewTool("ask",
		mcp.WithDescription("Answer a question using the legal documents"),
		mcp.WithString("question",
			mcp.Required(),
			mcp.Description("Question in plain language"),
		))

	srv := server.NewMCPServer("legal-rag", "0.1.0", server.WithToolCapabilities(false))
	srv.AddTool(retrieve, retrieveHandler(svc, results))
	srv.AddTool(ask, askHandler(svc))

	return srv
}

func retrieveHandler(svc ragService, results int) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		q, err := request.RequireString("query")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		res, err := svc.Retrieve(ctx, q, request.GetInt("k", results))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		var response strings.Builder
		for _, r := range res {
			raw, err := json.Marshal(struct {
				Score float32 `json:"score"`
				File  string  `json:"file"`
				Page  int     `json:"page"`
				Text  string  `json:"text"`
			}{
				Score: r.Score,
				File:  r.Passage.Document,
				Page:  r.Passage.Page,
				Text:  r.Passage.Text,
			})
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}

			response.WriteString(fmt.Sprintf("%s\n", string(raw)))
		}

		return mcp.NewToolResultText(response.String()), nil
	}
}

func askHandler(svc ragService) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		q, err := request.RequireString("question")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		ans, err := svc.Ask(ctx, q)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		return mcp.NewToolResultText(formatAnswer(ans)), nil
	}
}

func formatAnswer(ans rag.Answer) string {
	if len(ans.Sources) == 0 {
		return ans.Text
	}

	return fmt.Sprintf("%s\n\nSources: %s", ans.Text, strings.Join(ans.Sources, ", "))
}

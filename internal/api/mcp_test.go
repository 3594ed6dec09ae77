package api

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kalambet/cvmatch/internal/cv"
)

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func makeReadResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

func TestNewMCPServer(t *testing.T) {
	if s := NewMCPServer(newTestDeps(t, nil)); s == nil {
		t.Fatal("NewMCPServer returned nil")
	}
}

func TestMCPTool_StoreThenHasCV(t *testing.T) {
	deps := newTestDeps(t, nil)

	result, err := mcpHasCV(deps)(context.Background(), makeCallToolRequest("has_cv", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text := toolText(t, result); text != `{"has_cv":false}` {
		t.Errorf("has_cv before store = %s", text)
	}

	result, err = mcpStoreCV(deps)(context.Background(), makeCallToolRequest("store_cv", map[string]interface{}{
		"raw_text":   "Backend engineer, 6 years of Go",
		"tech_stack": []interface{}{"Go", "PostgreSQL"},
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("store_cv failed: %s", toolText(t, result))
	}

	rec, ok := deps.CVs.Current()
	if !ok {
		t.Fatal("no current CV after store_cv")
	}
	if rec.RawText != "Backend engineer, 6 years of Go" {
		t.Errorf("raw_text = %q", rec.RawText)
	}
	if len(rec.TechStack) != 2 || rec.TechStack[1] != "PostgreSQL" {
		t.Errorf("tech_stack = %v", rec.TechStack)
	}
	if !strings.Contains(toolText(t, result), rec.ID) {
		t.Errorf("response %q does not mention id %s", toolText(t, result), rec.ID)
	}

	result, _ = mcpHasCV(deps)(context.Background(), makeCallToolRequest("has_cv", nil))
	if text := toolText(t, result); text != `{"has_cv":true}` {
		t.Errorf("has_cv after store = %s", text)
	}
}

func TestMCPTool_StoreCV_MissingText(t *testing.T) {
	deps := newTestDeps(t, nil)
	result, err := mcpStoreCV(deps)(context.Background(), makeCallToolRequest("store_cv", map[string]interface{}{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Error("expected tool error for missing raw_text")
	}
	if deps.CVs.Count() != 0 {
		t.Error("CV stored without raw_text")
	}
}

func TestMCPTool_GetCurrentCV(t *testing.T) {
	deps := newTestDeps(t, nil)

	result, _ := mcpGetCurrentCV(deps)(context.Background(), makeCallToolRequest("get_current_cv", nil))
	if !result.IsError {
		t.Error("expected tool error with no CV stored")
	}

	rc := deps.CVs.Save(cv.Input{RawText: "cv body"})
	result, _ = mcpGetCurrentCV(deps)(context.Background(), makeCallToolRequest("get_current_cv", nil))
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}
	var rec cv.Record
	if err := json.Unmarshal([]byte(toolText(t, result)), &rec); err != nil {
		t.Fatalf("parsing record: %v", err)
	}
	if rec.ID != rc.ID || rec.RawText != "cv body" {
		t.Errorf("record = %+v", rec)
	}
}

func TestMCPTool_AnalyzeJob(t *testing.T) {
	comp := &stubCompleter{response: goodResponse}
	deps := newTestDeps(t, comp)
	deps.CVs.Save(cv.Input{RawText: "Python developer"})

	result, err := mcpAnalyzeJob(deps)(context.Background(), makeCallToolRequest("analyze_job", map[string]interface{}{
		"job_description": "Looking for a Python developer",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}

	var body analysisBody
	if err := json.Unmarshal([]byte(toolText(t, result)), &body); err != nil {
		t.Fatalf("parsing result: %v", err)
	}
	if !body.CVUsed || body.MatchScore != 72 {
		t.Errorf("result = %+v", body)
	}
}

func TestMCPTool_AnalyzeJob_Errors(t *testing.T) {
	tests := []struct {
		name string
		comp *stubCompleter
		args map[string]interface{}
		want string
	}{
		{"missing description", &stubCompleter{response: goodResponse}, map[string]interface{}{}, "job_description is required"},
		{"unavailable", nil, map[string]interface{}{"job_description": "x"}, "not available"},
		{"upstream", &stubCompleter{err: errors.New("timeout")}, map[string]interface{}{"job_description": "x"}, "analysis failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := newTestDeps(t, tt.comp)
			result, err := mcpAnalyzeJob(deps)(context.Background(), makeCallToolRequest("analyze_job", tt.args))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !result.IsError {
				t.Fatal("expected tool error")
			}
			if text := toolText(t, result); !strings.Contains(text, tt.want) {
				t.Errorf("text = %q, want it to contain %q", text, tt.want)
			}
		})
	}
}

func TestMCPResource_CurrentCV(t *testing.T) {
	deps := newTestDeps(t, nil)
	handler := mcpResourceCurrentCV(deps)

	if _, err := handler(context.Background(), makeReadResourceRequest(currentCVURI)); err == nil {
		t.Error("expected error with no CV stored")
	}

	deps.CVs.Save(cv.Input{RawText: "resource cv"})
	contents, err := handler(context.Background(), makeReadResourceRequest(currentCVURI))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("expected 1 content, got %d", len(contents))
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}
	if tc.MIMEType != "application/json" || !strings.Contains(tc.Text, "resource cv") {
		t.Errorf("contents = %+v", tc)
	}
}

package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/tracker/internal/models"
)

func TestBuildClassifyPrompt(t *testing.T) {
	t.Run("with description", func(t *testing.T) {
		system, user := buildClassifyPrompt("Fix login bug", "Page crashes on submit")

		assert.Contains(t, system, "JSON object")
		assert.Contains(t, system, `"bug"`)
		assert.Contains(t, system, `"feature"`)
		assert.Contains(t, system, `"task"`)
		assert.Contains(t, system, `"improvement"`)

		assert.Contains(t, user, "Summary: Fix login bug")
		assert.Contains(t, user, "Page crashes on submit")
	})

	t.Run("summary only", func(t *testing.T) {
		_, user := buildClassifyPrompt("Add dark mode", "")
		assert.Contains(t, user, "Add dark mode")
		assert.NotContains(t, user, "Description")
	})
}

func TestParseClassification(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    models.IssueType
		wantErr bool
	}{
		{"plain", `{"type":"bug","reason":"crash"}`, models.IssueTypeBug, false},
		{"fenced", "```json\n{\"type\":\"feature\"}\n```", models.IssueTypeFeature, false},
		{"upper case", `{"type":"IMPROVEMENT"}`, models.IssueTypeImprovement, false},
		{"unknown type", `{"type":"epic"}`, 0, true},
		{"not json", "it is a bug", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseClassification(tt.text)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSuggestType_CallsMessagesAPI(t *testing.T) {
	var gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotModel, _ = body["model"].(string)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":            "msg_test",
			"type":          "message",
			"role":          "assistant",
			"model":         gotModel,
			"stop_reason":   "end_turn",
			"stop_sequence": nil,
			"content": []map[string]any{
				{"type": "text", "text": `{"type":"task","reason":"chore"}`},
			},
			"usage": map[string]any{"input_tokens": 10, "output_tokens": 5},
		})
	}))
	defer srv.Close()

	c := NewClient("test-key", "claude-test", option.WithBaseURL(srv.URL), option.WithMaxRetries(0))
	got, err := c.SuggestType(context.Background(), "Write release notes", "")
	require.NoError(t, err)
	assert.Equal(t, models.IssueTypeTask, got)
	assert.Equal(t, "claude-test", gotModel)
}

func TestSuggestType_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"authentication_error","message":"bad key"}}`))
	}))
	defer srv.Close()

	c := NewClient("bad", "claude-test", option.WithBaseURL(srv.URL), option.WithMaxRetries(0))
	_, err := c.SuggestType(context.Background(), "anything", "")
	assert.ErrorContains(t, err, "anthropic API call")
}

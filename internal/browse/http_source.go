package browse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/joescharf/tracker/internal/models"
	"github.com/joescharf/tracker/internal/notify"
)

// HTTPSource implements Source against a running tracker server's REST
// API. It has no live updates.
type HTTPSource struct {
	baseURL    string
	projectID  string
	reporterID string
	client     *http.Client
}

// NewHTTPSource creates a source for one project served at baseURL
// (e.g. "http://localhost:8080"); issues it creates are reported by
// reporterID. A nil client uses a 10s timeout.
func NewHTTPSource(baseURL, projectID, reporterID string, client *http.Client) *HTTPSource {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPSource{
		baseURL:    strings.TrimRight(baseURL, "/"),
		projectID:  projectID,
		reporterID: reporterID,
		client:     client,
	}
}

func (s *HTTPSource) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s", apiErr.Error)
		}
		return fmt.Errorf("%s %s: %s", method, path, resp.Status)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Issues lists the browsed project's issues.
func (s *HTTPSource) Issues(ctx context.Context) ([]*models.Issue, error) {
	issues := []*models.Issue{}
	path := "/api/issues?" + url.Values{"project": {s.projectID}}.Encode()
	if err := s.do(ctx, http.MethodGet, path, nil, &issues); err != nil {
		return nil, err
	}
	return issues, nil
}

func (s *HTTPSource) EnabledStatuses(ctx context.Context, issueID string) ([]models.Option, error) {
	var options []models.Option
	err := s.do(ctx, http.MethodGet, "/api/issues/"+url.PathEscape(issueID)+"/statuses", nil, &options)
	return options, err
}

func (s *HTTPSource) Types(ctx context.Context) ([]models.Option, error) {
	var options []models.Option
	err := s.do(ctx, http.MethodGet, "/api/types", nil, &options)
	return options, err
}

func (s *HTTPSource) UpdateStatus(ctx context.Context, issueID string, status models.IssueStatus) (*models.Issue, error) {
	var issue models.Issue
	err := s.do(ctx, http.MethodPatch, "/api/issues/"+url.PathEscape(issueID), map[string]any{"status": status}, &issue)
	if err != nil {
		return nil, err
	}
	return &issue, nil
}

func (s *HTTPSource) UpdateType(ctx context.Context, issueID string, t models.IssueType) (*models.Issue, error) {
	var issue models.Issue
	err := s.do(ctx, http.MethodPatch, "/api/issues/"+url.PathEscape(issueID), map[string]any{"type": t}, &issue)
	if err != nil {
		return nil, err
	}
	return &issue, nil
}

func (s *HTTPSource) DeleteAttachment(ctx context.Context, attachmentID string) error {
	return s.do(ctx, http.MethodDelete, "/api/attachments/"+url.PathEscape(attachmentID), nil, nil)
}

func (s *HTTPSource) People(ctx context.Context) ([]models.Person, error) {
	var out struct {
		People []models.Person `json:"people"`
	}
	err := s.do(ctx, http.MethodGet, "/api/projects/"+url.PathEscape(s.projectID)+"/people", nil, &out)
	return out.People, err
}

func (s *HTTPSource) CreateIssue(ctx context.Context, in NewIssue) (*models.Issue, error) {
	body := map[string]string{
		"project":     s.projectID,
		"reporter":    s.reporterID,
		"assignee":    in.AssigneeID,
		"summary":     in.Summary,
		"description": in.Description,
	}
	var issue models.Issue
	if err := s.do(ctx, http.MethodPost, "/api/issues", body, &issue); err != nil {
		return nil, err
	}
	return &issue, nil
}

func (s *HTTPSource) Subscribe() <-chan notify.Message { return nil }

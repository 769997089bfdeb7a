package dx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Config holds client connection settings.
type Config struct {
	// BaseURL of the platform API, e.g. "https://api.dnanexus.com".
	BaseURL string
	// Token is the bearer auth token.
	Token string
	// Timeout bounds each HTTP round trip.
	Timeout time.Duration
	// MaxRetries bounds retries of transient failures.
	MaxRetries int
	// RetryDelay is the base delay; each retry doubles it.
	RetryDelay time.Duration
}

// DefaultConfig returns sensible defaults for everything but BaseURL and Token.
func DefaultConfig() Config {
	return Config{
		Timeout:    60 * time.Second,
		MaxRetries: 5,
		RetryDelay: 2 * time.Second,
	}
}

// Client is the HTTP implementation of API. Every platform call is a JSON
// POST to <base>/<route>; transient 5xx and 429 responses are retried with
// exponential backoff.
type Client struct {
	httpClient *http.Client
	config     Config
	logger     *slog.Logger
}

var _ API = (*Client)(nil)

// NewClient creates a platform API client.
func NewClient(config Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	return &Client{
		httpClient: &http.Client{Timeout: config.Timeout},
		config:     config,
		logger:     logger.With("component", "dx-client"),
	}
}

// apiError is a structured platform failure.
type apiError struct {
	Route      string
	StatusCode int
	Type       string
	Message    string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("platform %s: %s (%s, HTTP %d)", e.Route, e.Message, e.Type, e.StatusCode)
}

// retryable reports whether a failure is worth retrying.
func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// call posts input to a route and unmarshals the response into out.
func (c *Client) call(ctx context.Context, route string, input any, out any) error {
	body, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", route, err)
	}

	requestID := uuid.NewString()
	logger := c.logger.With("route", route, "request_id", requestID)

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.config.RetryDelay * time.Duration(math.Pow(2, float64(attempt-1)))
			logger.Debug("retrying", "attempt", attempt, "delay", delay)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		status, respBody, err := c.doRequest(ctx, route, requestID, body)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			logger.Debug("request failed, will retry", "error", err, "attempt", attempt)
			continue
		}

		if status != http.StatusOK {
			apiErr := parseAPIError(route, status, respBody)
			if retryable(status) {
				lastErr = apiErr
				logger.Debug("transient platform error", "status", status, "attempt", attempt)
				continue
			}
			return apiErr
		}

		if out != nil {
			if err := json.Unmarshal(respBody, out); err != nil {
				return fmt.Errorf("unmarshal %s response: %w", route, err)
			}
		}
		return nil
	}
	return fmt.Errorf("%s: all retries exhausted: %w", route, lastErr)
}

func (c *Client) doRequest(ctx context.Context, route, requestID string, body []byte) (int, []byte, error) {
	url := strings.TrimSuffix(c.config.BaseURL, "/") + "/" + route
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if c.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("http: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, respBody, nil
}

func parseAPIError(route string, status int, body []byte) *apiError {
	var wire struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &wire); err == nil && wire.Error.Message != "" {
		return &apiError{Route: route, StatusCode: status, Type: wire.Error.Type, Message: wire.Error.Message}
	}
	return &apiError{Route: route, StatusCode: status, Type: "UnknownError", Message: strings.TrimSpace(string(body))}
}

type idResult struct {
	ID string `json:"id"`
}

// AppletNew creates an applet in the project.
func (c *Client) AppletNew(ctx context.Context, project string, req map[string]any) (string, error) {
	payload := withProject(req, project)
	var res idResult
	if err := c.call(ctx, "applet/new", payload, &res); err != nil {
		return "", err
	}
	c.logger.Debug("applet built", "id", res.ID)
	return res.ID, nil
}

// WorkflowNew creates a workflow in the project.
func (c *Client) WorkflowNew(ctx context.Context, project string, req map[string]any) (string, error) {
	payload := withProject(req, project)
	var res idResult
	if err := c.call(ctx, "workflow/new", payload, &res); err != nil {
		return "", err
	}
	c.logger.Debug("workflow built", "id", res.ID)
	return res.ID, nil
}

// WorkflowClose closes a built workflow.
func (c *Client) WorkflowClose(ctx context.Context, id string) error {
	return c.call(ctx, id+"/close", map[string]any{}, nil)
}

// Describe fetches the named fields of an object.
func (c *Client) Describe(ctx context.Context, id string, fields []string) (map[string]any, error) {
	fieldSet := make(map[string]bool, len(fields))
	for _, f := range fields {
		fieldSet[f] = true
	}
	var res map[string]any
	if err := c.call(ctx, id+"/describe", map[string]any{"fields": fieldSet}, &res); err != nil {
		return nil, err
	}
	return res, nil
}

// FindDataObjects lists objects carrying the query property.
func (c *Client) FindDataObjects(ctx context.Context, q FindQuery) ([]ObjectDesc, error) {
	scope := map[string]any{"project": q.Project}
	if q.Folder != "" {
		scope["folder"] = q.Folder
		scope["recurse"] = q.Recurse
	}
	payload := map[string]any{
		"scope":    scope,
		"describe": map[string]any{"fields": map[string]bool{"name": true, "folder": true, "created": true, "properties": true}},
	}
	if q.Property != "" {
		payload["properties"] = map[string]any{q.Property: true}
	}
	if len(q.Classes) == 1 {
		payload["class"] = q.Classes[0]
	}
	if q.VisibleOnly {
		payload["visibility"] = "visible"
	}

	var res struct {
		Results []struct {
			ID       string `json:"id"`
			Project  string `json:"project"`
			Describe struct {
				Name       string            `json:"name"`
				Folder     string            `json:"folder"`
				Created    int64             `json:"created"`
				Properties map[string]string `json:"properties"`
			} `json:"describe"`
		} `json:"results"`
	}
	if err := c.call(ctx, "system/findDataObjects", payload, &res); err != nil {
		return nil, err
	}

	descs := make([]ObjectDesc, 0, len(res.Results))
	for _, r := range res.Results {
		descs = append(descs, ObjectDesc{
			ID:         r.ID,
			Name:       r.Describe.Name,
			Class:      classOf(r.ID),
			Project:    r.Project,
			Folder:     r.Describe.Folder,
			Created:    time.UnixMilli(r.Describe.Created),
			Properties: r.Describe.Properties,
		})
	}
	return descs, nil
}

// ResolvePath resolves a project path to matching objects.
func (c *Client) ResolvePath(ctx context.Context, project, path string) ([]ObjectDesc, error) {
	folder, name := splitPath(path)
	objs, err := c.FindDataObjects(ctx, FindQuery{Project: project, Folder: folder})
	if err != nil {
		return nil, err
	}
	var matches []ObjectDesc
	for _, o := range objs {
		if o.Name == name {
			matches = append(matches, o)
		}
	}
	return matches, nil
}

// ArchiveObjects moves old objects into <folder>/.archive and renames each to
// its object id plus a timestamp, so a rebuild can reuse the original name.
func (c *Client) ArchiveObjects(ctx context.Context, project, folder string, ids []string) error {
	archiveFolder := strings.TrimSuffix(folder, "/") + "/.archive"
	payload := map[string]any{
		"objects":     ids,
		"destination": archiveFolder,
		"parents":     true,
	}
	if err := c.call(ctx, project+"/move", payload, nil); err != nil {
		return err
	}
	stamp := time.Now().UTC().Format("2006-01-02T15:04:05")
	for _, id := range ids {
		if err := c.call(ctx, id+"/rename", map[string]any{"name": id + "." + stamp}, nil); err != nil {
			return err
		}
	}
	return nil
}

// RemoveObjects permanently deletes objects.
func (c *Client) RemoveObjects(ctx context.Context, project string, ids []string) error {
	return c.call(ctx, project+"/removeObjects", map[string]any{"objects": ids}, nil)
}

func withProject(req map[string]any, project string) map[string]any {
	out := make(map[string]any, len(req)+1)
	for k, v := range req {
		out[k] = v
	}
	out["project"] = project
	return out
}

func classOf(id string) string {
	if i := strings.Index(id, "-"); i > 0 {
		return id[:i]
	}
	return ""
}

func splitPath(path string) (folder, name string) {
	path = strings.TrimSuffix(path, "/")
	i := strings.LastIndex(path, "/")
	if i < 0 {
		return "/", path
	}
	folder = path[:i]
	if folder == "" {
		folder = "/"
	}
	return folder, path[i+1:]
}

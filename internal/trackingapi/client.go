package trackingapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/georgeannie/mlops-framework/internal/tracking"
)

// #region client
// Client implements tracking.Tracker against a trackingd server.
type Client struct {
	base string
	http *http.Client
}

var _ tracking.Tracker = (*Client)(nil)

// NewClient returns a client for the server at baseURL (http://host:port).
// A nil httpClient uses a client with a 30s timeout.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{base: strings.TrimRight(baseURL, "/") + apiRoot, http: httpClient}
}

// #endregion client

func (c *Client) CreateExperiment(ctx context.Context, name string) (tracking.Experiment, error) {
	var exp tracking.Experiment
	err := c.do(ctx, http.MethodPost, "/experiments", nameBody{Name: name}, &exp)
	return exp, err
}

func (c *Client) GetExperimentByName(ctx context.Context, name string) (tracking.Experiment, error) {
	var exp tracking.Experiment
	err := c.do(ctx, http.MethodGet, "/experiments/by-name/"+url.PathEscape(name), nil, &exp)
	return exp, err
}

func (c *Client) ListExperiments(ctx context.Context) ([]tracking.Experiment, error) {
	var exps []tracking.Experiment
	err := c.do(ctx, http.MethodGet, "/experiments", nil, &exps)
	return exps, err
}

func (c *Client) StartRun(ctx context.Context, experimentID, name string) (tracking.Run, error) {
	var run tracking.Run
	err := c.do(ctx, http.MethodPost, "/experiments/"+url.PathEscape(experimentID)+"/runs", nameBody{Name: name}, &run)
	return run, err
}

func (c *Client) EndRun(ctx context.Context, runID string, status tracking.RunStatus) error {
	return c.do(ctx, http.MethodPut, runPath(runID, "status"), statusBody{Status: status}, nil)
}

func (c *Client) GetRun(ctx context.Context, runID string) (tracking.Run, error) {
	var run tracking.Run
	err := c.do(ctx, http.MethodGet, runPath(runID, ""), nil, &run)
	return run, err
}

func (c *Client) SearchRuns(ctx context.Context, experimentID string, maxResults int) ([]tracking.Run, error) {
	path := "/experiments/" + url.PathEscape(experimentID) + "/runs"
	if maxResults > 0 {
		path += "?max_results=" + strconv.Itoa(maxResults)
	}
	var runs []tracking.Run
	err := c.do(ctx, http.MethodGet, path, nil, &runs)
	return runs, err
}

func (c *Client) LogParam(ctx context.Context, runID, key, value string) error {
	return c.do(ctx, http.MethodPost, runPath(runID, "params"), kvBody{Key: key, Value: value}, nil)
}

func (c *Client) LogMetric(ctx context.Context, runID, key string, value float64) error {
	return c.do(ctx, http.MethodPost, runPath(runID, "metrics"), metricBody{Key: key, Value: value}, nil)
}

func (c *Client) SetTag(ctx context.Context, runID, key, value string) error {
	return c.do(ctx, http.MethodPost, runPath(runID, "tags"), kvBody{Key: key, Value: value}, nil)
}

func (c *Client) LogArtifact(ctx context.Context, runID, path string, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.artifactURL(runID, path), bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	_, err = c.send(req)
	return err
}

func (c *Client) GetArtifact(ctx context.Context, runID, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.artifactURL(runID, path), nil)
	if err != nil {
		return nil, err
	}
	return c.send(req)
}

func (c *Client) RegisterModel(ctx context.Context, name, source, runID string) (tracking.ModelVersion, error) {
	var mv tracking.ModelVersion
	err := c.do(ctx, http.MethodPost, "/models/"+url.PathEscape(name)+"/versions",
		registerBody{Source: source, RunID: runID}, &mv)
	return mv, err
}

func (c *Client) ListModelVersions(ctx context.Context, name string) ([]tracking.ModelVersion, error) {
	var versions []tracking.ModelVersion
	err := c.do(ctx, http.MethodGet, "/models/"+url.PathEscape(name)+"/versions", nil, &versions)
	return versions, err
}

func runPath(runID, sub string) string {
	p := "/runs/" + url.PathEscape(runID)
	if sub != "" {
		p += "/" + sub
	}
	return p
}

func (c *Client) artifactURL(runID, path string) string {
	return c.base + runPath(runID, "artifact") + "?path=" + url.QueryEscape(path)
}

// do sends an optional JSON body and decodes a JSON response into out.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	raw, err := c.send(req)
	if err != nil {
		return err
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) send(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var e ErrorResponse
		reason := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &e) == nil && e.Message.Reason != "" {
			reason = e.Message.Reason
		}
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, statusError(resp.StatusCode, reason))
	}
	return raw, nil
}

package platform

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"time"

	"context"

	"github.com/hashicorp/go-retryablehttp"
)

// giteaClient implements Client against the Gitea Actions REST API, which
// mirrors GitHub's shape closely enough to share the request helpers but
// is not covered by go-github.
type giteaClient struct {
	repository string
	apiURL     string
	token      string
	http       *retryablehttp.Client
}

func newGiteaClient(cfg Config) Client {
	return &giteaClient{
		repository: cfg.Repository,
		apiURL:     strings.TrimRight(cfg.APIURL, "/"),
		token:      cfg.Token,
		http:       newHTTPClient(cfg.Timeout),
	}
}

func (c *giteaClient) Name() string { return "gitea" }

func (c *giteaClient) request(ctx context.Context, op, method, endpoint string, body interface{}, out interface{}) error {
	url := fmt.Sprintf("%s/api/v1/%s", c.apiURL, endpoint)

	var reader *bytes.Reader
	if body != nil {
		b, err := encodeJSON(body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := retryablehttp.NewRequest(method, url, reader)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Authorization", "token "+c.token)
	req.Header.Set("User-Agent", "embeddenator-runner-manager")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return doJSON(ctx, c.http, op, req, out)
}

func (c *giteaClient) ObtainRegistrationToken(ctx context.Context) (string, time.Time, error) {
	var resp struct {
		Token string `json:"token"`
	}
	endpoint := fmt.Sprintf("repos/%s/actions/runners/registration-token", c.repository)
	if err := c.request(ctx, "gitea.obtain_registration_token", http.MethodPost, endpoint, nil, &resp); err != nil {
		return "", time.Time{}, err
	}
	return resp.Token, time.Now().Add(time.Hour), nil
}

func (c *giteaClient) ObtainRemovalToken(ctx context.Context) (string, error) {
	// Gitea has no distinct removal-token endpoint; the configured API
	// token is returned as the removal credential.
	return c.token, nil
}

func (c *giteaClient) ListRunners(ctx context.Context) ([]RunnerStatus, error) {
	var resp struct {
		Runners []struct {
			Name   string `json:"name"`
			Status string `json:"status"`
			Busy   bool   `json:"busy"`
		} `json:"runners"`
	}
	endpoint := fmt.Sprintf("repos/%s/actions/runners", c.repository)
	if err := c.request(ctx, "gitea.list_runners", http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	out := make([]RunnerStatus, 0, len(resp.Runners))
	for _, r := range resp.Runners {
		out = append(out, RunnerStatus{Name: r.Name, Status: r.Status, Busy: r.Busy})
	}
	return out, nil
}

func (c *giteaClient) CountPendingWork(ctx context.Context) (int, error) {
	var resp struct {
		WorkflowRuns []struct {
			Status string `json:"status"`
		} `json:"workflow_runs"`
	}
	endpoint := fmt.Sprintf("repos/%s/actions/runs?status=pending", c.repository)
	if err := c.request(ctx, "gitea.count_pending_work", http.MethodGet, endpoint, nil, &resp); err != nil {
		// The original source treats Gitea's pending-jobs query as
		// best-effort: an unsupported filter on older Gitea versions
		// should not halt the scaling loop.
		return 0, nil
	}
	return len(resp.WorkflowRuns), nil
}

func (c *giteaClient) DefaultLabels() []string {
	return []string{"self-hosted", "linux"}
}

package platform

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

func init() {
	Register("gitlab", newGitLabClient)
}

// gitlabClient implements Client against the GitLab REST API v4.
// Unlike GitHub/Gitea, GitLab runner registration tokens are provisioned
// out of band and used unchanged (§4.1 wire-level note) — there is no
// token-exchange endpoint to call.
type gitlabClient struct {
	projectID string
	apiURL    string
	token     string
	http      *retryablehttp.Client
}

func newGitLabClient(cfg Config) Client {
	apiURL := cfg.APIURL
	if apiURL == "" {
		apiURL = "https://gitlab.com"
	}
	return &gitlabClient{
		projectID: cfg.Repository,
		apiURL:    strings.TrimRight(apiURL, "/"),
		token:     cfg.Token,
		http:      newHTTPClient(cfg.Timeout),
	}
}

func (c *gitlabClient) Name() string { return "gitlab" }

func (c *gitlabClient) request(ctx context.Context, op, method, endpoint string, out interface{}) error {
	url := fmt.Sprintf("%s/api/v4/%s", c.apiURL, endpoint)

	req, err := retryablehttp.NewRequest(method, url, nil)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("PRIVATE-TOKEN", c.token)
	req.Header.Set("User-Agent", "embeddenator-runner-manager")

	return doJSON(ctx, c.http, op, req, out)
}

// ObtainRegistrationToken returns the configured token unchanged — GitLab's
// model differs from GitHub's (§4.1, §9 resolved open question).
func (c *gitlabClient) ObtainRegistrationToken(ctx context.Context) (string, time.Time, error) {
	return c.token, time.Time{}, nil
}

func (c *gitlabClient) ObtainRemovalToken(ctx context.Context) (string, error) {
	return c.token, nil
}

func (c *gitlabClient) ListRunners(ctx context.Context) ([]RunnerStatus, error) {
	var resp []struct {
		Name   string `json:"description"`
		Online bool   `json:"online"`
		Status string `json:"status"`
	}
	endpoint := fmt.Sprintf("projects/%s/runners", c.projectID)
	if err := c.request(ctx, "gitlab.list_runners", http.MethodGet, endpoint, &resp); err != nil {
		return nil, err
	}
	out := make([]RunnerStatus, 0, len(resp))
	for _, r := range resp {
		status := "offline"
		if r.Online {
			status = "online"
		}
		out = append(out, RunnerStatus{Name: r.Name, Status: status, Busy: r.Status == "running"})
	}
	return out, nil
}

func (c *gitlabClient) CountPendingWork(ctx context.Context) (int, error) {
	var resp []struct {
		Status string `json:"status"`
	}
	endpoint := fmt.Sprintf("projects/%s/jobs?scope[]=pending&scope[]=running", c.projectID)
	if err := c.request(ctx, "gitlab.count_pending_work", http.MethodGet, endpoint, &resp); err != nil {
		return 0, err
	}
	return len(resp), nil
}

func (c *gitlabClient) DefaultLabels() []string {
	return []string{"docker", "linux"}
}

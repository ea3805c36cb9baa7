package platform

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/go-github/v66/github"
	"golang.org/x/oauth2"

	"github.com/tzervas/embeddenator/internal/taxonomy"
)

func init() {
	Register("github", newGitHubClient)
	Register("gitea", newGiteaClient)
}

// githubClient implements Client against the GitHub REST API using
// go-github, wired through an oauth2 static-token transport (sending
// "Authorization: token <t>") behind the shared bounded-retry client.
type githubClient struct {
	repository string // owner/repo
	gh         *github.Client
	apiURL     string
}

func newGitHubClient(cfg Config) Client {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token, TokenType: "token"})
	httpClient := oauth2.NewClient(context.Background(), ts)
	httpClient.Timeout = cfg.Timeout

	retrying := newHTTPClient(cfg.Timeout)
	retrying.HTTPClient = httpClient

	gh := github.NewClient(retrying.StandardClient())
	if cfg.APIURL != "" && cfg.APIURL != "https://api.github.com" {
		base := apiBaseURL(cfg.APIURL)
		if withEnterprise, err := gh.WithEnterpriseURLs(base, base); err == nil {
			gh = withEnterprise
		}
	}

	return &githubClient{repository: cfg.Repository, gh: gh, apiURL: cfg.APIURL}
}

// apiBaseURL maps a GitHub Enterprise Server web URL to its REST API base.
// github.com itself is handled by go-github's default base URL.
func apiBaseURL(webURL string) string {
	webURL = strings.TrimRight(webURL, "/")
	if webURL == "https://github.com" || webURL == "" {
		return "https://api.github.com/"
	}
	return webURL + "/api/v3/"
}

func (c *githubClient) Name() string { return "github" }

func (c *githubClient) ownerRepo() (owner, repo string, err error) {
	parts := strings.SplitN(c.repository, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("repository must be in owner/repo form, got %q", c.repository)
	}
	return parts[0], parts[1], nil
}

func (c *githubClient) ObtainRegistrationToken(ctx context.Context) (string, time.Time, error) {
	owner, repo, err := c.ownerRepo()
	if err != nil {
		return "", time.Time{}, taxonomy.New(taxonomy.Permanent, "github.obtain_registration_token", err)
	}
	tok, resp, err := c.gh.Actions.CreateRegistrationToken(ctx, owner, repo)
	if err != nil {
		return "", time.Time{}, classifyGitHubErr(resp, "github.obtain_registration_token", err)
	}
	return tok.GetToken(), tok.GetExpiresAt().Time, nil
}

func (c *githubClient) ObtainRemovalToken(ctx context.Context) (string, error) {
	owner, repo, err := c.ownerRepo()
	if err != nil {
		return "", taxonomy.New(taxonomy.Permanent, "github.obtain_removal_token", err)
	}
	tok, resp, err := c.gh.Actions.CreateRemoveToken(ctx, owner, repo)
	if err != nil {
		return "", classifyGitHubErr(resp, "github.obtain_removal_token", err)
	}
	return tok.GetToken(), nil
}

func (c *githubClient) ListRunners(ctx context.Context) ([]RunnerStatus, error) {
	owner, repo, err := c.ownerRepo()
	if err != nil {
		return nil, taxonomy.New(taxonomy.Permanent, "github.list_runners", err)
	}
	runners, resp, err := c.gh.Actions.ListRunners(ctx, owner, repo, nil)
	if err != nil {
		return nil, classifyGitHubErr(resp, "github.list_runners", err)
	}
	out := make([]RunnerStatus, 0, len(runners.Runners))
	for _, r := range runners.Runners {
		out = append(out, RunnerStatus{
			Name:   r.GetName(),
			Status: r.GetStatus(),
			Busy:   r.GetBusy(),
		})
	}
	return out, nil
}

func (c *githubClient) CountPendingWork(ctx context.Context) (int, error) {
	owner, repo, err := c.ownerRepo()
	if err != nil {
		return 0, taxonomy.New(taxonomy.Permanent, "github.count_pending_work", err)
	}

	queued, resp, err := c.gh.Actions.ListRepositoryWorkflowRuns(ctx, owner, repo, &github.ListWorkflowRunsOptions{Status: "queued"})
	if err != nil {
		return 0, classifyGitHubErr(resp, "github.count_pending_work", err)
	}
	inProgress, resp, err := c.gh.Actions.ListRepositoryWorkflowRuns(ctx, owner, repo, &github.ListWorkflowRunsOptions{Status: "in_progress"})
	if err != nil {
		return 0, classifyGitHubErr(resp, "github.count_pending_work", err)
	}

	return queued.GetTotalCount() + inProgress.GetTotalCount(), nil
}

func (c *githubClient) DefaultLabels() []string {
	return []string{"self-hosted", "linux"}
}

func classifyGitHubErr(resp *github.Response, op string, err error) error {
	if resp == nil {
		return taxonomy.New(taxonomy.TransientNetwork, op, err)
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return taxonomy.NewRetryable(op, err, time.Duration(resp.Rate.Reset.Sub(time.Now()).Seconds())*time.Second)
	case resp.StatusCode >= 500:
		return taxonomy.New(taxonomy.TransientNetwork, op, err)
	default:
		return taxonomy.New(taxonomy.Permanent, op, err)
	}
}

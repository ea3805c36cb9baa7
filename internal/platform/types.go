// Package platform implements the uniform remote CI platform contract
// (C1 Platform Client) with one concrete client per supported platform,
// selected through a registry-and-factory pattern.
package platform

import (
	"context"
	"time"
)

// RunnerStatus is the platform's view of one registered runner.
type RunnerStatus struct {
	Name   string
	Status string // "online" or "offline"
	Busy   bool
}

// Client is the uniform contract every platform implementation satisfies.
// Every method follows the §4.1 failure model: it returns a
// *taxonomy.Error of kind TransientNetwork or Permanent on failure.
type Client interface {
	// Name identifies the platform ("github", "gitlab", "gitea").
	Name() string

	// ObtainRegistrationToken returns a credential valid for one
	// registration and its expiry. For GitLab this returns the
	// configured token unchanged (§4.1 wire-level note).
	ObtainRegistrationToken(ctx context.Context) (token string, expiry time.Time, err error)

	// ObtainRemovalToken returns a credential for one deregistration.
	ObtainRemovalToken(ctx context.Context) (token string, err error)

	// ListRunners returns the platform's current runner inventory.
	ListRunners(ctx context.Context) ([]RunnerStatus, error)

	// CountPendingWork returns the number of queued plus in-progress
	// work items dispatchable to self-hosted runners.
	CountPendingWork(ctx context.Context) (int, error)

	// DefaultLabels returns platform-mandated base labels.
	DefaultLabels() []string
}

// Config carries the subset of orchestrator configuration each platform
// constructor needs.
type Config struct {
	Repository string // owner/repo (GitHub, Gitea) or numeric project ID (GitLab)
	Token      string
	APIURL     string
	Timeout    time.Duration
}

// Factory constructs a Client for a registered platform name.
type Factory func(cfg Config) Client

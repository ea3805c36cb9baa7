// Package installer implements the vendor runner archive installer (C2):
// idempotent download-and-unpack of the actions-runner release tarball.
package installer

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tzervas/embeddenator/internal/taxonomy"
)

// downloadURLTemplates maps a canonical architecture tag to the vendor's
// release-archive URL template. riscv64 has no native build upstream, so
// it silently substitutes the x64 archive — emulation is expected to be
// configured before such a runner is started (§4.2).
var downloadURLTemplates = map[string]string{
	"x64":     "https://github.com/actions/runner/releases/download/v%[1]s/actions-runner-linux-x64-%[1]s.tar.gz",
	"arm64":   "https://github.com/actions/runner/releases/download/v%[1]s/actions-runner-linux-arm64-%[1]s.tar.gz",
	"riscv64": "https://github.com/actions/runner/releases/download/v%[1]s/actions-runner-linux-x64-%[1]s.tar.gz",
}

const latestReleaseURL = "https://api.github.com/repos/actions/runner/releases/latest"

// entryPoints are the two scripts the vendor archive must contain for an
// install to be considered complete.
var entryPoints = []string{"config.sh", "run.sh"}

// Installer downloads and unpacks the vendor runner archive.
type Installer struct {
	log                 *zap.Logger
	httpClient          *http.Client
	version             string
	fallbackVersion     string
	versionCheckTimeout time.Duration
}

// Option configures an Installer.
type Option func(*Installer)

// New constructs an Installer. version is "latest" or a pinned release
// string; fallbackVersion is used if a "latest" lookup fails.
func New(log *zap.Logger, version, fallbackVersion string, versionCheckTimeout time.Duration) *Installer {
	return &Installer{
		log:                 log,
		httpClient:          &http.Client{},
		version:             version,
		fallbackVersion:     fallbackVersion,
		versionCheckTimeout: versionCheckTimeout,
	}
}

// Install downloads and unpacks the vendor archive for targetArch into
// installDir. It is idempotent: if installDir already contains both
// entry-point scripts, it returns nil without downloading. On any failure
// during a fresh install, installDir is removed entirely.
func (i *Installer) Install(ctx context.Context, targetArch, installDir string) error {
	if hasEntryPoints(installDir) {
		i.log.Debug("runner already installed", zap.String("dir", installDir))
		return nil
	}

	if err := os.MkdirAll(installDir, 0o755); err != nil {
		return taxonomy.New(taxonomy.Fatal, "installer.install", fmt.Errorf("create install dir: %w", err))
	}

	if err := i.installInto(ctx, targetArch, installDir); err != nil {
		os.RemoveAll(installDir)
		return err
	}
	return nil
}

func (i *Installer) installInto(ctx context.Context, targetArch, installDir string) error {
	version := i.version
	if version == "latest" {
		version = i.resolveLatestVersion(ctx)
	}

	tmpl, ok := downloadURLTemplates[targetArch]
	if !ok {
		return taxonomy.New(taxonomy.Permanent, "installer.install", fmt.Errorf("unsupported architecture %q", targetArch))
	}
	url := fmt.Sprintf(tmpl, version)

	i.log.Info("downloading runner archive", zap.String("arch", targetArch), zap.String("version", version), zap.String("url", url))

	archivePath := filepath.Join(installDir, "runner.tar.gz")
	if err := i.download(ctx, url, archivePath); err != nil {
		return taxonomy.New(taxonomy.TransientNetwork, "installer.install", err)
	}
	defer os.Remove(archivePath)

	if err := extractTarGz(archivePath, installDir); err != nil {
		return taxonomy.New(taxonomy.Permanent, "installer.install", fmt.Errorf("extract archive: %w", err))
	}

	if !hasEntryPoints(installDir) {
		return taxonomy.New(taxonomy.Permanent, "installer.install", fmt.Errorf("archive did not contain expected entry points"))
	}
	return nil
}

// resolveLatestVersion queries the vendor release feed once; any failure
// falls back to the compiled-in known-good version.
func (i *Installer) resolveLatestVersion(ctx context.Context) string {
	ctx, cancel := context.WithTimeout(ctx, i.versionCheckTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, latestReleaseURL, nil)
	if err != nil {
		return i.fallbackVersion
	}
	req.Header.Set("User-Agent", "embeddenator-runner-manager")

	resp, err := i.httpClient.Do(req)
	if err != nil {
		i.log.Warn("failed to query latest runner version", zap.Error(err))
		return i.fallbackVersion
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		i.log.Warn("unexpected status querying latest runner version", zap.Int("status", resp.StatusCode))
		return i.fallbackVersion
	}

	var release struct {
		TagName string `json:"tag_name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil || release.TagName == "" {
		return i.fallbackVersion
	}

	tag := release.TagName
	if len(tag) > 0 && tag[0] == 'v' {
		tag = tag[1:]
	}
	return tag
}

func (i *Installer) download(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := i.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: status %d", url, resp.StatusCode)
	}

	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.Copy(f, resp.Body)
	return err
}

func hasEntryPoints(dir string) bool {
	for _, name := range entryPoints {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			return false
		}
	}
	return true
}

func extractTarGz(archivePath, destDir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return err
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		target := filepath.Join(destDir, hdr.Name)
		if !withinDir(destDir, target) {
			return fmt.Errorf("archive entry %q escapes install dir", hdr.Name)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, os.FileMode(hdr.Mode))
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return err
			}
			out.Close()
		}
	}
}

func withinDir(dir, target string) bool {
	rel, err := filepath.Rel(dir, target)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

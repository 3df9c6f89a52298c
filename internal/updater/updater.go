// Package updater finds newer dmem releases on GitHub and replaces the
// running binary with the matching release asset.
package updater

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"
)

const (
	// Repo is the GitHub repository releases are published to.
	Repo = "HendryAvila/discussion-memory"

	// Binary is the executable name inside release archives.
	Binary = "dmem"

	checkTimeout = 10 * time.Second

	// maxArchive caps how much of a download is read into memory.
	maxArchive = 100 << 20
)

// ErrUpToDate is returned by Apply when no newer release exists.
var ErrUpToDate = errors.New("already at the latest version")

// Release is the subset of the GitHub release payload dmem reads.
type Release struct {
	TagName string  `json:"tag_name"`
	HTMLURL string  `json:"html_url"`
	Assets  []Asset `json:"assets"`
}

// Asset is a downloadable file attached to a release.
type Asset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
}

// Result describes how the running version compares to the latest release.
type Result struct {
	Current         string
	Latest          string
	UpdateAvailable bool
	ReleaseURL      string
	// DownloadURL is the asset for this OS and architecture, if published.
	DownloadURL string
}

// Client talks to the releases API.
type Client struct {
	Endpoint string
	HTTP     *http.Client
	GOOS     string
	GOARCH   string
}

// New returns a Client for the latest release of Repo.
func New() *Client {
	return &Client{
		Endpoint: "https://api.github.com/repos/" + Repo + "/releases/latest",
		HTTP:     &http.Client{Timeout: checkTimeout},
		GOOS:     runtime.GOOS,
		GOARCH:   runtime.GOARCH,
	}
}

// Check fetches the latest release and compares it with current.
func (c *Client) Check(ctx context.Context, current string) (*Result, error) {
	res := &Result{Current: normalizeVersion(current)}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Endpoint, nil)
	if err != nil {
		return res, err
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", Binary+"/"+res.Current)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return res, fmt.Errorf("checking latest release: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return res, fmt.Errorf("releases API returned %d", resp.StatusCode)
	}

	var rel Release
	if err := json.NewDecoder(resp.Body).Decode(&rel); err != nil {
		return res, fmt.Errorf("parsing release info: %w", err)
	}

	res.Latest = normalizeVersion(rel.TagName)
	res.ReleaseURL = rel.HTMLURL
	res.UpdateAvailable = isNewer(res.Current, res.Latest)
	want := c.assetName(res.Latest)
	for _, a := range rel.Assets {
		if a.Name == want {
			res.DownloadURL = a.BrowserDownloadURL
			break
		}
	}
	return res, nil
}

// Apply downloads the release asset found by Check and swaps it in at
// execPath. An empty execPath means the running executable.
func (c *Client) Apply(ctx context.Context, res *Result, execPath string) error {
	if !res.UpdateAvailable {
		return ErrUpToDate
	}
	if res.DownloadURL == "" {
		return fmt.Errorf("no release asset for %s/%s (looking for %s)", c.GOOS, c.GOARCH, c.assetName(res.Latest))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, res.DownloadURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("downloading release: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download returned %d", resp.StatusCode)
	}
	archive, err := io.ReadAll(io.LimitReader(resp.Body, maxArchive))
	if err != nil {
		return fmt.Errorf("downloading release: %w", err)
	}

	var bin []byte
	if c.GOOS == "windows" {
		bin, err = fromZip(archive, Binary+".exe")
	} else {
		bin, err = fromTarGz(archive, Binary)
	}
	if err != nil {
		return fmt.Errorf("extracting binary: %w", err)
	}

	if execPath == "" {
		if execPath, err = os.Executable(); err != nil {
			return fmt.Errorf("finding current executable: %w", err)
		}
		if execPath, err = filepath.EvalSymlinks(execPath); err != nil {
			return fmt.Errorf("resolving symlinks: %w", err)
		}
	}
	return replace(execPath, bin, c.GOOS == "windows")
}

// replace writes bin next to path and renames it over path. A running
// Windows binary cannot be overwritten, so it is moved aside first.
func replace(path string, bin []byte, windows bool) error {
	tmp := path + ".new"
	if err := os.WriteFile(tmp, bin, 0o755); err != nil {
		return fmt.Errorf("writing new binary: %w", err)
	}
	if windows {
		old := path + ".old"
		_ = os.Remove(old)
		if err := os.Rename(path, old); err != nil {
			_ = os.Remove(tmp)
			return fmt.Errorf("backing up current binary: %w", err)
		}
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replacing binary: %w", err)
	}
	return nil
}

func fromTarGz(archive []byte, name string) ([]byte, error) {
	gz, err := gzip.NewReader(bytes.NewReader(archive))
	if err != nil {
		return nil, fmt.Errorf("opening gzip: %w", err)
	}
	defer func() { _ = gz.Close() }()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil, fmt.Errorf("%s not found in archive", name)
		}
		if err != nil {
			return nil, fmt.Errorf("reading tar: %w", err)
		}
		if filepath.Base(hdr.Name) == name {
			return io.ReadAll(tr)
		}
	}
}

func fromZip(archive []byte, name string) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return nil, fmt.Errorf("opening zip: %w", err)
	}
	for _, f := range zr.File {
		if filepath.Base(f.Name) != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer func() { _ = rc.Close() }()
		return io.ReadAll(rc)
	}
	return nil, fmt.Errorf("%s not found in archive", name)
}

// assetName follows the GoReleaser name_template of the release workflow.
func (c *Client) assetName(version string) string {
	ext := "tar.gz"
	if c.GOOS == "windows" {
		ext = "zip"
	}
	return fmt.Sprintf("%s_%s_%s_%s.%s", Binary, version, c.GOOS, c.GOARCH, ext)
}

func normalizeVersion(v string) string {
	return strings.TrimPrefix(strings.TrimSpace(v), "v")
}

// isNewer compares up to three dotted numeric parts. Development builds
// never report an update.
func isNewer(current, latest string) bool {
	if current == "" || latest == "" || current == "dev" {
		return false
	}
	c, l := versionParts(current), versionParts(latest)
	for i := range c {
		if l[i] != c[i] {
			return l[i] > c[i]
		}
	}
	return false
}

// versionParts reads the leading digits of each part, so "3rc1" is 3.
func versionParts(v string) [3]int {
	var out [3]int
	for i, p := range strings.SplitN(v, ".", 3) {
		end := 0
		for end < len(p) && p[end] >= '0' && p[end] <= '9' {
			end++
		}
		out[i], _ = strconv.Atoi(p[:end])
	}
	return out
}

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"regexp"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/blang/semver"
	"github.com/rhysd/go-github-selfupdate/selfupdate"

	"github.com/Fepozopo/layerkit/pkg/logging"
)

// Version is stamped at build time with -ldflags "-X .../pkg/cli.Version=1.2.3".
var Version = "0.0.0-dev"

const githubAPI = "https://api.github.com"

type ghRelease struct {
	TagName    string `json:"tag_name"`
	Name       string `json:"name"`
	Draft      bool   `json:"draft"`
	Prerelease bool   `json:"prerelease"`
	Assets     []struct {
		Name               string `json:"name"`
		BrowserDownloadURL string `json:"browser_download_url"`
	} `json:"assets"`
}

var semverRe = regexp.MustCompile(`v?\d+\.\d+\.\d+(-[0-9A-Za-z.-]+)?(\+[0-9A-Za-z.-]+)?`)

// latestRelease lists the repo's GitHub releases and returns the highest
// published semver release. Tags like "layerkit-v1.2.0" are accepted.
func latestRelease(ctx context.Context, client *http.Client, apiBase, repo string) (*selfupdate.Release, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/repos/%s/releases", apiBase, repo), nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	resp, err := client.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("github API request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, fmt.Errorf("failed reading github response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("github API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var rels []ghRelease
	if err := json.Unmarshal(body, &rels); err != nil {
		return nil, false, fmt.Errorf("failed to decode github releases: %w", err)
	}
	rel, ok := pickRelease(rels, runtime.GOOS, runtime.GOARCH)
	return rel, ok, nil
}

// pickRelease chooses the highest non-draft, non-prerelease version and the
// asset best matching goos/goarch.
func pickRelease(rels []ghRelease, goos, goarch string) (*selfupdate.Release, bool) {
	var best *selfupdate.Release
	for _, r := range rels {
		if r.Draft || r.Prerelease {
			continue
		}
		match := semverRe.FindString(r.TagName)
		if match == "" {
			match = semverRe.FindString(r.Name)
		}
		v, err := semver.Parse(strings.TrimPrefix(match, "v"))
		if err != nil {
			continue
		}
		if best != nil && !v.GT(best.Version) {
			continue
		}
		rel := &selfupdate.Release{Version: v}
		score := -1
		for _, a := range r.Assets {
			name := strings.ToLower(a.Name)
			s := 0
			if strings.Contains(name, goos) {
				s += 2
			}
			if strings.Contains(name, goarch) {
				s++
			}
			if s > score {
				score = s
				rel.AssetURL = a.BrowserDownloadURL
			}
		}
		best = rel
	}
	return best, best != nil
}

// checkForUpdates reports the latest release of repo and, if the user
// agrees, replaces the running binary and re-executes it.
func (r *REPL) checkForUpdates(ctx context.Context, repo string) error {
	client := &http.Client{Timeout: 10 * time.Second}
	latest, found, err := latestRelease(ctx, client, githubAPI, repo)
	fmt.Fprintf(r.out, "Current version: %s\n", Version)
	if err != nil {
		return fmt.Errorf("update check failed: %w", err)
	}
	if !found {
		fmt.Fprintf(r.out, "No releases found for %s.\n", repo)
		return nil
	}
	fmt.Fprintf(r.out, "Latest version: %s\n", latest.Version)

	cur, perr := semver.Parse(strings.TrimPrefix(Version, "v"))
	if perr != nil {
		fmt.Fprintf(r.out, "warning: could not parse current version %q: %v\n", Version, perr)
	} else if !latest.Version.GT(cur) {
		fmt.Fprintf(r.out, "You are already running the latest version: %s.\n", cur)
		return nil
	}
	if latest.AssetURL == "" {
		fmt.Fprintf(r.out, "Version %s is available but has no downloadable asset.\n", latest.Version)
		return nil
	}
	answer, err := r.prompt(fmt.Sprintf("A new version (%s) is available. Update now? (y/N): ", latest.Version))
	if err != nil {
		return fmt.Errorf("failed reading input: %w", err)
	}
	if yes, _ := parseBoolLikeToString(answer); yes != "true" {
		fmt.Fprintln(r.out, "Update cancelled.")
		return nil
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("could not locate executable: %w", err)
	}
	fmt.Fprintln(r.out, "Updating...")
	if err := selfupdate.UpdateTo(latest.AssetURL, exe); err != nil {
		return fmt.Errorf("update failed: %w", err)
	}
	logging.Logger().Info("binary updated", "version", latest.Version.String(), "path", exe)

	argv := append([]string{exe}, os.Args[1:]...)
	if err := syscall.Exec(exe, argv, os.Environ()); err != nil {
		cmd := exec.Command(exe, os.Args[1:]...)
		cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr
		if startErr := cmd.Start(); startErr != nil {
			fmt.Fprintf(r.out, "Updated to %s, but restarting failed (%v); please restart manually.\n", latest.Version, startErr)
			return nil
		}
		os.Exit(0)
	}
	return nil
}

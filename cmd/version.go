package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-version"
	"github.com/nulzo/modelmart/internal/cli"
	"github.com/nulzo/modelmart/internal/httpclient"
)

// AppVersion is overridden at build time with -ldflags "-X".
var AppVersion = "v0.1.0"

const LatestReleaseURL = "https://api.github.com/repos/nulzo/modelmart/releases/latest"

type GitHubRelease struct {
	TagName string `json:"tag_name"`
	HTMLURL string `json:"html_url"`
}

// UpdateInfo describes the newest published release relative to the running binary.
type UpdateInfo struct {
	Current  string
	Latest   string
	URL      string
	Outdated bool
}

// CheckForUpdates asks the release feed at url for the latest tag.
func CheckForUpdates(ctx context.Context, client *http.Client, url string) (*UpdateInfo, error) {
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Second}
	}

	var release GitHubRelease
	headers := map[string]string{"Accept": "application/vnd.github+json"}
	if err := httpclient.GetJSON(ctx, client, url, headers, &release); err != nil {
		var upstream *httpclient.UpstreamError
		if errors.As(err, &upstream) && upstream.RateLimited() {
			return nil, fmt.Errorf("release feed rate limited, try again later: %w", err)
		}
		return nil, fmt.Errorf("fetch latest release: %w", err)
	}

	current, err := version.NewVersion(AppVersion)
	if err != nil {
		return nil, fmt.Errorf("parse current version %q: %w", AppVersion, err)
	}

	latest, err := version.NewVersion(release.TagName)
	if err != nil {
		return nil, fmt.Errorf("parse release tag %q: %w", release.TagName, err)
	}

	return &UpdateInfo{
		Current:  AppVersion,
		Latest:   release.TagName,
		URL:      release.HTMLURL,
		Outdated: current.LessThan(latest),
	}, nil
}

// PrintUpdateNotice writes a banner to w when info reports a newer release.
func PrintUpdateNotice(w io.Writer, info *UpdateInfo) {
	if info == nil || !info.Outdated {
		return
	}
	_, _ = fmt.Fprintln(w, "---------------------------------------------------------")
	_, _ = fmt.Fprintf(w, "%s  You are running an outdated version (%s).\n", cli.WarningSign(), info.Current)
	_, _ = fmt.Fprintf(w, "   The latest version is %s.\n", cli.Style(info.Latest, cli.Bold))
	if info.URL != "" {
		_, _ = fmt.Fprintf(w, "   %s %s\n", cli.Arrow(), info.URL)
	}
	_, _ = fmt.Fprintln(w, "---------------------------------------------------------")
}

// Package release looks up the latest published version of each engine and
// installs its prebuilt binaries.
package release

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/mediadl/mediadl/server/internal/engine"
)

const DefaultBaseURL = "https://api.github.com"

// Platform keys used in Release.Assets.
const (
	WindowsX64 = "windows_x86_64"
	WindowsX86 = "windows_x86"
	DarwinX64  = "darwin_x86_64"
	DarwinARM  = "darwin_arm64"
	LinuxX64   = "linux_x86_64"
)

type Release struct {
	Engine  string `json:"engine"`
	Owner   string `json:"owner"`
	Repo    string `json:"repo"`
	Version string `json:"version"`
	// platform -> download url
	Assets map[string]string `json:"assets"`
}

type source struct {
	owner, repo string
	// leading "v" stripped from the tag
	trimV  bool
	assets func(version string) map[string]string
}

var sources = map[string]source{
	"lux": {
		owner: "iawia002", repo: "lux", trimV: true,
		assets: func(v string) map[string]string {
			base := "https://github.com/iawia002/lux/releases/download/v" + v + "/lux_" + v
			return map[string]string{
				WindowsX64: base + "_Windows_x86_64.zip",
				WindowsX86: base + "_Windows_i386.zip",
				DarwinX64:  base + "_Darwin_x86_64.zip",
				DarwinARM:  base + "_Darwin_arm64.zip",
				LinuxX64:   base + "_Linux_x86_64.zip",
			}
		},
	},
	"youtube-dl": {
		owner: "ytdl-org", repo: "youtube-dl",
		assets: func(v string) map[string]string {
			exe := "https://github.com/ytdl-org/youtube-dl/releases/download/" + v + "/youtube-dl.exe"
			return map[string]string{WindowsX64: exe, WindowsX86: exe}
		},
	},
	"yt-dlp": {
		owner: "yt-dlp", repo: "yt-dlp",
		assets: func(string) map[string]string {
			base := "https://github.com/yt-dlp/yt-dlp/releases/latest/download/"
			return map[string]string{
				WindowsX64: base + "yt-dlp.exe",
				WindowsX86: base + "yt-dlp_x86.exe",
				DarwinX64:  base + "yt-dlp_macos",
				LinuxX64:   base + "yt-dlp",
			}
		},
	},
	// distributed through pip, no prebuilt binaries
	"you-get": {
		owner: "soimort", repo: "you-get", trimV: true,
		assets: func(string) map[string]string { return map[string]string{} },
	},
}

type Client struct {
	http *resty.Client
	// asset transfers are bounded by their context only
	files *resty.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetHeader("Accept", "application/vnd.github+json").
			SetTimeout(10 * time.Second),
		files: resty.New(),
	}
}

type githubRelease struct {
	TagName string `json:"tag_name"`
}

// Latest queries the most recent release of the engine.
func (c *Client) Latest(ctx context.Context, engineName string) (*Release, error) {
	d, err := engine.Get(engineName)
	if err != nil {
		return nil, err
	}

	src, ok := sources[d.Name]
	if !ok {
		return nil, fmt.Errorf("%w: no release source for %s", engine.ErrEngineNotFound, d.Name)
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParams(map[string]string{"owner": src.owner, "repo": src.repo}).
		SetResult(&githubRelease{}).
		Get("/repos/{owner}/{repo}/releases/latest")
	if err != nil {
		return nil, fmt.Errorf("failed to request latest release: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("github releases error: %s", resp.Status())
	}

	gr, ok := resp.Result().(*githubRelease)
	if !ok || gr.TagName == "" {
		return nil, fmt.Errorf("failed to parse latest release of %s/%s", src.owner, src.repo)
	}

	version := gr.TagName
	if src.trimV {
		version = strings.TrimPrefix(version, "v")
	}

	return &Release{
		Engine:  d.Name,
		Owner:   src.owner,
		Repo:    src.repo,
		Version: version,
		Assets:  src.assets(version),
	}, nil
}

// Platform is the asset key of the running system, "" when unsupported.
func Platform() string {
	return platform(runtime.GOOS, runtime.GOARCH)
}

func platform(goos, goarch string) string {
	switch goos + "/" + goarch {
	case "windows/amd64":
		return WindowsX64
	case "windows/386":
		return WindowsX86
	case "darwin/amd64":
		return DarwinX64
	case "darwin/arm64":
		return DarwinARM
	case "linux/amd64":
		return LinuxX64
	}
	return ""
}

// Mirror rewrites a github download url to the named mirror, unknown mirrors
// leave it untouched.
func Mirror(url, mirror string) string {
	switch strings.ToLower(strings.TrimSpace(mirror)) {
	case "kgithub", "kgithub.com":
		return strings.Replace(url, "https://github.com", "https://kgithub.com", 1)
	case "ghproxy", "ghproxy.com":
		return strings.Replace(url, "https://github.com", "https://ghproxy.com/github.com", 1)
	default:
		return url
	}
}

// WithMirror returns a copy of r with every asset rewritten.
func (r *Release) WithMirror(mirror string) *Release {
	out := *r
	out.Assets = make(map[string]string, len(r.Assets))
	for k, v := range r.Assets {
		out.Assets[k] = Mirror(v, mirror)
	}
	return &out
}

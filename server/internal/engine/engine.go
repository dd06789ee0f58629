package engine

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/mediadl/mediadl/server/config"
	"github.com/mediadl/mediadl/server/internal/process"
)

var (
	ErrEngineNotFound       = errors.New("engine not found")
	ErrProbeProcessFailed   = errors.New("probe process failed")
	ErrMalformedProbeOutput = errors.New("malformed probe output")
)

// SaveTarget is where a stream ends up on disk.
type SaveTarget struct {
	OutputDir string `json:"output_dir"`
	FileName  string `json:"file_name"`
}

// StreamInfo describes one downloadable variant of a media URL.
type StreamInfo struct {
	SourceURL   string      `json:"source_url"`
	Site        string      `json:"site"`
	Title       string      `json:"title"`
	Ext         string      `json:"ext"`
	StreamID    string      `json:"stream_id"`
	DisplayName string      `json:"display_name"`
	SizeBytes   int64       `json:"size_bytes"`
	Engine      string      `json:"engine"`
	Save        *SaveTarget `json:"save,omitempty"`
	Cookies     string      `json:"cookies,omitempty"`
}

// Command line syntax of an engine.
type flags struct {
	binary  string
	probe   []string
	version string
	cookie  string
	format  string
	// output directory flag, empty when the directory is part of outputName
	outputDir  string
	outputName string
	// output name is an output template where '%' is special
	templated bool
	extra     []string
}

type parser func(url string, out []byte) (map[string]StreamInfo, error)

type Descriptor struct {
	Name    string
	Aliases []string
	Channel process.Channel

	flags flags
	parse parser
}

var registry = []*Descriptor{
	{
		Name:    "lux",
		Channel: process.Stderr,
		flags: flags{
			binary:     "lux",
			probe:      []string{"-j"},
			version:    "-v",
			cookie:     "-c",
			format:     "-f",
			outputDir:  "-o",
			outputName: "-O",
		},
		parse: parseLux,
	},
	{
		Name:    "you-get",
		Aliases: []string{"youget"},
		Channel: process.Stdout,
		flags: flags{
			binary:     "you-get",
			probe:      []string{"-i"},
			version:    "--version",
			cookie:     "-c",
			format:     "--format",
			outputDir:  "-o",
			outputName: "-O",
		},
		parse: parseYouGet,
	},
	{
		Name:    "youtube-dl",
		Aliases: []string{"youtubedl"},
		Channel: process.Stdout,
		flags: flags{
			binary:     "youtube-dl",
			probe:      []string{"--socket-timeout", "4", "-j"},
			version:    "--version",
			cookie:     "--cookies",
			format:     "-f",
			outputName: "-o",
			templated:  true,
		},
		parse: parseYoutubeDL,
	},
	{
		Name:    "yt-dlp",
		Aliases: []string{"ytdlp"},
		Channel: process.Stdout,
		flags: flags{
			binary:     "yt-dlp",
			probe:      []string{"--socket-timeout", "4", "-j"},
			version:    "--version",
			cookie:     "--cookies",
			format:     "-f",
			outputName: "-o",
			templated:  true,
			extra:      []string{"--newline"},
		},
		parse: parseYoutubeDL,
	},
}

// Names of the registered engines, in registry order.
func Names() []string {
	names := make([]string, len(registry))
	for i, d := range registry {
		names[i] = d.Name
	}
	return names
}

// Get looks an engine up by name or alias, ignoring case and surrounding
// whitespace.
func Get(name string) (*Descriptor, error) {
	key := strings.ToLower(strings.TrimSpace(name))

	for _, d := range registry {
		if d.Name == key {
			return d, nil
		}
		for _, alias := range d.Aliases {
			if alias == key {
				return d, nil
			}
		}
	}

	return nil, fmt.Errorf("%w: %q", ErrEngineNotFound, name)
}

// Binary resolves the executable: the configured path first, then the
// plugin directory and finally the bare name looked up in PATH.
func (d *Descriptor) Binary() string {
	cfg := config.Instance()

	if p := cfg.Engine(d.Name); p != "" {
		return p
	}

	if dir := cfg.Paths.PluginPath; dir != "" {
		candidate := filepath.Join(dir, d.flags.binary+exeSuffix())
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}

	return d.flags.binary
}

func exeSuffix() string {
	if runtime.GOOS == "windows" {
		return ".exe"
	}
	return ""
}

func (d *Descriptor) ProbeArgs(url, cookieFile string) []string {
	var args []string
	if cookieFile != "" {
		args = append(args, d.flags.cookie, cookieFile)
	}
	args = append(args, d.flags.probe...)
	return append(args, url)
}

// DownloadArgs builds the arguments that download streamID of url into
// outputDir/outputName.
func (d *Descriptor) DownloadArgs(url, streamID, outputDir, outputName, cookieFile string) []string {
	args := append([]string{}, d.flags.extra...)

	if cookieFile != "" {
		args = append(args, d.flags.cookie, cookieFile)
	}

	args = append(args, d.flags.format, streamID)

	if d.flags.outputDir != "" {
		args = append(args, d.flags.outputDir, outputDir, d.flags.outputName, outputName)
	} else {
		if d.flags.templated {
			outputName = strings.ReplaceAll(outputName, "%", "%%")
		}
		args = append(args, d.flags.outputName, filepath.Join(outputDir, outputName))
	}

	return append(args, url)
}

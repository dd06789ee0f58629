package engine

import (
	"bytes"
	"encoding/json"
)

type ytdlFormat struct {
	FormatID       string `json:"format_id"`
	Format         string `json:"format"`
	Ext            string `json:"ext"`
	Filesize       *int64 `json:"filesize"`
	FilesizeApprox *int64 `json:"filesize_approx"`
}

func (f ytdlFormat) size() int64 {
	switch {
	case f.Filesize != nil:
		return *f.Filesize
	case f.FilesizeApprox != nil:
		return *f.FilesizeApprox
	default:
		return 0
	}
}

type ytdlNode struct {
	ytdlFormat
	Title        string       `json:"title"`
	WebpageURL   string       `json:"webpage_url"`
	ExtractorKey string       `json:"extractor_key"`
	Formats      []ytdlFormat `json:"formats"`
}

// Shared by youtube-dl and yt-dlp. Playlists print one object per line, only
// the first one is considered.
func parseYoutubeDL(url string, out []byte) (map[string]StreamInfo, error) {
	var node ytdlNode
	if err := json.NewDecoder(bytes.NewReader(out)).Decode(&node); err != nil {
		return nil, err
	}

	site := node.ExtractorKey
	if site == "" {
		site = node.WebpageURL
	}

	formats := node.Formats
	if formats == nil && node.FormatID != "" {
		formats = []ytdlFormat{node.ytdlFormat}
	}

	streams := make(map[string]StreamInfo, len(formats))
	for _, f := range formats {
		streams[f.FormatID] = StreamInfo{
			Site:        orUnknown(site),
			Title:       orUnknown(node.Title),
			Ext:         orUnknown(f.Ext),
			StreamID:    f.FormatID,
			DisplayName: orUnknown(f.Format),
			SizeBytes:   f.size(),
		}
	}

	return streams, nil
}

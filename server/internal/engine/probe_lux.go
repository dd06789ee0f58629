package engine

import (
	"encoding/json"
	"fmt"
)

type luxNode struct {
	URL     string                   `json:"url"`
	Site    string                   `json:"site"`
	Title   string                   `json:"title"`
	Type    string                   `json:"type"`
	Streams map[string]luxStreamNode `json:"streams"`
	Err     string                   `json:"err"`
}

type luxStreamNode struct {
	ID      string    `json:"id"`
	Quality string    `json:"quality"`
	Parts   []luxPart `json:"parts"`
	Size    int64     `json:"size"`
	Ext     string    `json:"ext"`
	NeedMux bool      `json:"NeedMux"`
}

type luxPart struct {
	URL  string `json:"url"`
	Size int64  `json:"size"`
	Ext  string `json:"ext"`
}

// lux -j prints an array with one node per extracted URL; only the first
// one is relevant for a single URL.
func parseLux(url string, out []byte) (map[string]StreamInfo, error) {
	var nodes []luxNode
	if err := json.Unmarshal(out, &nodes); err != nil {
		return nil, err
	}

	streams := make(map[string]StreamInfo)
	if len(nodes) == 0 {
		return streams, nil
	}

	node := nodes[0]
	if node.Err != "" {
		return nil, fmt.Errorf("%w: lux: %s", ErrProbeProcessFailed, node.Err)
	}

	for id, s := range node.Streams {
		ext := s.Ext
		if len(s.Parts) > 0 && s.Parts[0].Ext != "" {
			ext = s.Parts[0].Ext
		}

		streams[id] = StreamInfo{
			Site:        orUnknown(node.Site),
			Title:       orUnknown(node.Title),
			Ext:         orUnknown(ext),
			StreamID:    id,
			DisplayName: orUnknown(s.Quality),
			SizeBytes:   s.Size,
		}
	}

	return streams, nil
}

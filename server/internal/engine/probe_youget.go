package engine

import (
	"bufio"
	"bytes"
	"errors"
	"regexp"
	"strconv"
	"strings"
)

var sizeRe = regexp.MustCompile(`\(([0-9]*) bytes\)`)

type yougetStream struct {
	format    string
	container string
	quality   string
	size      int64
}

// you-get -i prints a "key: value" block per stream, each closed by a
// "# download-with" hint.
func parseYouGet(url string, out []byte) (map[string]StreamInfo, error) {
	var (
		site, title string
		recognized  bool
		cur         yougetStream
		found       []yougetStream
	)

	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())

		switch {
		case strings.HasPrefix(line, "site:"):
			site = strings.TrimSpace(line[len("site:"):])
			recognized = true
		case strings.HasPrefix(line, "title:"):
			title = strings.TrimSpace(line[len("title:"):])
			recognized = true
		case strings.HasPrefix(line, "- format:"):
			cur.format = strings.TrimSpace(line[len("- format:"):])
		case strings.HasPrefix(line, "container:"):
			cur.container = strings.TrimSpace(line[len("container:"):])
		case strings.HasPrefix(line, "quality:"):
			cur.quality = strings.TrimSpace(line[len("quality:"):])
		case strings.HasPrefix(line, "size:"):
			if m := sizeRe.FindStringSubmatch(line); m != nil {
				cur.size, _ = strconv.ParseInt(m[1], 10, 64)
			}
		case strings.HasPrefix(line, "# download-with"):
			if cur.format == "" {
				cur.format = "default"
			}
			found = append(found, cur)
			cur = yougetStream{}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	if !recognized && len(found) == 0 {
		return nil, errors.New("you-get: no stream information in output")
	}

	streams := make(map[string]StreamInfo, len(found))
	for _, s := range found {
		streams[s.format] = StreamInfo{
			Site:        orUnknown(site),
			Title:       orUnknown(title),
			Ext:         orUnknown(s.container),
			StreamID:    s.format,
			DisplayName: orUnknown(s.quality),
			SizeBytes:   s.size,
		}
	}

	return streams, nil
}

// Package playlist parses TVHeadend's /playlist/channels M3U output
// into playable channel entries.
package playlist

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Channel is one playable entry from the playlist.
type Channel struct {
	Name   string `json:"name"`
	URL    string `json:"url"`
	TvgID  string `json:"tvg_id,omitempty"`
	Number string `json:"number,omitempty"`
}

// Parse reads an M3U document. Lines come in pairs:
//
//	#EXTINF:-1 tvg-id="26e3..." tvg-chno="9.1",KQED-HD
//	http://localhost:9981/stream/channelid/520872742?profile=pass
//
// The #EXTM3U header and blank lines are skipped; anything else is an
// error so a broken playlist never yields a silently truncated list.
func Parse(r io.Reader) ([]Channel, error) {
	var channels []Channel
	var pending *Channel

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "" || strings.HasPrefix(line, "#EXTM3U"):
			continue

		case strings.HasPrefix(line, "#EXTINF"):
			ch := parseExtInf(line)
			pending = &ch

		case strings.HasPrefix(line, "http://") || strings.HasPrefix(line, "https://"):
			if pending == nil {
				return nil, fmt.Errorf("playlist: line %d: url without a preceding #EXTINF: %s", lineNo, line)
			}
			pending.URL = line
			channels = append(channels, *pending)
			pending = nil

		default:
			return nil, fmt.Errorf("playlist: line %d: unexpected line: %s", lineNo, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("playlist: reading: %w", err)
	}
	return channels, nil
}

// parseExtInf extracts the display name after the last comma and the
// tvg-id and tvg-chno attributes when present.
func parseExtInf(line string) Channel {
	ch := Channel{}
	if idx := strings.LastIndexByte(line, ','); idx >= 0 {
		ch.Name = strings.TrimSpace(line[idx+1:])
		line = line[:idx]
	}
	ch.TvgID = attrValue(line, "tvg-id")
	ch.Number = attrValue(line, "tvg-chno")
	return ch
}

func attrValue(line, key string) string {
	marker := key + `="`
	start := strings.Index(line, marker)
	if start < 0 {
		return ""
	}
	rest := line[start+len(marker):]
	end := strings.IndexByte(rest, '"')
	if end < 0 {
		return ""
	}
	return rest[:end]
}

package api

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jedp/fptv/internal/tvh"
)

// getChannels proxies the backend channel grid, sorted by number then
// name so the listing is stable across requests.
func (s *RESTServer) getChannels(c *gin.Context) {
	channels, err := s.tvh.ListChannels(c.Request.Context())
	if err != nil {
		respondWithError(c, http.StatusBadGateway, "Backend unavailable", err)
		return
	}

	sort.Slice(channels, func(i, j int) bool {
		if channels[i].Number != channels[j].Number {
			return channelNumberLess(channels[i].Number, channels[j].Number)
		}
		return channels[i].Name < channels[j].Name
	})

	c.JSON(http.StatusOK, channels)
}

func channelNumberLess(a, b tvh.FlexNumber) bool {
	aMaj, aMin, aOK := a.MajorMinor()
	bMaj, bMin, bOK := b.MajorMinor()
	if aOK && bOK {
		if aMaj != bMaj {
			return aMaj < bMaj
		}
		return aMin < bMin
	}
	if aOK != bOK {
		return aOK // numbered channels sort before unnumbered
	}
	return a < b
}

// getPlaylist re-renders the backend playlist as M3U so players can
// point at fptv without backend credentials.
func (s *RESTServer) getPlaylist(c *gin.Context) {
	if s.playlister == nil {
		respondServiceUnavailable(c, "Playlist")
		return
	}

	channels, err := s.playlister.Playlist(c.Request.Context())
	if err != nil {
		respondWithError(c, http.StatusBadGateway, "Backend unavailable", err)
		return
	}

	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	for _, ch := range channels {
		b.WriteString("#EXTINF:-1")
		if ch.TvgID != "" {
			fmt.Fprintf(&b, " tvg-id=%q", ch.TvgID)
		}
		if ch.Number != "" {
			fmt.Fprintf(&b, " tvg-chno=%q", ch.Number)
		}
		fmt.Fprintf(&b, ",%s\n%s\n", ch.Name, ch.URL)
	}

	c.Data(http.StatusOK, "audio/x-mpegurl", []byte(b.String()))
}

package api

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jedp/fptv/internal/playlist"
	"github.com/jedp/fptv/internal/tvh"
)

func TestGetChannelsSorted(t *testing.T) {
	e := newTestEnv(t)
	e.fake.Channels = []tvh.Channel{
		{UUID: "c1", Name: "KQED Plus", Number: "9.2"},
		{UUID: "c2", Name: "Unnumbered"},
		{UUID: "c3", Name: "KTVU-HD", Number: "2.1"},
		{UUID: "c4", Name: "KQED-HD", Number: "9.1"},
		{UUID: "c5", Name: "KOFY", Number: "20.1"},
	}

	w := e.do(t, "GET", "/api/channels", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var channels []tvh.Channel
	decodeJSON(t, w, &channels)
	require.Len(t, channels, 5)

	got := make([]string, len(channels))
	for i, ch := range channels {
		got[i] = ch.Name
	}
	// Numeric major.minor order, unnumbered last.
	assert.Equal(t, []string{"KTVU-HD", "KQED-HD", "KQED Plus", "KOFY", "Unnumbered"}, got)
}

func TestGetChannelsBackendDown(t *testing.T) {
	e := newTestEnv(t)
	e.fake.Errs["ListChannels"] = errors.New("connect: connection refused")

	w := e.do(t, "GET", "/api/channels", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestGetPlaylist(t *testing.T) {
	e := newTestEnv(t)
	e.fake.PlaylistEntries = []playlist.Channel{
		{Name: "KTVU-HD", URL: "http://tvh:9981/stream/channelid/1", TvgID: "abc", Number: "2.1"},
		{Name: "KQED-HD", URL: "http://tvh:9981/stream/channelid/2"},
	}

	w := e.do(t, "GET", "/api/playlist.m3u", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "audio/x-mpegurl", w.Header().Get("Content-Type"))

	want := "#EXTM3U\n" +
		"#EXTINF:-1 tvg-id=\"abc\" tvg-chno=\"2.1\",KTVU-HD\n" +
		"http://tvh:9981/stream/channelid/1\n" +
		"#EXTINF:-1,KQED-HD\n" +
		"http://tvh:9981/stream/channelid/2\n"
	assert.Equal(t, want, w.Body.String())
}

func TestGetPlaylistEmpty(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, "GET", "/api/playlist.m3u", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "#EXTM3U\n", w.Body.String())
}

package headless

import (
	"net/http"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/require"
)

func TestNewChromedpValidation(t *testing.T) {
	t.Parallel()

	_, err := NewChromedp(Config{NavigationTimeout: -time.Second})
	require.Error(t, err)

	f, err := NewChromedp(Config{})
	require.NoError(t, err)
	defer f.Close()
	require.Equal(t, "body", f.cfg.WaitSelector)
	require.NotEmpty(t, f.cfg.UserAgent)
}

func TestFetcherNavTimeoutDefault(t *testing.T) {
	t.Parallel()

	fetcher := &Fetcher{}
	require.Equal(t, 45*time.Second, fetcher.navTimeout())
	fetcher.cfg.NavigationTimeout = time.Second
	require.Equal(t, time.Second, fetcher.navTimeout())
}

func TestResetSessionFlagsCookieClear(t *testing.T) {
	t.Parallel()

	f := &Fetcher{}
	require.False(t, f.clearCookies)
	f.ResetSession()
	require.True(t, f.clearCookies)
}

func TestResponseMetaKeepsFirstDocument(t *testing.T) {
	t.Parallel()

	meta := newResponseMeta()
	meta.captureEvent(&network.EventResponseReceived{
		Type: network.ResourceTypeDocument,
		Response: &network.Response{
			URL:     "https://js.test/c/1",
			Status:  404,
			Headers: network.Headers{"Content-Type": "text/html", "Set-Cookie": []any{"a=1", "b=2"}},
		},
	})
	meta.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{URL: "https://ads.test/frame", Status: 200},
	})
	meta.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeImage,
		Response: &network.Response{URL: "https://js.test/img.png", Status: 200},
	})

	status, headers, url := meta.snapshotWithFallbacks("https://js.test/c/1", "")
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, "https://js.test/c/1", url)
	require.Equal(t, "text/html", headers.Get("Content-Type"))
	require.Len(t, headers.Values("Set-Cookie"), 2)
}

func TestResponseMetaFallbacks(t *testing.T) {
	t.Parallel()

	status, headers, url := newResponseMeta().snapshotWithFallbacks("https://js.test/a", "https://js.test/b")
	require.Equal(t, http.StatusOK, status)
	require.Empty(t, headers)
	require.Equal(t, "https://js.test/b", url)
}

func TestToNetworkHeaders(t *testing.T) {
	t.Parallel()

	got := toNetworkHeaders(map[string]string{"X-Test": "a"})
	require.Equal(t, network.Headers{"X-Test": "a"}, got)
}

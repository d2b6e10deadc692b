package services

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImageFetcherFetch(t *testing.T) {
	var gotUA, gotAccept, gotReferer string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotAccept = r.Header.Get("Accept")
		gotReferer = r.Header.Get("Referer")
		switch r.URL.Path {
		case "/card.png":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write([]byte("png-bytes"))
		case "/untyped":
			w.Header()["Content-Type"] = nil
			_, _ = w.Write([]byte("raw"))
		case "/big":
			_, _ = w.Write([]byte(strings.Repeat("x", 64)))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := NewImageFetcher(5*time.Second, "", 32, true)

	img, err := f.Fetch(context.Background(), srv.URL+"/card.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), img.Data)
	assert.Equal(t, "image/png", img.ContentType)
	assert.Contains(t, gotUA, "Mozilla/5.0")
	assert.Equal(t, "image/*", gotAccept)
	assert.Equal(t, srv.URL, gotReferer)

	img, err = f.Fetch(context.Background(), srv.URL+"/untyped")
	require.NoError(t, err)
	assert.Equal(t, DefaultImageContentType, img.ContentType)

	_, err = f.Fetch(context.Background(), srv.URL+"/missing")
	var upstream *UpstreamStatusError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, http.StatusNotFound, upstream.Status)

	_, err = f.Fetch(context.Background(), srv.URL+"/big")
	assert.ErrorIs(t, err, ErrImageTooLarge)
}

func TestImageFetcherRejectsURLs(t *testing.T) {
	f := NewImageFetcher(time.Second, "", 0, false)

	tests := []struct {
		name string
		url  string
		want error
	}{
		{name: "empty", url: "  ", want: ErrImageURLRequired},
		{name: "relative", url: "/card.png", want: ErrImageURLInvalid},
		{name: "file scheme", url: "file:///etc/passwd", want: ErrImageURLInvalid},
		{name: "data uri", url: "data:image/png;base64,AAAA", want: ErrImageURLInvalid},
		{name: "loopback", url: "http://127.0.0.1/card.png", want: ErrImageHostBlocked},
		{name: "localhost", url: "http://localhost:8080/card.png", want: ErrImageHostBlocked},
		{name: "private", url: "http://10.0.0.8/card.png", want: ErrImageHostBlocked},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.Fetch(context.Background(), tt.url)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRefusePrivateAddress(t *testing.T) {
	tests := []struct {
		address string
		blocked bool
	}{
		{address: "127.0.0.1:80", blocked: true},
		{address: "10.0.0.5:443", blocked: true},
		{address: "192.168.1.20:8080", blocked: true},
		{address: "169.254.169.254:80", blocked: true},
		{address: "[::1]:80", blocked: true},
		{address: "[fd00::1]:443", blocked: true},
		{address: "0.0.0.0:80", blocked: true},
		{address: "93.184.216.34:443", blocked: false},
		{address: "[2606:2800:220:1::]:443", blocked: false},
	}

	for _, tt := range tests {
		t.Run(tt.address, func(t *testing.T) {
			err := refusePrivateAddress("tcp", tt.address, nil)
			if tt.blocked {
				assert.ErrorIs(t, err, ErrImageHostBlocked)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestImageFetcherBlocksPrivateAddressBehindNameAndRedirect(t *testing.T) {
	var secretHit bool
	internal := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secretHit = true
		_, _ = w.Write([]byte("metadata"))
	}))
	defer internal.Close()

	public := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/card.png":
			http.Redirect(w, r, "http://internal.example.com/secret", http.StatusFound)
		case "/direct.png":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write([]byte("png-bytes"))
		}
	}))
	defer public.Close()

	f := NewImageFetcher(5*time.Second, "", 1024, false)

	// images.example.com stands in for a public origin; internal.example.com resolves
	// to a loopback address and goes through the guarded dialer.
	guarded := newImageDialer(false)
	transport := f.HTTPClient.Transport.(*http.Transport)
	transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		switch addr {
		case "images.example.com:80":
			var d net.Dialer
			return d.DialContext(ctx, network, public.Listener.Addr().String())
		case "internal.example.com:80":
			return guarded.DialContext(ctx, network, internal.Listener.Addr().String())
		}
		return guarded.DialContext(ctx, network, addr)
	}

	img, err := f.Fetch(context.Background(), "http://images.example.com/direct.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), img.Data)

	_, err = f.Fetch(context.Background(), "http://images.example.com/card.png")
	assert.ErrorIs(t, err, ErrImageHostBlocked)

	_, err = f.Fetch(context.Background(), "http://internal.example.com/secret")
	assert.ErrorIs(t, err, ErrImageHostBlocked)
	assert.False(t, secretHit)
}

func TestImageFetcherRedirectLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, r.URL.Path+"x", http.StatusFound)
	}))
	defer srv.Close()

	f := NewImageFetcher(5*time.Second, "", 1024, true)
	_, err := f.Fetch(context.Background(), srv.URL+"/a")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redirects")
}

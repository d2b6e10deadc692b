package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"
)

// Image fetcher error constants
var (
	ErrImageURLRequired = errors.New("image url is required")
	ErrImageURLInvalid  = errors.New("image url must be an absolute http or https url")
	ErrImageHostBlocked = errors.New("image host is not allowed")
	ErrImageTooLarge    = errors.New("image exceeds the size limit")
)

// DefaultImageContentType is used when the upstream does not name one
const DefaultImageContentType = "image/jpeg"

const maxImageRedirects = 5

const defaultBrowserUserAgent = "Mozilla/5.0 (Linux; Android 13) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Mobile Safari/537.36"

// UpstreamStatusError is a non-2xx answer from the image origin
type UpstreamStatusError struct {
	Status     int
	StatusText string
}

func (e *UpstreamStatusError) Error() string {
	return fmt.Sprintf("%d %s", e.Status, e.StatusText)
}

// FetchedImage is a remote image read fully into memory
type FetchedImage struct {
	Data        []byte
	ContentType string
}

// ImageFetcher downloads remote images for the proxy and the card renderer
type ImageFetcher interface {
	Fetch(ctx context.Context, rawURL string) (*FetchedImage, error)
}

// ImageFetcherImpl implements ImageFetcher over HTTP
type ImageFetcherImpl struct {
	HTTPClient        *http.Client
	UserAgent         string
	MaxBytes          int64
	AllowPrivateHosts bool
}

func NewImageFetcher(timeout time.Duration, userAgent string, maxBytes int64, allowPrivateHosts bool) *ImageFetcherImpl {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if userAgent == "" {
		userAgent = defaultBrowserUserAgent
	}
	if maxBytes <= 0 {
		maxBytes = 10 * 1024 * 1024
	}
	return &ImageFetcherImpl{
		HTTPClient: &http.Client{
			Timeout:       timeout,
			Transport:     newImageTransport(newImageDialer(allowPrivateHosts)),
			CheckRedirect: checkImageRedirect,
		},
		UserAgent:         userAgent,
		MaxBytes:          maxBytes,
		AllowPrivateHosts: allowPrivateHosts,
	}
}

// ParseImageURL accepts only absolute http and https URLs
func ParseImageURL(rawURL string) (*url.URL, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, ErrImageURLRequired
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, ErrImageURLInvalid
	}
	return u, nil
}

func (f *ImageFetcherImpl) Fetch(ctx context.Context, rawURL string) (*FetchedImage, error) {
	u, err := ParseImageURL(rawURL)
	if err != nil {
		return nil, err
	}
	if !f.AllowPrivateHosts && isPrivateHost(u.Hostname()) {
		return nil, ErrImageHostBlocked
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.UserAgent)
	req.Header.Set("Accept", "image/*")
	req.Header.Set("Referer", u.Scheme+"://"+u.Host)

	resp, err := f.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &UpstreamStatusError{Status: resp.StatusCode, StatusText: http.StatusText(resp.StatusCode)}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.MaxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > f.MaxBytes {
		return nil, ErrImageTooLarge
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = DefaultImageContentType
	}
	return &FetchedImage{Data: data, ContentType: contentType}, nil
}

// newImageDialer returns the dialer behind every image request. Unless private hosts
// are allowed it refuses to connect to a private address, whatever name or redirect
// led there.
func newImageDialer(allowPrivateHosts bool) *net.Dialer {
	d := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
	if !allowPrivateHosts {
		d.Control = refusePrivateAddress
	}
	return d
}

func newImageTransport(dialer *net.Dialer) *http.Transport {
	return &http.Transport{
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
	}
}

// refusePrivateAddress runs after name resolution, so address is always ip:port.
func refusePrivateAddress(network, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrImageHostBlocked, address)
	}
	ip := net.ParseIP(host)
	if ip == nil || isPrivateIP(ip) {
		return fmt.Errorf("%w: %s", ErrImageHostBlocked, host)
	}
	return nil
}

func checkImageRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxImageRedirects {
		return fmt.Errorf("stopped after %d redirects", maxImageRedirects)
	}
	if _, err := ParseImageURL(req.URL.String()); err != nil {
		return err
	}
	return nil
}

// isPrivateHost rejects localhost and private literal addresses before any dialing
func isPrivateHost(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	return isPrivateIP(ip)
}

func isPrivateIP(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() || ip.IsInterfaceLocalMulticast() || ip.IsUnspecified()
}

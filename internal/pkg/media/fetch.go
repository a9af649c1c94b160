package media

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/mediabridge/app/models"
	"github.com/ManuelReschke/mediabridge/internal/pkg/apperror"
	"github.com/ManuelReschke/mediabridge/internal/pkg/imageprocessor"
)

const (
	defaultFetchTimeout  = 20 * time.Second
	defaultFetchMaxBytes = 25 << 20
)

// newFetchClient returns the client used for remote images. It only dials public
// addresses so the URL route cannot be pointed at the internal network.
func newFetchClient(timeout time.Duration) *http.Client {
	dialer := &net.Dialer{
		Timeout: 10 * time.Second,
		Control: func(network, address string, _ syscall.RawConn) error {
			host, _, err := net.SplitHostPort(address)
			if err != nil {
				return err
			}
			ip := net.ParseIP(host)
			if ip == nil || ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
				ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsMulticast() {
				return fmt.Errorf("%w: refusing to fetch from %s", apperror.ErrInvalidInput, host)
			}
			return nil
		},
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	transport.DialContext = dialer.DialContext
	return &http.Client{Transport: transport, Timeout: timeout}
}

// remoteURL turns the wildcard of the URL route into an absolute URL. A missing scheme
// means https.
func remoteURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	// collapsed by proxies that merge slashes
	for _, scheme := range []string{"https:/", "http:/"} {
		if strings.HasPrefix(raw, scheme) && !strings.HasPrefix(raw, scheme+"/") {
			raw = scheme + "/" + strings.TrimPrefix(raw, scheme)
		}
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + strings.TrimPrefix(raw, "/")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperror.ErrInvalidInput, err)
	}
	if (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return "", fmt.Errorf("%w: unsupported url %q", apperror.ErrInvalidInput, raw)
	}
	return u.String(), nil
}

// remoteID is the stable id a remote URL is processed under
func remoteID(target string) string {
	sum := md5.Sum([]byte(target))
	return hex.EncodeToString(sum[:])
}

func (s *Service) fetch(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperror.ErrInvalidInput, err)
	}
	req.Header.Set("Accept", "image/*")

	resp, err := s.opts.HTTPClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", apperror.ErrRemoteFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %s answered %d", apperror.ErrRemoteFetch, req.URL.Host, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, s.opts.FetchMaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperror.ErrRemoteFetch, err)
	}
	if int64(len(data)) > s.opts.FetchMaxBytes {
		return nil, fmt.Errorf("%w: remote image exceeds %d bytes", apperror.ErrInvalidInput, s.opts.FetchMaxBytes)
	}
	return data, nil
}

// FromURL fetches a remote image and returns the PNG variant described by options.
// Nothing is stored.
func (s *Service) FromURL(ctx context.Context, raw string, options map[string]string) ([]byte, error) {
	target, err := remoteURL(raw)
	if err != nil {
		return nil, err
	}
	data, err := s.fetch(ctx, target)
	if err != nil {
		return nil, err
	}
	d := s.parser.Parse(remoteID(target), options)
	out, err := imageprocessor.Process(ctx, data, d)
	if err != nil {
		return nil, err
	}
	log.Debugf("[Media] Rendered %s from %s", d.Spec(), target)
	return out, nil
}

// Ingest fetches the URL recorded when id was staged with origin url and uploads it.
func (s *Service) Ingest(ctx context.Context, account, id string, options map[string]string) (*UploadResult, error) {
	item, err := s.repo.FindOne(ctx, id)
	if err != nil {
		return nil, notStaged(id, err)
	}
	if item.Origin != models.ORIGIN_URL || item.URL == "" {
		return nil, fmt.Errorf("%w: %s has no remote url, upload a file instead", apperror.ErrInvalidInput, id)
	}
	target, err := remoteURL(item.URL)
	if err != nil {
		return nil, err
	}
	data, err := s.fetch(ctx, target)
	if err != nil {
		return nil, err
	}
	name := ""
	if u, err := url.Parse(target); err == nil {
		name = u.Path[strings.LastIndex(u.Path, "/")+1:]
	}
	log.Infof("[Media] Ingesting %s from %s (%d bytes)", id, target, len(data))
	return s.Upload(ctx, account, id, UploadFile{Filename: name, Data: data}, options)
}

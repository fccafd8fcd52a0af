package executor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/multichat/chatproxy/internal/util"
	log "github.com/sirupsen/logrus"
)

const acceptEncoding = "gzip, zstd, br"

// maxErrorBody bounds how much of a failed response is read for its message.
const maxErrorBody = 1 << 20

// newHTTPClient returns the client shared by an executor. Streaming bodies
// have no overall timeout; the request context bounds them instead.
func newHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			MaxIdleConnsPerHost:   16,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 2 * time.Minute,
			ForceAttemptHTTP2:     true,
		},
	}
}

type decodedBody struct {
	io.Reader
	close func() error
}

func (d *decodedBody) Close() error { return d.close() }

// decodeResponseBody wraps body with a decompressor for contentEncoding.
// Only the first listed encoding is honoured; unknown encodings pass the
// body through untouched.
func decodeResponseBody(body io.ReadCloser, contentEncoding string) (io.ReadCloser, error) {
	encoding := strings.ToLower(strings.TrimSpace(contentEncoding))
	if idx := strings.IndexByte(encoding, ','); idx >= 0 {
		encoding = strings.TrimSpace(encoding[:idx])
	}
	switch encoding {
	case "gzip", "x-gzip":
		gr, err := gzip.NewReader(body)
		if err != nil {
			_ = body.Close()
			return nil, fmt.Errorf("create gzip reader: %w", err)
		}
		return &decodedBody{Reader: gr, close: func() error {
			errGz := gr.Close()
			if errBody := body.Close(); errBody != nil {
				return errBody
			}
			return errGz
		}}, nil
	case "zstd":
		dec, err := zstd.NewReader(body)
		if err != nil {
			_ = body.Close()
			return nil, fmt.Errorf("create zstd reader: %w", err)
		}
		return &decodedBody{Reader: dec, close: func() error {
			dec.Close()
			return body.Close()
		}}, nil
	case "br":
		return &decodedBody{Reader: brotli.NewReader(body), close: body.Close}, nil
	default:
		return body, nil
	}
}

// send issues a JSON POST (or GET when payload is nil) and returns the
// decoded body of a 2xx response. Any other status becomes an UpstreamError
// carrying the provider's message.
func send(ctx context.Context, client *http.Client, name, method, url string, payload []byte, headers map[string]string) (*http.Response, io.ReadCloser, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, nil, err
	}
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept-Encoding", acceptEncoding)
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}
	if log.IsLevelEnabled(log.DebugLevel) && payload != nil {
		log.Debugf("%s executor: %s %s body: %s", name, method, url, util.RedactSensitiveJSON(payload))
	}

	httpResp, err := client.Do(httpReq)
	if err != nil {
		return nil, nil, err
	}
	body, err := decodeResponseBody(httpResp.Body, httpResp.Header.Get("Content-Encoding"))
	if err != nil {
		return nil, nil, err
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(body, maxErrorBody))
		log.Debugf("%s executor: request error, error status: %d, error body: %s", name, httpResp.StatusCode, util.RedactSensitiveJSON(b))
		if errClose := body.Close(); errClose != nil {
			log.Errorf("%s executor: close response body error: %v", name, errClose)
		}
		return nil, nil, &UpstreamError{Status: httpResp.StatusCode, Message: upstreamMessage(b, httpResp.StatusCode)}
	}
	return httpResp, body, nil
}

func joinURL(base, path string) string {
	return strings.TrimSuffix(base, "/") + path
}

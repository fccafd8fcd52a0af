package executor

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"sync"

	log "github.com/sirupsen/logrus"
)

var (
	dataTag = []byte("data:")
	doneTag = []byte("[DONE]")
)

// extractFunc turns one SSE data payload into text. An empty string with a
// nil error skips the event.
type extractFunc func(payload []byte) (string, error)

// sseTokenStream reads a server-sent-events body line by line and yields the
// text extracted from each data event.
type sseTokenStream struct {
	name    string
	body    io.ReadCloser
	scanner *bufio.Scanner
	extract extractFunc

	done      bool
	closeOnce sync.Once
	closeErr  error
}

func newSSETokenStream(name string, body io.ReadCloser, extract extractFunc) *sseTokenStream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(nil, 52_428_800) // 50MB
	return &sseTokenStream{name: name, body: body, scanner: scanner, extract: extract}
}

func (s *sseTokenStream) Next(ctx context.Context) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if s.done {
			return "", io.EOF
		}
		if !s.scanner.Scan() {
			s.done = true
			if err := s.scanner.Err(); err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return "", ctxErr
				}
				return "", err
			}
			return "", io.EOF
		}
		line := bytes.TrimSpace(s.scanner.Bytes())
		if !bytes.HasPrefix(line, dataTag) {
			continue
		}
		payload := bytes.TrimSpace(line[len(dataTag):])
		if len(payload) == 0 {
			continue
		}
		if bytes.Equal(payload, doneTag) {
			s.done = true
			return "", io.EOF
		}
		text, err := s.extract(payload)
		if err != nil {
			s.done = true
			return "", err
		}
		if text == "" {
			continue
		}
		return text, nil
	}
}

func (s *sseTokenStream) Close() error {
	s.closeOnce.Do(func() {
		s.done = true
		s.closeErr = s.body.Close()
		if s.closeErr != nil {
			log.Errorf("%s executor: close response body error: %v", s.name, s.closeErr)
		}
	})
	return s.closeErr
}

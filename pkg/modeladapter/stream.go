package modeladapter

import (
	"bufio"
	"errors"
	"io"
	"strings"
	"sync"
)

// SSEDecoder reads server-sent events and yields their data payloads.
type SSEDecoder struct {
	r   *bufio.Reader
	buf []string
}

// NewSSEDecoder wraps r in an SSEDecoder.
func NewSSEDecoder(r io.Reader) *SSEDecoder {
	return &SSEDecoder{r: bufio.NewReader(r)}
}

// Next returns the next event's data payload (multiple data lines joined by
// "\n") and io.EOF when the underlying reader ends. Event names, ids and
// comments are ignored.
func (d *SSEDecoder) Next() (string, error) {
	for {
		line, err := d.r.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}

		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if len(d.buf) > 0 {
				return d.flush(), nil
			}
			if err != nil {
				return "", io.EOF
			}
			continue
		}

		if data, ok := strings.CutPrefix(line, "data:"); ok {
			d.buf = append(d.buf, strings.TrimPrefix(data, " "))
		}

		if err != nil {
			if len(d.buf) > 0 {
				return d.flush(), nil
			}
			return "", io.EOF
		}
	}
}

func (d *SSEDecoder) flush() string {
	out := strings.Join(d.buf, "\n")
	d.buf = d.buf[:0]
	return out
}

// LineDecoder reads newline-delimited JSON and yields one non-blank line at a time.
type LineDecoder struct {
	sc *bufio.Scanner
}

// NewLineDecoder wraps r in a LineDecoder.
func NewLineDecoder(r io.Reader) *LineDecoder {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), 4<<20)
	return &LineDecoder{sc: sc}
}

// Next returns the next non-blank line, or io.EOF.
func (d *LineDecoder) Next() (string, error) {
	for d.sc.Scan() {
		line := strings.TrimSpace(d.sc.Text())
		if line != "" {
			return line, nil
		}
	}
	if err := d.sc.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

// ChunkFunc converts one decoded frame into a text fragment. An empty fragment
// is skipped. done reports that the provider signalled the end of the reply.
type ChunkFunc func(frame string) (fragment string, done bool, err error)

type frameDecoder interface {
	Next() (string, error)
}

type bodyStream struct {
	body  io.ReadCloser
	dec   frameDecoder
	chunk ChunkFunc
	done  bool
	once  sync.Once
}

// NewSSEStream returns a Stream that decodes server-sent events from body.
func NewSSEStream(body io.ReadCloser, chunk ChunkFunc) Stream {
	return &bodyStream{body: body, dec: NewSSEDecoder(body), chunk: chunk}
}

// NewLineStream returns a Stream that decodes NDJSON lines from body.
func NewLineStream(body io.ReadCloser, chunk ChunkFunc) Stream {
	return &bodyStream{body: body, dec: NewLineDecoder(body), chunk: chunk}
}

func (s *bodyStream) Recv() (string, error) {
	for {
		if s.done {
			return "", io.EOF
		}

		frame, err := s.dec.Next()
		if err != nil {
			s.done = true
			return "", err
		}

		fragment, done, err := s.chunk(frame)
		if err != nil {
			s.done = true
			return "", err
		}

		if done {
			s.done = true
		}

		if fragment != "" {
			return fragment, nil
		}
	}
}

func (s *bodyStream) Close() error {
	var err error
	s.once.Do(func() {
		s.done = true
		err = s.body.Close()
	})
	return err
}

// Collect drains s and returns the concatenated fragments. It closes s.
func Collect(s Stream) (string, error) {
	defer func() { _ = s.Close() }()

	var b strings.Builder
	for {
		frag, err := s.Recv()
		if errors.Is(err, io.EOF) {
			return b.String(), nil
		}
		if err != nil {
			return b.String(), err
		}
		b.WriteString(frag)
	}
}

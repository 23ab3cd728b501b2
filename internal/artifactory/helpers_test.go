package artifactory

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// chunkedBody hands out one chunk per Read call and then returns end.
type chunkedBody struct {
	chunks [][]byte
	end    error
	closed bool
}

func (b *chunkedBody) Read(p []byte) (int, error) {
	if len(b.chunks) == 0 {
		return 0, b.end
	}
	c := b.chunks[0]
	n := copy(p, c)
	if n < len(c) {
		b.chunks[0] = c[n:]
	} else {
		b.chunks = b.chunks[1:]
	}
	return n, nil
}

func (b *chunkedBody) Close() error {
	b.closed = true
	return nil
}

var errConnectionReset = errors.New("connection reset by peer")

// chunkClient returns a client whose transport answers every request with
// the given chunks. contentLength < 0 omits the length.
func chunkClient(calls *atomic.Int32, chunks [][]byte, end error, contentLength int64) *http.Client {
	return &http.Client{
		Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
			calls.Add(1)
			header := http.Header{}
			if contentLength >= 0 {
				header.Set("Content-Length", strconv.FormatInt(contentLength, 10))
			}
			return &http.Response{
				Status:        "200 OK",
				StatusCode:    http.StatusOK,
				Proto:         "HTTP/1.1",
				ProtoMajor:    1,
				ProtoMinor:    1,
				Header:        header,
				Body:          &chunkedBody{chunks: chunks, end: end},
				ContentLength: contentLength,
				Request:       req,
			}, nil
		}),
	}
}

func makeChunks(sizes ...int) [][]byte {
	chunks := make([][]byte, len(sizes))
	var next byte
	for i, n := range sizes {
		c := make([]byte, n)
		for j := range c {
			c[j] = next
			next++
		}
		chunks[i] = c
	}
	return chunks
}

func concat(chunks [][]byte) []byte {
	var out []byte
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}

var _ io.ReadCloser = (*chunkedBody)(nil)

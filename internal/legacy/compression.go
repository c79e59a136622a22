// File: internal/legacy/compression.go
package legacy

import (
	"bufio"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
)

const acceptEncoding = "br, gzip, deflate"

var (
	gzipReaderPool = sync.Pool{
		New: func() interface{} { return new(gzip.Reader) },
	}
	brotliReaderPool = sync.Pool{
		New: func() interface{} { return brotli.NewReader(nil) },
	}
	emptyReader = strings.NewReader("")
)

// decompressingTransport advertises br/gzip/deflate and decodes the response body.
// net/http only handles gzip on its own, and only when the caller has not set
// Accept-Encoding, so the legacy client does its own negotiation.
type decompressingTransport struct {
	next http.RoundTripper
}

func newDecompressingTransport(next http.RoundTripper) *decompressingTransport {
	if next == nil {
		next = http.DefaultTransport
	}
	return &decompressingTransport{next: next}
}

func (t *decompressingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("Accept-Encoding") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("Accept-Encoding", acceptEncoding)
	}

	resp, err := t.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if err := decodeBody(resp); err != nil {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("failed to decode %s response: %w", req.URL.Host, err)
	}
	return resp, nil
}

// CloseIdleConnections forwards to the wrapped transport.
func (t *decompressingTransport) CloseIdleConnections() {
	if c, ok := t.next.(interface{ CloseIdleConnections() }); ok {
		c.CloseIdleConnections()
	}
}

// pooledBody closes the decoder and the wire body, then hands the decoder back to its pool.
type pooledBody struct {
	io.ReadCloser
	wire    io.ReadCloser
	release func()
}

func (b *pooledBody) Close() error {
	err := errors.Join(b.ReadCloser.Close(), b.wire.Close())
	if b.release != nil {
		b.release()
		b.release = nil
	}
	return err
}

// decodeBody unwraps each Content-Encoding layer, last applied first.
func decodeBody(resp *http.Response) error {
	if resp == nil || resp.Body == nil {
		return nil
	}
	encodings := resp.Header.Values("Content-Encoding")
	if len(encodings) == 0 {
		return nil
	}

	var layers []string
	for _, v := range encodings {
		for _, part := range strings.Split(v, ",") {
			layers = append(layers, strings.ToLower(strings.TrimSpace(part)))
		}
	}

	for i := len(layers) - 1; i >= 0; i-- {
		var (
			decoder io.ReadCloser
			release func()
		)
		switch layers[i] {
		case "", "identity":
			continue
		case "gzip", "x-gzip":
			zr := gzipReaderPool.Get().(*gzip.Reader)
			if err := zr.Reset(resp.Body); err != nil {
				gzipReaderPool.Put(zr)
				return fmt.Errorf("gzip: %w", err)
			}
			decoder = zr
			release = func() {
				_ = zr.Reset(emptyReader)
				gzipReaderPool.Put(zr)
			}
		case "br":
			br := brotliReaderPool.Get().(*brotli.Reader)
			if err := br.Reset(resp.Body); err != nil {
				brotliReaderPool.Put(br)
				return fmt.Errorf("brotli: %w", err)
			}
			decoder = io.NopCloser(br)
			release = func() {
				_ = br.Reset(emptyReader)
				brotliReaderPool.Put(br)
			}
		case "deflate":
			decoder = newDeflateReader(resp.Body)
		default:
			return fmt.Errorf("unsupported content encoding %q", layers[i])
		}
		resp.Body = &pooledBody{ReadCloser: decoder, wire: resp.Body, release: release}
	}

	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	resp.Uncompressed = true
	return nil
}

// newDeflateReader accepts both zlib-wrapped (RFC 1950) and raw (RFC 1951) deflate,
// since servers disagree on what "deflate" means.
func newDeflateReader(r io.Reader) io.ReadCloser {
	br := bufio.NewReader(r)
	header, err := br.Peek(2)
	if err == nil && isZlibHeader(header) {
		if zr, zerr := zlib.NewReader(br); zerr == nil {
			return zr
		}
	}
	return flate.NewReader(br)
}

func isZlibHeader(h []byte) bool {
	// CM=8 (deflate) and the header checksum must be a multiple of 31.
	return h[0]&0x0f == 8 && (uint16(h[0])<<8|uint16(h[1]))%31 == 0
}

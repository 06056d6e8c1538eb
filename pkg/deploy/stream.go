package deploy

import (
	"compress/bzip2"
	"compress/gzip"
	"context"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/zikani/smartboot/pkg/errors"
)

// Chunked raw writes: large enough to keep USB throughput up, bounded
// so progress and cancellation stay responsive.
const (
	MinChunkSize     = 1 << 20
	DefaultChunkSize = 4 << 20
)

// countingReader tracks consumed bytes of the underlying compressed
// file so progress reflects real input position even when the payload
// inflates.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// imageStream is a decompressed image payload plus the position within
// the compressed source.
type imageStream struct {
	io.Reader
	consumed *int64
	closers  []func() error
}

func (s *imageStream) Close() error {
	var first error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// openImageStream opens path and layers the decompressor its extension
// calls for. gzip and bzip2 decode in-process; xz has no standard
// library codec and pipes through the host xz tool.
func openImageStream(ctx context.Context, path string) (*imageStream, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open image %s", path)
	}
	counted := &countingReader{r: f}
	stream := &imageStream{consumed: &counted.n, closers: []func() error{f.Close}}

	switch {
	case strings.HasSuffix(strings.ToLower(path), ".gz"):
		gz, err := gzip.NewReader(counted)
		if err != nil {
			f.Close()
			return nil, errors.Wrap(err, "open gzip stream")
		}
		stream.Reader = gz
		stream.closers = append(stream.closers, gz.Close)

	case strings.HasSuffix(strings.ToLower(path), ".bz2"):
		stream.Reader = bzip2.NewReader(counted)

	case strings.HasSuffix(strings.ToLower(path), ".xz"):
		f.Close()
		stream.closers = nil
		cmd := exec.CommandContext(ctx, "xz", "-dc", path)
		pipe, err := cmd.StdoutPipe()
		if err != nil {
			return nil, errors.Wrap(err, "open xz pipe")
		}
		if err := cmd.Start(); err != nil {
			return nil, errors.Wrap(err, "start xz")
		}
		stream.Reader = pipe
		stream.consumed = nil
		stream.closers = append(stream.closers, pipe.Close, cmd.Wait)

	default:
		stream.Reader = counted
	}

	return stream, nil
}

// writeChunks copies src to dst in fixed chunks, checking cancellation
// and reporting written bytes between chunks. Returns bytes written.
func writeChunks(ctx context.Context, dst io.Writer, src io.Reader, chunkSize int, onChunk func(written int64)) (int64, error) {
	if chunkSize < MinChunkSize {
		chunkSize = MinChunkSize
	}
	buf := make([]byte, chunkSize)
	var written int64

	for {
		if err := ctx.Err(); err != nil {
			return written, errors.Wrap(errors.ErrCancelled, "raw write interrupted")
		}
		n, rerr := io.ReadFull(src, buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return written, errors.Wrap(werr, "device write")
			}
			written += int64(n)
			if onChunk != nil {
				onChunk(written)
			}
		}
		if rerr == io.EOF || rerr == io.ErrUnexpectedEOF {
			return written, nil
		}
		if rerr != nil {
			return written, errors.Wrap(rerr, "image read")
		}
	}
}

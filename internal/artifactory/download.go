package artifactory

import (
	"context"
	"io"
	"os"
)

// chunkSize is the largest read handed to the transport per iteration. The
// transport may return fewer bytes on any read.
const chunkSize = 32 << 10

// DownloadProgress is a snapshot taken after each received chunk.
// ExpectedBytesDownloaded is 0 when the server did not report a content
// length; it does not mean the artifact is empty.
type DownloadProgress struct {
	ExpectedBytesDownloaded uint64
	BytesDownloaded         uint64
}

// ProgressFunc receives download snapshots synchronously, in arrival order,
// on the goroutine running Pull. A slow callback slows the download.
type ProgressFunc func(DownloadProgress)

// Pull streams the artifact at p into dest, creating or truncating it.
//
// dest is created before any request is sent, so a bad destination fails
// without network traffic. On failure the partially written file is left in
// place. progress may be nil.
func (c *Client) Pull(ctx context.Context, p Path, dest string, progress ProgressFunc) error {
	const op = "pull"

	out, err := os.Create(dest)
	if err != nil {
		return ioError(op, err)
	}
	defer out.Close()

	resp, err := c.get(ctx, op, c.downloadURL(p))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var expected uint64
	if resp.ContentLength > 0 {
		expected = uint64(resp.ContentLength)
	}

	var downloaded uint64
	buf := make([]byte, chunkSize)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				return ioError(op, werr)
			}
			downloaded += uint64(n)
			if progress != nil {
				progress(DownloadProgress{
					ExpectedBytesDownloaded: expected,
					BytesDownloaded:         downloaded,
				})
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return transportError(op, rerr)
		}
	}

	if err := out.Close(); err != nil {
		return ioError(op, err)
	}
	return nil
}

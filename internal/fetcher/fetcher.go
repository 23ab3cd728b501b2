// Package fetcher pulls batches of artifacts through the Artifactory client
// with a pool of workers, optionally verifying and decompressing each one.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/open-edge-platform/artifactory-fetch/internal/artifactory"
	"github.com/open-edge-platform/artifactory-fetch/internal/utils/compression"
	"github.com/open-edge-platform/artifactory-fetch/internal/utils/file"
	"github.com/open-edge-platform/artifactory-fetch/internal/utils/logger"
	"github.com/open-edge-platform/artifactory-fetch/internal/verify"
	"github.com/schollz/progressbar/v3"
)

// SignatureSuffix is appended to an artifact path to locate its detached
// signature.
const SignatureSuffix = ".asc"

// ErrDuplicateName marks a path whose base name is already claimed by an
// earlier path in the same batch.
var ErrDuplicateName = errors.New("duplicate local file name")

// Options controls a Fetch run.
type Options struct {
	Workers      int
	Verify       bool   // fetch metadata and compare checksums
	KeyFile      string // when set, pull <path>.asc and check it against this key
	Decompress   bool
	SkipExisting bool
	Output       io.Writer // progress bar destination, os.Stderr when nil
}

// Result is the outcome of one artifact.
type Result struct {
	JobID    string
	Path     artifactory.Path
	File     string // final local file, decompressed when requested
	Info     *artifactory.FileInfo
	Bytes    uint64
	Skipped  bool
	Verified bool
	Signed   bool
	Duration time.Duration
	Err      error
}

// Fetch pulls every path into destDir/<base name>. All jobs run to
// completion; the returned error summarises the failed ones. Results keep
// the order of paths. When two paths share a base name the first one is
// pulled and the later ones fail with ErrDuplicateName.
func Fetch(ctx context.Context, client *artifactory.Client, paths []artifactory.Path, destDir string, opts Options) ([]Result, error) {
	log := logger.Logger()

	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Output == nil {
		opts.Output = os.Stderr
	}
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create dest dir %s: %w", destDir, err)
	}

	total := len(paths)
	results := make([]Result, total)
	jobs := make(chan int, total)
	var wg sync.WaitGroup

	// single progress bar for total files
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetWriter(opts.Output),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowDescriptionAtLineEnd(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionShowCount(),
		progressbar.OptionThrottle(200*time.Millisecond),
		progressbar.OptionSpinnerType(10),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)

	owners := make(map[string]artifactory.Path, total)
	for i, p := range paths {
		name := p.Base()
		if first, taken := owners[name]; taken {
			results[i] = Result{
				JobID: uuid.NewString(),
				Path:  p,
				Err:   fmt.Errorf("%w: %q is already the target of %s", ErrDuplicateName, name, first),
			}
			if err := bar.Add(1); err != nil {
				log.Errorf("failed to add to progress bar: %v", err)
			}
			continue
		}
		owners[name] = p
		jobs <- i
	}
	close(jobs)

	for i := 0; i < opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				results[idx] = runJob(ctx, client, paths[idx], destDir, opts, bar)
				if err := bar.Add(1); err != nil {
					log.Errorf("failed to add to progress bar: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	if err := bar.Finish(); err != nil {
		log.Errorf("failed to finish progress bar: %v", err)
	}

	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Path, r.Err))
		}
	}
	if len(errs) > 0 {
		return results, fmt.Errorf("%d of %d downloads failed: %w", len(errs), total, errors.Join(errs...))
	}
	return results, nil
}

func runJob(ctx context.Context, client *artifactory.Client, p artifactory.Path, destDir string, opts Options, bar *progressbar.ProgressBar) Result {
	start := time.Now()
	res := Result{JobID: uuid.NewString(), Path: p}
	log := logger.With("job", res.JobID, "path", p.String())

	name := p.Base()
	destPath, err := file.JoinWithin(destDir, name)
	if err != nil {
		res.Err = err
		return finish(&res, start)
	}
	res.File = destPath
	bar.Describe(name)

	if opts.SkipExisting {
		if fi, err := os.Stat(destPath); err == nil {
			if fi.Size() > 0 {
				log.Debugf("skipping existing %s", name)
				res.Skipped = true
				res.Bytes = uint64(fi.Size())
				return finish(&res, start)
			}
			log.Warnf("re-downloading zero-size %s", name)
		}
	}

	if opts.Verify {
		info, err := client.FileInfo(ctx, p)
		if err != nil {
			res.Err = fmt.Errorf("fetching metadata: %w", err)
			return finish(&res, start)
		}
		res.Info = info
	}

	var size uint64
	if res.Info != nil {
		n, err := res.Info.SizeBytes()
		if err != nil {
			log.Warnf("ignoring reported size of %s: %v", p, err)
		} else if n > 0 {
			size = uint64(n)
		}
	}

	err = client.Pull(ctx, p, destPath, func(dp artifactory.DownloadProgress) {
		res.Bytes = dp.BytesDownloaded
		bar.Describe(describe(name, dp, size))
	})
	if err != nil {
		log.Errorf("downloading %s failed: %v", p, err)
		res.Err = err
		return finish(&res, start)
	}

	if res.Info != nil {
		if size > 0 && res.Bytes != size {
			res.Err = fmt.Errorf("size mismatch: received %d bytes, metadata reports %d", res.Bytes, size)
			return finish(&res, start)
		}
		if err := verify.Checksums(destPath, res.Info.Checksums); err != nil {
			if !errors.Is(err, verify.ErrNoChecksums) {
				res.Err = err
				return finish(&res, start)
			}
			log.Warnf("no checksums published for %s", p)
		} else {
			res.Verified = true
		}
	}

	if opts.KeyFile != "" {
		sigPath := destPath + SignatureSuffix
		if err := client.Pull(ctx, artifactory.PathOf(p.String()+SignatureSuffix), sigPath, nil); err != nil {
			res.Err = fmt.Errorf("downloading signature: %w", err)
			return finish(&res, start)
		}
		if err := verify.Signature(destPath, sigPath, opts.KeyFile); err != nil {
			res.Err = err
			return finish(&res, start)
		}
		res.Signed = true
	}

	if opts.Decompress && compression.IsCompressed(destPath) {
		out := compression.TrimExt(destPath)
		if err := compression.DecompressFile(destPath, out); err != nil {
			res.Err = err
			return finish(&res, start)
		}
		log.Debugf("decompressed %s to %s", destPath, out)
		res.File = out
	}

	log.Infof("pulled %s (%s)", p, humanize.IBytes(res.Bytes))
	return finish(&res, start)
}

func finish(res *Result, start time.Time) Result {
	res.Duration = time.Since(start)
	return *res
}

// PullOne pulls a single artifact, driving bar from the download progress.
// A bar created with max -1 spins until the expected size is known.
func PullOne(ctx context.Context, client *artifactory.Client, p artifactory.Path, dest string, bar *progressbar.ProgressBar) error {
	var maxSet bool
	err := client.Pull(ctx, p, dest, func(dp artifactory.DownloadProgress) {
		if bar == nil {
			return
		}
		if !maxSet && dp.ExpectedBytesDownloaded > 0 {
			bar.ChangeMax64(int64(dp.ExpectedBytesDownloaded))
			maxSet = true
		}
		_ = bar.Set64(int64(dp.BytesDownloaded))
	})
	if bar != nil {
		_ = bar.Finish()
	}
	return err
}

// NewByteBar returns a byte-counting bar for PullOne.
func NewByteBar(w io.Writer, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions64(-1,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(30),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(w) }),
	)
}

// describe renders the per-file progress text. total stands in for the
// expected size when the response carried no Content-Length.
func describe(name string, dp artifactory.DownloadProgress, total uint64) string {
	expected := dp.ExpectedBytesDownloaded
	if expected == 0 {
		expected = total
	}
	if expected == 0 {
		return fmt.Sprintf("%s %s", name, humanize.IBytes(dp.BytesDownloaded))
	}
	return fmt.Sprintf("%s %s/%s", name, humanize.IBytes(dp.BytesDownloaded), humanize.IBytes(expected))
}

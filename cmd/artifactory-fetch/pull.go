package main

import (
	"bytes"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/open-edge-platform/artifactory-fetch/internal/artifactory"
	"github.com/open-edge-platform/artifactory-fetch/internal/config"
	"github.com/open-edge-platform/artifactory-fetch/internal/fetcher"
	"github.com/open-edge-platform/artifactory-fetch/internal/manifest"
	"github.com/open-edge-platform/artifactory-fetch/internal/utils/logger"
	"github.com/spf13/cobra"
)

// Pull flags; zero values fall back to the configuration file
var (
	pullDestDir      string
	pullOutputFile   string
	pullWorkers      int
	pullVerify       bool
	pullDecompress   bool
	pullKeyFile      string
	pullSkipExisting bool
	pullManifestFile string
)

// createPullCommand creates the pull subcommand
func createPullCommand() *cobra.Command {
	pullCmd := &cobra.Command{
		Use:   "pull PATH...",
		Short: "Download one or more artifacts",
		Long: `Download artifacts into the download directory, showing progress.

With --output a single artifact is written to the given file and no post
processing is done. Otherwise every PATH is written to <dir>/<base name> by a
pool of workers and may be verified and decompressed.

Examples:
  artifactory-fetch pull generic-local/tools/cli.tar.gz
  artifactory-fetch pull generic-local/a.bin generic-local/b.bin -d ./out -w 8
  artifactory-fetch pull generic-local/data.json.zst --decompress --key release.asc
  artifactory-fetch pull generic-local/tools/cli.tar.gz -O /tmp/cli.tgz`,
		Args: cobra.MinimumNArgs(1),
		RunE: executePull,
	}

	pullCmd.Flags().StringVarP(&pullDestDir, "dir", "d", "", "Destination directory (default from config download_dir)")
	pullCmd.Flags().StringVarP(&pullOutputFile, "output", "O", "", "Write a single artifact to this file")
	pullCmd.Flags().IntVarP(&pullWorkers, "workers", "w", 0, "Concurrent downloads (default from config workers)")
	pullCmd.Flags().BoolVar(&pullVerify, "verify", false, "Verify checksums against the storage API (default from config verify_checksums)")
	pullCmd.Flags().BoolVar(&pullDecompress, "decompress", false, "Decompress .gz, .xz and .zst artifacts (default from config decompress)")
	pullCmd.Flags().StringVar(&pullKeyFile, "key", "", "Public key file; <PATH>.asc is fetched and checked (default from config signature_key)")
	pullCmd.Flags().BoolVar(&pullSkipExisting, "skip-existing", false, "Skip artifacts already present with a non-zero size")
	pullCmd.Flags().StringVar(&pullManifestFile, "manifest", "", "Write an SPDX manifest of the pulled artifacts to this file")

	return pullCmd
}

// executePull handles the pull command logic
func executePull(cmd *cobra.Command, args []string) error {
	log := logger.Logger()

	client, err := newClient()
	if err != nil {
		return err
	}

	paths := make([]artifactory.Path, len(args))
	for i, a := range args {
		paths[i] = artifactory.PathOf(a)
	}

	if pullOutputFile != "" {
		if len(paths) != 1 {
			return fmt.Errorf("--output takes exactly one PATH, got %d", len(paths))
		}
		bar := fetcher.NewByteBar(cmd.ErrOrStderr(), paths[0].Base())
		if err := fetcher.PullOne(cmd.Context(), client, paths[0], pullOutputFile, bar); err != nil {
			return fmt.Errorf("failed to pull %s: %w", paths[0], err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", paths[0], pullOutputFile)
		return nil
	}

	cfg := config.Global()
	opts := fetcher.Options{
		Workers:      config.Workers(),
		Verify:       cfg.VerifyChecksums,
		Decompress:   cfg.Decompress,
		KeyFile:      cfg.SignatureKey,
		SkipExisting: pullSkipExisting,
		Output:       cmd.ErrOrStderr(),
	}
	flags := cmd.Flags()
	if flags.Changed("workers") {
		opts.Workers = pullWorkers
	}
	if flags.Changed("verify") {
		opts.Verify = pullVerify
	}
	if flags.Changed("decompress") {
		opts.Decompress = pullDecompress
	}
	if flags.Changed("key") {
		opts.KeyFile = pullKeyFile
	}

	destDir := pullDestDir
	if destDir == "" {
		if destDir, err = config.EnsureDownloadDir(); err != nil {
			return err
		}
	}
	log.Debugf("pulling %d artifacts into %s with %d workers", len(paths), destDir, opts.Workers)

	// Hold console logs while the bar owns the terminal.
	held := &lockedBuffer{}
	prev := logger.ReplaceStderrWriter(held)
	results, fetchErr := fetcher.Fetch(cmd.Context(), client, paths, destDir, opts)
	logger.ReplaceStderrWriter(prev)
	_, _ = held.WriteTo(prev)

	printResults(cmd.OutOrStdout(), results)

	if pullManifestFile != "" && len(results) > 0 {
		if err := manifest.WriteSPDXToFile(manifestEntries(results), pullManifestFile); err != nil {
			return err
		}
	}
	return fetchErr
}

func printResults(w io.Writer, results []fetcher.Result) {
	for _, r := range results {
		switch {
		case r.Err != nil:
			fmt.Fprintf(w, "FAILED  %s: %v\n", r.Path, r.Err)
		case r.Skipped:
			fmt.Fprintf(w, "SKIPPED %s -> %s\n", r.Path, r.File)
		default:
			var marks string
			if r.Verified {
				marks += " [checksums ok]"
			}
			if r.Signed {
				marks += " [signature ok]"
			}
			fmt.Fprintf(w, "OK      %s -> %s (%d bytes, %s)%s\n", r.Path, r.File, r.Bytes, r.Duration.Round(time.Millisecond), marks)
		}
	}
}

func manifestEntries(results []fetcher.Result) []manifest.Entry {
	var entries []manifest.Entry
	for _, r := range results {
		if r.Err != nil {
			continue
		}
		entries = append(entries, manifest.Entry{Path: r.Path, LocalFile: r.File, Info: r.Info})
	}
	return entries
}

// lockedBuffer is a bytes.Buffer safe for the concurrent writes of the
// fetch workers' loggers.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) WriteTo(w io.Writer) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.WriteTo(w)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

package fetcher

import (
	"bytes"
	"context"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/ProtonMail/go-crypto/openpgp/packet"
	"github.com/klauspost/compress/gzip"
	"github.com/open-edge-platform/artifactory-fetch/internal/artifactory"
	"github.com/open-edge-platform/artifactory-fetch/internal/verify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	storagePrefix  = "/artifactory/api/storage/"
	downloadPrefix = "/artifactory/"
)

// fakeRepo serves files and their storage metadata the way the REST API
// lays them out.
type fakeRepo struct {
	mu        sync.Mutex
	files     map[string][]byte
	badSHA256 map[string]bool
	sizeDelta map[string]int
	hits      map[string]int
}

func newFakeRepo(files map[string][]byte) *fakeRepo {
	return &fakeRepo{files: files, badSHA256: map[string]bool{}, sizeDelta: map[string]int{}, hits: map[string]int{}}
}

func (f *fakeRepo) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.hits[r.URL.Path]++
	f.mu.Unlock()

	if strings.HasPrefix(r.URL.Path, storagePrefix) {
		p := strings.TrimPrefix(r.URL.Path, storagePrefix)
		data, ok := f.files[p]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/vnd.org.jfrog.artifactory.storage.FileInfo+json")
		io.WriteString(w, f.fileInfo(r, p, data))
		return
	}

	p := strings.TrimPrefix(r.URL.Path, downloadPrefix)
	data, ok := f.files[p]
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Write(data)
}

func (f *fakeRepo) fileInfo(r *http.Request, p string, data []byte) string {
	m := md5.Sum(data)
	s1 := sha1.Sum(data)
	s256 := sha256.Sum256(data)
	sha := hex.EncodeToString(s256[:])
	if f.badSHA256[p] {
		sha = strings.Repeat("00", sha256.Size)
	}
	origin := "http://" + r.Host
	repo, rest, _ := strings.Cut(p, "/")
	return fmt.Sprintf(`{
  "uri": "%[1]s/artifactory/api/storage/%[2]s",
  "downloadUri": "%[1]s/artifactory/%[2]s",
  "repo": "%[3]s",
  "path": "/%[4]s",
  "created": "2024-03-01T10:00:00.000Z",
  "createdBy": "admin",
  "lastModified": "2024-03-01T10:00:00.000Z",
  "modifiedBy": "admin",
  "lastUpdated": "2024-03-01T10:00:00.000Z",
  "size": "%[5]d",
  "mimeType": "application/octet-stream",
  "checksums": {"md5": "%[6]s", "sha1": "%[7]s", "sha256": "%[8]s"}
}`, origin, p, repo, rest, len(data)+f.sizeDelta[p], hex.EncodeToString(m[:]), hex.EncodeToString(s1[:]), sha)
}

func (f *fakeRepo) hitCount(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[path]
}

func newTestClient(t *testing.T, h http.Handler) *artifactory.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return artifactory.New(srv.URL, artifactory.WithHTTPClient(srv.Client()))
}

func TestFetch(t *testing.T) {
	files := map[string][]byte{
		"generic-local/a.bin":     bytes.Repeat([]byte("a"), 100),
		"generic-local/dir/b.bin": bytes.Repeat([]byte("b"), 70000),
		"generic-local/c.txt":     []byte("hello"),
	}
	repo := newFakeRepo(files)
	client := newTestClient(t, repo)
	dest := filepath.Join(t.TempDir(), "out")

	paths := []artifactory.Path{"generic-local/a.bin", "generic-local/dir/b.bin", "generic-local/c.txt"}
	results, err := Fetch(context.Background(), client, paths, dest, Options{Workers: 2, Verify: true, Output: io.Discard})
	require.NoError(t, err)
	require.Len(t, results, len(paths))

	for i, r := range results {
		assert.Equal(t, paths[i], r.Path, "results keep input order")
		assert.NoError(t, r.Err)
		assert.True(t, r.Verified, r.Path)
		assert.NotEmpty(t, r.JobID)
		assert.Equal(t, filepath.Join(dest, r.Path.Base()), r.File)
		assert.Equal(t, uint64(len(files[r.Path.String()])), r.Bytes)
		require.NotNil(t, r.Info)

		got, err := os.ReadFile(r.File)
		require.NoError(t, err)
		assert.Equal(t, files[r.Path.String()], got)
	}
	assert.NotEqual(t, results[0].JobID, results[1].JobID)
}

func TestFetchWithoutVerifySkipsMetadata(t *testing.T) {
	repo := newFakeRepo(map[string][]byte{"generic-local/a.bin": []byte("data")})
	client := newTestClient(t, repo)

	results, err := Fetch(context.Background(), client, []artifactory.Path{"generic-local/a.bin"}, t.TempDir(), Options{Output: io.Discard})
	require.NoError(t, err)
	assert.False(t, results[0].Verified)
	assert.Nil(t, results[0].Info)
	assert.Zero(t, repo.hitCount(storagePrefix+"generic-local/a.bin"))
}

func TestFetchReportsFailuresAndFinishesOthers(t *testing.T) {
	repo := newFakeRepo(map[string][]byte{
		"generic-local/good.bin":     []byte("good"),
		"generic-local/tampered.bin": []byte("tampered"),
	})
	repo.badSHA256["generic-local/tampered.bin"] = true
	client := newTestClient(t, repo)

	paths := []artifactory.Path{"generic-local/good.bin", "generic-local/tampered.bin", "generic-local/missing.bin"}
	results, err := Fetch(context.Background(), client, paths, t.TempDir(), Options{Workers: 3, Verify: true, Output: io.Discard})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 of 3 downloads failed")

	assert.NoError(t, results[0].Err)
	assert.True(t, results[0].Verified)

	var mm *verify.MismatchError
	require.ErrorAs(t, results[1].Err, &mm)
	assert.Equal(t, "SHA256", mm.Algorithm)
	assert.ErrorAs(t, err, &mm)

	assert.True(t, artifactory.IsTransport(results[2].Err))
	assert.Equal(t, http.StatusNotFound, artifactory.StatusCode(results[2].Err))
}

func TestFetchSkipExisting(t *testing.T) {
	repo := newFakeRepo(map[string][]byte{
		"generic-local/present.bin": []byte("remote"),
		"generic-local/empty.bin":   []byte("remote"),
	})
	client := newTestClient(t, repo)
	dest := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dest, "present.bin"), []byte("local"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dest, "empty.bin"), nil, 0644))

	paths := []artifactory.Path{"generic-local/present.bin", "generic-local/empty.bin"}
	results, err := Fetch(context.Background(), client, paths, dest, Options{SkipExisting: true, Output: io.Discard})
	require.NoError(t, err)

	assert.True(t, results[0].Skipped)
	assert.Zero(t, repo.hitCount(downloadPrefix+"generic-local/present.bin"))
	got, _ := os.ReadFile(filepath.Join(dest, "present.bin"))
	assert.Equal(t, "local", string(got))

	assert.False(t, results[1].Skipped, "zero-size files are downloaded again")
	got, _ = os.ReadFile(filepath.Join(dest, "empty.bin"))
	assert.Equal(t, "remote", string(got))
}

func TestFetchDecompress(t *testing.T) {
	plain := []byte(strings.Repeat("line of text\n", 500))
	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	_, err := zw.Write(plain)
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	repo := newFakeRepo(map[string][]byte{"generic-local/notes.txt.gz": gz.Bytes()})
	client := newTestClient(t, repo)
	dest := t.TempDir()

	results, err := Fetch(context.Background(), client, []artifactory.Path{"generic-local/notes.txt.gz"}, dest,
		Options{Verify: true, Decompress: true, Output: io.Discard})
	require.NoError(t, err)
	assert.True(t, results[0].Verified, "checksums apply to the compressed artifact")
	assert.Equal(t, filepath.Join(dest, "notes.txt"), results[0].File)

	got, err := os.ReadFile(results[0].File)
	require.NoError(t, err)
	assert.Equal(t, plain, got)
}

func TestFetchSignature(t *testing.T) {
	payload := []byte("signed artifact")
	signer, err := openpgp.NewEntity("Release", "", "release@example.com", &packet.Config{Algorithm: packet.PubKeyAlgoEdDSA})
	require.NoError(t, err)

	var sig bytes.Buffer
	require.NoError(t, openpgp.ArmoredDetachSign(&sig, signer, bytes.NewReader(payload), nil))

	var key bytes.Buffer
	aw, err := armor.Encode(&key, openpgp.PublicKeyType, nil)
	require.NoError(t, err)
	require.NoError(t, signer.Serialize(aw))
	require.NoError(t, aw.Close())
	keyFile := filepath.Join(t.TempDir(), "release.pub")
	require.NoError(t, os.WriteFile(keyFile, key.Bytes(), 0644))

	repo := newFakeRepo(map[string][]byte{
		"generic-local/app.bin":     payload,
		"generic-local/app.bin.asc": sig.Bytes(),
		"generic-local/bad.bin":     []byte("other content"),
		"generic-local/bad.bin.asc": sig.Bytes(),
		"generic-local/nosig.bin":   payload,
	})
	client := newTestClient(t, repo)

	paths := []artifactory.Path{"generic-local/app.bin", "generic-local/bad.bin", "generic-local/nosig.bin"}
	results, err := Fetch(context.Background(), client, paths, t.TempDir(), Options{KeyFile: keyFile, Output: io.Discard})
	require.Error(t, err)

	assert.NoError(t, results[0].Err)
	assert.True(t, results[0].Signed)
	assert.Error(t, results[1].Err)
	assert.False(t, results[1].Signed)
	assert.True(t, artifactory.IsTransport(results[2].Err), "missing signature is a download failure")
}

func TestFetchCanceledContext(t *testing.T) {
	repo := newFakeRepo(map[string][]byte{"generic-local/a.bin": []byte("data")})
	client := newTestClient(t, repo)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := Fetch(ctx, client, []artifactory.Path{"generic-local/a.bin"}, t.TempDir(), Options{Output: io.Discard})
	require.Error(t, err)
	assert.True(t, artifactory.IsTransport(results[0].Err))
}

func TestFetchBadDestDir(t *testing.T) {
	parent := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(parent, []byte("x"), 0644))

	client := artifactory.New("http://127.0.0.1:0")
	_, err := Fetch(context.Background(), client, []artifactory.Path{"r/a"}, filepath.Join(parent, "sub"), Options{Output: io.Discard})
	assert.Error(t, err)
}

func TestPullOne(t *testing.T) {
	data := bytes.Repeat([]byte("z"), 100000)
	repo := newFakeRepo(map[string][]byte{"generic-local/big.bin": data})
	client := newTestClient(t, repo)
	dest := filepath.Join(t.TempDir(), "big.bin")

	bar := NewByteBar(io.Discard, "big.bin")
	require.NoError(t, PullOne(context.Background(), client, "generic-local/big.bin", dest, bar))
	assert.Equal(t, int64(len(data)), bar.GetMax64())

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	require.NoError(t, PullOne(context.Background(), client, "generic-local/big.bin", dest+".2", nil))

	err = PullOne(context.Background(), client, "generic-local/none.bin", dest+".3", NewByteBar(io.Discard, "none"))
	assert.True(t, artifactory.IsTransport(err))
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		name  string
		dp    artifactory.DownloadProgress
		total uint64
		want  string
	}{
		{"no size known", artifactory.DownloadProgress{BytesDownloaded: 10}, 0, "a.bin 10 B"},
		{"content length", artifactory.DownloadProgress{ExpectedBytesDownloaded: 2048, BytesDownloaded: 1024}, 0, "a.bin 1.0 KiB/2.0 KiB"},
		{"metadata size fills in", artifactory.DownloadProgress{BytesDownloaded: 1536}, 5 << 20, "a.bin 1.5 KiB/5.0 MiB"},
		{"content length wins", artifactory.DownloadProgress{ExpectedBytesDownloaded: 2048, BytesDownloaded: 0}, 3 << 30, "a.bin 0 B/2.0 KiB"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, describe("a.bin", tt.dp, tt.total))
		})
	}
}

func TestFetchDuplicateBaseNames(t *testing.T) {
	first := bytes.Repeat([]byte("A"), 1000)
	repo := newFakeRepo(map[string][]byte{
		"generic-local/a/x.bin": first,
		"generic-local/b/x.bin": bytes.Repeat([]byte("B"), 10),
	})
	client := newTestClient(t, repo)
	dest := t.TempDir()

	paths := []artifactory.Path{"generic-local/a/x.bin", "generic-local/b/x.bin"}
	results, err := Fetch(context.Background(), client, paths, dest, Options{Workers: 4, Output: io.Discard})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 downloads failed")
	require.Len(t, results, 2)

	assert.NoError(t, results[0].Err)
	assert.Equal(t, uint64(len(first)), results[0].Bytes)
	assert.ErrorIs(t, results[1].Err, ErrDuplicateName)
	assert.Equal(t, paths[1], results[1].Path)
	assert.NotEmpty(t, results[1].JobID)
	assert.Empty(t, results[1].File)

	got, err := os.ReadFile(filepath.Join(dest, "x.bin"))
	require.NoError(t, err)
	assert.Equal(t, first, got)
	assert.Zero(t, repo.hitCount(downloadPrefix+"generic-local/b/x.bin"))
}

func TestFetchSizeMismatch(t *testing.T) {
	repo := newFakeRepo(map[string][]byte{"generic-local/a.bin": []byte("payload")})
	repo.sizeDelta["generic-local/a.bin"] = 5
	client := newTestClient(t, repo)

	results, err := Fetch(context.Background(), client, []artifactory.Path{"generic-local/a.bin"}, t.TempDir(), Options{Verify: true, Output: io.Discard})
	require.Error(t, err)
	require.Error(t, results[0].Err)
	assert.Contains(t, results[0].Err.Error(), "size mismatch")
	assert.False(t, results[0].Verified)
}

func TestFetchRejectsUnsafeNames(t *testing.T) {
	repo := newFakeRepo(map[string][]byte{})
	client := newTestClient(t, repo)

	results, err := Fetch(context.Background(), client, []artifactory.Path{"generic-local/.."}, t.TempDir(), Options{Output: io.Discard})
	require.Error(t, err)
	assert.Error(t, results[0].Err)
	assert.Empty(t, results[0].File)
	assert.Zero(t, repo.hitCount(downloadPrefix+"generic-local/.."))
}

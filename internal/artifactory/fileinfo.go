package artifactory

import (
	"context"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"time"

	"github.com/open-edge-platform/artifactory-fetch/internal/config/validate"
)

//go:embed fileinfo.schema.json
var fileInfoSchemaJSON []byte

const fileInfoSchemaName = "fileinfo.schema.json"

var fileInfoValidator = validate.NewValidator(fileInfoSchemaName, fileInfoSchemaJSON)

// FileInfo is the metadata the storage API reports for one artifact at the
// time of the query. Every call to Client.FileInfo returns a fresh value.
type FileInfo struct {
	URI               URL                `json:"uri"`
	DownloadURI       URL                `json:"downloadUri"`
	Repo              string             `json:"repo"`
	Path              string             `json:"path"`
	RemoteURL         *URL               `json:"remoteUrl,omitempty"`
	Created           time.Time          `json:"created"`
	CreatedBy         string             `json:"createdBy"`
	LastModified      time.Time          `json:"lastModified"`
	ModifiedBy        string             `json:"modifiedBy"`
	LastUpdated       time.Time          `json:"lastUpdated"`
	Size              string             `json:"size"`
	MimeType          string             `json:"mimeType"`
	Checksums         Checksums          `json:"checksums"`
	OriginalChecksums *OriginalChecksums `json:"originalChecksums,omitempty"`
}

// SizeBytes parses the textual size reported by the server.
func (fi *FileInfo) SizeBytes() (int64, error) {
	n, err := strconv.ParseInt(fi.Size, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing size %q: %w", fi.Size, err)
	}
	return n, nil
}

// Checksums are always sent by the server.
type Checksums struct {
	MD5    HexBytes `json:"md5"`
	SHA1   HexBytes `json:"sha1"`
	SHA256 HexBytes `json:"sha256"`
}

// OriginalChecksums are only sent when the artifact was deployed together
// with client-side checksums. They are kept as reported, not decoded.
type OriginalChecksums struct {
	MD5    *string `json:"md5,omitempty"`
	SHA1   *string `json:"sha1,omitempty"`
	SHA256 *string `json:"sha256,omitempty"`
}

// HexBytes is a digest carried as hexadecimal text on the wire.
type HexBytes []byte

func (h HexBytes) String() string {
	return hex.EncodeToString(h)
}

func (h HexBytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(hex.EncodeToString(h))
}

func (h *HexBytes) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("invalid hex digest %q: %w", s, err)
	}
	*h = b
	return nil
}

// URL is an absolute URL carried as a JSON string.
type URL struct {
	url.URL
}

func (u URL) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.String())
}

func (u *URL) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := url.Parse(s)
	if err != nil {
		return err
	}
	if !parsed.IsAbs() {
		return fmt.Errorf("url %q is not absolute", s)
	}
	u.URL = *parsed
	return nil
}

// FileInfo fetches the metadata of the artifact at p from the storage API.
// The request is attempted once; decode failures are transport errors.
func (c *Client) FileInfo(ctx context.Context, p Path) (*FileInfo, error) {
	const op = "file info"

	resp, err := c.get(ctx, op, c.storageURL(p))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(op, fmt.Errorf("reading response body: %w", err))
	}

	info, err := decodeFileInfo(data)
	if err != nil {
		return nil, transportError(op, err)
	}
	return info, nil
}

func decodeFileInfo(data []byte) (*FileInfo, error) {
	if err := fileInfoValidator.ValidateJSON(data); err != nil {
		return nil, fmt.Errorf("file info response rejected: %w", err)
	}

	var info FileInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("decoding file info: %w", err)
	}
	return &info, nil
}

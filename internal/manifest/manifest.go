package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/open-edge-platform/artifactory-fetch/internal/artifactory"
	"github.com/open-edge-platform/artifactory-fetch/internal/config/version"
	"github.com/open-edge-platform/artifactory-fetch/internal/utils/logger"
	"github.com/open-edge-platform/artifactory-fetch/internal/utils/security"
)

// Constants used for SPDX metadata generation
const (
	SPDXVersion       = "SPDX-2.3"
	SPDXDataLicense   = "CC0-1.0"
	SPDXDocumentID    = "SPDXRef-DOCUMENT"
	SPDXNamespaceBase = "https://spdx.openedge.dev/docs"
	NoAssertion       = "NOASSERTION"
)

var DefaultSPDXFile = "spdx_manifest.json"

// SPDXDocument holds the SPDX document header and its packages.
type SPDXDocument struct {
	SPDXVersion       string        `json:"spdxVersion"`
	DataLicense       string        `json:"dataLicense"`
	SPDXID            string        `json:"SPDXID"`
	DocumentName      string        `json:"name"`
	DocumentNamespace string        `json:"documentNamespace"`
	CreationInfo      CreationInfo  `json:"creationInfo"`
	Packages          []SPDXPackage `json:"packages"`
}

type CreationInfo struct {
	Created  string   `json:"created"`
	Creators []string `json:"creators"`
}

// SPDXPackage describes one pulled artifact.
type SPDXPackage struct {
	SPDXID           string         `json:"SPDXID"`
	Name             string         `json:"name"`
	PackageFileName  string         `json:"packageFileName,omitempty"`
	DownloadLocation string         `json:"downloadLocation"`
	FilesAnalyzed    bool           `json:"filesAnalyzed"`
	LicenseDeclared  string         `json:"licenseDeclared"`
	LicenseConcluded string         `json:"licenseConcluded"`
	Supplier         string         `json:"supplier,omitempty"`
	Checksum         []SPDXChecksum `json:"checksum,omitempty"`
	Comment          string         `json:"comment,omitempty"`
}

type SPDXChecksum struct {
	Algorithm     string `json:"algorithm"`
	ChecksumValue string `json:"checksumValue"`
}

// Entry is one artifact to record. Info is nil when metadata was not
// fetched for it.
type Entry struct {
	Path      artifactory.Path
	LocalFile string
	Info      *artifactory.FileInfo
}

// Build assembles the SPDX document for entries.
func Build(entries []Entry, now time.Time) SPDXDocument {
	doc := SPDXDocument{
		SPDXVersion:       SPDXVersion,
		DataLicense:       SPDXDataLicense,
		SPDXID:            SPDXDocumentID,
		DocumentName:      fmt.Sprintf("%s-%s", version.Toolname, now.UTC().Format("20060102T150405Z")),
		DocumentNamespace: generateDocumentNamespace(),
		CreationInfo: CreationInfo{
			Created: now.UTC().Format("2006-01-02T15:04:05Z"),
			Creators: []string{
				fmt.Sprintf("Tool: %s %s", version.Toolname, version.Version),
				fmt.Sprintf("Organization: %s", version.Organization),
			},
		},
		Packages: make([]SPDXPackage, 0, len(entries)),
	}

	for i, e := range entries {
		pkg := SPDXPackage{
			SPDXID:           fmt.Sprintf("SPDXRef-Package-%d-%s", i+1, spdxIDSafe(e.Path.Base())),
			Name:             e.Path.Base(),
			PackageFileName:  e.Path.String(),
			DownloadLocation: NoAssertion,
			LicenseDeclared:  NoAssertion,
			LicenseConcluded: NoAssertion,
			Supplier:         NoAssertion,
		}
		if e.LocalFile != "" {
			pkg.Comment = "Local copy: " + e.LocalFile
		}
		if e.Info != nil {
			pkg.DownloadLocation = e.Info.DownloadURI.String()
			pkg.Supplier = spdxSupplier(e.Info.CreatedBy)
			pkg.Checksum = checksums(e.Info.Checksums)
		}
		doc.Packages = append(doc.Packages, pkg)
	}
	return doc
}

// WriteSPDXToFile writes the SPDX manifest for entries to outFile.
func WriteSPDXToFile(entries []Entry, outFile string) error {
	log := logger.Logger()
	log.Infof("Generating SPDX manifest for %d artifacts", len(entries))

	if err := os.MkdirAll(filepath.Dir(outFile), 0700); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	jsonData, err := json.MarshalIndent(Build(entries, time.Now()), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal SPDX JSON: %w", err)
	}

	if err := security.SafeWriteFile(outFile, jsonData, 0644, security.RejectSymlinks); err != nil {
		return fmt.Errorf("failed to create SPDX output file: %w", err)
	}
	log.Infof("SPDX manifest written to %s", outFile)
	return nil
}

func checksums(c artifactory.Checksums) []SPDXChecksum {
	var out []SPDXChecksum
	for _, cs := range []struct {
		algo  string
		value artifactory.HexBytes
	}{
		{"SHA256", c.SHA256},
		{"SHA1", c.SHA1},
		{"MD5", c.MD5},
	} {
		if len(cs.value) > 0 {
			out = append(out, SPDXChecksum{Algorithm: cs.algo, ChecksumValue: cs.value.String()})
		}
	}
	return out
}

func generateDocumentNamespace() string {
	return fmt.Sprintf("%s/%s-%s", SPDXNamespaceBase, version.Toolname, uuid.New().String())
}

// spdxIDSafe maps s onto the SPDX idstring alphabet [A-Za-z0-9.-].
func spdxIDSafe(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			return r
		default:
			return '-'
		}
	}, s)
}

// spdxSupplier uses the Person form for "Name <email>" and the
// Organization form otherwise.
func spdxSupplier(origin string) string {
	o := strings.TrimSpace(origin)
	if o == "" {
		return NoAssertion
	}
	if lt := strings.Index(o, "<"); lt > 0 {
		if gt := strings.Index(o[lt:], ">"); gt > 1 {
			name := strings.TrimSpace(o[:lt])
			email := strings.TrimSpace(o[lt+1 : lt+gt])
			if name != "" && email != "" {
				return fmt.Sprintf("Person: %s (%s)", name, email)
			}
		}
	}
	return fmt.Sprintf("Person: %s", o)
}

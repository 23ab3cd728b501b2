// Package verify checks pulled artifacts against the digests published by
// the storage API and against detached OpenPGP signatures.
package verify

import (
	"bytes"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/packet"
	"github.com/open-edge-platform/artifactory-fetch/internal/artifactory"
	"github.com/open-edge-platform/artifactory-fetch/internal/utils/logger"
	"github.com/open-edge-platform/artifactory-fetch/internal/utils/security"
)

// ErrNoChecksums is returned when the metadata carries no digest at all.
var ErrNoChecksums = errors.New("no checksums published")

// MismatchError reports a digest that does not match the file content.
type MismatchError struct {
	File      string
	Algorithm string
	Expected  artifactory.HexBytes
	Actual    artifactory.HexBytes
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("%s checksum mismatch for %s: expected %s, got %s",
		e.Algorithm, e.File, e.Expected, e.Actual)
}

// Checksums hashes file once and compares every non-empty digest in want.
func Checksums(file string, want artifactory.Checksums) error {
	log := logger.Logger()

	if len(want.MD5) == 0 && len(want.SHA1) == 0 && len(want.SHA256) == 0 {
		return ErrNoChecksums
	}

	got, err := Compute(file)
	if err != nil {
		return err
	}

	for _, c := range []struct {
		algo           string
		expected, have artifactory.HexBytes
	}{
		{"SHA256", want.SHA256, got.SHA256},
		{"SHA1", want.SHA1, got.SHA1},
		{"MD5", want.MD5, got.MD5},
	} {
		if len(c.expected) == 0 {
			continue
		}
		if !bytes.Equal(c.expected, c.have) {
			log.Errorf("%s checksum mismatch for %s: expected %s, got %s", c.algo, file, c.expected, c.have)
			return &MismatchError{File: file, Algorithm: c.algo, Expected: c.expected, Actual: c.have}
		}
	}

	log.Debugf("checksums verified for %s", file)
	return nil
}

// Compute returns the MD5, SHA1 and SHA256 digests of file.
func Compute(file string) (artifactory.Checksums, error) {
	f, err := os.Open(file)
	if err != nil {
		return artifactory.Checksums{}, fmt.Errorf("failed to open %s: %w", file, err)
	}
	defer f.Close()

	hashes := []hash.Hash{md5.New(), sha1.New(), sha256.New()}
	w := io.MultiWriter(hashes[0], hashes[1], hashes[2])
	if _, err := io.Copy(w, f); err != nil {
		return artifactory.Checksums{}, fmt.Errorf("failed to hash %s: %w", file, err)
	}

	return artifactory.Checksums{
		MD5:    hashes[0].Sum(nil),
		SHA1:   hashes[1].Sum(nil),
		SHA256: hashes[2].Sum(nil),
	}, nil
}

// Signature checks sigFile as a detached signature of file made by a key in
// keyFile. Keys and signatures may be armored or binary.
func Signature(file, sigFile, keyFile string) error {
	log := logger.Logger()

	keyringBytes, err := security.SafeReadFile(keyFile, security.ResolveSymlinks)
	if err != nil {
		return fmt.Errorf("failed to read public key: %w", err)
	}
	signature, err := os.ReadFile(sigFile)
	if err != nil {
		return fmt.Errorf("failed to read signature: %w", err)
	}

	keyring, err := openpgp.ReadArmoredKeyRing(bytes.NewReader(keyringBytes))
	if err != nil {
		log.Debugf("public key is not armored, trying binary format: %v", err)
		keyring, err = openpgp.ReadKeyRing(bytes.NewReader(keyringBytes))
		if err != nil {
			return fmt.Errorf("failed to parse public key (tried both armored and binary formats): %w", err)
		}
	}

	check := openpgp.CheckDetachedSignature
	if bytes.Contains(signature, []byte("-----BEGIN PGP SIGNATURE-----")) {
		check = openpgp.CheckArmoredDetachedSignature
	}

	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", file, err)
	}
	defer f.Close()

	signer, err := check(keyring, f, bytes.NewReader(signature), &packet.Config{})
	if err != nil {
		return fmt.Errorf("signature verification failed for %s: %w", file, err)
	}

	if id := signer.PrimaryIdentity(); id != nil {
		log.Infof("signature on %s verified (signed by %s)", file, id.Name)
	} else {
		log.Infof("signature on %s verified", file)
	}
	return nil
}

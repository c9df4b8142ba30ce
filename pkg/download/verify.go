package download

import (
	"crypto/md5" //nolint:gosec // MD5 is the catalogue's published checksum algorithm
	"encoding/hex"
	"hash"
	"io"
	"os"
	"strings"

	pkgerrors "github.com/glorpus-work/cdse/pkg/errors"
	"lukechampine.com/blake3"
)

// Checksum algorithms published in product descriptors, in preference order.
const (
	AlgorithmBLAKE3 = "BLAKE3"
	AlgorithmMD5    = "MD5"
)

// Verify computes the strongest supported hash over the file and compares it
// to the expected digest. BLAKE3 is preferred over MD5 when both are
// published. A mismatch fails with ErrIntegrity; a descriptor carrying only
// unsupported algorithms fails permanently as well, since the file can never
// be verified.
func Verify(path string, checksums []Checksum) error {
	expected, hasher, err := selectChecksum(checksums)
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return pkgerrors.Wrap(err, "open for checksum")
	}
	defer func() { _ = f.Close() }()

	if _, err := io.Copy(hasher, f); err != nil {
		return pkgerrors.Wrap(err, "hashing")
	}

	got := hex.EncodeToString(hasher.Sum(nil))
	if got != normalizeHex(expected) {
		return pkgerrors.Wrapf(pkgerrors.ErrIntegrity, "expected %s, got %s", normalizeHex(expected), got)
	}
	return nil
}

func selectChecksum(checksums []Checksum) (string, hash.Hash, error) {
	byAlgorithm := make(map[string]string, len(checksums))
	for _, c := range checksums {
		byAlgorithm[strings.ToUpper(c.Algorithm)] = c.Value
	}
	if value, ok := byAlgorithm[AlgorithmBLAKE3]; ok {
		return value, blake3.New(32, nil), nil
	}
	if value, ok := byAlgorithm[AlgorithmMD5]; ok {
		return value, md5.New(), nil //nolint:gosec
	}
	return "", nil, pkgerrors.Wrapf(pkgerrors.ErrDownloadFailed,
		"no support for checksums available in product: %v", algorithms(checksums))
}

func algorithms(checksums []Checksum) []string {
	out := make([]string, 0, len(checksums))
	for _, c := range checksums {
		out = append(out, c.Algorithm)
	}
	return out
}

func normalizeHex(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

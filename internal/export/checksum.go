package export

import (
	"crypto/md5" //nolint:gosec
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const (
	md5SumsFile    = "MD5SUMS"
	sha256SumsFile = "SHA256SUMS"
)

type checksumAlgorithm struct {
	file    string
	newHash func() hash.Hash
}

var checksumAlgorithms = []checksumAlgorithm{
	{file: md5SumsFile, newHash: md5.New},
	{file: sha256SumsFile, newHash: sha256.New},
}

// writeChecksums writes one sums file per algorithm into dir, covering bundles by base name.
// It returns the paths of the sums files.
func writeChecksums(dir string, bundles []string) ([]string, error) {
	digests := make(map[string][]string, len(checksumAlgorithms))
	for _, bundle := range bundles {
		sums, err := digestFile(bundle)
		if err != nil {
			return nil, err
		}
		for index, algorithm := range checksumAlgorithms {
			line := fmt.Sprintf("%s *%s\n", sums[index], filepath.Base(bundle))
			digests[algorithm.file] = append(digests[algorithm.file], line)
		}
	}

	paths := make([]string, 0, len(checksumAlgorithms))
	for _, algorithm := range checksumAlgorithms {
		path := filepath.Join(dir, algorithm.file)
		if err := os.WriteFile(path, []byte(strings.Join(digests[algorithm.file], "")), 0o644); err != nil {
			return nil, fmt.Errorf("export: write %s: %w", algorithm.file, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func digestFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("export: open %s for checksum: %w", path, err)
	}
	defer file.Close()

	hashes := make([]hash.Hash, len(checksumAlgorithms))
	writers := make([]io.Writer, len(checksumAlgorithms))
	for index, algorithm := range checksumAlgorithms {
		hashes[index] = algorithm.newHash()
		writers[index] = hashes[index]
	}
	if _, err := io.Copy(io.MultiWriter(writers...), file); err != nil {
		return nil, fmt.Errorf("export: checksum %s: %w", path, err)
	}
	sums := make([]string, len(hashes))
	for index, h := range hashes {
		sums[index] = hex.EncodeToString(h.Sum(nil))
	}
	return sums, nil
}

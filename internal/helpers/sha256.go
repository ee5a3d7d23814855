package helpers

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
)

func SHA256(input string) string {
	return SHA256Bytes([]byte(input))
}

func SHA256Bytes(input []byte) string {
	hash := sha256.Sum256(input)
	return hex.EncodeToString(hash[:])
}

func SHA256Reader(reader io.Reader) (string, error) {
	hash := sha256.New()
	_, err := io.Copy(hash, reader)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}

// Fingerprint hashes an ordered list of parts. Each part is length-prefixed so that
// ("ab", "c") and ("a", "bc") produce different digests.
func Fingerprint(parts ...string) string {
	hash := sha256.New()
	var size [8]byte
	for _, p := range parts {
		n := uint64(len(p))
		for i := range size {
			size[i] = byte(n >> (8 * i))
		}
		hash.Write(size[:])
		hash.Write([]byte(p))
	}
	return hex.EncodeToString(hash.Sum(nil))
}

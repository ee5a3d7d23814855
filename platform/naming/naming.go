// Package naming derives entry-point names from expression text.
package naming

import (
	"crypto/sha1" //nolint:gosec // identifier derivation, not a security boundary
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/robbyt/go-polyexpr/platform"
)

const (
	// MethodPrefix starts every generated entry-point name.
	MethodPrefix = "Method"

	Namespace = "CompiledExpressions"
	ClassName = "CompiledExpressions"
	TypeName  = Namespace + "." + ClassName
)

// MethodName returns "Method" followed by the upper-case hex SHA-1 digest of the expression's
// UTF-8 bytes. The same text always yields the same name, in any process.
func MethodName(expression string) (string, error) {
	if strings.TrimSpace(expression) == "" {
		return "", fmt.Errorf("%w: expression is empty", platform.ErrInvalidInput)
	}
	sum := sha1.Sum([]byte(expression)) //nolint:gosec
	return MethodPrefix + strings.ToUpper(hex.EncodeToString(sum[:])), nil
}

// IsMethodName reports whether name has the shape produced by MethodName.
func IsMethodName(name string) bool {
	digest, ok := strings.CutPrefix(name, MethodPrefix)
	if !ok || len(digest) != sha1.Size*2 {
		return false
	}
	for _, r := range digest {
		if (r < '0' || r > '9') && (r < 'A' || r > 'F') {
			return false
		}
	}
	return true
}

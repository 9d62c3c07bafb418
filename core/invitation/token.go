package invitation

import (
	"crypto/rand"
	"math/big"
	"strings"

	"github.com/trezcool/jumuiya/core/directory"
)

const (
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	familyPrefix = "FAM"
)

var alphabetLen = big.NewInt(int64(len(codeAlphabet)))

// GenerateCode returns a random code for the given target type.
// Classroom codes are `length` characters long; family codes read FAM-XXXXXX-XXXXXX,
// with two groups of length-2 characters.
func GenerateCode(tt directory.TargetType, length int) (string, error) {
	if tt != directory.TargetFamily {
		return randomString(length)
	}

	group := length - 2
	if group < 4 {
		group = 4
	}
	first, err := randomString(group)
	if err != nil {
		return "", err
	}
	second, err := randomString(group)
	if err != nil {
		return "", err
	}
	return strings.Join([]string{familyPrefix, first, second}, "-"), nil
}

func randomString(n int) (string, error) {
	var sb strings.Builder
	sb.Grow(n)
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			return "", err
		}
		sb.WriteByte(codeAlphabet[idx.Int64()])
	}
	return sb.String(), nil
}

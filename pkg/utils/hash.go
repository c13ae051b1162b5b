package utils

import (
	"crypto/md5"
	"encoding/hex"
)

// HashString returns the hex md5 digest of input. Used for cache keys, not
// for anything security sensitive.
func HashString(input string) string {
	sum := md5.Sum([]byte(input))
	return hex.EncodeToString(sum[:])
}

package session

import (
	"math/rand/v2"
	"strconv"
	"strings"
)

// Code is a short numeric session identifier, e.g. "042137".
type Code string

// GenerateCode samples a fixed-width numeric code. Uniqueness against
// live sessions is the caller's duty (retry on collision). The code
// space has no enforced bound on concurrent sessions; at classroom
// scale collisions stay rare.
func GenerateCode(width int) Code {
	max := 1
	for i := 0; i < width; i++ {
		max *= 10
	}
	n := strconv.Itoa(rand.IntN(max))
	if pad := width - len(n); pad > 0 {
		n = strings.Repeat("0", pad) + n
	}
	return Code(n)
}

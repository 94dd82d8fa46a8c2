package users

import (
	"fmt"
	"strconv"
	"strings"
)

// NextUsername returns prefix followed by the lowest counter >= 1 not present
// in taken or skip, zero-padded to width.
func NextUsername(prefix string, width int, taken []string, skip map[string]bool) string {
	used := make(map[int]bool, len(taken))
	for _, name := range taken {
		if n, ok := usernameCounter(prefix, name); ok {
			used[n] = true
		}
	}
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s%0*d", prefix, width, n)
		if !used[n] && !skip[candidate] {
			return candidate
		}
	}
}

func usernameCounter(prefix, name string) (int, bool) {
	if !strings.HasPrefix(name, prefix) {
		return 0, false
	}
	digits := name[len(prefix):]
	if digits == "" {
		return 0, false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// ParsePageToken decodes an opaque page token into an offset. Empty or
// malformed tokens decode to offset zero.
func ParsePageToken(token string) int {
	if token == "" || !strings.HasPrefix(token, "o=") {
		return 0
	}
	n, err := strconv.Atoi(token[len("o="):])
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// NextPageToken encodes the offset of the next page, or empty when the
// offset reaches the end of the result set.
func NextPageToken(offset, limit, total int) string {
	next := offset + limit
	if next >= total {
		return ""
	}
	return fmt.Sprintf("o=%d", next)
}

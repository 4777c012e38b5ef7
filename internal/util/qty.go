package util

import (
	"errors"
	"strconv"
	"strings"
	"unicode"
)

var ErrNoQuantity = errors.New("no leading quantity")

// LeadingQuantity parses the integer at the start of a raw quantity token
// such as "5 units" or "12kg". Only the part before the first whitespace is
// considered, and within it only the leading digits.
func LeadingQuantity(raw string) (int, error) {
	head := strings.TrimSpace(raw)
	if i := strings.IndexFunc(head, unicode.IsSpace); i >= 0 {
		head = head[:i]
	}
	end := 0
	for end < len(head) && head[end] >= '0' && head[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, ErrNoQuantity
	}
	qty, err := strconv.Atoi(head[:end])
	if err != nil {
		return 0, err
	}
	return qty, nil
}

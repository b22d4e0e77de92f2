package engine

import (
	"strconv"
	"strings"
)

// ParseSize parses a size string like "512x512" into (width, height).
// The separator is case-insensitive; both parts must be positive integers.
func ParseSize(size string) (int, int, error) {
	parts := strings.Split(strings.ToLower(size), "x")
	if len(parts) != 2 {
		return 0, 0, ErrInvalidSize(size)
	}
	width, err := strconv.Atoi(parts[0])
	if err != nil || width <= 0 {
		return 0, 0, ErrInvalidSize(size)
	}
	height, err := strconv.Atoi(parts[1])
	if err != nil || height <= 0 {
		return 0, 0, ErrInvalidSize(size)
	}
	return width, height, nil
}

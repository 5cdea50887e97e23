// Package utils holds small helpers shared by the HTTP layer.
package utils

import "strconv"

// AtoiDefault parses s as an int, returning def when s is empty or invalid.
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// Page bounds raw page and page_size query values: page >= 1 and
// 1 <= size <= maxSize, falling back to defSize when size is absent.
func Page(rawPage, rawSize string, defSize, maxSize int) (page, size int) {
	page = max(AtoiDefault(rawPage, 1), 1)
	size = AtoiDefault(rawSize, defSize)
	size = min(max(size, 1), maxSize)
	return page, size
}

// TotalPages returns how many pages of size hold total items.
func TotalPages(total int64, size int) int {
	if size <= 0 || total <= 0 {
		return 0
	}
	return int((total + int64(size) - 1) / int64(size))
}

package textutil

import (
	"hash/crc32"
	"strings"
)

var castagnoliTable = crc32.MakeTable(crc32.Castagnoli)

// SplitLines splits content on "\n", preserving a trailing empty element only
// when content ends with a newline followed by more content; a single
// trailing "\n" does not produce a phantom last line, matching how editors
// present line numbers.
func SplitLines(content string) []string {
	if content == "" {
		return []string{""}
	}

	lines := strings.Split(content, "\n")
	if len(lines) > 1 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	return lines
}

// JoinRange re-joins lines[start:end] (1-based, inclusive) with "\n"
// interior separators and no trailing one, matching crc32cOfRange's input.
func JoinRange(lines []string, start, end int) string {
	if start < 1 {
		start = 1
	}

	if end > len(lines) {
		end = len(lines)
	}

	if start > end {
		return ""
	}

	return strings.Join(lines[start-1:end], "\n")
}

// Crc32cOfRange computes the Castagnoli CRC32C over the UTF-8 bytes of
// lines[start..end] (1-based, inclusive), joined by interior line
// separators but without a trailing one. This is the checksum anchor every
// Line Access Token carries.
func Crc32cOfRange(lines []string, start, end int) uint32 {
	return crc32.Checksum([]byte(JoinRange(lines, start, end)), castagnoliTable)
}

// Crc32cOfString computes the Castagnoli CRC32C over s directly, used when
// the caller already has the exact joined text (e.g. the whole-file snapshot
// comparison in the External Change Tracker).
func Crc32cOfString(s string) uint32 {
	return crc32.Checksum([]byte(s), castagnoliTable)
}

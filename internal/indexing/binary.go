package indexing

import (
	"bytes"
	"errors"
)

// sniffLen is how much of a file is inspected for binary content
const sniffLen = 512

var errBinaryContent = errors.New("binary content")

var binaryMagic = [][]byte{
	{0x1F, 0x8B},             // gzip
	{0x50, 0x4B, 0x03, 0x04}, // zip
	{0x89, 0x50, 0x4E, 0x47}, // png
	{0x7F, 0x45, 0x4C, 0x46}, // elf
	{0xCA, 0xFE, 0xBA, 0xBE}, // java class, mach-o
	{0x77, 0x4F, 0x46, 0x46}, // woff
	{0x77, 0x4F, 0x46, 0x32}, // woff2
}

// looksBinary reports whether content is not source text: a known magic
// number, NUL bytes in more than 1% of the sample, or more than 30% control
// characters. Bytes >= 0x80 are left alone so UTF-8 text passes.
func looksBinary(content []byte) bool {
	sample := content
	if len(sample) > sniffLen {
		sample = sample[:sniffLen]
	}
	if len(sample) == 0 {
		return false
	}
	for _, magic := range binaryMagic {
		if bytes.HasPrefix(sample, magic) {
			return true
		}
	}

	nulls, control := 0, 0
	for _, b := range sample {
		if b == 0 {
			nulls++
		}
		if b < 0x20 && b != '\t' && b != '\n' && b != '\r' {
			control++
		}
	}
	return nulls > len(sample)/100 || control > len(sample)*30/100
}

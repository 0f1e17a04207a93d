// Package jsondoc reads JSON documents that may be stored zstd-compressed.
package jsondoc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// zstd frame magic number (little endian 0xFD2FB528).
var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

var (
	decoderOnce sync.Once
	decoder     *zstd.Decoder
	decoderErr  error
)

func sharedDecoder() (*zstd.Decoder, error) {
	decoderOnce.Do(func() {
		decoder, decoderErr = zstd.NewReader(nil)
	})
	return decoder, decoderErr
}

// ReadFile loads path and unmarshals it into v. Files ending in ".zst", or
// starting with a zstd frame header, are decompressed first.
func ReadFile(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	return Decode(data, strings.HasSuffix(path, ".zst"), v)
}

// Decode unmarshals data into v, decompressing it when compressed is set or
// the payload carries a zstd frame header.
func Decode(data []byte, compressed bool, v interface{}) error {
	if compressed || bytes.HasPrefix(data, zstdMagic) {
		dec, err := sharedDecoder()
		if err != nil {
			return fmt.Errorf("failed to create zstd decoder: %w", err)
		}
		raw, err := dec.DecodeAll(data, nil)
		if err != nil {
			return fmt.Errorf("failed to decompress document: %w", err)
		}
		data = raw
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse document: %w", err)
	}
	return nil
}

package gitsync

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"os"
	"strconv"
	"strings"
)

const (
	pointerVersion = "https://git-lfs.github.com/spec/v1"
	maxPointerSize = 1024
)

// Pointer is the placeholder git-lfs commits instead of the real content.
type Pointer struct {
	OID  string
	Size int64
}

func ParsePointer(data []byte) (Pointer, bool) {
	if len(data) == 0 || len(data) > maxPointerSize {
		return Pointer{}, false
	}
	var p Pointer
	var version bool
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		key, value, found := strings.Cut(line, " ")
		if !found {
			return Pointer{}, false
		}
		switch key {
		case "version":
			version = value == pointerVersion
		case "oid":
			hash, ok := strings.CutPrefix(value, "sha256:")
			if !ok || len(hash) != 64 {
				return Pointer{}, false
			}
			if _, err := hex.DecodeString(hash); err != nil {
				return Pointer{}, false
			}
			p.OID = hash
		case "size":
			size, err := strconv.ParseInt(value, 10, 64)
			if err != nil || size < 0 {
				return Pointer{}, false
			}
			p.Size = size
		}
	}
	if !version || p.OID == "" {
		return Pointer{}, false
	}
	return p, true
}

// IsPointerFile reports whether the file on disk is still an unfetched
// pointer rather than real content.
func IsPointerFile(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() || info.Size() > maxPointerSize {
		return false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	_, ok := ParsePointer(data)
	return ok
}

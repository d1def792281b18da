package domain

import (
	"path/filepath"
	"strings"
	"unicode/utf8"
)

const (
	maxFilenameLength = 200
	unnamedFile       = "unnamed_file"
)

var forbiddenFilenameChars = "<>:\"|?*/\\"

var reservedFilenames = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true, "COM5": true,
	"COM6": true, "COM7": true, "COM8": true, "COM9": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true, "LPT5": true,
	"LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
}

// audioExtensions are containers an audio-only download may legitimately end in
var audioExtensions = map[string]bool{
	".m4a": true, ".mp3": true, ".opus": true, ".ogg": true,
	".aac": true, ".wav": true, ".flac": true,
}

// SanitizeFilename makes a title safe to use as a file name on every
// supported OS.
func SanitizeFilename(name string) string {
	var b strings.Builder
	for _, r := range name {
		if r < 0x20 || strings.ContainsRune(forbiddenFilenameChars, r) {
			b.WriteRune('_')
			continue
		}
		b.WriteRune(r)
	}
	sanitized := b.String()

	stem := strings.ToUpper(sanitized)
	if i := strings.Index(stem, "."); i >= 0 {
		stem = stem[:i]
	}
	if reservedFilenames[stem] {
		sanitized = "_" + sanitized
	}

	sanitized = strings.TrimSpace(sanitized)
	sanitized = strings.TrimRight(sanitized, ".")

	if len(sanitized) > maxFilenameLength {
		sanitized = sanitized[:maxFilenameLength]
		for !utf8.ValidString(sanitized) {
			sanitized = sanitized[:len(sanitized)-1]
		}
		sanitized = strings.TrimSpace(sanitized)
	}

	if sanitized == "" {
		return unnamedFile
	}
	return sanitized
}

// IsAudioExtension checks if the path ends in a known audio container extension
func IsAudioExtension(path string) bool {
	return audioExtensions[strings.ToLower(filepath.Ext(path))]
}

// StripExtension removes the final extension of a path
func StripExtension(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path))
}

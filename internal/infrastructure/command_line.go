package infrastructure

import "strings"

// shellSpecialChars have a meaning to POSIX shells
const shellSpecialChars = " \t\n\r'\"$`\\!*?[](){}|;<>&~#%"

// sensitiveFlags take a value that must not appear in logs
var sensitiveFlags = map[string]bool{
	"--cookies":        true,
	"--password":       true,
	"--video-password": true,
}

// ShellEscape quotes s for display in a shell command line. Commands are run
// without a shell; this is only for logs.
func ShellEscape(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, shellSpecialChars) {
		return s
	}
	// close the quote, emit a double-quoted ', reopen
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

// ShellEscapeCommand renders binary and args as a copy-pasteable command line
func ShellEscapeCommand(binary string, args ...string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, ShellEscape(binary))
	for _, arg := range args {
		parts = append(parts, ShellEscape(arg))
	}
	return strings.Join(parts, " ")
}

// RedactedCommand is ShellEscapeCommand with the values of credential flags
// replaced. A decrypted cookie jar path must never end up in a log file.
func RedactedCommand(binary string, args ...string) string {
	redacted := make([]string, len(args))
	copy(redacted, args)
	for i := 0; i < len(redacted)-1; i++ {
		if sensitiveFlags[redacted[i]] {
			redacted[i+1] = "<redacted>"
			i++
		}
	}
	return ShellEscapeCommand(binary, redacted...)
}

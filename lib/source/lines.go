package source

import "strings"

// TrimLines strips trailing CR / LF characters from every line and drops one
// trailing empty line, so text split on '\n' round-trips through Text.
func TrimLines(lines []string) []string {
	result := make([]string, len(lines))
	for i, line := range lines {
		result[i] = strings.TrimRight(line, "\r\n")
	}
	if n := len(result); n > 0 && result[n-1] == "" {
		result = result[:n-1]
	}
	return result
}

// SplitLines splits text into lines as TrimLines expects them
func SplitLines(text string) []string {
	return TrimLines(strings.Split(text, "\n"))
}

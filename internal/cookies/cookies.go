// Package cookies materialises a Netscape cookie jar for the downloader.
package cookies

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Header is the first line yt-dlp expects in a cookie file.
const Header = "# Netscape HTTP Cookie File"

// FileName is the name of the cookie file inside a request's work dir.
const FileName = "cookies.txt"

// Normalize converts line endings to LF and makes sure the jar starts
// with the Netscape header. Empty input stays empty.
func Normalize(content string) string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.TrimSpace(content)
	if content == "" {
		return ""
	}
	if !strings.HasPrefix(content, Header) && !strings.HasPrefix(content, "# HTTP Cookie File") {
		content = Header + "\n" + content
	}
	return content + "\n"
}

// WriteFile writes content to dir/cookies.txt and returns its path.
// It returns "" without touching the filesystem when content is empty.
func WriteFile(dir, content string) (string, error) {
	content = Normalize(content)
	if content == "" {
		return "", nil
	}

	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return "", fmt.Errorf("write cookie file: %w", err)
	}
	return path, nil
}

// Count returns the number of cookie entries in content.
func Count(content string) int {
	n := 0
	for _, line := range strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		// #HttpOnly_ lines are cookies, other # lines are comments.
		if strings.HasPrefix(line, "#") && !strings.HasPrefix(line, "#HttpOnly_") {
			continue
		}
		if len(strings.Split(line, "\t")) >= 7 {
			n++
		}
	}
	return n
}

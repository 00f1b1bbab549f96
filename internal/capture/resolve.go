package capture

import (
	"context"
	"fmt"
	"net/url"
	"os/exec"
	"strings"
)

// isYouTube reports whether a network source must be resolved through yt-dlp.
func isYouTube(source string) bool {
	u, err := url.Parse(source)
	if err != nil {
		return false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	return host == "youtube.com" || host == "m.youtube.com" || host == "youtu.be"
}

// resolveYouTube asks yt-dlp for a direct media URL. yt-dlp may print separate
// video and audio URLs; the first line is the video.
func resolveYouTube(ctx context.Context, binary, pageURL string) (string, error) {
	out, err := exec.CommandContext(ctx, binary,
		"--get-url",
		"--format", "best[height<=1080]",
		"--no-playlist",
		pageURL,
	).Output()
	if err != nil {
		return "", fmt.Errorf("yt-dlp: %w", err)
	}

	first, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	if first = strings.TrimSpace(first); first == "" {
		return "", fmt.Errorf("yt-dlp returned empty URL")
	}
	return first, nil
}

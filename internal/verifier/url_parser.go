package verifier

import (
	"net/url"
	"regexp"
	"strings"

	clipdomain "github.com/smallbiznis/clipperpay/internal/clip/domain"
)

var youTubeIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// ExtractYouTubeID accepts youtu.be/<id>, /watch?v=<id>, /shorts/<id> and /embed/<id>.
func ExtractYouTubeID(rawURL string) (string, error) {
	parsed, err := parseURL(rawURL)
	if err != nil {
		return "", ErrUnparseableURL
	}
	host := strings.ToLower(parsed.Hostname())
	segments := splitPathSegments(parsed.Path)

	var candidate string
	switch {
	case host == "youtu.be" || strings.HasSuffix(host, ".youtu.be"):
		if len(segments) >= 1 {
			candidate = segments[0]
		}
	case host == "youtube.com" || strings.HasSuffix(host, ".youtube.com") || host == "youtube-nocookie.com" || strings.HasSuffix(host, ".youtube-nocookie.com"):
		switch {
		case len(segments) == 1 && segments[0] == "watch":
			candidate = parsed.Query().Get("v")
		case len(segments) >= 2 && (segments[0] == "shorts" || segments[0] == "embed"):
			candidate = segments[1]
		}
	}
	if !youTubeIDPattern.MatchString(candidate) {
		return "", ErrUnparseableURL
	}
	return candidate, nil
}

// ParseClipURL returns the platform-native id of a clip URL.
func ParseClipURL(platform clipdomain.Platform, rawURL string) (string, error) {
	if platform.IsYouTube() {
		return ExtractYouTubeID(rawURL)
	}

	parsed, err := parseURL(rawURL)
	if err != nil {
		return "", ErrUnparseableURL
	}
	host := strings.ToLower(parsed.Hostname())
	segments := splitPathSegments(parsed.Path)

	switch platform {
	case clipdomain.PlatformTikTok:
		return parseTikTok(host, segments)
	case clipdomain.PlatformInstagram:
		return parseInstagram(host, segments)
	default:
		return "", ErrUnparseableURL
	}
}

func parseTikTok(host string, segments []string) (string, error) {
	if !strings.Contains(host, "tiktok.com") {
		return "", ErrUnparseableURL
	}
	if len(segments) >= 3 && strings.HasPrefix(segments[0], "@") && segments[1] == "video" {
		return segments[2], nil
	}
	if len(segments) >= 1 && (strings.HasPrefix(host, "vm.") || strings.HasPrefix(host, "vt.")) {
		return segments[0], nil
	}
	return "", ErrUnparseableURL
}

func parseInstagram(host string, segments []string) (string, error) {
	if !strings.Contains(host, "instagram.com") {
		return "", ErrUnparseableURL
	}
	if len(segments) >= 2 && (segments[0] == "p" || segments[0] == "reel" || segments[0] == "reels") {
		return segments[1], nil
	}
	return "", ErrUnparseableURL
}

func parseURL(rawURL string) (*url.URL, error) {
	raw := strings.TrimSpace(rawURL)
	if raw == "" {
		return nil, ErrUnparseableURL
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if parsed.Host == "" {
		return nil, ErrUnparseableURL
	}
	return parsed, nil
}

func splitPathSegments(rawPath string) []string {
	parts := strings.Split(strings.Trim(strings.TrimSpace(rawPath), "/"), "/")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		value := strings.TrimSpace(part)
		if value != "" {
			items = append(items, value)
		}
	}
	return items
}

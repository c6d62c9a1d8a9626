package media

import "regexp"

var youtubeURL = regexp.MustCompile(`(?i)^(https?://)?(www\.|m\.)?(youtube\.com/watch\?v=|youtu\.be/|youtube\.com/shorts/)[\w-]{11}`)

// IsYouTubeURL reports whether raw looks like a single YouTube video link.
func IsYouTubeURL(raw string) bool {
	return youtubeURL.MatchString(raw)
}

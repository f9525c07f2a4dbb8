package ai

import "bytes"

// sniffImageMime detects the image format from magic bytes. OCR page
// images are JPEG unless proven otherwise.
func sniffImageMime(data []byte) string {
	switch {
	case bytes.HasPrefix(data, []byte("\x89PNG")):
		return "image/png"
	case bytes.HasPrefix(data, []byte("GIF")):
		return "image/gif"
	case bytes.HasPrefix(data, []byte("\xff\xd8")):
		return "image/jpeg"
	default:
		return "image/jpeg"
	}
}

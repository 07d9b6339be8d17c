package staticfs

import "mime"

// mimeTable is the fixed extension -> MIME type table. It takes
// priority over the stdlib mime package's own registry, which varies by
// OS and may not agree with these specific pairs.
var mimeTable = map[string]string{
	"htm":   "text/html",
	"html":  "text/html",
	"jpg":   "image/jpeg",
	"jpeg":  "image/jpeg",
	"png":   "image/png",
	"gif":   "image/gif",
	"css":   "text/css",
	"js":    "application/javascript",
	"svg":   "image/svg+xml",
	"woff":  "font/woff",
	"woff2": "font/woff2",
	"mp3":   "audio/mpeg",
	"ogg":   "audio/ogg",
}

// mimeType returns the Content-Type for ext (lowercase, no leading dot),
// falling back to the stdlib mime registry, or "" if neither has an
// entry (unknown extensions get no Content-Type).
func mimeType(ext string) string {
	if ext == "" {
		return ""
	}
	if t, ok := mimeTable[ext]; ok {
		return t
	}
	return stripParams(mime.TypeByExtension("." + ext))
}

// stripParams drops any "; charset=..." suffix the stdlib registry may
// attach, so this function's return value is always a bare MIME type.
func stripParams(t string) string {
	for i := 0; i < len(t); i++ {
		if t[i] == ';' {
			return t[:i]
		}
	}
	return t
}

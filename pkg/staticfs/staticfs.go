// Package staticfs implements the static-file server atop the
// connection pipeline. It presents a single handler-shaped operation
// and internally manages path resolution, cache coherence with the
// filesystem, on-the-fly gzip compression, pre-compressed `.gz`/`.br`
// sibling loading, and a minimal single-pass server-side include
// directive.
package staticfs

import (
	"os"
	"strings"
	"sync"

	"github.com/gosub-com/gosubweb/pkg/httpctx"
	"github.com/gosub-com/gosubweb/pkg/httperr"
	"github.com/gosub-com/gosubweb/pkg/logging"
)

// DefaultFileName and DefaultFileExtension resolve a directory-style
// request ("/blog/") to a concrete file ("/blog/index.html").
const (
	DefaultFileName      = "index"
	DefaultFileExtension = "html"
)

// DefaultTemplateStart and DefaultTemplateEnd delimit `#include` directives.
const (
	DefaultTemplateStart = "${{"
	DefaultTemplateEnd   = "}}"
)

// MaxCacheableSize is the size at or above which a file's bytes are
// never cached in memory; such files stream from disk on every request
// instead.
const MaxCacheableSize = 8 * 1024 * 1024

// Server is the static-file handler. All tuning fields (extension
// tables, template delimiters, default name/extension) are safe to
// reassign at runtime via their setters, each of which flushes the
// cache.
type Server struct {
	// Root is the absolute directory requests are resolved against.
	Root string

	DefaultFileName      string
	DefaultFileExtension string

	// Log, when set, receives template-expansion diagnostics.
	Log *logging.Logger

	mu    sync.Mutex
	cache map[string]*entry

	templateExtensions map[string]bool
	compressExtensions map[string]bool
	templateStart      string
	templateEnd        string
}

// entry is one file-cache entry. Exactly one entry exists per
// HTTP-visible path; gzip/brotli variants live under the same path with
// a ".gz"/".br" suffix as distinct entries, so eviction can drop a file
// and its siblings with three deletes.
type entry struct {
	canonicalPath string
	httpPath      string
	ext           string
	modTime       int64 // UnixNano, UTC
	size          int64 // on-disk file size for a base entry, payload length for a .gz/.br variant; >= MaxCacheableSize means streamed, not cached
	body          []byte
	hits          int64
}

// New returns a Server rooted at root (must be absolute), with the
// default file name/extension and no template/compress extensions
// configured. Configure those via SetTemplateExtensions/
// SetCompressExtensions before serving requests.
func New(root string) *Server {
	return &Server{
		Root:                 root,
		DefaultFileName:      DefaultFileName,
		DefaultFileExtension: DefaultFileExtension,
		cache:                make(map[string]*entry),
		templateExtensions:   map[string]bool{},
		compressExtensions:   map[string]bool{},
		templateStart:        DefaultTemplateStart,
		templateEnd:          DefaultTemplateEnd,
	}
}

// SetTemplateExtensions rebuilds the template-enabled extension set from
// a ";"-separated string (e.g. "html;htm") and flushes the cache.
func (s *Server) SetTemplateExtensions(list string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templateExtensions = splitExtensionList(list)
	s.flushLocked()
}

// SetCompressExtensions rebuilds the compressible extension set from a
// ";"-separated string and flushes the cache.
func (s *Server) SetCompressExtensions(list string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.compressExtensions = splitExtensionList(list)
	s.flushLocked()
}

// SetTemplateDelimiters reassigns the #include directive's delimiters
// and flushes the cache.
func (s *Server) SetTemplateDelimiters(start, end string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templateStart = start
	s.templateEnd = end
	s.flushLocked()
}

// SetDefaultFileName/SetDefaultFileExtension reassign directory
// resolution and flush the cache.
func (s *Server) SetDefaultFileName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.DefaultFileName = name
	s.flushLocked()
}

func (s *Server) SetDefaultFileExtension(ext string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.DefaultFileExtension = ext
	s.flushLocked()
}

// flushLocked clears the cache entirely. Caller must hold s.mu.
func (s *Server) flushLocked() {
	s.cache = make(map[string]*entry)
}

// logErrorf logs to s.Log when one is configured.
func (s *Server) logErrorf(format string, args ...any) {
	if s.Log != nil {
		s.Log.Errorf(format, args...)
	}
}

func splitExtensionList(list string) map[string]bool {
	set := map[string]bool{}
	for _, ext := range strings.Split(list, ";") {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext != "" {
			set[ext] = true
		}
	}
	return set
}

// applyCrossOriginHeaders stamps the cross-origin isolation headers on
// every response this handler emits, success or error, so
// SharedArrayBuffer works in browser clients that use static assets.
func applyCrossOriginHeaders(c *httpctx.Context) {
	c.Response.SetHeader("Cross-Origin-Opener-Policy", "same-origin")
	c.Response.SetHeader("Cross-Origin-Embedder-Policy", "require-corp")
}

// CacheEntry is one file-cache listing row, for the admin/api/files
// endpoint.
type CacheEntry struct {
	Path string `json:"path"`
	Ext  string `json:"ext"`
	Size int64  `json:"size"`
	Hits int64  `json:"hits"`
}

// CacheListing returns a snapshot of every currently cached entry's path,
// extension, size (as recorded on the entry), and hit count.
func (s *Server) CacheListing() []CacheEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]CacheEntry, 0, len(s.cache))
	for _, e := range s.cache {
		out = append(out, CacheEntry{Path: e.httpPath, Ext: e.ext, Size: e.size, Hits: e.hits})
	}
	return out
}

// Handle implements server.Handler.
func (s *Server) Handle(c *httpctx.Context) (bool, error) {
	applyCrossOriginHeaders(c)

	if c.Request.Method != "GET" {
		return true, c.SendStatusText(405, "Invalid HTTP request: Only GET method is allowed for serving")
	}

	httpPath := "/" + c.Request.Path
	if !pathSafe(httpPath) {
		return true, c.SendStatusText(400, "Invalid Request: File name is invalid")
	}

	if err := s.updateCache(httpPath); err != nil {
		return true, err
	}

	acceptsGzip := strings.Contains(c.Request.AcceptEncoding, "gzip")
	acceptsBrotli := strings.Contains(c.Request.AcceptEncoding, "br")

	s.mu.Lock()
	e, ok := s.cache[httpPath]
	var variant *entry
	encoding := ""
	if ok {
		e.hits++
		if acceptsBrotli {
			if v := s.cache[httpPath+".br"]; v != nil {
				variant, encoding = v, "br"
			}
		}
		if variant == nil && acceptsGzip {
			if v := s.cache[httpPath+".gz"]; v != nil {
				variant, encoding = v, "gzip"
			}
		}
	}
	s.mu.Unlock()

	if !ok {
		return true, c.SendStatusText(404, "Not Found")
	}

	if e.size >= MaxCacheableSize {
		return true, s.streamUncached(c, e)
	}

	body := e.body
	if variant != nil {
		body = variant.body
	}

	if encoding != "" {
		c.Response.ContentEncoding = encoding
	}
	if mt := mimeType(e.ext); mt != "" {
		c.Response.ContentType = mt
	}
	return true, c.SendBytes(body)
}

// streamUncached re-reads e's canonical file from disk and streams it
// through the writer, for files above MaxCacheableSize.
func (s *Server) streamUncached(c *httpctx.Context, e *entry) error {
	f, err := os.Open(e.canonicalPath)
	if err != nil {
		return c.SendStatusText(404, "Not Found")
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return httperr.NewServerStatus(500, "failed to stat streamed file", err)
	}
	if mt := mimeType(e.ext); mt != "" {
		c.Response.ContentType = mt
	}

	w, err := c.GetWriter(info.Size())
	if err != nil {
		return err
	}
	if _, err := w.WriteStream(f); err != nil {
		return err
	}
	return w.Flush()
}

// pathSafe rejects traversal, doubled separators, backslashes, and
// hidden-file segments before the path ever reaches the filesystem.
func pathSafe(httpPath string) bool {
	if strings.Contains(httpPath, "..") {
		return false
	}
	if strings.Contains(httpPath, "//") {
		return false
	}
	if strings.Contains(httpPath, "\\") {
		return false
	}
	if strings.HasPrefix(httpPath, ".") {
		return false
	}
	if strings.Contains(httpPath, "/.") {
		return false
	}
	return true
}

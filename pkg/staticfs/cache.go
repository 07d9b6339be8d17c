package staticfs

import (
	"bytes"
	"compress/gzip"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gosub-com/gosubweb/pkg/httperr"
)

// updateCache keeps the cache coherent with the filesystem: under the
// cache lock, check freshness or evict; outside the lock, resolve and
// load from disk; insert under the lock (for over-size files, an entry
// that records the file but holds no body).
func (s *Server) updateCache(httpPath string) error {
	fresh, needsLoad := s.checkFreshness(httpPath)
	if fresh {
		return nil
	}
	if !needsLoad {
		return nil // file vanished and was evicted; caller sees a 404 on lookup
	}

	canonical, ok := s.resolve(httpPath)
	if !ok {
		return nil // unresolved; caller sees a 404 on lookup
	}

	return s.load(httpPath, canonical)
}

// checkFreshness reports (fresh, needsLoad): fresh means the existing
// entry's mtime still matches disk and no load is required; needsLoad
// means either no entry existed or it was just evicted as stale, so the
// caller should proceed to resolve+load.
func (s *Server) checkFreshness(httpPath string) (fresh, needsLoad bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.cache[httpPath]
	if !ok {
		return false, true
	}

	info, err := os.Stat(e.canonicalPath)
	if err != nil {
		s.evictLocked(httpPath)
		return false, true
	}
	if info.ModTime().UnixNano() == e.modTime {
		return true, false
	}

	s.evictLocked(httpPath)
	return false, true
}

// evictLocked removes httpPath and its .gz/.br siblings. Caller must
// hold s.mu.
func (s *Server) evictLocked(httpPath string) {
	delete(s.cache, httpPath)
	delete(s.cache, httpPath+".gz")
	delete(s.cache, httpPath+".br")
}

// resolve performs the three-step path resolution, outside the lock.
func (s *Server) resolve(httpPath string) (string, bool) {
	direct := filepath.Join(s.Root, httpPath)
	if fileExists(direct) {
		return direct, true
	}

	dirStyle := filepath.Join(s.Root, httpPath, s.DefaultFileName+"."+s.DefaultFileExtension)
	if fileExists(dirStyle) {
		return dirStyle, true
	}

	withExt := direct + "." + s.DefaultFileExtension
	if fileExists(withExt) {
		return withExt, true
	}

	return "", false
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// load reads canonical's bytes (expanding templates if its extension is
// template-enabled), loads any pre-compressed .gz/.br siblings as their
// own cache entries, compresses fresh if no gzip sibling was loaded and
// the extension is compressible, and inserts the resulting entries under
// the cache lock.
func (s *Server) load(httpPath, canonical string) error {
	info, err := os.Stat(canonical)
	if err != nil {
		return nil // vanished between resolve and stat; caller sees a 404
	}

	raw, err := os.ReadFile(canonical)
	if err != nil {
		return httperr.NewServerStatus(500, "failed to read static file", err)
	}

	ext := lowerExt(canonical)
	modTime := info.ModTime().UnixNano()

	if info.Size() >= MaxCacheableSize {
		s.mu.Lock()
		s.cache[httpPath] = &entry{
			canonicalPath: canonical,
			httpPath:      httpPath,
			ext:           ext,
			modTime:       modTime,
			size:          info.Size(),
		}
		s.mu.Unlock()
		return nil
	}

	s.mu.Lock()
	templated := s.templateExtensions[ext]
	compressible := s.compressExtensions[ext]
	start, end := s.templateStart, s.templateEnd
	s.mu.Unlock()

	body := raw
	if templated {
		expanded, unterminated, err := expandTemplate(s.Root, raw, start, end)
		if err != nil {
			return err
		}
		if unterminated {
			s.logErrorf("unterminated %q delimiter in %s; remainder emitted verbatim", start, canonical)
		}
		body = expanded
	}

	base := &entry{
		canonicalPath: canonical,
		httpPath:      httpPath,
		ext:           ext,
		modTime:       modTime,
		size:          info.Size(),
		body:          body,
	}

	variants := make([]*entry, 0, 2)
	if data, siblingMod, ok := loadFreshSibling(canonical+".gz", info.ModTime()); ok {
		variants = append(variants, &entry{
			canonicalPath: canonical + ".gz",
			httpPath:      httpPath + ".gz",
			ext:           "gz",
			modTime:       siblingMod,
			size:          int64(len(data)),
			body:          data,
		})
	} else if compressible {
		if compressed, ok := gzipIfSmaller(body); ok {
			variants = append(variants, &entry{
				canonicalPath: canonical,
				httpPath:      httpPath + ".gz",
				ext:           "gz",
				modTime:       modTime,
				size:          int64(len(compressed)),
				body:          compressed,
			})
		}
	}
	if data, siblingMod, ok := loadFreshSibling(canonical+".br", info.ModTime()); ok {
		variants = append(variants, &entry{
			canonicalPath: canonical + ".br",
			httpPath:      httpPath + ".br",
			ext:           "br",
			modTime:       siblingMod,
			size:          int64(len(data)),
			body:          data,
		})
	}

	s.mu.Lock()
	s.cache[httpPath] = base
	for _, v := range variants {
		s.cache[v.httpPath] = v
	}
	s.mu.Unlock()
	return nil
}

// loadFreshSibling reads a pre-compressed .gz/.br sibling if it exists
// and its mtime is at least the source's; a stale or missing sibling is
// treated as absent.
func loadFreshSibling(path string, sourceModTime time.Time) ([]byte, int64, bool) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return nil, 0, false
	}
	if info.ModTime().Before(sourceModTime) {
		return nil, 0, false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, false
	}
	return data, info.ModTime().UnixNano(), true
}

func lowerExt(path string) string {
	ext := filepath.Ext(path)
	ext = strings.TrimPrefix(ext, ".")
	return strings.ToLower(ext)
}

// gzipIfSmaller compresses body and returns the result only if it is
// strictly smaller than the source (compression must actually pay for
// itself).
func gzipIfSmaller(body []byte) ([]byte, bool) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(body); err != nil {
		return nil, false
	}
	if err := w.Close(); err != nil {
		return nil, false
	}
	if buf.Len() < len(body) {
		return buf.Bytes(), true
	}
	return nil, false
}

package staticfs

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/gosub-com/gosubweb/pkg/bytesx"
	"github.com/gosub-com/gosubweb/pkg/httperr"
)

// expandTemplate performs single-pass, non-recursive template
// expansion: between start and end, the directive must be exactly
// "#include PATH" (whitespace-separated, exactly two tokens); the file
// at root/PATH is spliced in place verbatim. An unterminated start
// delimiter emits the remainder verbatim and reports unterminated=true
// so the caller can log it; an unrecognized directive is a server
// failure.
func expandTemplate(root string, raw []byte, start, end string) (out []byte, unterminated bool, err error) {
	if start == "" {
		return raw, false, nil
	}

	startBytes := []byte(start)
	endBytes := []byte(end)

	rest := raw
	for {
		idx := bytesx.Index(rest, startBytes)
		if idx < 0 {
			out = append(out, rest...)
			break
		}
		out = append(out, rest[:idx]...)
		rest = rest[idx+len(start):]

		endIdx := bytesx.Index(rest, endBytes)
		if endIdx < 0 {
			out = append(out, []byte(start)...)
			out = append(out, rest...)
			unterminated = true
			break
		}

		directive := strings.TrimSpace(string(rest[:endIdx]))
		rest = rest[endIdx+len(end):]

		included, ierr := resolveInclude(root, directive)
		if ierr != nil {
			return nil, false, ierr
		}
		out = append(out, included...)
	}
	return out, unterminated, nil
}

// resolveInclude parses and resolves a single "#include PATH" directive.
func resolveInclude(root, directive string) ([]byte, error) {
	tokens := strings.Fields(directive)
	if len(tokens) != 2 || tokens[0] != "#include" {
		return nil, httperr.NewServerStatus(500, "unrecognized template directive: "+directive, nil)
	}

	path := filepath.Join(root, tokens[1])
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, httperr.NewServerStatus(500, "included template file not found: "+tokens[1], err)
	}
	return data, nil
}

// Command gosubweb is the launcher: it binds the plaintext and TLS
// listener pairs, loads redirects.txt and certificate material, and
// composes the redirector, static-file server, and admin routes ahead
// of whatever handler an embedder appends, by explicit sequential
// branching rather than a middleware chain.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/gosub-com/gosubweb/pkg/httpctx"
	"github.com/gosub-com/gosubweb/pkg/httperr"
	"github.com/gosub-com/gosubweb/pkg/logging"
	"github.com/gosub-com/gosubweb/pkg/redirect"
	"github.com/gosub-com/gosubweb/pkg/server"
	"github.com/gosub-com/gosubweb/pkg/staticfs"
	"github.com/gosub-com/gosubweb/pkg/stats"
	"github.com/gosub-com/gosubweb/pkg/tlsmat"
)

// Default ports: 80/8059 plaintext, 443/8058 TLS.
const (
	DefaultPlainPort      = "80"
	DefaultPlainAdminPort = "8059"
	DefaultTLSPort        = "443"
	DefaultTLSAdminPort   = "8058"
)

func main() {
	root := flag.String("root", "", "static file root directory (default: www beside the executable)")
	redirectsPath := flag.String("redirects", "redirects.txt", "redirect table file")
	certPath := flag.String("cert", "fullchain.pem", "TLS certificate chain (PEM); TLS ports are skipped if absent")
	keyPath := flag.String("key", "privatekey.pem", "TLS private key (PEM)")
	plainPort := flag.String("port", DefaultPlainPort, "plaintext listen port")
	plainAdminPort := flag.String("admin-port", DefaultPlainAdminPort, "plaintext admin listen port")
	tlsPort := flag.String("tls-port", DefaultTLSPort, "TLS listen port")
	tlsAdminPort := flag.String("tls-admin-port", DefaultTLSAdminPort, "TLS admin listen port")
	startBrowser := flag.Bool("start-browser", false, "open the default browser at the admin port after startup")
	flag.Parse()

	log := logging.New(logging.DefaultCapacity, logging.Info, true)
	counters := stats.New()

	if *root == "" {
		*root = defaultRoot()
	}
	files := staticfs.New(*root)
	files.Log = log
	files.SetCompressExtensions("html;htm;css;js;svg;txt;json")
	files.SetTemplateExtensions("html;htm")

	redirector := redirect.New()
	redirector.UpgradeInsecure = true
	loadRedirects(redirector, *redirectsPath, log)

	admin := &adminRoutes{log: log, stats: counters, files: files}

	mainHandlers := []server.Handler{redirector.Handle, files.Handle}
	adminHandlers := []server.Handler{admin.Handle}

	plainMain := server.New(server.Config{Log: log, Stats: counters, Handlers: mainHandlers})
	plainAdmin := server.New(server.Config{Log: log, Stats: counters, Handlers: adminHandlers})

	listenAndServe(log, plainMain, "tcp", ":"+*plainPort)
	listenAndServe(log, plainAdmin, "tcp", ":"+*plainAdminPort)

	cert, err := tlsmat.LoadCertificate(*certPath, *keyPath)
	if err != nil {
		log.Infof("TLS certificate not loaded (%v); serving plaintext only", err)
	} else {
		tlsMain := server.New(server.Config{Cert: &cert, Log: log, Stats: counters, Handlers: mainHandlers})
		tlsAdmin := server.New(server.Config{Cert: &cert, Log: log, Stats: counters, Handlers: adminHandlers})
		listenAndServe(log, tlsMain, "tcp", ":"+*tlsPort)
		listenAndServe(log, tlsAdmin, "tcp", ":"+*tlsAdminPort)
	}

	if *startBrowser {
		openBrowser("http://localhost:" + *plainAdminPort)
	}

	log.Infof("gosubweb listening: plaintext %s/%s, tls %s/%s (root=%s)", *plainPort, *plainAdminPort, *tlsPort, *tlsAdminPort, *root)
	select {}
}

// defaultRoot resolves the www/ directory beside the executable, falling
// back to ./www when the executable path can't be determined.
func defaultRoot() string {
	exe, err := os.Executable()
	if err != nil {
		return "www"
	}
	return filepath.Join(filepath.Dir(exe), "www")
}

// listenAndServe binds network:addr and runs srv's accept loop in a
// background goroutine. A bind failure is logged and fatal; the accept
// loop's own eventual error (listener closed) is merely logged.
func listenAndServe(log *logging.Logger, srv *server.Server, network, addr string) {
	listener, err := net.Listen(network, addr)
	if err != nil {
		log.Errorf("failed to listen on %s: %v", addr, err)
		os.Exit(1)
	}
	go func() {
		if err := srv.Serve(listener); err != nil {
			log.Infof("listener %s stopped: %v", addr, err)
		}
	}()
}

// loadRedirects parses redirects.txt: one "source dest" pair per
// line, whitespace-separated. Malformed lines and rejected entries are
// logged and skipped; a missing file is not an error.
func loadRedirects(r *redirect.Redirector, path string, log *logging.Logger) {
	f, err := os.Open(path)
	if err != nil {
		log.Debugf("no redirect table at %s: %v", path, err)
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) != 2 {
			log.Errorf("%s:%d: malformed redirect line %q, skipped", path, line, text)
			continue
		}
		if err := r.Add(fields[0], fields[1]); err != nil {
			log.Errorf("%s:%d: %v, skipped", path, line, err)
		}
	}
}

// openBrowser shells out to the platform's URL opener.
func openBrowser(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	_ = cmd.Start()
}

// adminRoutes serves the three admin JSON/text endpoints. It reports
// every request as handled: other paths get a 404, other methods a 405.
type adminRoutes struct {
	log   *logging.Logger
	stats *stats.Counters
	files *staticfs.Server
}

func (a *adminRoutes) Handle(c *httpctx.Context) (bool, error) {
	if c.Request.Method != "GET" {
		return true, c.SendStatusText(405, "Only GET is allowed on admin routes")
	}

	switch c.Request.PathLower {
	case "admin/api/log":
		return true, c.SendText(a.log.SnapshotText())
	case "admin/api/stats":
		return true, a.sendJSON(c, a.stats.Snapshot())
	case "admin/api/files":
		return true, a.sendJSON(c, a.files.CacheListing())
	}
	return true, c.SendStatusText(404, "Not Found")
}

func (a *adminRoutes) sendJSON(c *httpctx.Context, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return httperr.NewServerStatus(500, "failed to marshal admin response", err)
	}
	c.Response.ContentType = "application/json"
	return c.SendBytes(body)
}

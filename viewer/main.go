package main

import (
	"flag"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

func main() {
	fs := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	listen := fs.String("listen", "127.0.0.1:8080", "HTTP listen address")
	dataDirs := fs.String("data-dirs", strings.Join(defaultDataDirs(), ","), "Comma-separated list of directories containing tick and generation parquet files")
	staticDir := fs.String("static-dir", "", "Optional directory to serve as SPA static")
	refresh := fs.Duration("refresh", 30*time.Second, "How long a DuckDB view over the data dirs is reused")
	if err := fs.Parse(os.Args[1:]); err != nil {
		log.Fatalf("flag parse: %v", err)
	}

	roots := parseDataRoots(*dataDirs)
	log.Printf("Viewer data roots: %s", strings.Join(roots, ","))

	server := NewServer(roots, *refresh)
	defer server.Close()

	mux := http.NewServeMux()
	server.RegisterRoutes(mux)
	if strings.TrimSpace(*staticDir) != "" {
		spa := spaHandler{staticPath: *staticDir, indexPath: filepath.Join(*staticDir, "index.html")}
		mux.Handle("/", spa)
	} else {
		mux.Handle("/", http.RedirectHandler("/index", http.StatusFound))
	}

	srv := &http.Server{
		Addr:              *listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.Printf("Viewer listening on http://%s", *listen)
	if strings.TrimSpace(*staticDir) != "" {
		log.Printf("Serving SPA from %s", *staticDir)
	}
	log.Fatal(srv.ListenAndServe())
}

func defaultDataDirs() []string {
	preferred := []string{
		filepath.Join("data", "generated"),
		filepath.Join("data", "debug"),
	}
	out := make([]string, 0, len(preferred))
	for _, p := range preferred {
		if _, err := os.Stat(p); err == nil {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		out = append(out, preferred[0])
	}
	return out
}

func parseDataRoots(csv string) []string {
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	seen := make(map[string]bool, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

type spaHandler struct {
	staticPath string
	indexPath  string
}

func (h spaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Serve exact static asset if exists; otherwise serve index.html for client-side routing.
	path := filepath.Clean(r.URL.Path)
	if path == "/" {
		http.ServeFile(w, r, h.indexPath)
		return
	}
	candidate := filepath.Join(h.staticPath, strings.TrimPrefix(path, "/"))
	if fi, err := os.Stat(candidate); err == nil && !fi.IsDir() {
		http.ServeFile(w, r, candidate)
		return
	}
	http.ServeFile(w, r, h.indexPath)
}

// Command testserver is a stand-in CMS for end-to-end tests and local
// development. API routes require the shared access key in the header the
// real CMS expects; admin routes require a session cookie.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"strings"
)

const sessionCookie = "cms_session"

// EchoResponse describes what the CMS received.
type EchoResponse struct {
	Method        string `json:"method"`
	Path          string `json:"path"`
	Query         string `json:"query,omitempty"`
	Authenticated string `json:"authenticated"`
	ForwardedFor  string `json:"forwarded_for,omitempty"`
	ForwardedHost string `json:"forwarded_host,omitempty"`
}

var accessKey string

func main() {
	port := flag.Int("port", 8090, "Port to listen on")
	key := flag.String("key", "", "Shared access key expected on API calls")
	flag.Parse()

	if *key == "" {
		log.Fatal("Access key is required (use -key flag)")
	}
	accessKey = *key

	http.HandleFunc("/health", handleHealth)
	http.HandleFunc("/api/", handleAPI)
	http.HandleFunc("/admin/", handleAdmin)
	http.HandleFunc("/login", handleLogin)
	http.HandleFunc("/rss.xml", handleFeed)
	http.HandleFunc("/", http.NotFound)

	addr := fmt.Sprintf(":%d", *port)
	log.Printf("Test CMS starting on %s", addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Fatal(err)
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func handleAPI(w http.ResponseWriter, r *http.Request) {
	header := "api-authorization"
	if strings.HasPrefix(r.URL.Path, "/api/admin") {
		header = "admin-authorization"
		// Admin API calls may also arrive with a session cookie.
		if c, err := r.Cookie(sessionCookie); err == nil && c.Value == "valid" {
			writeEcho(w, r, "session")
			return
		}
	}

	if r.Header.Get(header) != accessKey {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing or wrong " + header})
		return
	}

	switch r.URL.Path {
	case "/api/posts", "/api/admin/users":
		writeEcho(w, r, header)
	case "/api/leak":
		// Misbehaving endpoint that echoes the key back.
		writeJSON(w, http.StatusOK, map[string]string{"key": r.Header.Get(header)})
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	}
}

func handleAdmin(w http.ResponseWriter, r *http.Request) {
	c, err := r.Cookie(sessionCookie)
	if err != nil || c.Value != "valid" {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = fmt.Fprintf(w, "<html><body>admin %s</body></html>", r.URL.Path)
}

func handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		_, _ = w.Write([]byte("<form method=post></form>"))
		return
	}
	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: "valid", Path: "/", HttpOnly: true})
	http.Redirect(w, r, "/admin/index.html", http.StatusFound)
}

func handleFeed(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/rss+xml")
	_, _ = w.Write([]byte(`<?xml version="1.0"?><rss version="2.0"><channel><title>test</title></channel></rss>`))
}

func writeEcho(w http.ResponseWriter, r *http.Request, authenticated string) {
	writeJSON(w, http.StatusOK, EchoResponse{
		Method:        r.Method,
		Path:          r.URL.Path,
		Query:         r.URL.RawQuery,
		Authenticated: authenticated,
		ForwardedFor:  r.Header.Get("X-Forwarded-For"),
		ForwardedHost: r.Header.Get("X-Forwarded-Host"),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

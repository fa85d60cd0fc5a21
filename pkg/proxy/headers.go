package proxy

import (
	"net"
	"net/http"
	"strings"
)

// hopHeaders are connection-scoped and never relayed (RFC 9110 §7.6.1).
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// removeHopHeaders deletes hop-by-hop headers, including any named in
// the Connection header.
func removeHopHeaders(h http.Header) {
	for _, v := range h.Values("Connection") {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				h.Del(name)
			}
		}
	}
	for _, name := range hopHeaders {
		h.Del(name)
	}
}

// setForwardedHeaders records the original client, protocol and host on
// an outbound request. X-Forwarded-For is handled by appendForwardedFor,
// since httputil.ReverseProxy already appends it on its own. Values sent by
// the client are kept only when trust is set; otherwise they come from the
// connection itself.
func setForwardedHeaders(out *http.Request, in *http.Request, trust bool) {
	realIP := ""
	if trust {
		realIP = in.Header.Get("X-Real-IP")
	}
	if realIP == "" {
		realIP = remoteIP(in)
	}
	if realIP != "" {
		out.Header.Set("X-Real-IP", realIP)
	} else {
		out.Header.Del("X-Real-IP")
	}

	proto := ""
	if trust {
		proto = in.Header.Get("X-Forwarded-Proto")
	}
	if proto == "" {
		proto = "http"
		if in.TLS != nil {
			proto = "https"
		}
	}
	out.Header.Set("X-Forwarded-Proto", proto)

	host := ""
	if trust {
		host = in.Header.Get("X-Forwarded-Host")
	}
	if host == "" {
		host = in.Host
	}
	out.Header.Set("X-Forwarded-Host", host)
}

// appendForwardedFor sets X-Forwarded-For to the client IP, extending the
// client's own chain only when trust is set.
func appendForwardedFor(out *http.Request, in *http.Request, trust bool) {
	clientIP := remoteIP(in)
	if clientIP == "" {
		out.Header.Del("X-Forwarded-For")
		return
	}
	if prior := in.Header.Get("X-Forwarded-For"); trust && prior != "" {
		clientIP = prior + ", " + clientIP
	}
	out.Header.Set("X-Forwarded-For", clientIP)
}

func remoteIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return ""
	}
	return ip
}

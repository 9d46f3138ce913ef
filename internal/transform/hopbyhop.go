package transform

import (
	"net/http"
	"strings"
)

// hopByHopHeaders lists headers that are connection-scoped rather than
// end-to-end, and must never be forwarded by either the request or
// response leg of a proxy.
var hopByHopHeaders = []string{
	"Connection",
	"Transfer-Encoding",
	"Upgrade",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"TE",
	"Trailer",
}

// StripHopByHop removes the hop-by-hop headers from header, plus any
// headers it names via a Connection header (RFC 7230 6.1).
func StripHopByHop(header http.Header) {
	if conn := header.Get("Connection"); conn != "" {
		for _, name := range strings.Split(conn, ",") {
			header.Del(strings.TrimSpace(name))
		}
	}
	for _, name := range hopByHopHeaders {
		header.Del(name)
	}
}

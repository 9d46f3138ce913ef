// Package wsproxy bridges a client WebSocket connection to a backend
// WebSocket connection. Unlike a raw byte splice, frames are read and
// written by type (text, binary, ping, pong, close) on both legs.
package wsproxy

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wudi/kairos/internal/gwerrors"
	"github.com/wudi/kairos/internal/loadbalancer"
)

const defaultHandshakeTimeout = 10 * time.Second

// IsUpgradeRequest reports whether r asks to upgrade to a WebSocket.
func IsUpgradeRequest(r *http.Request) bool {
	connection := strings.ToLower(r.Header.Get("Connection"))
	upgrade := strings.ToLower(r.Header.Get("Upgrade"))
	return strings.Contains(connection, "upgrade") && upgrade == "websocket"
}

// Proxy upgrades the client leg and dials the backend leg, then pumps
// frames between them until either side closes.
type Proxy struct {
	upgrader websocket.Upgrader
	dialer   websocket.Dialer
}

// New builds a Proxy with generous buffer sizes and origin checking
// disabled — the gateway's own route matching already decided this
// request is allowed to reach the backend.
func New() *Proxy {
	return &Proxy{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		dialer: websocket.Dialer{HandshakeTimeout: defaultHandshakeTimeout},
	}
}

// Proxy dials backend at path (the route's transformed internal path),
// upgrades w/r to a WebSocket, then pumps frames between the two
// connections until one side closes or errors. The first pump error
// (typically a clean close) is returned to the caller for logging.
func (p *Proxy) Proxy(w http.ResponseWriter, r *http.Request, backend *loadbalancer.Backend, path string) error {
	target, err := backendURL(backend, path, r.URL.RawQuery)
	if err != nil {
		return gwerrors.ErrUpstreamConnectionError.Wrap(err)
	}

	header := http.Header{}
	if proto := r.Header.Get("Sec-WebSocket-Protocol"); proto != "" {
		header.Set("Sec-WebSocket-Protocol", proto)
	}

	backendConn, resp, err := p.dialer.DialContext(r.Context(), target.String(), header)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return gwerrors.ErrUpstreamConnectionError.Wrap(err)
	}
	defer backendConn.Close()

	clientConn, err := p.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return gwerrors.ErrUpstreamConnectionError.Wrap(err)
	}
	defer clientConn.Close()

	errc := make(chan error, 2)
	go pump(clientConn, backendConn, errc)
	go pump(backendConn, clientConn, errc)
	return <-errc
}

// controlWriteWait bounds how long a forwarded Ping/Pong/Close control
// frame may take to write to the peer leg.
const controlWriteWait = 5 * time.Second

// pump reads frames from src and replays them on dst by type. gorilla's
// default Ping/Pong/Close handlers reply locally and never hand the frame
// back to ReadMessage, so each is overridden here to forward it to dst
// instead: Ping and Pong as control frames via WriteControl, Close by
// inspecting the *websocket.CloseError ReadMessage returns once the
// default handler has run and writing a matching Close frame to dst.
func pump(src, dst *websocket.Conn, errc chan<- error) {
	src.SetPingHandler(func(data string) error {
		return dst.WriteControl(websocket.PingMessage, []byte(data), time.Now().Add(controlWriteWait))
	})
	src.SetPongHandler(func(data string) error {
		return dst.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(controlWriteWait))
	})

	for {
		messageType, data, err := src.ReadMessage()
		if err != nil {
			if closeErr, ok := err.(*websocket.CloseError); ok {
				dst.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(closeErr.Code, closeErr.Text),
					time.Now().Add(controlWriteWait))
				errc <- nil
				return
			}
			errc <- err
			return
		}

		if err := dst.WriteMessage(messageType, data); err != nil {
			errc <- err
			return
		}
	}
}

// backendURL rewrites backend's scheme to ws/wss and attaches path/query.
func backendURL(backend *loadbalancer.Backend, path, rawQuery string) (*url.URL, error) {
	base := backend.ParsedURL
	if base == nil {
		var err error
		base, err = url.Parse(backend.URL)
		if err != nil {
			return nil, err
		}
	}
	u := *base
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	}
	u.Path = path
	u.RawQuery = rawQuery
	return &u, nil
}

// Package ftp implements the gateway's protocol=ftp route kind: a thin
// adapter over the standard library's net package that retrieves a single
// file from an FTP server and streams it back as the HTTP response body.
// It is not a general FTP client — directory listing, uploads, and
// non-passive data connections are out of scope. No third-party FTP client
// library exists anywhere in the retrieval pack, so this is built directly
// on net.Conn, matching the spec's own "thin adapter over standard
// libraries" description of the protocol adjuncts.
package ftp

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Proxy retrieves one remote file per HTTP request over an FTP control and
// passive data connection.
type Proxy struct {
	dialTimeout time.Duration
}

// New builds a Proxy with a conservative dial timeout.
func New() *Proxy {
	return &Proxy{dialTimeout: 10 * time.Second}
}

// ServeFTP dials addr (host:port), authenticates (anonymous unless r
// carries userinfo), and streams RETR path back to w.
func (p *Proxy) ServeFTP(w http.ResponseWriter, r *http.Request, addr, path string) error {
	conn, err := net.DialTimeout("tcp", addr, p.dialTimeout)
	if err != nil {
		return fmt.Errorf("dial ftp control connection %s: %w", addr, err)
	}
	defer conn.Close()

	reader := bufio.NewReader(conn)
	if _, err := readResponse(reader); err != nil {
		return fmt.Errorf("ftp banner: %w", err)
	}

	user, pass := "anonymous", "anonymous@"
	if r.URL.User != nil {
		user = r.URL.User.Username()
		if pw, ok := r.URL.User.Password(); ok {
			pass = pw
		}
	}

	if err := command(conn, reader, "USER "+user, 331, 230); err != nil {
		return fmt.Errorf("ftp USER: %w", err)
	}
	if err := command(conn, reader, "PASS "+pass, 230); err != nil {
		return fmt.Errorf("ftp PASS: %w", err)
	}
	if err := command(conn, reader, "TYPE I", 200); err != nil {
		return fmt.Errorf("ftp TYPE: %w", err)
	}

	dataAddr, err := enterPassiveMode(conn, reader)
	if err != nil {
		return fmt.Errorf("ftp PASV: %w", err)
	}

	dataConn, err := net.DialTimeout("tcp", dataAddr, p.dialTimeout)
	if err != nil {
		return fmt.Errorf("dial ftp data connection %s: %w", dataAddr, err)
	}
	defer dataConn.Close()

	if _, err := fmt.Fprintf(conn, "RETR %s\r\n", path); err != nil {
		return fmt.Errorf("send RETR: %w", err)
	}
	if _, err := readResponse(reader); err != nil {
		return fmt.Errorf("ftp RETR: %w", err)
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, dataConn); err != nil {
		return fmt.Errorf("stream ftp data: %w", err)
	}

	// Final 226 Transfer complete; best-effort, the body already shipped.
	_, _ = readResponse(reader)
	return nil
}

// readResponse reads one (possibly multi-line) FTP reply and returns its
// three-digit code.
func readResponse(r *bufio.Reader) (int, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return 0, err
	}
	if len(line) < 4 {
		return 0, fmt.Errorf("malformed ftp reply: %q", line)
	}
	code, err := strconv.Atoi(line[:3])
	if err != nil {
		return 0, fmt.Errorf("malformed ftp reply code: %q", line)
	}
	// Multi-line replies start "code-" and end with "code " on its own line.
	if line[3] == '-' {
		prefix := line[:3] + " "
		for {
			cont, err := r.ReadString('\n')
			if err != nil {
				return 0, err
			}
			if strings.HasPrefix(cont, prefix) {
				break
			}
		}
	}
	return code, nil
}

// command writes cmd and checks the reply code against any of wantCodes.
func command(conn net.Conn, reader *bufio.Reader, cmd string, wantCodes ...int) error {
	if _, err := fmt.Fprintf(conn, "%s\r\n", cmd); err != nil {
		return err
	}
	code, err := readResponse(reader)
	if err != nil {
		return err
	}
	for _, want := range wantCodes {
		if code == want {
			return nil
		}
	}
	return fmt.Errorf("unexpected reply code %d to %q", code, cmd)
}

var pasvReply = regexp.MustCompile(`\((\d+),(\d+),(\d+),(\d+),(\d+),(\d+)\)`)

// enterPassiveMode sends PASV and parses the data connection address out
// of the "227 Entering Passive Mode (h1,h2,h3,h4,p1,p2)" reply.
func enterPassiveMode(conn net.Conn, reader *bufio.Reader) (string, error) {
	if _, err := fmt.Fprintf(conn, "PASV\r\n"); err != nil {
		return "", err
	}
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(line, "227") {
		return "", fmt.Errorf("unexpected PASV reply: %q", line)
	}

	m := pasvReply.FindStringSubmatch(line)
	if m == nil {
		return "", fmt.Errorf("could not parse PASV reply: %q", line)
	}
	h1, h2, h3, h4 := m[1], m[2], m[3], m[4]
	p1, _ := strconv.Atoi(m[5])
	p2, _ := strconv.Atoi(m[6])
	port := p1*256 + p2

	return fmt.Sprintf("%s.%s.%s.%s:%d", h1, h2, h3, h4, port), nil
}

package ftp

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// fakeFTPServer accepts exactly one control connection and one data
// connection, scripted to satisfy the USER/PASS/TYPE/PASV/RETR sequence
// ServeFTP drives, then streams body over the data connection.
func fakeFTPServer(t *testing.T, body string) (addr string, done chan struct{}) {
	t.Helper()

	dataLn, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen data: %v", err)
	}
	dataPort := dataLn.Addr().(*net.TCPAddr).Port

	ctrlLn, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen control: %v", err)
	}

	done = make(chan struct{})
	go func() {
		defer close(done)
		conn, err := ctrlLn.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		reader := bufio.NewReader(conn)

		fmt.Fprintf(conn, "220 fake ftp ready\r\n")
		mustRead(t, reader) // USER
		fmt.Fprintf(conn, "331 need password\r\n")
		mustRead(t, reader) // PASS
		fmt.Fprintf(conn, "230 logged in\r\n")
		mustRead(t, reader) // TYPE
		fmt.Fprintf(conn, "200 type set\r\n")
		mustRead(t, reader) // PASV
		fmt.Fprintf(conn, "227 Entering Passive Mode (127,0,0,1,%d,%d)\r\n", dataPort/256, dataPort%256)

		dataConn, err := dataLn.Accept()
		if err != nil {
			return
		}

		mustRead(t, reader) // RETR
		fmt.Fprintf(conn, "150 opening data connection\r\n")
		dataConn.Write([]byte(body))
		dataConn.Close()
		fmt.Fprintf(conn, "226 transfer complete\r\n")
	}()

	return ctrlLn.Addr().String(), done
}

func mustRead(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	line, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("read command: %v", err)
	}
	return strings.TrimRight(line, "\r\n")
}

func TestServeFTPStreamsRetrievedFile(t *testing.T) {
	addr, done := fakeFTPServer(t, "hello from ftp")

	p := New()
	r := httptest.NewRequest(http.MethodGet, "/files/report.txt", nil)
	w := httptest.NewRecorder()

	if err := p.ServeFTP(w, r, addr, "/report.txt"); err != nil {
		t.Fatalf("ServeFTP: %v", err)
	}
	<-done

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Body.String() != "hello from ftp" {
		t.Errorf("expected streamed body, got %q", w.Body.String())
	}
}

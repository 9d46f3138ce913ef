package dns

import (
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/miekg/dns"
)

func listenUDP(t *testing.T) (net.PacketConn, error) {
	t.Helper()
	return net.ListenPacket("udp", "127.0.0.1:0")
}

func TestServeDNSRejectsMissingName(t *testing.T) {
	p := New()
	r := httptest.NewRequest(http.MethodGet, "/resolve", nil)
	w := httptest.NewRecorder()

	if err := p.ServeDNS(w, r, "127.0.0.1:1"); err != nil {
		t.Fatalf("ServeDNS: %v", err)
	}
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a missing name parameter, got %d", w.Code)
	}
}

func TestServeDNSRejectsUnsupportedType(t *testing.T) {
	p := New()
	r := httptest.NewRequest(http.MethodGet, "/resolve?name=example.com&type=BOGUS", nil)
	w := httptest.NewRecorder()

	if err := p.ServeDNS(w, r, "127.0.0.1:1"); err != nil {
		t.Fatalf("ServeDNS: %v", err)
	}
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for an unsupported query type, got %d", w.Code)
	}
}

func TestServeDNSExchangesAgainstLiveResolver(t *testing.T) {
	var gotName string
	server := &dns.Server{Addr: "127.0.0.1:0", Net: "udp"}
	mux := dns.NewServeMux()
	mux.HandleFunc(".", func(w dns.ResponseWriter, req *dns.Msg) {
		gotName = req.Question[0].Name
		msg := new(dns.Msg)
		msg.SetReply(req)
		rr, _ := dns.NewRR(gotName + " 300 IN A 203.0.113.10")
		msg.Answer = append(msg.Answer, rr)
		w.WriteMsg(msg)
	})
	server.Handler = mux

	pc, err := listenUDP(t)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	server.PacketConn = pc
	go server.ActivateAndServe()
	defer server.Shutdown()

	time.Sleep(50 * time.Millisecond)

	p := New()
	r := httptest.NewRequest(http.MethodGet, "/resolve?name=example.com", nil)
	w := httptest.NewRecorder()

	if err := p.ServeDNS(w, r, pc.LocalAddr().String()); err != nil {
		t.Fatalf("ServeDNS: %v", err)
	}
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if gotName != "example.com." {
		t.Errorf("expected the resolver to see 'example.com.', got %q", gotName)
	}
}

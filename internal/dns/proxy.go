// Package dns implements the gateway's protocol=dns route kind: a thin
// HTTP-to-DNS adapter, not a recursive resolver. A request names the
// question via query parameters and the adapter renders the upstream
// resolver's answer as JSON.
package dns

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/miekg/dns"
)

// Proxy forwards one DNS question per HTTP request to a backend resolver.
type Proxy struct {
	client *dns.Client
}

// New builds a Proxy with a conservative exchange timeout.
func New() *Proxy {
	return &Proxy{client: &dns.Client{Timeout: 5 * time.Second}}
}

// answer is the JSON shape returned to the caller.
type answer struct {
	Name    string   `json:"name"`
	Type    string   `json:"type"`
	RCode   string   `json:"rcode"`
	Answers []string `json:"answers"`
}

// ServeDNS resolves the question carried on r's query string (name, and
// optionally type, defaulting to A) against resolverAddr and writes the
// answer as JSON.
func (p *Proxy) ServeDNS(w http.ResponseWriter, r *http.Request, resolverAddr string) error {
	name := r.URL.Query().Get("name")
	if name == "" {
		http.Error(w, "missing required query parameter: name", http.StatusBadRequest)
		return nil
	}

	qtype := dns.TypeA
	if t := r.URL.Query().Get("type"); t != "" {
		parsed, ok := dns.StringToType[strings.ToUpper(t)]
		if !ok {
			http.Error(w, fmt.Sprintf("unsupported query type %q", t), http.StatusBadRequest)
			return nil
		}
		qtype = parsed
	}

	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(name), qtype)

	resp, _, err := p.client.Exchange(msg, resolverAddr)
	if err != nil {
		return fmt.Errorf("dns exchange with %s: %w", resolverAddr, err)
	}

	answers := make([]string, 0, len(resp.Answer))
	for _, rr := range resp.Answer {
		answers = append(answers, rr.String())
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	return json.NewEncoder(w).Encode(answer{
		Name:    name,
		Type:    dns.TypeToString[qtype],
		RCode:   dns.RcodeToString[resp.Rcode],
		Answers: answers,
	})
}

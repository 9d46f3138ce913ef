package loadbalancer

import "testing"

func TestNewDispatchesByStrategy(t *testing.T) {
	backends := []*Backend{{URL: "http://a", Weight: 1, Healthy: true}}

	cases := []struct {
		strategy Strategy
		want     interface{}
	}{
		{RoundRobin, &RoundRobin{}},
		{WeightedRoundRobin, &WeightedRoundRobin{}},
		{LeastConn, &LeastConnections{}},
		{Random, &Random{}},
		{IPHashStrategy, &IPHash{}},
		{"", &RoundRobin{}},
		{"bogus", &RoundRobin{}},
	}

	for _, c := range cases {
		bal := New(c.strategy, backends)
		switch c.want.(type) {
		case *RoundRobin:
			if _, ok := bal.(*RoundRobin); !ok {
				t.Errorf("strategy %q: expected *RoundRobin, got %T", c.strategy, bal)
			}
		case *WeightedRoundRobin:
			if _, ok := bal.(*WeightedRoundRobin); !ok {
				t.Errorf("strategy %q: expected *WeightedRoundRobin, got %T", c.strategy, bal)
			}
		case *LeastConnections:
			if _, ok := bal.(*LeastConnections); !ok {
				t.Errorf("strategy %q: expected *LeastConnections, got %T", c.strategy, bal)
			}
		case *Random:
			if _, ok := bal.(*Random); !ok {
				t.Errorf("strategy %q: expected *Random, got %T", c.strategy, bal)
			}
		case *IPHash:
			if _, ok := bal.(*IPHash); !ok {
				t.Errorf("strategy %q: expected *IPHash, got %T", c.strategy, bal)
			}
		}
	}
}

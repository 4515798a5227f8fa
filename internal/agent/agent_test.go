package agent

import "testing"

func TestParseServerAddress(t *testing.T) {
	cases := []struct {
		name string
		in   string
		host string
		port int
		ok   bool
	}{
		{"bare host port", "sip.example.com:5060", "sip.example.com", 5060, true},
		{"bare host", "sip.example.com", "sip.example.com", 0, true},
		{"sip scheme", "sip:sip.example.com:5060", "sip.example.com", 5060, true},
		{"sips scheme", "sips:sip.example.com:5061", "sip.example.com", 5061, true},
		{"wss with path", "wss://sip.example.com:7443/ws", "sip.example.com", 7443, true},
		{"ws with path", "ws://sip.example.com:8088/sip", "sip.example.com", 8088, true},
		{"bracketed v6 with port", "[::1]:5070", "::1", 5070, true},
		{"bare v6", "2001:db8::10", "2001:db8::10", 0, true},
		{"empty", "", "", 0, false},
		{"bad port", "sip.example.com:abc", "", 0, false},
		{"port only", ":5060", "", 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			host, port, err := parseServerAddress(tc.in)
			if tc.ok != (err == nil) {
				t.Fatalf("parseServerAddress(%q) error = %v, want ok=%v", tc.in, err, tc.ok)
			}
			if !tc.ok {
				return
			}
			if host != tc.host || port != tc.port {
				t.Fatalf("parseServerAddress(%q) = %q:%d, want %q:%d", tc.in, host, port, tc.host, tc.port)
			}
		})
	}
}

func TestNewRejectsMalformedIdentity(t *testing.T) {
	cfg := testConfig
	cfg.Identity = "ram@"
	if _, err := New(cfg, "127.0.0.1:5070"); err == nil {
		t.Fatal("malformed identity accepted")
	}
}

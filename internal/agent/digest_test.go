package agent

import (
	"regexp"
	"strings"
	"testing"

	"clearcall/internal/models"
)

var responseParam = regexp.MustCompile(`response="[0-9a-f]{32}"`)

func challengedAgent() *Agent {
	return &Agent{config: models.SignalingConfig{Identity: "ram", Credential: "ram123"}}
}

func TestAuthorizationAnswersPlainChallenge(t *testing.T) {
	a := challengedAgent()
	auth, err := a.authorizationFor("REGISTER", "sip:sip.example.com:5060",
		`Digest realm="clearcall", nonce="abc123", algorithm=MD5`)
	if err != nil {
		t.Fatalf("authorizationFor: %v", err)
	}
	for _, want := range []string{
		`username="ram"`,
		`realm="clearcall"`,
		`nonce="abc123"`,
		`uri="sip:sip.example.com:5060"`,
	} {
		if !strings.Contains(auth, want) {
			t.Fatalf("authorization missing %s: %s", want, auth)
		}
	}
	if !responseParam.MatchString(auth) {
		t.Fatalf("no MD5 response in %s", auth)
	}
}

func TestAuthorizationAnswersQopChallenge(t *testing.T) {
	a := challengedAgent()
	auth, err := a.authorizationFor("REGISTER", "sip:sip.example.com:5060",
		`Digest realm="clearcall", nonce="abc123", qop="auth", algorithm=MD5`)
	if err != nil {
		t.Fatalf("authorizationFor: %v", err)
	}
	if !strings.Contains(auth, "qop=auth") {
		t.Fatalf("qop not echoed: %s", auth)
	}
	if !strings.Contains(auth, "cnonce=") || !strings.Contains(auth, "nc=") {
		t.Fatalf("qop answer missing cnonce/nc: %s", auth)
	}
}

func TestAuthorizationRejectsGarbageChallenge(t *testing.T) {
	a := challengedAgent()
	if _, err := a.authorizationFor("REGISTER", "sip:x", "not a challenge"); err == nil {
		t.Fatal("garbage challenge accepted")
	}
}

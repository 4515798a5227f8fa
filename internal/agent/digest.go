package agent

import (
	"context"
	"fmt"

	"github.com/emiago/sipgo/sip"
	"github.com/icholy/digest"
)

// answerChallenge retries a challenged request with an Authorization
// header for the configured credential, the way sipgo clients answer
// 401/407 digest challenges.
func (a *Agent) answerChallenge(ctx context.Context, req *sip.Request, res *sip.Response) (*sip.Response, error) {
	header := res.GetHeader("WWW-Authenticate")
	if header == nil {
		header = res.GetHeader("Proxy-Authenticate")
	}
	if header == nil {
		return nil, fmt.Errorf("challenge without authenticate header")
	}

	auth, err := a.authorizationFor(string(req.Method), req.Recipient.String(), header.Value())
	if err != nil {
		return nil, err
	}

	retry := sip.NewRequest(req.Method, req.Recipient)
	sip.CopyHeaders("From", req, retry)
	sip.CopyHeaders("To", req, retry)
	sip.CopyHeaders("Call-ID", req, retry)
	sip.CopyHeaders("Contact", req, retry)
	sip.CopyHeaders("Max-Forwards", req, retry)
	sip.CopyHeaders("Expires", req, retry)
	retry.AppendHeader(&sip.CSeqHeader{SeqNo: req.CSeq().SeqNo + 1, MethodName: req.Method})
	retry.AppendHeader(sip.NewHeader("Authorization", auth))
	if req.Body() != nil {
		retry.SetBody(req.Body())
	}
	return a.do(ctx, retry)
}

// authorizationFor computes the Authorization header value answering the
// given challenge for the configured identity and credential.
func (a *Agent) authorizationFor(method, uri, challenge string) (string, error) {
	chal, err := digest.ParseChallenge(challenge)
	if err != nil {
		return "", fmt.Errorf("parse challenge: %w", err)
	}
	cred, err := digest.Digest(chal, digest.Options{
		Method:   method,
		URI:      uri,
		Username: a.config.Identity,
		Password: a.config.Credential,
	})
	if err != nil {
		return "", fmt.Errorf("compute digest: %w", err)
	}
	return cred.String(), nil
}

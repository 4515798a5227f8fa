package agent

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/emiago/sipgo/sip"
	"github.com/google/uuid"
)

// OutboundLeg is one in-flight INVITE client transaction, the "inviter"
// side of a session.
type OutboundLeg struct {
	agent  *Agent
	req    *sip.Request
	tx     sip.ClientTransaction
	target sip.Uri
	peer   string

	mu       sync.Mutex
	answered bool
	remoteTo *sip.ToHeader
}

// ID returns the dialog Call-ID.
func (l *OutboundLeg) ID() string { return l.req.CallID().Value() }

// Peer returns the dialed identity.
func (l *OutboundLeg) Peer() string { return l.peer }

// WaitAnswer blocks until the far end produces a final response. On 2xx it
// acknowledges the dialog and returns the answer body; provisional
// responses only mark progress.
func (l *OutboundLeg) WaitAnswer(ctx context.Context) ([]byte, error) {
	defer l.tx.Terminate()
	for {
		select {
		case res, ok := <-l.tx.Responses():
			if !ok || res == nil {
				return nil, fmt.Errorf("invite: response channel closed")
			}
			if res.StatusCode < 200 {
				if res.StatusCode == 180 {
					log.Printf("[Agent] ← 180 Ringing (CallID: %s)", l.ID())
				}
				continue
			}
			if res.StatusCode >= 300 {
				return nil, fmt.Errorf("invite rejected: %d %s", res.StatusCode, res.Reason)
			}
			if err := l.ack(res); err != nil {
				return nil, err
			}
			l.mu.Lock()
			l.answered = true
			l.remoteTo = res.To()
			l.mu.Unlock()
			return res.Body(), nil
		case <-l.tx.Done():
			return nil, fmt.Errorf("invite: transaction done before final response")
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (l *OutboundLeg) ack(res *sip.Response) error {
	ack := sip.NewRequest(sip.ACK, l.target)
	sip.CopyHeaders("From", l.req, ack)
	sip.CopyHeaders("Call-ID", l.req, ack)
	if to := res.To(); to != nil {
		ack.AppendHeader(to)
	}
	ack.AppendHeader(&sip.CSeqHeader{SeqNo: l.req.CSeq().SeqNo, MethodName: sip.ACK})
	maxFwd := sip.MaxForwardsHeader(70)
	ack.AppendHeader(&maxFwd)
	if err := l.agent.client.WriteRequest(ack); err != nil {
		return fmt.Errorf("ack: %w", err)
	}
	return nil
}

// Hangup ends the leg from the caller's side: a BYE once answered, plain
// transaction teardown while still establishing.
func (l *OutboundLeg) Hangup(ctx context.Context) error {
	l.mu.Lock()
	answered := l.answered
	remoteTo := l.remoteTo
	l.mu.Unlock()

	if !answered {
		l.tx.Terminate()
		return nil
	}
	to := &sip.ToHeader{Address: sip.Uri{User: l.peer, Host: l.agent.config.Domain}}
	if remoteTo != nil {
		to = remoteTo
	}
	return l.agent.sendBye(ctx, l.target, l.req.From(), to, l.ID(), l.req.CSeq().SeqNo+1)
}

// InboundLeg is one pending inbound INVITE, the "invitation" side of a
// session. The server transaction stays open until Accept or Reject.
type InboundLeg struct {
	agent *Agent
	req   *sip.Request
	tx    sip.ServerTransaction

	peer   string
	target sip.Uri
	localTag string

	done     chan struct{}
	once     sync.Once
	mu       sync.Mutex
	accepted bool
}

func newInboundLeg(a *Agent, req *sip.Request, tx sip.ServerTransaction) *InboundLeg {
	target := req.From().Address
	if c := req.Contact(); c != nil {
		target = c.Address
	}
	return &InboundLeg{
		agent:    a,
		req:      req,
		tx:       tx,
		peer:     req.From().Address.User,
		target:   target,
		localTag: uuid.NewString()[:8],
		done:     make(chan struct{}),
	}
}

// ID returns the dialog Call-ID.
func (l *InboundLeg) ID() string { return l.req.CallID().Value() }

// Peer returns the caller identity (user part of the From address).
func (l *InboundLeg) Peer() string { return l.peer }

// Offer returns the session-description payload carried by the invite.
func (l *InboundLeg) Offer() []byte { return l.req.Body() }

// Ring signals provisional progress to the caller.
func (l *InboundLeg) Ring() {
	res := sip.NewResponseFromRequest(l.req, 180, "Ringing", nil)
	l.tx.Respond(res)
}

// Accept answers the invite with the negotiated body.
func (l *InboundLeg) Accept(answer []byte) error {
	res := sip.NewResponseFromRequest(l.req, 200, "OK", answer)
	if to := res.To(); to != nil && to.Params != nil {
		to.Params.Add("tag", l.localTag)
	}
	res.AppendHeader(&sip.ContactHeader{Address: l.agent.contact})
	res.AppendHeader(sip.NewHeader("Content-Type", "application/sdp"))
	if err := l.tx.Respond(res); err != nil {
		return fmt.Errorf("accept: %w", err)
	}
	l.mu.Lock()
	l.accepted = true
	l.mu.Unlock()
	l.finish()
	return nil
}

// Reject answers the invite with a final failure, e.g. 486 Busy Here for
// the extra offer that would break the single-call-slot rule, or 603
// Decline for an explicit user decline.
func (l *InboundLeg) Reject(code int, reason string) error {
	res := sip.NewResponseFromRequest(l.req, sip.StatusCode(code), reason, nil)
	err := l.tx.Respond(res)
	l.finish()
	if err != nil {
		return fmt.Errorf("reject %d: %w", code, err)
	}
	return nil
}

// Hangup ends the leg from the callee's side: a BYE once accepted, a
// decline while still pending.
func (l *InboundLeg) Hangup(ctx context.Context) error {
	l.mu.Lock()
	accepted := l.accepted
	l.mu.Unlock()
	if !accepted {
		return l.Reject(603, "Decline")
	}

	// Dialog direction reverses: our To identity becomes the From of the
	// BYE, tagged as in the 200.
	from := &sip.FromHeader{Address: l.agent.identity, Params: sip.NewParams()}
	from.Params.Add("tag", l.localTag)
	to := &sip.ToHeader{Address: l.req.From().Address, Params: sip.NewParams()}
	if tag, ok := l.req.From().Params.Get("tag"); ok {
		to.Params.Add("tag", tag)
	}
	return l.agent.sendBye(ctx, l.target, from, to, l.ID(), 1)
}

func (l *InboundLeg) finish() {
	l.once.Do(func() { close(l.done) })
}

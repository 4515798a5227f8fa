package agent

import (
	"context"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"clearcall/internal/models"
	"clearcall/pkg/utils"

	"github.com/emiago/sipgo"
	"github.com/emiago/sipgo/sip"
	"github.com/google/uuid"
)

// ringTimeout bounds how long an unanswered inbound invite is held before
// the far end gets a final response.
const ringTimeout = 40 * time.Second

// Agent is the process-side signaling endpoint: one sipgo user agent bound
// to one identity, client transactions for REGISTER/INVITE/BYE and server
// handlers for the inbound leg. One agent exists per configuration; the
// registration manager owns its lifecycle.
type Agent struct {
	ua     *sipgo.UserAgent
	server *sipgo.Server
	client *sipgo.Client

	config     models.SignalingConfig
	serverURI  sip.Uri
	identity   sip.Uri
	contact    sip.Uri
	registered atomic.Bool

	onInvite     func(*InboundLeg)
	onSessionEnd func(callID string)
}

// New validates the configuration and constructs the agent. A malformed
// identity is fatal to the configuration attempt: the caller reports it
// and no session activity proceeds until reconfigured.
func New(cfg models.SignalingConfig, listenAddr string) (*Agent, error) {
	if cfg.Identity == "" || strings.ContainsAny(cfg.Identity, "@ \t") {
		return nil, fmt.Errorf("malformed identity %q", cfg.Identity)
	}
	if cfg.Domain == "" {
		return nil, fmt.Errorf("missing signaling domain")
	}
	serverHost, serverPort, err := parseServerAddress(cfg.ServerAddress)
	if err != nil {
		return nil, fmt.Errorf("malformed server address %q: %w", cfg.ServerAddress, err)
	}
	contactHost, contactPort, err := splitHostPort(listenAddr)
	if err != nil {
		return nil, fmt.Errorf("malformed listen address %q: %w", listenAddr, err)
	}

	ua, err := sipgo.NewUA(
		sipgo.WithUserAgent("ClearCall/1.0"),
	)
	if err != nil {
		return nil, fmt.Errorf("user agent: %w", err)
	}
	server, err := sipgo.NewServer(ua)
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}
	client, err := sipgo.NewClient(ua)
	if err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}

	a := &Agent{
		ua:     ua,
		server: server,
		client: client,
		config: cfg,
	}
	a.serverURI = sip.Uri{Host: serverHost, Port: serverPort, UriParams: sip.NewParams()}
	a.serverURI.UriParams.Add("transport", "tcp")
	a.identity = sip.Uri{User: cfg.Identity, Host: cfg.Domain}
	a.contact = sip.Uri{User: cfg.Identity, Host: contactHost, Port: contactPort}
	return a, nil
}

// SetInviteHandler installs the inbound-offer delegate. Without a handler
// inbound invites are answered 480.
func (a *Agent) SetInviteHandler(h func(*InboundLeg)) { a.onInvite = h }

// SetSessionEndHandler installs the callback fired when the remote side
// ends a session (BYE or CANCEL), keyed by Call-ID.
func (a *Agent) SetSessionEndHandler(h func(callID string)) { a.onSessionEnd = h }

// Serve binds the inbound handlers and listens until ctx is cancelled.
func (a *Agent) Serve(ctx context.Context, network, addr string) error {
	a.server.OnInvite(a.onInviteReq)
	a.server.OnBye(a.onByeReq)
	a.server.OnCancel(a.onCancelReq)
	a.server.OnAck(a.onAckReq)
	a.server.OnOptions(a.onOptionsReq)

	log.Printf("[Agent] %s listening on %s (%s)", a.identity.String(), addr, network)
	return a.server.ListenAndServe(ctx, network, addr)
}

// Registered reports whether the last registration attempt succeeded.
func (a *Agent) Registered() bool { return a.registered.Load() }

func (a *Agent) setRegistered(on bool) { a.registered.Store(on) }

// Identity returns the configured identity (user part).
func (a *Agent) Identity() string { return a.config.Identity }

// Close releases the underlying user agent. Safe to call even when the
// agent never served.
func (a *Agent) Close() error {
	a.setRegistered(false)
	if a.ua == nil {
		return nil
	}
	return a.ua.Close()
}

// ─── Client side ─────────────────────────────────────────────────

// Register issues a REGISTER transaction against the configured server,
// answering a digest challenge with the configured credential.
func (a *Agent) Register(ctx context.Context, expires int) error {
	req := a.newRequest(sip.REGISTER, a.serverURI, a.identity)
	req.AppendHeader(sip.NewHeader("Expires", fmt.Sprintf("%d", expires)))
	res, err := a.do(ctx, req)
	if err != nil {
		return err
	}
	if res.StatusCode == 401 || res.StatusCode == 407 {
		res, err = a.answerChallenge(ctx, req, res)
		if err != nil {
			return err
		}
	}
	if res.StatusCode != 200 {
		return fmt.Errorf("registration rejected: %d %s", res.StatusCode, res.Reason)
	}
	utils.RegistrationsTotal.Inc()
	log.Printf("[Agent] ✓ Registered %s at %s", a.identity.String(), a.config.ServerAddress)
	return nil
}

// Unregister is best-effort: a zero-expires REGISTER, errors only logged
// by the caller. Teardown must proceed regardless of the outcome.
func (a *Agent) Unregister(ctx context.Context) error {
	return a.Register(ctx, 0)
}

// Invite sends an outbound INVITE carrying the offer body and returns the
// in-flight leg. The caller awaits the final response via WaitAnswer.
func (a *Agent) Invite(ctx context.Context, target string, offer []byte) (*OutboundLeg, error) {
	if target == "" || strings.ContainsAny(target, "@ \t") {
		return nil, fmt.Errorf("malformed target %q", target)
	}
	// Route through the signaling server, teacher-proxy style: request
	// URI host is the server, the To header carries the AOR.
	dest := sip.Uri{User: target, Host: a.serverURI.Host, Port: a.serverURI.Port, UriParams: sip.NewParams()}
	dest.UriParams.Add("transport", "tcp")
	to := sip.Uri{User: target, Host: a.config.Domain}

	req := a.newRequest(sip.INVITE, dest, to)
	req.AppendHeader(sip.NewHeader("Content-Type", "application/sdp"))
	req.SetBody(offer)

	tx, err := a.client.TransactionRequest(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("send invite: %w", err)
	}
	utils.SipRequestsTotal.WithLabelValues("INVITE").Inc()
	log.Printf("[Agent] INVITE %s -> %s (CallID: %s)", a.identity.String(), to.String(), req.CallID().Value())
	return &OutboundLeg{agent: a, req: req, tx: tx, target: dest, peer: target}, nil
}

// do runs one non-INVITE client transaction to its final response.
func (a *Agent) do(ctx context.Context, req *sip.Request) (*sip.Response, error) {
	tx, err := a.client.TransactionRequest(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("send %s: %w", req.Method, err)
	}
	defer tx.Terminate()
	utils.SipRequestsTotal.WithLabelValues(string(req.Method)).Inc()

	for {
		select {
		case res, ok := <-tx.Responses():
			if !ok || res == nil {
				return nil, fmt.Errorf("%s: response channel closed", req.Method)
			}
			if res.StatusCode < 200 {
				continue
			}
			return res, nil
		case <-tx.Done():
			return nil, fmt.Errorf("%s: transaction timed out", req.Method)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// newRequest builds a request with the dialog-forming headers in place.
// The transport layer appends Via on send.
func (a *Agent) newRequest(method sip.RequestMethod, recipient sip.Uri, to sip.Uri) *sip.Request {
	req := sip.NewRequest(method, recipient)

	from := &sip.FromHeader{Address: a.identity, Params: sip.NewParams()}
	from.Params.Add("tag", uuid.NewString()[:8])
	req.AppendHeader(from)
	req.AppendHeader(&sip.ToHeader{Address: to})
	callID := sip.CallIDHeader(uuid.NewString())
	req.AppendHeader(&callID)
	req.AppendHeader(&sip.CSeqHeader{SeqNo: 1, MethodName: method})
	req.AppendHeader(&sip.ContactHeader{Address: a.contact})
	maxFwd := sip.MaxForwardsHeader(70)
	req.AppendHeader(&maxFwd)
	return req
}

// sendBye terminates a confirmed dialog. Used by both legs.
func (a *Agent) sendBye(ctx context.Context, target sip.Uri, from *sip.FromHeader, to *sip.ToHeader, callID string, seq uint32) error {
	req := sip.NewRequest(sip.BYE, target)
	req.AppendHeader(from)
	req.AppendHeader(to)
	cid := sip.CallIDHeader(callID)
	req.AppendHeader(&cid)
	req.AppendHeader(&sip.CSeqHeader{SeqNo: seq, MethodName: sip.BYE})
	maxFwd := sip.MaxForwardsHeader(70)
	req.AppendHeader(&maxFwd)

	res, err := a.do(ctx, req)
	if err != nil {
		return err
	}
	if res.StatusCode >= 300 {
		return fmt.Errorf("bye rejected: %d %s", res.StatusCode, res.Reason)
	}
	return nil
}

// ─── Server side ─────────────────────────────────────────────────

// onInviteReq keeps the server transaction alive until the delegate has
// produced a final response, so accept/reject can happen seconds later.
func (a *Agent) onInviteReq(req *sip.Request, tx sip.ServerTransaction) {
	from := req.From().Address
	callID := req.CallID().Value()
	log.Printf("[Agent] Inbound INVITE %s -> %s (CallID: %s)", from.String(), a.identity.String(), callID)
	utils.SipRequestsTotal.WithLabelValues("INVITE").Inc()

	trying := sip.NewResponseFromRequest(req, 100, "Trying", nil)
	tx.Respond(trying)

	handler := a.onInvite
	if handler == nil {
		res := sip.NewResponseFromRequest(req, 480, "Temporarily Unavailable", nil)
		tx.Respond(res)
		return
	}

	leg := newInboundLeg(a, req, tx)
	handler(leg)

	// Block here: returning would tear down the server transaction while
	// the offer is still pending.
	select {
	case <-leg.done:
	case <-time.After(ringTimeout):
		log.Printf("[Agent] Ring timeout for %s", callID)
		leg.Reject(480, "Temporarily Unavailable")
		a.endSession(callID)
	case <-tx.Done():
	}
}

func (a *Agent) onByeReq(req *sip.Request, tx sip.ServerTransaction) {
	callID := req.CallID().Value()
	log.Printf("[Agent] BYE (CallID: %s)", callID)
	res := sip.NewResponseFromRequest(req, 200, "OK", nil)
	tx.Respond(res)
	a.endSession(callID)
}

func (a *Agent) onCancelReq(req *sip.Request, tx sip.ServerTransaction) {
	callID := req.CallID().Value()
	log.Printf("[Agent] CANCEL (CallID: %s)", callID)
	res := sip.NewResponseFromRequest(req, 200, "OK", nil)
	tx.Respond(res)
	a.endSession(callID)
}

func (a *Agent) onAckReq(req *sip.Request, tx sip.ServerTransaction) {
	log.Printf("[Agent] ACK (CallID: %s)", req.CallID().Value())
}

func (a *Agent) onOptionsReq(req *sip.Request, tx sip.ServerTransaction) {
	res := sip.NewResponseFromRequest(req, 200, "OK", nil)
	tx.Respond(res)
}

func (a *Agent) endSession(callID string) {
	if h := a.onSessionEnd; h != nil {
		h(callID)
	}
}

// ─── Address parsing ─────────────────────────────────────────────

// parseServerAddress accepts either host:port or the websocket-style URLs
// the provisioning side hands out (wss://host:port/ws).
func parseServerAddress(addr string) (string, int, error) {
	s := addr
	for _, scheme := range []string{"wss://", "ws://", "sips:", "sip:"} {
		s = strings.TrimPrefix(s, scheme)
	}
	if idx := strings.Index(s, "/"); idx >= 0 {
		s = s[:idx]
	}
	if s == "" {
		return "", 0, fmt.Errorf("empty address")
	}
	return splitHostPort(s)
}

func splitHostPort(s string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		// No port. Bare IPv6 literals land here too (too many colons),
		// with or without brackets.
		host = strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
		if host == "" {
			return "", 0, fmt.Errorf("missing host in %q", s)
		}
		return host, 0, nil
	}
	if host == "" {
		return "", 0, fmt.Errorf("missing host in %q", s)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 0 {
		return "", 0, fmt.Errorf("bad port in %q", s)
	}
	return host, port, nil
}

package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"clearcall/internal/agent"
	"clearcall/internal/api"
	"clearcall/internal/callsync"
	"clearcall/internal/directory"
	"clearcall/internal/history"
	"clearcall/internal/media"
	"clearcall/internal/models"
	"clearcall/internal/session"

	"github.com/go-redis/redis/v8"
)

// signaler adapts the concrete agent to the controller's interface.
type signaler struct{ a *agent.Agent }

func (s signaler) Invite(ctx context.Context, target string, offer []byte) (session.Outbound, error) {
	return s.a.Invite(ctx, target, offer)
}
func (s signaler) Registered() bool { return s.a.Registered() }

func main() {
	var (
		httpAddr   = flag.String("http", ":8080", "HTTP API listen address")
		sipListen  = flag.String("sip-listen", "0.0.0.0:5070", "SIP listen address for the agent")
		sipNetwork = flag.String("sip-network", "tcp", "SIP transport network")
		sipServer  = flag.String("sip-server", "localhost:5060", "signaling server address")
		sipDomain  = flag.String("sip-domain", "clearcall.local", "SIP domain")
		redisAddr  = flag.String("redis", "localhost:6379", "redis address (empty for in-memory history)")
		selfUser   = flag.String("user", "ram", "which seeded user this instance runs as")
		iceServers = flag.String("ice", "stun:stun.l.google.com:19302", "comma-separated ICE server URLs")
	)
	flag.Parse()

	// Roster, seeded for the demo deployment. Presence refresh keeps the
	// statuses current once redis is up.
	dir := directory.New()
	seed := []models.User{
		{ID: "1", Name: "Ram", Username: "ram", Password: "ram123", Status: models.StatusOnline},
		{ID: "2", Name: "Jitendra", Username: "jitendra", Password: "jitendra123", Status: models.StatusOnline},
		{ID: "3", Name: "Harsh", Username: "harsh", Password: "harsh123", Status: models.StatusOffline},
		{ID: "4", Name: "John", Username: "john", Password: "john123", Status: models.StatusAway},
	}
	for _, u := range seed {
		dir.Put(u)
	}
	self, ok := dir.ByIdentity(*selfUser)
	if !ok {
		log.Fatalf("unknown -user %q", *selfUser)
	}

	// History + presence live in redis when available.
	var store history.Store
	var rdb *redis.Client
	if *redisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: *redisAddr})
		store = history.NewRedisStoreFromClient(rdb)
	} else {
		store = history.NewMemoryStore()
	}

	engine := media.NewEngine(strings.Split(*iceServers, ","))
	ctl := session.NewController(media.NewWebRTCSource(), engine)

	mgr := agent.NewManager(*sipNetwork, *sipListen)
	mgr.OnInvite(func(l *agent.InboundLeg) { ctl.HandleInbound(l) })
	mgr.OnSessionEnd(ctl.HandleRemoteEnd)
	mgr.OnAgent(func(a *agent.Agent) {
		if a == nil {
			ctl.SetSignaler(nil)
		} else {
			ctl.SetSignaler(signaler{a})
		}
	})

	hub := api.NewHub()
	sync := callsync.New(self, dir, store, ctl, hub)
	sync.Attach(ctl)
	mgr.OnState(sync.OnRegistrationState)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if rdb != nil {
		go directory.NewRefresher(rdb, dir, self.ID).Run(ctx)
	}

	configFor := func(u models.User) models.SignalingConfig {
		return models.SignalingConfig{
			ServerAddress: *sipServer,
			Identity:      u.Username,
			Credential:    u.Password,
			Domain:        *sipDomain,
		}
	}
	server := api.NewServer(dir, sync, mgr, store, hub, configFor)

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Printf("=== ClearCall Softphone (%s) ===", self.Name)
		log.Printf("HTTP API on %s", *httpAddr)
		if err := server.Start(*httpAddr); err != nil {
			log.Fatalf("API failed: %v", err)
		}
	}()

	<-sigCh
	log.Println("Shutting down agent and API...")
	mgr.Close(ctx)
	cancel()
}

package gateway

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"testing"

	"github.com/dnsops/zonebot/internal/assistant"
	"github.com/dnsops/zonebot/internal/health"
	"github.com/dnsops/zonebot/internal/ultradns"
)

type fakeSessions struct {
	converseCalls   int
	converseChannel string
	converseText    string

	injectCalls     int
	injectChannel   string
	injectAssistant string
	injectPayload   string
	injectPrompt    string

	reply string
	err   error
}

func (f *fakeSessions) Converse(_ context.Context, channel, text string) (string, error) {
	f.converseCalls++
	f.converseChannel = channel
	f.converseText = text
	return f.reply, f.err
}

func (f *fakeSessions) InjectAndConverse(_ context.Context, channel, assistantID, payload, prompt string) (string, error) {
	f.injectCalls++
	f.injectChannel = channel
	f.injectAssistant = assistantID
	f.injectPayload = payload
	f.injectPrompt = prompt
	return f.reply, f.err
}

type fakeDNS struct {
	zoneCalls   int
	healthCalls int
	statusCalls int

	zoneResults   []ultradns.ZoneFetchResult
	healthResults []ultradns.ZoneFetchResult
	statusFeed    string
	err           error
}

func (f *fakeDNS) FetchZoneFiles(_ context.Context, names []string) ([]ultradns.ZoneFetchResult, error) {
	f.zoneCalls++
	return f.zoneResults, f.err
}

func (f *fakeDNS) FetchHealthChecks(_ context.Context, names []string) ([]ultradns.ZoneFetchResult, error) {
	f.healthCalls++
	return f.healthResults, f.err
}

func (f *fakeDNS) FetchSystemStatus(_ context.Context) (string, error) {
	f.statusCalls++
	return f.statusFeed, f.err
}

const (
	analyzerID = "asst_aaaaaaaaaaaaaaaaaaaaaaaa"
	healthID   = "asst_bbbbbbbbbbbbbbbbbbbbbbbb"
	helperID   = "asst_cccccccccccccccccccccccc"
	statusID   = "asst_dddddddddddddddddddddddd"
)

func testGateway(sessions *fakeSessions, dns *fakeDNS) *Gateway {
	return New(Config{
		Sessions: sessions,
		DNS:      dns,
		Registry: &assistant.Registry{
			ZoneAnalyzer:    analyzerID,
			ZoneHealthcheck: healthID,
			DNSHelper:       helperID,
			SystemStatus:    statusID,
		},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestParseZones(t *testing.T) {
	tests := []struct {
		raw  string
		want []string
	}{
		{"a.com, b.com ,c.com", []string{"a.com", "b.com", "c.com"}},
		{"one.example", []string{"one.example"}},
		{" a.com ,, b.com ", []string{"a.com", "b.com"}},
		{"", nil},
		{",", nil},
		{" , , ", nil},
	}
	for _, tt := range tests {
		got := parseZones(tt.raw)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("parseZones(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestRouteAnalyzeCommand(t *testing.T) {
	sessions := &fakeSessions{reply: "looks clean"}
	dns := &fakeDNS{zoneResults: []ultradns.ZoneFetchResult{
		{Name: "a.com", Status: ultradns.StatusOK, Content: "$ORIGIN a.com.\n"},
		{Name: "b.com", Status: ultradns.StatusOK, Content: "$ORIGIN b.com.\n"},
	}}
	g := testGateway(sessions, dns)

	reply, err := g.Route(context.Background(), Event{
		Channel: "C1",
		Text:    "a.com, b.com",
		Command: "/analyze-zone-file",
		Kind:    KindCommand,
	})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if reply != "looks clean" {
		t.Errorf("reply = %q, want %q", reply, "looks clean")
	}
	if dns.zoneCalls != 1 {
		t.Errorf("zoneCalls = %d, want 1", dns.zoneCalls)
	}
	if sessions.injectAssistant != analyzerID {
		t.Errorf("assistant = %q, want %q", sessions.injectAssistant, analyzerID)
	}
	if sessions.injectChannel != "C1" {
		t.Errorf("channel = %q, want C1", sessions.injectChannel)
	}
	for _, want := range []string{"=== zone: a.com ===", "=== zone: b.com ===", "$ORIGIN a.com."} {
		if !strings.Contains(sessions.injectPayload, want) {
			t.Errorf("payload missing %q:\n%s", want, sessions.injectPayload)
		}
	}
}

func TestRouteAnalyzePartialFailure(t *testing.T) {
	sessions := &fakeSessions{reply: "analysis"}
	dns := &fakeDNS{zoneResults: []ultradns.ZoneFetchResult{
		{Name: "good.com", Status: ultradns.StatusOK, Content: "zone data"},
		{Name: "missing.com", Status: ultradns.StatusNotFound},
	}}
	g := testGateway(sessions, dns)

	reply, err := g.Route(context.Background(), Event{
		Channel: "C1",
		Text:    "good.com, missing.com",
		Command: "/analyze-zone-file",
		Kind:    KindCommand,
	})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if !strings.Contains(reply, "missing.com") || !strings.Contains(reply, "not found") {
		t.Errorf("reply missing failure line: %q", reply)
	}
	if !strings.Contains(reply, "analysis") {
		t.Errorf("reply missing assistant answer: %q", reply)
	}
	for _, want := range []string{"=== unresolved zones ===", "missing.com: not found"} {
		if !strings.Contains(sessions.injectPayload, want) {
			t.Errorf("payload missing %q:\n%s", want, sessions.injectPayload)
		}
	}
	if strings.Contains(sessions.injectPayload, "=== zone: missing.com ===") {
		t.Errorf("failed zone must not get a content block:\n%s", sessions.injectPayload)
	}
}

func TestRouteAnalyzeAllFailed(t *testing.T) {
	sessions := &fakeSessions{reply: "should not be used"}
	dns := &fakeDNS{zoneResults: []ultradns.ZoneFetchResult{
		{Name: "a.com", Status: ultradns.StatusNotFound},
		{Name: "b.com", Status: ultradns.StatusError, Err: errors.New("boom")},
	}}
	g := testGateway(sessions, dns)

	reply, err := g.Route(context.Background(), Event{
		Channel: "C1",
		Text:    "a.com, b.com",
		Command: "/analyze-zone-file",
		Kind:    KindCommand,
	})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if sessions.injectCalls != 0 {
		t.Errorf("injectCalls = %d, want 0 when nothing resolved", sessions.injectCalls)
	}
	if !strings.Contains(reply, "a.com") || !strings.Contains(reply, "b.com") {
		t.Errorf("reply should list every failed zone: %q", reply)
	}
}

func TestRouteAnalyzeEmptyArguments(t *testing.T) {
	sessions := &fakeSessions{}
	dns := &fakeDNS{}
	g := testGateway(sessions, dns)

	for _, raw := range []string{"", ",", "  ,  "} {
		reply, err := g.Route(context.Background(), Event{
			Channel: "C1",
			Text:    raw,
			Command: "/analyze-zone-file",
			Kind:    KindCommand,
		})
		var argErr *ArgumentError
		if !errors.As(err, &argErr) {
			t.Fatalf("Route(%q) err = %v, want ArgumentError", raw, err)
		}
		if reply != analyzeUsage {
			t.Errorf("Route(%q) reply = %q, want usage line", raw, reply)
		}
	}
	if dns.zoneCalls != 0 {
		t.Errorf("zoneCalls = %d, want 0", dns.zoneCalls)
	}
}

func TestRouteHealthCheckCommand(t *testing.T) {
	sessions := &fakeSessions{reply: "all healthy"}
	dns := &fakeDNS{healthResults: []ultradns.ZoneFetchResult{
		{Name: "a.com", Status: ultradns.StatusOK, Content: `{"state":"COMPLETED"}`},
	}}
	g := testGateway(sessions, dns)

	reply, err := g.Route(context.Background(), Event{
		Channel: "C2",
		Text:    "a.com",
		Command: "/zone-health-check",
		Kind:    KindCommand,
	})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if reply != "all healthy" {
		t.Errorf("reply = %q, want %q", reply, "all healthy")
	}
	if dns.healthCalls != 1 || dns.zoneCalls != 0 {
		t.Errorf("healthCalls = %d, zoneCalls = %d; want 1, 0", dns.healthCalls, dns.zoneCalls)
	}
	if sessions.injectAssistant != healthID {
		t.Errorf("assistant = %q, want %q", sessions.injectAssistant, healthID)
	}
}

func TestRouteSystemStatusCommand(t *testing.T) {
	sessions := &fakeSessions{reply: "all systems go"}
	dns := &fakeDNS{statusFeed: `{"status":{"indicator":"none"}}`}
	g := testGateway(sessions, dns)

	reply, err := g.Route(context.Background(), Event{
		Channel: "C3",
		Command: "/udns-system-status",
		Kind:    KindCommand,
	})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if reply != "all systems go" {
		t.Errorf("reply = %q, want %q", reply, "all systems go")
	}
	if sessions.injectAssistant != statusID {
		t.Errorf("assistant = %q, want %q", sessions.injectAssistant, statusID)
	}
	if sessions.injectPayload != dns.statusFeed {
		t.Errorf("payload = %q, want the raw status feed", sessions.injectPayload)
	}
}

type fakeHealth struct {
	checks []health.Check
}

func (f *fakeHealth) Checks() []health.Check { return f.checks }

func TestRouteSystemStatusConnectivityLine(t *testing.T) {
	sessions := &fakeSessions{reply: "provider reports all green"}
	dns := &fakeDNS{statusFeed: `{}`}

	g := New(Config{
		Sessions: sessions,
		DNS:      dns,
		Registry: &assistant.Registry{SystemStatus: statusID},
		Health: &fakeHealth{checks: []health.Check{
			{Name: "slack", OK: true},
			{Name: "ultradns", OK: false, Error: "401"},
		}},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	reply, err := g.Route(context.Background(), Event{
		Channel: "C1",
		Command: "/udns-system-status",
		Kind:    KindCommand,
	})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if !strings.Contains(reply, "provider reports all green") {
		t.Errorf("reply missing assistant answer: %q", reply)
	}
	if !strings.Contains(reply, "slack ok") || !strings.Contains(reply, "ultradns unreachable") {
		t.Errorf("reply missing connectivity line: %q", reply)
	}
}

func TestRouteUnknownCommand(t *testing.T) {
	g := testGateway(&fakeSessions{}, &fakeDNS{})

	reply, err := g.Route(context.Background(), Event{
		Channel: "C1",
		Command: "/frobnicate",
		Kind:    KindCommand,
	})
	if !errors.Is(err, ErrUnsupportedCommand) {
		t.Fatalf("err = %v, want ErrUnsupportedCommand", err)
	}
	if !strings.Contains(reply, "/analyze-zone-file") {
		t.Errorf("reply should point at the known commands: %q", reply)
	}
}

func TestRouteMention(t *testing.T) {
	sessions := &fakeSessions{reply: "an SOA is..."}
	g := testGateway(sessions, &fakeDNS{})

	reply, err := g.Route(context.Background(), Event{
		Channel: "C1",
		Text:    "what is an SOA record?",
		Kind:    KindMention,
	})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if reply != "an SOA is..." {
		t.Errorf("reply = %q", reply)
	}
	if sessions.converseChannel != "C1" || sessions.converseText != "what is an SOA record?" {
		t.Errorf("Converse(%q, %q)", sessions.converseChannel, sessions.converseText)
	}
}

func TestRouteEmptyMention(t *testing.T) {
	sessions := &fakeSessions{}
	g := testGateway(sessions, &fakeDNS{})

	reply, err := g.Route(context.Background(), Event{
		Channel: "C1",
		Kind:    KindMention,
	})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if reply == "" {
		t.Fatal("empty mention should get a usage nudge")
	}
	if sessions.converseCalls != 0 {
		t.Errorf("converseCalls = %d, want 0", sessions.converseCalls)
	}
}

func TestRouteMessageClassification(t *testing.T) {
	tests := []struct {
		text       string
		wantAnswer bool
	}{
		{"why does my DNS TTL take so long to propagate?", true},
		{"the zone file for example.com looks off", true},
		{"anyone up for lunch?", false},
		{"deploy finished, all good", false},
	}

	for _, tt := range tests {
		sessions := &fakeSessions{reply: "answer"}
		g := testGateway(sessions, &fakeDNS{})

		reply, err := g.Route(context.Background(), Event{
			Channel: "C1",
			Text:    tt.text,
			Kind:    KindMessage,
		})
		if err != nil {
			t.Fatalf("Route(%q): %v", tt.text, err)
		}
		if tt.wantAnswer && (reply == "" || sessions.converseCalls != 1) {
			t.Errorf("%q should have been answered (reply=%q calls=%d)", tt.text, reply, sessions.converseCalls)
		}
		if !tt.wantAnswer && (reply != "" || sessions.converseCalls != 0) {
			t.Errorf("%q should have been dropped (reply=%q calls=%d)", tt.text, reply, sessions.converseCalls)
		}
	}
}

func TestRouteBusyReply(t *testing.T) {
	sessions := &fakeSessions{err: assistant.ErrBusy}
	g := testGateway(sessions, &fakeDNS{})

	reply, err := g.Route(context.Background(), Event{
		Channel: "C1",
		Text:    "what is dnssec?",
		Kind:    KindMention,
	})
	if !errors.Is(err, assistant.ErrBusy) {
		t.Fatalf("err = %v, want ErrBusy", err)
	}
	if !strings.Contains(reply, "moment") {
		t.Errorf("busy reply = %q", reply)
	}
}

func TestRouteErrorReplies(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantSub string
	}{
		{"run failure", &assistant.RunError{ThreadID: "t", RunID: "r", Status: assistant.RunFailed}, "try again"},
		{"auth failure", &ultradns.AuthError{Status: 401, Message: "invalid_grant"}, "DNS provider"},
		{"generic", errors.New("boom"), "Something went wrong"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sessions := &fakeSessions{err: tt.err}
			dns := &fakeDNS{err: tt.err}
			g := testGateway(sessions, dns)

			reply, err := g.Route(context.Background(), Event{
				Channel: "C1",
				Text:    "a.com",
				Command: "/analyze-zone-file",
				Kind:    KindCommand,
			})
			if err == nil {
				t.Fatal("expected an error for logging")
			}
			if !strings.Contains(reply, tt.wantSub) {
				t.Errorf("reply = %q, want substring %q", reply, tt.wantSub)
			}
			if strings.Contains(reply, "\n") {
				t.Errorf("error reply should be a single line: %q", reply)
			}
		})
	}
}

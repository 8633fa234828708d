package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/dnsops/zonebot/internal/ultradns"
)

const (
	analyzeUsage = "Usage: /analyze-zone-file zone1.com, zone2.com"
	healthUsage  = "Usage: /zone-health-check zone1.com, zone2.com"
)

const (
	analyzePrompt = "Analyze the zone files above. For each zone, note standards-compliance problems, likely mistakes, and worthwhile optimizations. Suggest descriptive tags for each zone."
	healthPrompt  = "Summarize the health check results above. Call out failing or degraded checks per zone and what should be looked at first."
	statusPrompt  = "Summarize the current state of the DNS provider's services from the status feed above. Lead with whether anything is degraded or down."
)

// runCommand dispatches a slash command to its handler.
func (g *Gateway) runCommand(ctx context.Context, ev Event) (string, error) {
	switch ev.Command {
	case "/analyze-zone-file":
		return g.zoneCommand(ctx, ev, analyzeUsage, g.dns.FetchZoneFiles, g.registry.ZoneAnalyzer, analyzePrompt)
	case "/zone-health-check":
		return g.zoneCommand(ctx, ev, healthUsage, g.dns.FetchHealthChecks, g.registry.ZoneHealthcheck, healthPrompt)
	case "/udns-system-status":
		return g.systemStatus(ctx, ev)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedCommand, ev.Command)
	}
}

// zoneCommand is the shared shape of the two zone-list commands: parse
// the zone arguments, fetch per-zone data from the provider, and feed
// whatever resolved into the matching assistant.
func (g *Gateway) zoneCommand(
	ctx context.Context,
	ev Event,
	usage string,
	fetch func(context.Context, []string) ([]ultradns.ZoneFetchResult, error),
	assistantID, prompt string,
) (string, error) {
	zones := parseZones(ev.Text)
	if len(zones) == 0 {
		return "", &ArgumentError{Command: ev.Command, Usage: usage}
	}

	results, err := fetch(ctx, zones)
	if err != nil {
		return "", fmt.Errorf("%s: %w", ev.Command, err)
	}

	payload, failures := buildPayload(results)
	if payload == "" {
		// Nothing resolved; there is no material to analyze, so skip
		// the assistant and report the fetch outcome directly.
		return failureSummary(failures), nil
	}

	g.logger.Info("gateway command fetched zone data",
		"request_id", ev.ID,
		"channel", ev.Channel,
		"command", ev.Command,
		"requested", len(zones),
		"resolved", len(zones)-len(failures),
	)

	answer, err := g.sessions.InjectAndConverse(ctx, ev.Channel, assistantID, payload, prompt)
	if err != nil {
		return "", fmt.Errorf("%s: %w", ev.Command, err)
	}

	if len(failures) > 0 {
		return failureSummary(failures) + "\n\n" + answer, nil
	}
	return answer, nil
}

// systemStatus fetches the provider status feed and has the assistant
// summarize it. It takes no arguments.
func (g *Gateway) systemStatus(ctx context.Context, ev Event) (string, error) {
	feed, err := g.dns.FetchSystemStatus(ctx)
	if err != nil {
		return "", fmt.Errorf("%s: %w", ev.Command, err)
	}
	answer, err := g.sessions.InjectAndConverse(ctx, ev.Channel, g.registry.SystemStatus, feed, statusPrompt)
	if err != nil {
		return "", fmt.Errorf("%s: %w", ev.Command, err)
	}

	// The status feed describes the provider's side; the monitor
	// describes ours. Reporting both tells "provider down" apart from
	// "bot cut off".
	if line := g.connectivityLine(); line != "" {
		return answer + "\n\n" + line, nil
	}
	return answer, nil
}

// connectivityLine renders the dependency monitor snapshot as one
// line, or "" when no monitor is wired in.
func (g *Gateway) connectivityLine() string {
	if g.health == nil {
		return ""
	}
	checks := g.health.Checks()
	if len(checks) == 0 {
		return ""
	}

	parts := make([]string, 0, len(checks))
	for _, c := range checks {
		state := "ok"
		if !c.OK {
			state = "unreachable"
		}
		parts = append(parts, fmt.Sprintf("%s %s", c.Name, state))
	}
	return "Bot connectivity: " + strings.Join(parts, ", ") + "."
}

// parseZones splits a comma-separated zone argument string, trimming
// whitespace and dropping empty entries. "a, b ,c" yields
// ["a" "b" "c"]; "" and "," yield nil.
func parseZones(raw string) []string {
	var zones []string
	for _, part := range strings.Split(raw, ",") {
		if z := strings.TrimSpace(part); z != "" {
			zones = append(zones, z)
		}
	}
	return zones
}

// buildPayload assembles the assistant input from per-zone fetch
// results. Each resolved zone is delimited so the assistant can tell
// one zone's data from the next. Unresolved zones are listed in a
// trailing section so the assistant can mention them; they are also
// returned separately for the user-facing summary. When nothing
// resolved the payload is empty regardless of failures.
func buildPayload(results []ultradns.ZoneFetchResult) (string, []ultradns.ZoneFetchResult) {
	var sb strings.Builder
	var failures []ultradns.ZoneFetchResult

	for _, r := range results {
		if r.Status != ultradns.StatusOK {
			failures = append(failures, r)
			continue
		}
		fmt.Fprintf(&sb, "=== zone: %s ===\n%s\n", r.Name, r.Content)
	}

	if sb.Len() > 0 && len(failures) > 0 {
		sb.WriteString("=== unresolved zones ===\n")
		for _, f := range failures {
			switch f.Status {
			case ultradns.StatusNotFound:
				fmt.Fprintf(&sb, "%s: not found\n", f.Name)
			default:
				fmt.Fprintf(&sb, "%s: fetch failed\n", f.Name)
			}
		}
	}
	return sb.String(), failures
}

// failureSummary renders one line per unresolved zone.
func failureSummary(failures []ultradns.ZoneFetchResult) string {
	lines := make([]string, 0, len(failures))
	for _, f := range failures {
		switch f.Status {
		case ultradns.StatusNotFound:
			lines = append(lines, fmt.Sprintf("`%s`: zone not found in the account", f.Name))
		default:
			lines = append(lines, fmt.Sprintf("`%s`: could not fetch zone data", f.Name))
		}
	}
	return strings.Join(lines, "\n")
}

package gateway

import "strings"

// Classifier decides whether a plain channel message (no mention, no
// command) is a DNS question the bot should answer. Mentions always
// engage the bot; this only gates ambient channel chatter.
type Classifier interface {
	DNSRelated(text string) bool
}

// keywordClassifier is the default heuristic: a message is DNS related
// when it mentions DNS vocabulary. Cheap and predictable; swap in a
// smarter Classifier via Config if a deployment needs one.
type keywordClassifier struct{}

func (keywordClassifier) DNSRelated(text string) bool {
	q := strings.ToLower(text)

	keywords := []string{
		"dns", "dnssec", "zone", "domain", "nameserver", "name server",
		"resolver", "resolve", "registrar", "delegation", "glue",
		"soa", "ttl", "cname", "mx record", "a record", "aaaa record",
		"txt record", "ns record", "ptr record", "srv record", "caa",
		"dig ", "nslookup", "whois", "propagat", "ultradns",
	}
	for _, w := range keywords {
		if strings.Contains(q, w) {
			return true
		}
	}
	return false
}

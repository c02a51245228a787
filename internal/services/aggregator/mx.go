package aggregator

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/miekg/dns"
	"github.com/ternarybob/arbor"
)

// MXVerifier checks that an email's domain publishes MX records, caching per domain
type MXVerifier struct {
	client   *dns.Client
	resolver string
	logger   arbor.ILogger

	mu    sync.Mutex
	cache map[string]bool
}

// NewMXVerifier queries resolver (host:port) over UDP
func NewMXVerifier(resolver string, timeout time.Duration, logger arbor.ILogger) *MXVerifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &MXVerifier{
		client:   &dns.Client{Net: "udp", Timeout: timeout},
		resolver: resolver,
		logger:   logger,
		cache:    make(map[string]bool),
	}
}

// Verify reports whether the email's domain has at least one MX record
func (v *MXVerifier) Verify(ctx context.Context, email string) bool {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return false
	}
	domain := strings.ToLower(strings.Trim(email[at+1:], "."))
	if domain == "" {
		return false
	}

	v.mu.Lock()
	ok, cached := v.cache[domain]
	v.mu.Unlock()
	if cached {
		return ok
	}

	ok = v.lookup(ctx, domain)

	v.mu.Lock()
	v.cache[domain] = ok
	v.mu.Unlock()
	return ok
}

func (v *MXVerifier) lookup(ctx context.Context, domain string) bool {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(domain), dns.TypeMX)
	msg.RecursionDesired = true

	resp, _, err := v.client.ExchangeContext(ctx, msg, v.resolver)
	if err != nil {
		v.logger.Debug().Err(err).Str("domain", domain).Msg("MX lookup failed")
		return false
	}
	if resp.Rcode != dns.RcodeSuccess {
		return false
	}
	for _, answer := range resp.Answer {
		if _, isMX := answer.(*dns.MX); isMX {
			return true
		}
	}
	return false
}

package security

import (
	"context"
	"crypto/tls"
	"math"
	"net"
	"net/url"
	"time"
)

const dialTimeout = 10 * time.Second

// Endpoint is one outbound connection to inspect.
type Endpoint struct {
	Name     string // "scorer", "capture", "store"
	URL      string
	AuthMode string
	Insecure bool
}

// CertStatus describes the leaf certificate of an endpoint.
type CertStatus struct {
	Name     string `json:"name"`
	Endpoint string `json:"endpoint"`
	AuthType string `json:"auth_type"`
	Status   string `json:"status"` // valid | expiring | expired | unreachable
	NotAfter string `json:"not_after,omitempty"`
	Issuer   string `json:"issuer,omitempty"`
	DaysLeft int    `json:"days_left"`
}

// Check dials the TLS endpoint and returns a CertStatus describing the leaf
// certificate. Returns nil for endpoints that do not use TLS.
func Check(ctx context.Context, ep Endpoint) *CertStatus {
	return check(ctx, ep, time.Now())
}

// CheckAll checks every endpoint and returns the statuses of those using TLS.
func CheckAll(ctx context.Context, eps []Endpoint) []CertStatus {
	out := make([]CertStatus, 0, len(eps))
	for _, ep := range eps {
		if cs := Check(ctx, ep); cs != nil {
			out = append(out, *cs)
		}
	}
	return out
}

func check(ctx context.Context, ep Endpoint, now time.Time) *CertStatus {
	host, ok := tlsHost(ep.URL)
	if !ok {
		return nil
	}

	cs := &CertStatus{Name: ep.Name, Endpoint: ep.URL, AuthType: ep.AuthMode}
	if cs.AuthType == "" {
		cs.AuthType = "none"
	}

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{},
		Config: &tls.Config{
			InsecureSkipVerify: ep.Insecure, //nolint:gosec // user-configured
		},
	}

	netConn, err := dialer.DialContext(dialCtx, "tcp", host)
	if err != nil {
		cs.Status = "unreachable"
		return cs
	}
	conn := netConn.(*tls.Conn)
	defer conn.Close()

	peerCerts := conn.ConnectionState().PeerCertificates
	if len(peerCerts) == 0 {
		cs.Status = "unreachable"
		return cs
	}

	leaf := peerCerts[0]
	daysLeft := leaf.NotAfter.Sub(now).Hours() / 24

	cs.NotAfter = leaf.NotAfter.UTC().Format(time.RFC3339)
	cs.Issuer = leaf.Issuer.CommonName
	cs.DaysLeft = int(math.Floor(daysLeft))

	switch {
	case daysLeft <= 0:
		cs.Status = "expired"
	case daysLeft <= 30:
		cs.Status = "expiring"
	default:
		cs.Status = "valid"
	}
	return cs
}

// tlsHost returns host:port for https and wss URLs. A bare host:port (the
// gRPC store address) is only treated as TLS when prefixed with "tls://".
func tlsHost(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	switch u.Scheme {
	case "https", "wss", "tls":
	default:
		return "", false
	}
	host := u.Host
	if _, _, err := net.SplitHostPort(host); err != nil {
		// No explicit port in the URL; append the HTTPS default.
		host = net.JoinHostPort(host, "443")
	}
	return host, true
}

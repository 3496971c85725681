package shipper

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/focustrack/focustrack/agent/internal/config"
	"github.com/focustrack/focustrack/pkg/reportrpc"
	"github.com/focustrack/focustrack/pkg/types"
)

// Shipper is the agent's client for the session store. The connection is
// dialed on first use and reused; calls are bounded by the configured store
// timeout and never retried.
type Shipper struct {
	cfg    config.AgentConfig
	dialFn dialFunc // injectable for tests

	mu     sync.Mutex
	conn   *grpc.ClientConn
	client reportrpc.ReportServiceClient
}

// dialFunc is the function signature used to open a gRPC connection.
type dialFunc func(endpoint string, cfg config.AgentConfig) (*grpc.ClientConn, error)

// New creates a Shipper using the given agent config. No connection is made
// until the first call.
func New(cfg config.AgentConfig) *Shipper {
	return &Shipper{
		cfg:    cfg,
		dialFn: defaultDial,
	}
}

// Submit stores a finished session report.
func (s *Shipper) Submit(ctx context.Context, r *types.SessionReport) error {
	client, err := s.ensureClient()
	if err != nil {
		return err
	}

	callCtx, cancel := s.callContext(ctx)
	defer cancel()

	resp, err := client.SubmitReport(callCtx, toRequest(r))
	if err != nil {
		s.logFailure("submit", err, "session", r.SessionID)
		return fmt.Errorf("shipper: submit %s: %w", r.SessionID, err)
	}

	slog.Info("shipper: report stored",
		"session", resp.SessionID,
		"intervals", len(r.Intervals),
		"stored_at", time.UnixMilli(resp.StoredAt).UTC())
	return nil
}

// Latest returns the most recent report for subject, or nil when the store
// has none.
func (s *Shipper) Latest(ctx context.Context, subject types.SubjectRef) (*types.SessionReport, error) {
	client, err := s.ensureClient()
	if err != nil {
		return nil, err
	}

	callCtx, cancel := s.callContext(ctx)
	defer cancel()

	resp, err := client.GetLatestReport(callCtx, &reportrpc.GetLatestReportRequest{Subject: subject})
	if err != nil {
		s.logFailure("latest", err, "subject", subject.Key())
		return nil, fmt.Errorf("shipper: latest %s: %w", subject.Key(), err)
	}
	if !resp.Found {
		return nil, nil
	}
	return resp.Report, nil
}

// Close releases the connection, if one was dialed.
func (s *Shipper) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn, s.client = nil, nil
	return err
}

func (s *Shipper) ensureClient() (reportrpc.ReportServiceClient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return s.client, nil
	}

	conn, err := s.dialFn(s.cfg.StoreEndpoint, s.cfg)
	if err != nil {
		return nil, fmt.Errorf("shipper: dial %s: %w", s.cfg.StoreEndpoint, err)
	}
	slog.Info("shipper: connection created", "endpoint", s.cfg.StoreEndpoint)
	s.conn = conn
	s.client = reportrpc.NewClient(conn)
	return s.client, nil
}

// callContext applies the store timeout and, in apikey mode, the key header.
func (s *Shipper) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	if s.cfg.StoreAuth.Mode == "apikey" && s.cfg.StoreAuth.KeyEnv != "" {
		callCtx = metadata.AppendToOutgoingContext(callCtx,
			s.cfg.StoreAuth.EffectiveHeader(), s.cfg.StoreAuth.Key())
	}
	return callCtx, cancel
}

func (s *Shipper) logFailure(op string, err error, kv ...any) {
	args := append([]any{"op", op, "endpoint", s.cfg.StoreEndpoint, "code", status.Code(err).String(), "err", err}, kv...)
	if isPermanentError(err) {
		slog.Error("shipper: store rejected request", args...)
		return
	}
	slog.Warn("shipper: store unavailable", args...)
}

// isPermanentError returns true for gRPC errors that indicate the request
// itself is invalid, so resending it later would fail the same way.
func isPermanentError(err error) bool {
	code := status.Code(err)
	switch code {
	case codes.InvalidArgument, codes.Unauthenticated, codes.PermissionDenied:
		return true
	}
	return false
}

// defaultDial creates a lazily-connecting gRPC client for endpoint with
// transport credentials taken from cfg.
func defaultDial(endpoint string, cfg config.AgentConfig) (*grpc.ClientConn, error) {
	opts, err := dialOptions(cfg)
	if err != nil {
		return nil, err
	}
	return grpc.NewClient(endpoint, opts...)
}

// dialOptions builds grpc.DialOption slice based on the store auth config.
func dialOptions(cfg config.AgentConfig) ([]grpc.DialOption, error) {
	switch cfg.StoreAuth.Mode {
	case "mtls":
		creds, err := buildMTLSCreds(cfg.StoreAuth)
		if err != nil {
			return nil, fmt.Errorf("shipper: build mtls creds: %w", err)
		}
		return []grpc.DialOption{grpc.WithTransportCredentials(creds)}, nil

	default: // "apikey" injects the key per call; "none" or empty is plaintext for local dev
		return []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, nil
	}
}

// buildMTLSCreds loads client certificate and optional CA from the auth config.
func buildMTLSCreds(auth config.AuthConfig) (credentials.TransportCredentials, error) {
	cert, err := tls.LoadX509KeyPair(auth.CertFile, auth.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load client cert: %w", err)
	}

	tlsCfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
	}

	if auth.CAFile != "" {
		caPEM, err := os.ReadFile(auth.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read ca file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("no valid certs in ca file %q", auth.CAFile)
		}
		tlsCfg.RootCAs = pool
	}

	return credentials.NewTLS(tlsCfg), nil
}

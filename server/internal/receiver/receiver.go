package receiver

import (
	"context"
	"errors"
	"log/slog"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/focustrack/focustrack/pkg/reportrpc"
	"github.com/focustrack/focustrack/pkg/types"
	"github.com/focustrack/focustrack/server/internal/store"
	"github.com/focustrack/focustrack/server/internal/ws"
)

// Store is the persistence the receiver writes to and reads from.
type Store interface {
	Submit(ctx context.Context, r *types.SessionReport) (*store.Record, error)
	Latest(ctx context.Context, subject types.SubjectRef) (*store.Record, error)
}

// Publisher is notified of every stored report.
type Publisher interface {
	Publish(event string, data interface{})
}

// Receiver implements reportrpc.ReportServiceServer.
type Receiver struct {
	store Store
	pub   Publisher
}

// New creates a Receiver backed by st. pub may be nil.
func New(st Store, pub Publisher) *Receiver {
	return &Receiver{store: st, pub: pub}
}

// SubmitReport validates and stores one session report.
// Authentication is enforced by the gRPC server interceptor before this is called.
func (r *Receiver) SubmitReport(ctx context.Context, in *reportrpc.SubmitReportRequest) (*reportrpc.SubmitReportResponse, error) {
	if in == nil || in.Report == nil {
		return nil, status.Error(codes.InvalidArgument, "report is required")
	}

	rec, err := r.store.Submit(ctx, in.Report)
	if err != nil {
		if errors.Is(err, store.ErrInvalidReport) {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		slog.Error("receiver: store report", "session", in.Report.SessionID, "err", err)
		return nil, status.Error(codes.Internal, "store report failed")
	}

	slog.Debug("receiver: report stored",
		"session", rec.Report.SessionID,
		"subject", rec.Report.Subject.Key(),
		"intervals", len(rec.Report.Intervals),
	)
	if r.pub != nil {
		r.pub.Publish(ws.EventReportStored, rec.Report)
	}

	return &reportrpc.SubmitReportResponse{
		SessionID: rec.Report.SessionID,
		StoredAt:  rec.StoredAt.UnixMilli(),
	}, nil
}

// GetLatestReport returns the most recently started report for a subject.
// A subject without reports is answered with Found == false.
func (r *Receiver) GetLatestReport(ctx context.Context, in *reportrpc.GetLatestReportRequest) (*reportrpc.GetLatestReportResponse, error) {
	if in == nil {
		return nil, status.Error(codes.InvalidArgument, "subject is required")
	}
	if err := in.Subject.Validate(); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	rec, err := r.store.Latest(ctx, in.Subject)
	if err != nil {
		slog.Error("receiver: load latest report", "subject", in.Subject.Key(), "err", err)
		return nil, status.Error(codes.Internal, "load latest report failed")
	}
	if rec == nil {
		return &reportrpc.GetLatestReportResponse{Found: false}, nil
	}
	return &reportrpc.GetLatestReportResponse{Found: true, Report: rec.Report}, nil
}

package reportrpc

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"

	"github.com/focustrack/focustrack/pkg/types"
)

const (
	// CodecName is the gRPC content subtype for the JSON codec.
	CodecName = "json"

	ServiceName = "focus.report.v1.ReportService"

	MethodSubmitReport    = "/" + ServiceName + "/SubmitReport"
	MethodGetLatestReport = "/" + ServiceName + "/GetLatestReport"
)

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return CodecName
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// SubmitReportRequest carries one finished session report.
type SubmitReportRequest struct {
	Report *types.SessionReport `json:"report"`
}

// SubmitReportResponse acknowledges a stored report.
type SubmitReportResponse struct {
	SessionID string `json:"session_id"`
	StoredAt  int64  `json:"stored_at"`
}

// GetLatestReportRequest names the subject whose most recent report is wanted.
type GetLatestReportRequest struct {
	Subject types.SubjectRef `json:"subject"`
}

// GetLatestReportResponse holds the latest report. Found is false when the
// subject has no stored report; that is a normal result, not an error.
type GetLatestReportResponse struct {
	Found  bool                 `json:"found"`
	Report *types.SessionReport `json:"report,omitempty"`
}

// ReportServiceServer is implemented by the session store.
type ReportServiceServer interface {
	SubmitReport(ctx context.Context, in *SubmitReportRequest) (*SubmitReportResponse, error)
	GetLatestReport(ctx context.Context, in *GetLatestReportRequest) (*GetLatestReportResponse, error)
}

// ReportServiceClient is the agent-side view of the session store.
type ReportServiceClient interface {
	SubmitReport(ctx context.Context, in *SubmitReportRequest, opts ...grpc.CallOption) (*SubmitReportResponse, error)
	GetLatestReport(ctx context.Context, in *GetLatestReportRequest, opts ...grpc.CallOption) (*GetLatestReportResponse, error)
}

type reportServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewClient returns a client that sends every call with the JSON codec.
func NewClient(cc grpc.ClientConnInterface) ReportServiceClient {
	return &reportServiceClient{cc: cc}
}

func (c *reportServiceClient) SubmitReport(ctx context.Context, in *SubmitReportRequest, opts ...grpc.CallOption) (*SubmitReportResponse, error) {
	out := &SubmitReportResponse{}
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, MethodSubmitReport, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *reportServiceClient) GetLatestReport(ctx context.Context, in *GetLatestReportRequest, opts ...grpc.CallOption) (*GetLatestReportResponse, error) {
	out := &GetLatestReportResponse{}
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, MethodGetLatestReport, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// RegisterReportServiceServer registers impl on s. Unary interceptors
// configured on s run around both methods.
func RegisterReportServiceServer(s grpc.ServiceRegistrar, impl ReportServiceServer) {
	s.RegisterService(&ServiceDesc, impl)
}

// ServiceDesc describes ReportService for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ReportServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SubmitReport", Handler: submitReportHandler},
		{MethodName: "GetLatestReport", Handler: getLatestReportHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "focus/report/v1/report.proto",
}

func submitReportHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := &SubmitReportRequest{}
	if err := dec(in); err != nil {
		return nil, err
	}
	impl := srv.(ReportServiceServer)
	if interceptor == nil {
		return impl.SubmitReport(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodSubmitReport}
	handler := func(ctx context.Context, req any) (any, error) {
		r, ok := req.(*SubmitReportRequest)
		if !ok {
			return nil, fmt.Errorf("reportrpc: invalid request type %T", req)
		}
		return impl.SubmitReport(ctx, r)
	}
	return interceptor(ctx, in, info, handler)
}

func getLatestReportHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := &GetLatestReportRequest{}
	if err := dec(in); err != nil {
		return nil, err
	}
	impl := srv.(ReportServiceServer)
	if interceptor == nil {
		return impl.GetLatestReport(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodGetLatestReport}
	handler := func(ctx context.Context, req any) (any, error) {
		r, ok := req.(*GetLatestReportRequest)
		if !ok {
			return nil, fmt.Errorf("reportrpc: invalid request type %T", req)
		}
		return impl.GetLatestReport(ctx, r)
	}
	return interceptor(ctx, in, info, handler)
}

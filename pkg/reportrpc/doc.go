// Package reportrpc defines the gRPC contract between the agent and the
// session store: service focus.report.v1.ReportService with two unary
// methods, SubmitReport and GetLatestReport.
//
// Messages are plain Go structs carried by a JSON codec registered under the
// content subtype "json", so no generated protobuf code is needed. Clients
// pass grpc.CallContentSubtype(CodecName) on every call; NewClient does this.
package reportrpc

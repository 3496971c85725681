// Package receiver implements reportrpc.ReportServiceServer, the gRPC
// endpoint through which focustrack-agent instances store and read session
// reports.
//
// SubmitReport stores the report (codes.InvalidArgument when it fails
// validation, codes.Internal when the store fails) and publishes it to the
// /ws/stream hub. GetLatestReport answers Found == false for subjects without
// reports. Authentication is enforced upstream by the gRPC server
// interceptor (see package auth).
package receiver

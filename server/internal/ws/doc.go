// Package ws implements the /ws/stream push channel of focustrack-server.
//
// Hub fans out events to connected dashboards. The receiver and the REST
// API call Publish(EventReportStored, report) after every stored report;
// Run sends a heartbeat every interval until ctx is cancelled, then closes
// all connections. A heartbeat is also sent to each client on connect.
// Connecting with ?learner=&class_id=&course_id= restricts report events to
// that subject.
//
// Message format sent to clients:
//
//	{
//	  "event": "report.stored",
//	  "data":  { /* session report, same schema as the REST API */ }
//	}
//
// The upgrader accepts all origins. Apply CORS restrictions at the reverse
// proxy level.
package ws

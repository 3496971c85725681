// Package security inspects the TLS certificates of the agent's outbound
// endpoints (scorer, camera, session store) so an expiring certificate shows
// up on GET /api/v1/certs before it breaks sampling.
package security

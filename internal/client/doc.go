// Package client manages the fleet of backend connector clients.
//
// Two tightly coupled parts form the core. The Registry owns the mapping
// from stable integer identity to live client handle, reconciles it against
// the module store on startup and on every lifecycle event, and drives the
// create/recreate/destroy transitions. The dispatcher (ForCreatedClients,
// ForClients, and the typed wrappers) fans one operation out across every
// callable client and reduces per-client outcomes into one aggregate status
// plus a failed-identity list.
//
// Client identity is derived by a pure hash of (module ID, instance ID), so
// callable-set computation can name clients that have not been created yet.
// The registry map is guarded by a single lock that is never held across a
// call into a client.
package client

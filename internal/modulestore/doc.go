// Package modulestore is the source of truth for installed connector
// modules and their configured instances.
//
// The client registry reconciles the live fleet against Modules() and
// reacts to lifecycle events (install, enable, disable, instance changes)
// delivered by the Watcher over MQTT. Per-instance settings live in a JSON
// object; the "enabled" key decides whether a client is created for an
// instance.
package modulestore

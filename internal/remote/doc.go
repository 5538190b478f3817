// Package remote implements the client.Client contract over MQTT.
//
// Each connector module instance runs as an external process speaking a
// small JSON request/response protocol: the orchestrator publishes an
// envelope with a correlation ID to the instance's request topic and waits
// for the matching response, bounded by a per-request timeout. Connection
// state arrives on a retained state topic and is forwarded to the registry.
//
// How a connector talks to its actual TV/radio backend is its own business;
// the orchestrator only sees the typed outcomes.
package remote

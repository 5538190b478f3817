// Package mqtt provides the MQTT transport layer for mediafleet.
//
// It wraps paho.mqtt.golang with connection management, automatic
// reconnection, subscription restoration, and the mediafleet topic
// namespace. The orchestrator talks to backend connector processes over
// request/response topics, watches their retained state topics, and
// receives module store lifecycle events.
//
// A Last Will and Testament on mediafleet/system/status lets connectors
// detect orchestrator crashes; a graceful shutdown publishes a distinct
// offline payload first.
package mqtt

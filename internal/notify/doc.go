// Package notify publishes user-facing notifications to the MQTT
// notification topic, where UI frontends pick them up.
package notify

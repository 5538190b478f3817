package mqtt

import (
	"fmt"
	"strconv"
	"strings"
)

// TopicPrefix is the root namespace for all mediafleet MQTT topics.
const TopicPrefix = "mediafleet"

// Topics builds mediafleet topic strings.
//
// Topic layout:
//
//	mediafleet/system/status                                        orchestrator online/offline (retained)
//	mediafleet/connector/{module}/{instance}/request                orchestrator -> connector requests
//	mediafleet/connector/{module}/{instance}/response/{request_id}  connector -> orchestrator responses
//	mediafleet/connector/{module}/{instance}/state                  connector connection state (retained)
//	mediafleet/modules/events                                       module store lifecycle events
//	mediafleet/notifications                                        user-facing notifications
type Topics struct{}

// SystemStatus returns the orchestrator status topic.
func (Topics) SystemStatus() string {
	return TopicPrefix + "/system/status"
}

// ConnectorRequest returns the request topic for one connector instance.
func (Topics) ConnectorRequest(moduleID string, instanceID uint32) string {
	return fmt.Sprintf("%s/connector/%s/%d/request", TopicPrefix, moduleID, instanceID)
}

// ConnectorResponse returns the response topic for one request.
func (Topics) ConnectorResponse(moduleID string, instanceID uint32, requestID string) string {
	return fmt.Sprintf("%s/connector/%s/%d/response/%s", TopicPrefix, moduleID, instanceID, requestID)
}

// ConnectorResponses returns a wildcard matching all responses from one
// connector instance.
func (Topics) ConnectorResponses(moduleID string, instanceID uint32) string {
	return fmt.Sprintf("%s/connector/%s/%d/response/+", TopicPrefix, moduleID, instanceID)
}

// ConnectorState returns the state topic for one connector instance.
func (Topics) ConnectorState(moduleID string, instanceID uint32) string {
	return fmt.Sprintf("%s/connector/%s/%d/state", TopicPrefix, moduleID, instanceID)
}

// AllConnectorStates returns a wildcard matching every connector state topic.
func (Topics) AllConnectorStates() string {
	return TopicPrefix + "/connector/+/+/state"
}

// ModuleEvents returns the module store event topic.
func (Topics) ModuleEvents() string {
	return TopicPrefix + "/modules/events"
}

// Notifications returns the user notification topic.
func (Topics) Notifications() string {
	return TopicPrefix + "/notifications"
}

// ParseConnectorTopic extracts the module ID and instance ID from a connector
// topic (request, response, or state). Returns ok=false if the topic does not
// match the connector layout.
func ParseConnectorTopic(topic string) (moduleID string, instanceID uint32, ok bool) {
	parts := strings.Split(topic, "/")
	if len(parts) < 5 || parts[0] != TopicPrefix || parts[1] != "connector" {
		return "", 0, false
	}

	id, err := strconv.ParseUint(parts[3], 10, 32)
	if err != nil {
		return "", 0, false
	}

	return parts[2], uint32(id), true
}

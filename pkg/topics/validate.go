package topics

import (
	"fmt"
	"strings"
)

// ServiceKindVPS marks services that must expose the localize topic pair.
const ServiceKindVPS = "VPS"

// ValidateCanonical checks a topic list against the naming contract:
// every topic starts with "spatialdds/", contains no double slash, and
// ends in "/v1". VPS services must additionally list both localize topics.
// Returns ok plus one error string per violation.
func ValidateCanonical(topicList []string, serviceKind string) (bool, []string) {
	var errs []string
	for _, topic := range topicList {
		if !strings.HasPrefix(topic, "spatialdds/") {
			errs = append(errs, fmt.Sprintf("topic missing spatialdds/ prefix: %s", topic))
		}
		if strings.Contains(topic, "//") {
			errs = append(errs, fmt.Sprintf("topic contains double slash: %s", topic))
		}
		if !strings.HasSuffix(topic, "/v1") {
			errs = append(errs, fmt.Sprintf("topic missing /v1 suffix: %s", topic))
		}
	}

	if serviceKind == ServiceKindVPS {
		if !contains(topicList, LocalizeRequest) {
			errs = append(errs, "missing localize request topic for VPS service")
		}
		if !contains(topicList, LocalizeResponse) {
			errs = append(errs, "missing localize response topic for VPS service")
		}
	}

	return len(errs) == 0, errs
}

func contains(list []string, want string) bool {
	for _, item := range list {
		if item == want {
			return true
		}
	}
	return false
}

// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import "strings"

const sharedPrefix = "$share/"

// IsTopicFilterMatch checks if a topic name matches a topic filter.
func IsTopicFilterMatch(topicFilter, topicName string) bool {
	// Handle shared subscriptions.
	if tf, ok := strings.CutPrefix(topicFilter, sharedPrefix); ok {
		idx := strings.Index(tf, "/")
		if idx == -1 {
			return false
		}
		topicFilter = tf[idx+1:]
	}

	// Wildcards at the first level never match system topics.
	if strings.HasPrefix(topicName, "$") &&
		(strings.HasPrefix(topicFilter, "+") ||
			strings.HasPrefix(topicFilter, "#")) {
		return false
	}

	filters := strings.Split(topicFilter, "/")
	names := strings.Split(topicName, "/")

	for i, filter := range filters {
		if filter == "#" {
			// Multi-level wildcard must be at the end.
			return i == len(filters)-1
		}
		if filter == "+" {
			if i >= len(names) {
				return false
			}
			continue
		}
		if i >= len(names) || filter != names[i] {
			return false
		}
	}

	// Exact match is required if there are no wildcards left.
	return len(filters) == len(names)
}

func isTopicName(name string) bool {
	return name != "" && !strings.ContainsAny(name, "+#\x00")
}

func isTopicFilter(filter string) bool {
	if filter == "" || strings.ContainsRune(filter, '\x00') {
		return false
	}
	levels := strings.Split(filter, "/")
	for i, level := range levels {
		switch {
		case level == "#":
			if i != len(levels)-1 {
				return false
			}
		case level == "+":
		case strings.ContainsAny(level, "+#"):
			return false
		}
	}
	return true
}

// IsValidTopicFilter reports whether filter is a well-formed topic filter.
func IsValidTopicFilter(filter string) bool {
	return isTopicFilter(filter)
}

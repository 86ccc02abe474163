// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import (
	"strings"

	"github.com/google/uuid"
)

// ClientIDs must be between 1 and 23 UTF-8 encoded bytes in length and only
// contain alphanumeric characters to be accepted by every server:
// https://docs.oasis-open.org/mqtt/mqtt/v5.0/os/mqtt-v5.0-os.html#_Toc3901059
const maxClientIDLength = 23

const clientIDPrefix = "rtlbridge"

// RandomClientID generates a random valid MQTT client ID. Random IDs defeat
// session resumption, so set a fixed client ID for persistent sessions.
func RandomClientID() string {
	id := clientIDPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
	return id[:maxClientIDLength]
}

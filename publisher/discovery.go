// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package publisher

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Azure/iot-operations-sdks/go/rtlbridge/fieldmeta"
)

const (
	domainSensor       = "sensor"
	domainBinarySensor = "binary_sensor"

	manufacturer     = "rtl_433"
	diagnostic       = "diagnostic"
	batteryMinExpiry = 24 * time.Hour
)

type (
	discoveryPayload struct {
		Name              string `json:"name"`
		StateTopic        string `json:"state_topic"`
		UniqueID          string `json:"unique_id"`
		Device            device `json:"device"`
		Icon              string `json:"icon,omitempty"`
		Unit              string `json:"unit_of_measurement,omitempty"`
		DeviceClass       string `json:"device_class,omitempty"`
		StateClass        string `json:"state_class,omitempty"`
		EntityCategory    string `json:"entity_category,omitempty"`
		PayloadOn         string `json:"payload_on,omitempty"`
		PayloadOff        string `json:"payload_off,omitempty"`
		ExpireAfter       int64  `json:"expire_after"`
		AvailabilityTopic string `json:"availability_topic"`
	}

	device struct {
		Identifiers  []string `json:"identifiers"`
		Manufacturer string   `json:"manufacturer"`
		Model        string   `json:"model"`
		Name         string   `json:"name"`
	}
)

// Availability payloads understood by Home Assistant without configuration.
const (
	PayloadOnline  = "online"
	PayloadOffline = "offline"
)

// AvailabilityTopic returns the bridge availability topic for an id suffix.
func AvailabilityTopic(idSuffix string) string {
	return "home/status/rtl_bridge" + idSuffix + "/availability"
}

func (p *Publisher) stateTopic(entity, field string) string {
	return fmt.Sprintf("home/%s/%s/%s", p.opts.Namespace, entity, field)
}

func (p *Publisher) discoveryTopic(domain, uid string) string {
	return fmt.Sprintf("%s/%s/%s/config", p.opts.DiscoveryRoot, domain, uid)
}

func (p *Publisher) discovery(e *entry, meta fieldmeta.Meta) *message {
	domain := domainSensor
	if meta.Category == fieldmeta.BatteryAlarm {
		domain = domainBinarySensor
	}

	name := e.displayName
	if name == "" {
		name = fmt.Sprintf("%s (%s)", e.model, e.entity)
	}

	payload := discoveryPayload{
		Name:       meta.Name,
		StateTopic: p.stateTopic(e.entity, e.field),
		UniqueID:   e.uid,
		Device: device{
			Identifiers: []string{fmt.Sprintf(
				"rtl433_%s_%s",
				e.model,
				strings.SplitN(e.uid, "_", 2)[0],
			)},
			Manufacturer: manufacturer,
			Model:        e.model,
			Name:         name,
		},
		Icon:              meta.Icon,
		Unit:              meta.Unit,
		DeviceClass:       meta.DeviceClass,
		StateClass:        meta.StateClass(),
		ExpireAfter:       int64(p.opts.ExpireAfter / time.Second),
		AvailabilityTopic: AvailabilityTopic(p.opts.IDSuffix),
	}

	if _, ok := p.mainSensors[e.field]; !ok {
		payload.EntityCategory = diagnostic
	}

	if domain == domainBinarySensor {
		payload.DeviceClass = "battery"
		payload.StateClass = ""
		payload.PayloadOn, payload.PayloadOff = payloadOn, payloadOff
		payload.ExpireAfter = int64(
			max(p.opts.ExpireAfter, batteryMinExpiry) / time.Second,
		)
	}

	// Marshalling a struct of strings and integers cannot fail.
	data, _ := json.Marshal(payload)

	return &message{
		kind:     kindDiscovery,
		topic:    p.discoveryTopic(domain, e.uid),
		payload:  data,
		rollback: func() { e.announced = false },
	}
}

// Retracts the sensor announcement a battery alarm had before it became a
// binary sensor.
func (p *Publisher) migration(e *entry) *message {
	return &message{
		kind:     kindMigration,
		topic:    p.discoveryTopic(domainSensor, e.uid),
		payload:  []byte{},
		rollback: func() { e.migrated = false },
	}
}

// Reports whether two resolved metadata would produce the same announcement
// and state.
func sameAnnouncement(a, b fieldmeta.Meta) bool {
	return a.Unit == b.Unit &&
		a.DeviceClass == b.DeviceClass &&
		a.Divisor == b.Divisor
}

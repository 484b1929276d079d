// Package presence tracks broker client connect/disconnect events into
// per-device ConnectionRecords. A connect overwrites the record and
// clears any prior disconnected_at; a disconnect deletes the record
// outright rather than marking it closed.
package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"smartfarm/internal/model"
	"smartfarm/internal/store"
	"smartfarm/shared"
)

const (
	fieldStatus       = "status"
	fieldConnectedAt  = "connected_at"
	fieldIP           = "ip"
	fieldDeviceName   = "device_name"
	fieldDeviceID     = "device_id"
	fieldMapName      = "map_name"
	fieldUUID         = "uuid"
	fieldDisconnected = "disconnected_at"
)

// Tracker owns ConnectionRecord storage for every device/map/deviceId.
type Tracker struct {
	store store.Store
}

// New constructs a Tracker over the given Store.
func New(s store.Store) *Tracker {
	return &Tracker{store: s}
}

func connectionKey(device, mapName, deviceID string) string {
	return fmt.Sprintf("mqtt:connection:%s:%s:%s", device, mapName, deviceID)
}

// ParseClientID splits a broker client id of the form
// "{device}-{map}-{deviceId}-{uuid}" into its four components. The uuid
// segment itself contains hyphens, so only the first three hyphens are
// split points -- everything after the third belongs to the uuid.
func ParseClientID(clientID string) (device, mapName, deviceID, uuid string, ok bool) {
	parts := strings.SplitN(clientID, "-", 4)
	if len(parts) != 4 {
		return "", "", "", "", false
	}
	for _, p := range parts[:3] {
		if p == "" {
			return "", "", "", "", false
		}
	}
	return parts[0], parts[1], parts[2], parts[3], true
}

type connectEventPayload struct {
	ClientID  string `json:"clientid"`
	IPAddress string `json:"ipaddress"`
}

// HandleConnected decodes an "events/client/connected" broker event and
// writes/overwrites the device's ConnectionRecord, clearing any prior
// disconnected_at.
func (t *Tracker) HandleConnected(ctx context.Context, raw []byte, now time.Time) {
	var payload connectEventPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		shared.DebugError(fmt.Errorf("%w: client-connected event: %v", shared.ErrMalformedPayload, err))
		return
	}

	device, mapName, deviceID, uuid, ok := ParseClientID(payload.ClientID)
	if !ok {
		shared.DebugPrint("dropping client-connected event with malformed client id %q", payload.ClientID)
		return
	}
	ip := payload.IPAddress
	if ip == "" {
		ip = "unknown"
	}

	key := connectionKey(device, mapName, deviceID)
	t.store.HSet(ctx, key, fieldStatus, "connected")
	t.store.HSet(ctx, key, fieldConnectedAt, now.Format(time.RFC3339Nano))
	t.store.HSet(ctx, key, fieldIP, ip)
	t.store.HSet(ctx, key, fieldDeviceName, device)
	t.store.HSet(ctx, key, fieldDeviceID, deviceID)
	t.store.HSet(ctx, key, fieldMapName, mapName)
	t.store.HSet(ctx, key, fieldUUID, uuid)
	t.store.HDel(ctx, key, fieldDisconnected)
}

// HandleDisconnected decodes an "events/client/disconnected" broker event
// and deletes the device's ConnectionRecord outright.
func (t *Tracker) HandleDisconnected(ctx context.Context, raw []byte) {
	var payload connectEventPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		shared.DebugError(fmt.Errorf("%w: client-disconnected event: %v", shared.ErrMalformedPayload, err))
		return
	}

	device, mapName, deviceID, _, ok := ParseClientID(payload.ClientID)
	if !ok {
		shared.DebugPrint("dropping client-disconnected event with malformed client id %q", payload.ClientID)
		return
	}

	t.store.Delete(ctx, connectionKey(device, mapName, deviceID))
}

// GetRecord returns the current ConnectionRecord for a device, or
// ok=false if none is on file (never connected, or already disconnected).
func (t *Tracker) GetRecord(ctx context.Context, device, mapName, deviceID string) (model.ConnectionRecord, bool) {
	raw := t.store.HGetAll(ctx, connectionKey(device, mapName, deviceID))
	if raw == nil || raw[fieldConnectedAt] == "" {
		return model.ConnectionRecord{}, false
	}

	record := model.ConnectionRecord{
		Device:   device,
		MapName:  mapName,
		DeviceID: deviceID,
		IP:       raw[fieldIP],
	}
	record.LastConnectAt, _ = time.Parse(time.RFC3339Nano, raw[fieldConnectedAt])
	if raw[fieldDisconnected] != "" {
		if at, err := time.Parse(time.RFC3339Nano, raw[fieldDisconnected]); err == nil {
			record.DisconnectedAt = &at
		}
	}
	return record, true
}

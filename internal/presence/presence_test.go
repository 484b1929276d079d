package presence

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"smartfarm/internal/store"
)

func TestParseClientIDSplitsFourParts(t *testing.T) {
	device, mapName, deviceID, uuid, ok := ParseClientID("esp32-smartfarm_x-7-ab12-cd34-ef56")
	if !ok {
		t.Fatal("expected a well-formed client id to parse")
	}
	if device != "esp32" || mapName != "smartfarm_x" || deviceID != "7" {
		t.Errorf("got device=%q mapName=%q deviceID=%q", device, mapName, deviceID)
	}
	if uuid != "ab12-cd34-ef56" {
		t.Errorf("expected the uuid to keep its own hyphens, got %q", uuid)
	}
}

func TestParseClientIDRejectsTooFewParts(t *testing.T) {
	if _, _, _, _, ok := ParseClientID("esp32-smartfarm_x"); ok {
		t.Error("expected a short client id to fail to parse")
	}
}

func TestParseClientIDRejectsEmptySegment(t *testing.T) {
	if _, _, _, _, ok := ParseClientID("esp32--7-abcd"); ok {
		t.Error("expected an empty map-name segment to fail to parse")
	}
}

func connectEvent(t *testing.T, clientID, ip string) []byte {
	t.Helper()
	raw, err := json.Marshal(connectEventPayload{ClientID: clientID, IPAddress: ip})
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return raw
}

func TestHandleConnectedWritesRecord(t *testing.T) {
	ctx := context.Background()
	tr := New(store.NewMemoryStore())
	now := time.Date(2026, 7, 30, 9, 0, 0, 0, time.UTC)

	tr.HandleConnected(ctx, connectEvent(t, "esp32-smartfarm_x-7-abcd", "10.0.0.5"), now)

	record, ok := tr.GetRecord(ctx, "esp32", "smartfarm_x", "7")
	if !ok {
		t.Fatal("expected a record after connect")
	}
	if record.IP != "10.0.0.5" {
		t.Errorf("expected ip 10.0.0.5, got %q", record.IP)
	}
	if !record.LastConnectAt.Equal(now) {
		t.Errorf("expected LastConnectAt %v, got %v", now, record.LastConnectAt)
	}
	if record.DisconnectedAt != nil {
		t.Error("expected a fresh connect to have no DisconnectedAt")
	}
}

func TestHandleConnectedDefaultsMissingIP(t *testing.T) {
	ctx := context.Background()
	tr := New(store.NewMemoryStore())

	tr.HandleConnected(ctx, connectEvent(t, "esp32-smartfarm_x-7-abcd", ""), time.Now())

	record, ok := tr.GetRecord(ctx, "esp32", "smartfarm_x", "7")
	if !ok {
		t.Fatal("expected a record after connect")
	}
	if record.IP != "unknown" {
		t.Errorf("expected ip to default to unknown, got %q", record.IP)
	}
}

func TestHandleDisconnectedDeletesRecord(t *testing.T) {
	ctx := context.Background()
	tr := New(store.NewMemoryStore())

	tr.HandleConnected(ctx, connectEvent(t, "esp32-smartfarm_x-7-abcd", "10.0.0.5"), time.Now())
	if _, ok := tr.GetRecord(ctx, "esp32", "smartfarm_x", "7"); !ok {
		t.Fatal("expected a record after connect")
	}

	tr.HandleDisconnected(ctx, connectEvent(t, "esp32-smartfarm_x-7-abcd", ""))

	if _, ok := tr.GetRecord(ctx, "esp32", "smartfarm_x", "7"); ok {
		t.Error("expected the record to be gone entirely after disconnect")
	}
}

func TestGetRecordMissingDeviceNotFound(t *testing.T) {
	ctx := context.Background()
	tr := New(store.NewMemoryStore())

	if _, ok := tr.GetRecord(ctx, "esp32", "smartfarm_x", "99"); ok {
		t.Error("expected no record for a device that never connected")
	}
}

func TestHandleConnectedDropsMalformedClientID(t *testing.T) {
	ctx := context.Background()
	tr := New(store.NewMemoryStore())

	tr.HandleConnected(ctx, connectEvent(t, "not-enough-parts", ""), time.Now())

	if _, ok := tr.GetRecord(ctx, "not", "enough", "parts"); ok {
		t.Error("expected a malformed client id to be dropped, not stored")
	}
}

func TestHandleDisconnectedDropsMalformedPayload(t *testing.T) {
	ctx := context.Background()
	tr := New(store.NewMemoryStore())
	tr.HandleDisconnected(ctx, []byte("not json"))
}

package pairing

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestConnectInfoLocalURLs(t *testing.T) {
	g := NewQRGenerator("127.0.0.1", 8766, "myproject")
	info := g.ConnectInfo()

	if info.HTTP != "http://127.0.0.1:8766" {
		t.Errorf("unexpected http url: %s", info.HTTP)
	}
	if info.WebSocket != "ws://127.0.0.1:8766/ws" {
		t.Errorf("unexpected ws url: %s", info.WebSocket)
	}
	if info.Workspace != "myproject" {
		t.Errorf("unexpected workspace: %s", info.Workspace)
	}
}

func TestConnectInfoExternalURL(t *testing.T) {
	g := NewQRGenerator("127.0.0.1", 8766, "proj")
	g.SetExternalURL("https://abc123-8766.devtunnels.ms/")

	info := g.ConnectInfo()
	if info.HTTP != "https://abc123-8766.devtunnels.ms" {
		t.Errorf("unexpected http url: %s", info.HTTP)
	}
	if info.WebSocket != "wss://abc123-8766.devtunnels.ms/ws" {
		t.Errorf("unexpected ws url: %s", info.WebSocket)
	}
}

func TestGenerateJSONRoundTrip(t *testing.T) {
	g := NewQRGenerator("localhost", 9000, "")
	raw, err := g.GenerateJSON()
	if err != nil {
		t.Fatalf("GenerateJSON: %v", err)
	}

	var info ConnectInfo
	if err := json.Unmarshal([]byte(raw), &info); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if info.HTTP == "" || info.WebSocket == "" {
		t.Errorf("missing fields in %q", raw)
	}
	if strings.Contains(raw, `"workspace"`) {
		t.Errorf("empty workspace should be omitted: %q", raw)
	}
}

func TestGenerateTerminal(t *testing.T) {
	g := NewQRGenerator("localhost", 9000, "proj")
	out, err := g.GenerateTerminal()
	if err != nil {
		t.Fatalf("GenerateTerminal: %v", err)
	}
	if len(out) == 0 {
		t.Error("expected non-empty QR output")
	}
}

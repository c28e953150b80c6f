// Package pairing renders connection info as a terminal QR code so mobile
// clients can join a running cpilot server without typing URLs.
package pairing

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/skip2/go-qrcode"
)

// ConnectInfo is the document encoded into the QR code.
type ConnectInfo struct {
	WebSocket string `json:"ws"`
	HTTP      string `json:"http"`
	Workspace string `json:"workspace,omitempty"`
}

// QRGenerator builds QR codes pointing at a cpilot server.
type QRGenerator struct {
	host        string
	port        int
	workspace   string
	externalURL string // optional public base URL (tunnels, port forwarding)
}

// NewQRGenerator creates a generator for the given server address.
func NewQRGenerator(host string, port int, workspace string) *QRGenerator {
	return &QRGenerator{
		host:      host,
		port:      port,
		workspace: workspace,
	}
}

// SetExternalURL overrides the advertised base URL, e.g. when the server is
// reached through a tunnel. The WebSocket URL is derived from it.
func (g *QRGenerator) SetExternalURL(baseURL string) {
	g.externalURL = strings.TrimRight(baseURL, "/")
}

// ConnectInfo returns the connection document that gets encoded.
func (g *QRGenerator) ConnectInfo() *ConnectInfo {
	httpURL := fmt.Sprintf("http://%s:%d", g.host, g.port)
	wsURL := fmt.Sprintf("ws://%s:%d/ws", g.host, g.port)

	if g.externalURL != "" {
		httpURL = g.externalURL
		wsURL = g.externalURL + "/ws"
		if strings.HasPrefix(wsURL, "https://") {
			wsURL = "wss://" + strings.TrimPrefix(wsURL, "https://")
		} else if strings.HasPrefix(wsURL, "http://") {
			wsURL = "ws://" + strings.TrimPrefix(wsURL, "http://")
		}
	}

	return &ConnectInfo{
		WebSocket: wsURL,
		HTTP:      httpURL,
		Workspace: g.workspace,
	}
}

// GenerateJSON returns the connection info as JSON.
func (g *QRGenerator) GenerateJSON() (string, error) {
	data, err := json.Marshal(g.ConnectInfo())
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// GenerateTerminal renders the QR code as a terminal-friendly string.
func (g *QRGenerator) GenerateTerminal() (string, error) {
	jsonData, err := g.GenerateJSON()
	if err != nil {
		return "", err
	}

	qr, err := qrcode.New(jsonData, qrcode.Medium)
	if err != nil {
		return "", err
	}

	return qr.ToSmallString(false), nil
}

// PrintToTerminal prints the QR code with a short caption.
func (g *QRGenerator) PrintToTerminal() {
	qrStr, err := g.GenerateTerminal()
	if err != nil {
		fmt.Printf("  [Error generating QR code: %v]\n", err)
		return
	}

	fmt.Println()
	fmt.Println("  Scan to connect:")
	fmt.Println()

	for _, line := range strings.Split(qrStr, "\n") {
		if line != "" {
			fmt.Printf("  %s\n", line)
		}
	}

	fmt.Println()
}

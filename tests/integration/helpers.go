//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/heroiclabs/nakama-go/v2"
)

const (
	ServerKey = "defaultkey"
	Host      = "127.0.0.1"
	Port      = 7350
)

// requireServer skips the test unless a Nakama server with the bisca
// module is reachable, gated by BISCA_INTEGRATION=1.
func requireServer(t *testing.T) {
	t.Helper()
	if os.Getenv("BISCA_INTEGRATION") == "" {
		t.Skip("set BISCA_INTEGRATION=1 to run against a local Nakama server")
	}
}

type TestClient struct {
	Client  *nakama.Client
	Session *nakama.Session
	UserID  string
}

func NewTestClient(t *testing.T) *TestClient {
	t.Helper()
	client := nakama.NewClient(ServerKey, Host, Port, false)

	// Create unique ID
	deviceID := fmt.Sprintf("test_device_%d", time.Now().UnixNano())

	// Authenticate; new accounts receive their starting coins here.
	session, err := client.AuthenticateDevice(context.Background(), deviceID, true, "")
	if err != nil {
		t.Fatalf("Failed to authenticate: %v", err)
	}

	return &TestClient{
		Client:  client,
		Session: session,
		UserID:  session.UserId,
	}
}

// Rpc calls the named RPC with a JSON request and decodes the JSON
// response into out.
func (tc *TestClient) Rpc(t *testing.T, id string, req interface{}, out interface{}) {
	t.Helper()

	payload, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal %s request: %v", id, err)
	}

	rpc, err := tc.Client.RpcFunc(context.Background(), tc.Session, id, string(payload))
	if err != nil {
		t.Fatalf("RPC %s failed: %v", id, err)
	}
	if out == nil {
		return
	}
	if err := json.Unmarshal([]byte(rpc.Payload), out); err != nil {
		t.Fatalf("unmarshal %s response: %v", id, err)
	}
}

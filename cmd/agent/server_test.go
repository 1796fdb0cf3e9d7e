package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/livekit/protocol/livekit"
	"google.golang.org/protobuf/proto"

	"github.com/lexiqai/voice-agent/internal/config"
)

// fakeAgentEndpoint accepts one worker registration per socket and keeps
// the socket open until the worker leaves
func fakeAgentEndpoint(t *testing.T) *httptest.Server {
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/agent" || !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg livekit.WorkerMessage
		if err := proto.Unmarshal(data, &msg); err != nil || msg.GetRegister() == nil {
			t.Errorf("Expected a registration, got %v (%v)", &msg, err)
			return
		}
		reply, _ := proto.Marshal(&livekit.ServerMessage{Message: &livekit.ServerMessage_Register{
			Register: &livekit.RegisterWorkerResponse{WorkerId: "AW_1"},
		}})
		if err := conn.WriteMessage(websocket.BinaryMessage, reply); err != nil {
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func freePort(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	return fmt.Sprint(ln.Addr().(*net.TCPAddr).Port)
}

func setAgentEnv(t *testing.T, livekitURL, port string) {
	t.Helper()
	t.Setenv("LIVEKIT_URL", livekitURL)
	t.Setenv("LIVEKIT_API_KEY", "APIkey")
	t.Setenv("LIVEKIT_API_SECRET", "secretsecretsecretsecretsecretsecret")
	t.Setenv("DEEPGRAM_API_KEY", "test-deepgram-key")
	t.Setenv("GROQ_API_KEY", "test-groq-key")
	t.Setenv("CARTESIA_API_KEY", "test-cartesia-key")
	t.Setenv("AWS_S3_ACCESS_KEY", "")
	t.Setenv("AWS_S3_SECRET_KEY", "")
	t.Setenv("PUBLIC_URL", "")
	t.Setenv("PORT", port)
	t.Setenv("LOG_LEVEL", "error")
}

func waitForStatus(t *testing.T, url string, want int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	last := 0
	for time.Now().Before(deadline) {
		resp, err := http.Get(url)
		if err == nil {
			last = resp.StatusCode
			resp.Body.Close()
			if last == want {
				return
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("Expected %s to return %d, last status %d", url, want, last)
}

func TestServe_ReachesListeningState(t *testing.T) {
	runtime := fakeAgentEndpoint(t)
	defer runtime.Close()
	port := freePort(t)
	setAgentEnv(t, runtime.URL, port)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, nil) }()

	base := "http://127.0.0.1:" + port
	waitForStatus(t, base+"/health", http.StatusOK)
	// ready once the worker has registered with the runtime
	waitForStatus(t, base+"/ready", http.StatusOK)

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("serve() = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serve() did not return after cancel")
	}
}

func TestServe_MissingCredentialFailsBeforeListening(t *testing.T) {
	port := freePort(t)
	setAgentEnv(t, "wss://example.livekit.cloud", port)
	t.Setenv("GROQ_API_KEY", "")

	err := serve(context.Background(), nil)
	if !errors.Is(err, config.ErrMissingCredential) {
		t.Fatalf("Expected ErrMissingCredential, got %v", err)
	}
	if conn, err := net.DialTimeout("tcp", "127.0.0.1:"+port, 200*time.Millisecond); err == nil {
		conn.Close()
		t.Error("Expected nothing listening after a configuration error")
	}
}

package runner

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/wuhu-dev/wuhu/pkg/types"
)

func wsURL(httpURL string) string {
	if strings.HasPrefix(httpURL, "https://") {
		return "wss://" + strings.TrimPrefix(httpURL, "https://")
	}
	return "ws://" + strings.TrimPrefix(httpURL, "http://")
}

func TestRegistry_RegistersOnHello(t *testing.T) {
	reg := NewRegistry()
	srv := httptest.NewServer(http.HandlerFunc(reg.ServeWS))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(srv.URL), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	hello, _ := types.Encode(types.FrameHello, types.Hello{RunnerName: "test-runner", Version: "1"})
	if err := wsjson.Write(ctx, conn, hello); err != nil {
		t.Fatalf("write hello: %v", err)
	}

	var reply types.Frame
	if err := wsjson.Read(ctx, conn, &reply); err != nil {
		t.Fatalf("read reply: %v", err)
	}
	if reply.Type != types.FrameHello {
		t.Fatalf("expected hello reply, got %s", reply.Type)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, ok := reg.Get("test-runner"); ok {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("runner never registered")
}

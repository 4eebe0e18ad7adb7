package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AppPort != 8000 {
		t.Fatalf("expected default port 8000 got %d", cfg.AppPort)
	}
	if cfg.Store != StorePostgres {
		t.Fatalf("expected postgres store got %q", cfg.Store)
	}
	if cfg.UploadDir != "files" || cfg.ObjectStore.Enabled() {
		t.Fatalf("expected local uploads by default got %+v", cfg.ObjectStore)
	}
	if cfg.WebSocket.PingPeriod >= cfg.WebSocket.PongWait {
		t.Fatal("expected ping period shorter than pong wait")
	}
	if cfg.TrustProxyHeaders {
		t.Fatal("expected proxy headers to be untrusted by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("FRIENDCHAT_PORT", "9090")
	t.Setenv("FRIENDCHAT_STORE", "Memory")
	t.Setenv("FRIENDCHAT_S3_BUCKET", "chat-images")
	t.Setenv("FRIENDCHAT_WS_SEND_BUFFER", "8")
	t.Setenv("FRIENDCHAT_AUTH_RATE_WINDOW", "30s")
	t.Setenv("FRIENDCHAT_USER_CACHE_TTL", "not-a-duration")
	t.Setenv("FRIENDCHAT_TRUST_PROXY", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AppPort != 9090 || cfg.Store != StoreMemory {
		t.Fatalf("unexpected overrides: port=%d store=%q", cfg.AppPort, cfg.Store)
	}
	if !cfg.ObjectStore.Enabled() || cfg.ObjectStore.Bucket != "chat-images" {
		t.Fatalf("expected bucket to enable object storage got %+v", cfg.ObjectStore)
	}
	if cfg.WebSocket.SendBuffer != 8 {
		t.Fatalf("expected send buffer 8 got %d", cfg.WebSocket.SendBuffer)
	}
	if cfg.AuthRateLimit.Window != 30*time.Second {
		t.Fatalf("expected 30s window got %s", cfg.AuthRateLimit.Window)
	}
	if !cfg.TrustProxyHeaders {
		t.Fatal("expected FRIENDCHAT_TRUST_PROXY to enable proxy headers")
	}
	if cfg.UserCacheTTL != 30*time.Second {
		t.Fatalf("expected malformed duration to fall back got %s", cfg.UserCacheTTL)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"unknownStore", map[string]string{"FRIENDCHAT_STORE": "mongo"}, "unknown store"},
		{"badPort", map[string]string{"FRIENDCHAT_PORT": "70000"}, "out of range"},
		{"zeroBuffer", map[string]string{"FRIENDCHAT_WS_SEND_BUFFER": "0"}, "send buffer"},
		{"pingAfterPong", map[string]string{"FRIENDCHAT_WS_PING_PERIOD": "30s", "FRIENDCHAT_WS_PONG_WAIT": "10s"}, "ping period"},
		{"zeroUpload", map[string]string{"FRIENDCHAT_UPLOAD_MAX_BYTES": "-1"}, "upload max bytes"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q got %v", tc.want, err)
			}
		})
	}
}

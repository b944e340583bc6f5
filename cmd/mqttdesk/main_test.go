package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/mqttdesk/internal/api"
)

const testSecret = "test-secret-key-at-least-32-characters-long"

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mqttdesk.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

// freePort returns a TCP port that was free a moment ago.
func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx, "/nonexistent/path/config.yaml"); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_InvalidDatabasePath verifies run fails when the database cannot be created.
func TestRun_InvalidDatabasePath(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, nil, 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	path := writeConfig(t, fmt.Sprintf(`
database:
  path: %q
api:
  port: %d
logging:
  output: discard
`, filepath.Join(blocker, "sub", "mqttdesk.db"), freePort(t)))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx, path)
	if err == nil || !strings.Contains(err.Error(), "opening database") {
		t.Fatalf("run() error = %v, want opening database failure", err)
	}
}

// TestRun_StartsAndStops boots the whole process without a broker and shuts
// it down through context cancellation.
func TestRun_StartsAndStops(t *testing.T) {
	port := freePort(t)
	path := writeConfig(t, fmt.Sprintf(`
database:
  path: ":memory:"
api:
  host: "127.0.0.1"
  port: %d
logging:
  output: discard
`, port))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- run(ctx, path) }()

	// Wait for the API to answer.
	url := fmt.Sprintf("http://127.0.0.1:%d/api/v1/health", port)
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := httpGet(url)
		if err == nil && resp == http.StatusOK {
			break
		}
		if time.Now().After(deadline) {
			cancel()
			t.Fatalf("API never became healthy: status %d err %v", resp, err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("run() error = %v, want nil on shutdown", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("run() did not return after cancellation")
	}
}

// httpGet returns the status code of a GET request.
func httpGet(url string) (int, error) {
	client := &http.Client{Timeout: time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

func TestParseFlags(t *testing.T) {
	t.Setenv("MQTTDESK_CONFIG", "")

	tests := []struct {
		name      string
		args      []string
		env       string
		wantPath  string
		wantToken bool
		wantErr   bool
	}{
		{"defaults", nil, "", defaultConfigPath, false, false},
		{"env path", nil, "/etc/mqttdesk.yaml", "/etc/mqttdesk.yaml", false, false},
		{"flag beats env", []string{"-config", "/tmp/a.yaml"}, "/etc/mqttdesk.yaml", "/tmp/a.yaml", false, false},
		{"print token", []string{"-print-token"}, "", defaultConfigPath, true, false},
		{"unknown flag", []string{"-bogus"}, "", "", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("MQTTDESK_CONFIG", tt.env)

			opts, err := parseFlags(tt.args, io.Discard)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseFlags() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if opts.configPath != tt.wantPath || opts.printToken != tt.wantToken {
				t.Errorf("opts = %+v, want path %q token %v", opts, tt.wantPath, tt.wantToken)
			}
		})
	}
}

func TestPrintToken(t *testing.T) {
	path := writeConfig(t, fmt.Sprintf(`
database:
  path: ":memory:"
api:
  auth:
    secret: %q
    token_ttl: 5
`, testSecret))

	var out bytes.Buffer
	if err := printToken(path, &out); err != nil {
		t.Fatalf("printToken() error = %v", err)
	}

	claims, err := api.ParseToken(strings.TrimSpace(out.String()), testSecret)
	if err != nil {
		t.Fatalf("printed token does not parse: %v", err)
	}
	if claims.Subject != tokenSubject {
		t.Errorf("Subject = %q, want %q", claims.Subject, tokenSubject)
	}
	if ttl := time.Until(claims.ExpiresAt.Time); ttl > 5*time.Minute || ttl < 4*time.Minute {
		t.Errorf("token lifetime = %v, want about 5m", ttl)
	}
}

func TestPrintToken_NoSecret(t *testing.T) {
	path := writeConfig(t, `
database:
  path: ":memory:"
`)
	if err := printToken(path, io.Discard); err == nil {
		t.Error("printToken() expected error without a secret")
	}
}

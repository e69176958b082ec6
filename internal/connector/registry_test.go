package connector_test

import (
	"strings"
	"testing"
	"time"

	"github.com/faucetdb/tablekeeper/internal/connector"
	"github.com/faucetdb/tablekeeper/internal/connector/connectortest"
)

func fakeFactory() connector.Connector { return connectortest.New("8.0.36") }

func TestConnectAndGet(t *testing.T) {
	r := connector.NewRegistry()
	r.RegisterDriver("fake", fakeFactory)

	err := r.Connect("primary", connector.ConnectionConfig{Driver: "fake", DSN: "test-dsn"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	conn, err := r.Get("primary")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f := conn.(*connectortest.Fake)
	if !f.Connected {
		t.Error("connector should be connected")
	}
	if f.Config.DSN != "test-dsn" {
		t.Errorf("expected DSN test-dsn, got %s", f.Config.DSN)
	}
}

func TestConnectUnsupportedDriver(t *testing.T) {
	r := connector.NewRegistry()
	r.RegisterDriver("fake", fakeFactory)

	err := r.Connect("primary", connector.ConnectionConfig{Driver: "postgres"})
	if err == nil {
		t.Fatal("expected error for unsupported driver")
	}
	if !strings.Contains(err.Error(), "fake") {
		t.Errorf("error should list available drivers, got %v", err)
	}
}

func TestConnectFailure(t *testing.T) {
	r := connector.NewRegistry()
	r.RegisterDriver("fake", fakeFactory)

	if err := r.Connect("primary", connector.ConnectionConfig{Driver: "fake", DSN: "fail"}); err == nil {
		t.Fatal("expected error for connection failure")
	}
	if got := r.ListTargets(); len(got) != 0 {
		t.Errorf("failed target should not be registered, got %v", got)
	}
}

func TestConnectReplacesExisting(t *testing.T) {
	r := connector.NewRegistry()
	var first *connectortest.Fake
	r.RegisterDriver("fake", func() connector.Connector {
		f := connectortest.New("8.0.36")
		if first == nil {
			first = f
		}
		return f
	})

	r.Connect("primary", connector.ConnectionConfig{Driver: "fake", DSN: "dsn1"})
	r.Connect("primary", connector.ConnectionConfig{Driver: "fake", DSN: "dsn2"})

	if !first.Disconnected {
		t.Error("first connector should have been disconnected on replacement")
	}
	conn, _ := r.Get("primary")
	if got := conn.(*connectortest.Fake).Config.DSN; got != "dsn2" {
		t.Errorf("expected DSN dsn2 after replacement, got %s", got)
	}
}

func TestGetNotFound(t *testing.T) {
	r := connector.NewRegistry()
	if _, err := r.Get("nonexistent"); err == nil {
		t.Fatal("expected error for nonexistent target")
	}
}

func TestDisconnect(t *testing.T) {
	r := connector.NewRegistry()
	r.RegisterDriver("fake", fakeFactory)

	r.Connect("primary", connector.ConnectionConfig{Driver: "fake", DSN: "dsn"})
	if err := r.Disconnect("primary"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := r.Get("primary"); err == nil {
		t.Error("expected error after disconnect")
	}
	if err := r.Disconnect("primary"); err == nil {
		t.Error("expected error disconnecting unknown target")
	}
}

func TestCloseAllAndListTargets(t *testing.T) {
	r := connector.NewRegistry()
	r.RegisterDriver("fake", fakeFactory)

	for _, name := range []string{"replica", "primary", "analytics"} {
		r.Connect(name, connector.ConnectionConfig{Driver: "fake", DSN: name})
	}

	got := r.ListTargets()
	want := []string{"analytics", "primary", "replica"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("ListTargets = %v, want %v", got, want)
	}

	r.CloseAll()
	if n := len(r.ListTargets()); n != 0 {
		t.Errorf("expected 0 targets after CloseAll, got %d", n)
	}
}

func TestSanitizeDSN(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"already correct", "user:pass@tcp(db:3306)/app", "user:pass@tcp(db:3306)/app?parseTime=true"},
		{"missing tcp keyword", "user:pass@(db:3306)/app", "user:pass@tcp(db:3306)/app?parseTime=true"},
		{"bare host port", "user:pass@db:3306/app", "user:pass@tcp(db:3306)/app?parseTime=true"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := connector.SanitizeDSN("mysql", tt.in); got != tt.want {
				t.Errorf("SanitizeDSN(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}

	if got := connector.SanitizeDSN("sqlite", "file.db"); got != "file.db" {
		t.Errorf("non-mysql DSN changed: %q", got)
	}
}

func TestRedactDSN(t *testing.T) {
	got := connector.RedactDSN("root:secret@tcp(db:3306)/app")
	if strings.Contains(got, "secret") {
		t.Errorf("password leaked: %s", got)
	}
	if !strings.Contains(got, "root:xxxxx@") {
		t.Errorf("expected masked password, got %s", got)
	}
}

func TestTimingLog(t *testing.T) {
	var log connector.TimingLog
	log.Record("OPTIMIZE TABLE `a`.`b`;", time.Now())
	log.Record("SELECT 1", time.Now())

	got := log.Entries()
	if len(got) != 2 || got[0].Statement != "OPTIMIZE TABLE `a`.`b`;" {
		t.Fatalf("unexpected entries: %+v", got)
	}
	got[0].Statement = "mutated"
	if log.Entries()[0].Statement == "mutated" {
		t.Error("Entries should return a copy")
	}
}

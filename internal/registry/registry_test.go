package registry

import (
	"path/filepath"
	"testing"
)

func TestNewRejectsDuplicateLabels(t *testing.T) {
	_, err := New([]Spec{
		{Label: "A", Pattern: "foo.py"},
		{Label: "A", Pattern: "bar.py"},
	})
	if err == nil {
		t.Fatalf("expected duplicate label error")
	}
}

func TestNewRejectsEmptyLabelOrPattern(t *testing.T) {
	if _, err := New([]Spec{{Label: "", Pattern: "x"}}); err == nil {
		t.Fatalf("expected error for empty label")
	}
	if _, err := New([]Spec{{Label: "A", Pattern: ""}}); err == nil {
		t.Fatalf("expected error for empty pattern")
	}
}

func TestOrderAndLookup(t *testing.T) {
	r, err := New([]Spec{
		{Label: "B", Pattern: "b"},
		{Label: "A", Pattern: "a", Command: "true"},
	})
	if err != nil {
		t.Fatal(err)
	}
	specs := r.Specs()
	if len(specs) != 2 || specs[0].Label != "B" || specs[1].Label != "A" {
		t.Fatalf("definition order not preserved: %#v", specs)
	}
	s, ok := r.Lookup("A")
	if !ok || s.Command != "true" {
		t.Fatalf("lookup A failed: %#v ok=%v", s, ok)
	}
	if !s.Managed() {
		t.Fatalf("A has a command, should be managed")
	}
	if specs[0].Managed() {
		t.Fatalf("B has no command, should be observe-only")
	}
	if _, ok := r.Lookup("missing"); ok {
		t.Fatalf("lookup of unknown label must fail")
	}
}

func TestDefaultRegistry(t *testing.T) {
	r := Default("/opt/watcher", "/opt/watcher/logs")
	if r.Len() != 5 {
		t.Fatalf("expected 5 stock processes, got %d", r.Len())
	}
	for _, label := range []string{"Main Sensors", "PWA Server", "PWA Watchdog", "Cloudflare Tunnel", "Oracle Creator"} {
		if _, ok := r.Lookup(label); !ok {
			t.Fatalf("missing stock process %q", label)
		}
	}
	oc, _ := r.Lookup("Oracle Creator")
	if !oc.Optional || oc.Artifact != filepath.Join("/opt/watcher", "oracle_instance_creator.py") {
		t.Fatalf("oracle creator must be optional with artifact path, got %#v", oc)
	}
}

func TestSlug(t *testing.T) {
	cases := map[string]string{
		"Main Sensors":      "main-sensors",
		"PWA Server":        "pwa-server",
		"Cloudflare Tunnel": "cloudflare-tunnel",
		"oracle_creator":    "oracle-creator",
		"x/y:z":             "xyz",
	}
	for in, want := range cases {
		if got := Slug(in); got != want {
			t.Fatalf("Slug(%q)=%q want %q", in, got, want)
		}
	}
}

func TestPIDFilePath(t *testing.T) {
	if got := PIDFilePath("", "Main Sensors"); got != "" {
		t.Fatalf("empty runDir must yield empty path, got %q", got)
	}
	got := PIDFilePath("/run/watchctl", "Main Sensors")
	want := filepath.Join("/run/watchctl", "main-sensors.pid")
	if got != want {
		t.Fatalf("PIDFilePath=%q want %q", got, want)
	}
}

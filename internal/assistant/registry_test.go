package assistant

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
)

type fakeProvisioner struct {
	calls int
}

func (f *fakeProvisioner) CreateAssistant(ctx context.Context, name, description, instructions, model string) (string, error) {
	f.calls++
	return fmt.Sprintf("asst_%024d", f.calls), nil
}

func TestRegistry_ProvisionAll(t *testing.T) {
	p := &fakeProvisioner{}
	r := &Registry{}

	created, err := r.Provision(context.Background(), p, "gpt-4o", nil)
	if err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if created != 4 {
		t.Errorf("created = %d, want 4", created)
	}
	if !r.Complete() {
		t.Errorf("registry incomplete after provisioning: %+v", r)
	}
}

func TestRegistry_ProvisionIdempotent(t *testing.T) {
	p := &fakeProvisioner{}
	r := &Registry{}

	if _, err := r.Provision(context.Background(), p, "gpt-4o", nil); err != nil {
		t.Fatal(err)
	}
	created, err := r.Provision(context.Background(), p, "gpt-4o", nil)
	if err != nil {
		t.Fatal(err)
	}
	if created != 0 {
		t.Errorf("second provision created %d assistants, want 0", created)
	}
	if p.calls != 4 {
		t.Errorf("CreateAssistant called %d times total, want 4", p.calls)
	}
}

func TestRegistry_ProvisionFillsOnlyMissing(t *testing.T) {
	p := &fakeProvisioner{}
	r := &Registry{
		ZoneAnalyzer: "asst_aaaaaaaaaaaaaaaaaaaaaaaa",
		DNSHelper:    "not-a-valid-id",
	}

	created, err := r.Provision(context.Background(), p, "gpt-4o", nil)
	if err != nil {
		t.Fatal(err)
	}
	// zone_healthcheck, dns_helper (malformed), system_status
	if created != 3 {
		t.Errorf("created = %d, want 3", created)
	}
	if r.ZoneAnalyzer != "asst_aaaaaaaaaaaaaaaaaaaaaaaa" {
		t.Errorf("valid id was replaced: %s", r.ZoneAnalyzer)
	}
}

func TestRegistry_SaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "assistants.yaml")

	r := &Registry{
		ZoneAnalyzer:    "asst_aaaaaaaaaaaaaaaaaaaaaaaa",
		ZoneHealthcheck: "asst_bbbbbbbbbbbbbbbbbbbbbbbb",
		DNSHelper:       "asst_cccccccccccccccccccccccc",
		SystemStatus:    "asst_dddddddddddddddddddddddd",
	}
	if err := r.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := LoadRegistry(path)
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}
	if *got != *r {
		t.Errorf("round trip = %+v, want %+v", got, r)
	}
}

func TestLoadRegistry_Missing(t *testing.T) {
	got, err := LoadRegistry(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadRegistry on missing file: %v", err)
	}
	if got.Complete() {
		t.Error("empty registry should not be complete")
	}
}

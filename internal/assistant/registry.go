package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// assistantIDPattern matches the id shape the service hands out.
var assistantIDPattern = regexp.MustCompile(`^asst_[a-zA-Z0-9]{24}$`)

// Registry maps the named assistants zonebot relies on to their
// service-side ids. It is provisioned once by `zonebot init` and
// loaded on every start.
type Registry struct {
	ZoneAnalyzer    string `yaml:"zone_analyzer_id"`
	ZoneHealthcheck string `yaml:"zone_healthcheck_id"`
	DNSHelper       string `yaml:"dns_helper_id"`
	SystemStatus    string `yaml:"system_status_id"`
}

// definitions pairs each registry slot with its provisioning inputs.
func (r *Registry) definitions() []struct {
	slot         *string
	name         string
	version      string
	instructions string
} {
	return []struct {
		slot         *string
		name         string
		version      string
		instructions string
	}{
		{&r.ZoneAnalyzer, "zone-analyzer", zoneAnalyzerVersion, zoneAnalyzerInstructions},
		{&r.ZoneHealthcheck, "zone-healthcheck", zoneHealthcheckVersion, zoneHealthcheckInstructions},
		{&r.DNSHelper, "dns-helper", dnsHelperVersion, dnsHelperInstructions},
		{&r.SystemStatus, "system-status", systemStatusVersion, systemStatusInstructions},
	}
}

// Complete reports whether every slot holds a well-formed assistant id.
func (r *Registry) Complete() bool {
	for _, d := range r.definitions() {
		if !assistantIDPattern.MatchString(*d.slot) {
			return false
		}
	}
	return true
}

// LoadRegistry reads the assistants file. A missing file returns an
// empty registry so Provision can fill it in.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Registry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read assistants file: %w", err)
	}

	var r Registry
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse assistants file %s: %w", path, err)
	}
	return &r, nil
}

// Save writes the registry to path, creating parent directories.
func (r *Registry) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create assistants dir: %w", err)
	}
	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal assistants: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write assistants file: %w", err)
	}
	return nil
}

// Provisioner is the slice of the service API needed to create
// assistants.
type Provisioner interface {
	CreateAssistant(ctx context.Context, name, description, instructions, model string) (string, error)
}

// Provision creates any assistant whose slot is empty or malformed,
// leaving valid ids untouched. Returns how many were created, making
// repeated invocations idempotent.
func (r *Registry) Provision(ctx context.Context, p Provisioner, model string, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}

	created := 0
	for _, d := range r.definitions() {
		if assistantIDPattern.MatchString(*d.slot) {
			continue
		}

		name := fmt.Sprintf("%s_%d", d.name, time.Now().Unix())
		id, err := p.CreateAssistant(ctx, name, d.version, d.instructions, model)
		if err != nil {
			return created, err
		}
		if !assistantIDPattern.MatchString(id) {
			return created, fmt.Errorf("service returned malformed assistant id %q for %s", id, d.name)
		}

		logger.Info("assistant provisioned", "name", d.name, "assistant_id", id)
		*d.slot = id
		created++
	}
	return created, nil
}

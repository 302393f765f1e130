package catalog

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const loaderLogPrefix = "catalog:loader"

// LoadSeedFile loads a catalog snapshot from the first readable path. Paths are
// tried in order, then CONSOLE_SEED_FILE, then the defaults. Files ending in
// .yaml or .yml are decoded as YAML, everything else as JSON. When nothing is
// found the built-in default catalog is returned.
func LoadSeedFile(paths ...string) (*Snapshot, error) {
	all := make([]string, 0, len(paths)+3)
	for _, p := range paths {
		if p != "" {
			all = append(all, p)
		}
	}
	if envPath := os.Getenv("CONSOLE_SEED_FILE"); envPath != "" {
		all = append(all, envPath)
	}
	all = append(all, "config/standards.yaml", "standards.json")

	for _, p := range all {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}

		snap, err := DecodeSnapshot(p, data)
		if err != nil {
			slog.Warn(fmt.Sprintf("%s - Failed to parse seed file %s: %v", loaderLogPrefix, p, err))
			continue
		}
		if _, err := New(snap); err != nil {
			return nil, fmt.Errorf("%s - seed file %s is invalid: %w", loaderLogPrefix, p, err)
		}

		slog.Info(fmt.Sprintf("%s - Loaded %d standards from %s", loaderLogPrefix, len(snap.Schemas), p))
		return snap, nil
	}

	slog.Info(fmt.Sprintf("%s - Using default standards catalog", loaderLogPrefix))
	return DefaultSnapshot(), nil
}

// DecodeSnapshot decodes data by the extension of name.
func DecodeSnapshot(name string, data []byte) (*Snapshot, error) {
	var snap Snapshot
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &snap); err != nil {
			return nil, err
		}
	default:
		if err := json.Unmarshal(data, &snap); err != nil {
			return nil, err
		}
	}
	return &snap, nil
}

// DefaultSnapshot returns the fallback catalog shipped with the console.
func DefaultSnapshot() *Snapshot {
	return &Snapshot{
		Version: "1.0.0",
		Schemas: []Schema{
			{
				ID:               "standards.EnableMFA",
				Label:            "Require MFA for all users",
				HelpText:         "Enables the security defaults MFA policy for the tenant.",
				Category:         "Entra (AAD) Standards",
				DisabledFeatures: map[string]bool{"remediate": true},
			},
			{
				ID:       "standards.MailContacts",
				Label:    "Set contact e-mails",
				HelpText: "Defines the technical and security contacts of the tenant.",
				Category: "Global Standards",
				SubFields: []Field{
					{Name: "GeneralContact", Type: FieldText, Label: "General contact"},
					{Name: "SecurityContact", Type: FieldText, Label: "Security contact"},
				},
			},
			{
				ID:       "standards.IntuneTemplate",
				Label:    "Intune template",
				HelpText: "Deploys an Intune configuration template.",
				Category: "Intune Standards",
				Multiple: true,
				SubFields: []Field{
					{Name: "TemplateList", Type: FieldAutoComplete, Label: "Template", OptionsSource: "/api/ListIntuneTemplates"},
					{Name: "AssignTo", Type: FieldSelect, Label: "Assign to"},
				},
			},
			{
				ID:               "standards.SpoofWarn",
				Label:            "Enable spoofing warnings",
				HelpText:         "Adds an external sender warning to inbound mail.",
				Category:         "Exchange Standards",
				DisabledFeatures: map[string]bool{"warn": true},
			},
		},
	}
}

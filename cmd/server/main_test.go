package main

import (
	"context"
	"testing"

	"inventorypro/backend/internal/config"
)

const strongSecret = "0123456789abcdef0123456789abcdef"

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	cases := map[string]config.Config{
		"short secret":     {AuthSecret: "short", StorageDriver: "file"},
		"unknown driver":   {AuthSecret: strongSecret, StorageDriver: "sqlite"},
		"postgres no url":  {AuthSecret: strongSecret, StorageDriver: "postgres"},
		"weak seed passwd": {AuthSecret: strongSecret, StorageDriver: "memory", SeedAdminPassword: "abc"},
	}
	for name, cfg := range cases {
		if err := validateSecurityConfig(cfg); err == nil {
			t.Fatalf("%s: expected config to be rejected", name)
		}
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: strongSecret, StorageDriver: "file", SeedAdminPassword: "long-enough"})
	if err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}

func TestOpenDocumentsFileDriver(t *testing.T) {
	docs, closeFn, err := openDocuments(context.Background(), config.Config{StorageDriver: "file", DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("open file store: %v", err)
	}
	if docs == nil || closeFn != nil {
		t.Fatalf("expected file store without closer")
	}
	if _, _, err := openDocuments(context.Background(), config.Config{StorageDriver: "bogus"}); err == nil {
		t.Fatalf("expected unknown driver to fail")
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "omnitutor.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("GEMINI_API_KEY", "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != ":8080" || cfg.Backend != "openai" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Storage.Backend != "local" || cfg.Storage.Dir != filepath.Join("./data", "files") {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
	if cfg.OpenAI.APIKey != "sk-test" {
		t.Fatalf("api key = %q", cfg.OpenAI.APIKey)
	}
	if cfg.DBDir() != filepath.Join("./data", "db") {
		t.Fatalf("db dir = %q", cfg.DBDir())
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
listen: ":9000"
data_dir: /var/lib/omnitutor
openai:
  api_key: sk-file
  respond_model: gpt-4.1
storage:
  backend: s3
  s3:
    bucket: tutor-files
    region: cn-north-1
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != ":9000" || cfg.OpenAI.RespondModel != "gpt-4.1" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Storage.S3.Bucket != "tutor-files" {
		t.Fatalf("s3 = %+v", cfg.Storage.S3)
	}
	if cfg.Storage.Dir != filepath.Join("/var/lib/omnitutor", "files") {
		t.Fatalf("storage dir = %q", cfg.Storage.Dir)
	}
}

func TestLoadRejectsMissingKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := Load(""); err == nil {
		t.Fatal("expected an error for the missing api key")
	}
}

func TestLoadRejectsGeminiWithoutKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	path := writeConfig(t, `
backend: gemini
openai:
  api_key: sk-test
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for the missing gemini key")
	}
}

func TestLoadRejectsS3WithoutBucket(t *testing.T) {
	path := writeConfig(t, `
openai:
  api_key: sk-test
storage:
  backend: s3
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for the missing bucket")
	}
}

package validate

import (
	"testing"

	"sigs.k8s.io/yaml"
)

func yamlToJSON(t *testing.T, doc string) []byte {
	t.Helper()
	data, err := yaml.YAMLToJSON([]byte(doc))
	if err != nil {
		t.Fatalf("yaml conversion: %v", err)
	}
	return data
}

func TestValidateConfigJSON(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr bool
	}{
		{
			name: "full config",
			doc: `
server:
  url: https://repo.example.com
  token_file: /etc/artifactory-fetch/token
  insecure_skip_verify: false
workers: 8
download_dir: ./downloads
verify_checksums: true
decompress: false
logging:
  level: debug
  file: fetch.log
`,
		},
		{name: "empty document", doc: "{}"},
		{name: "workers too high", doc: "workers: 500", wantErr: true},
		{name: "workers zero", doc: "workers: 0", wantErr: true},
		{name: "workers not integer", doc: "workers: eight", wantErr: true},
		{name: "unknown top-level key", doc: "cache_dir: ./cache", wantErr: true},
		{name: "unknown server key", doc: "server:\n  username: admin", wantErr: true},
		{name: "bad log level", doc: "logging:\n  level: trace", wantErr: true},
		{name: "url without scheme", doc: "server:\n  url: repo.example.com", wantErr: true},
		{name: "empty download dir", doc: `download_dir: ""`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateConfigJSON(yamlToJSON(t, tt.doc))
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateConfigJSON() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateAgainstSchema(t *testing.T) {
	schemaDoc := []byte(`{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "integer",
  "minimum": 1,
  "maximum": 65535
}`)

	if err := ValidateAgainstSchema("port.json", schemaDoc, []byte(`8080`)); err != nil {
		t.Errorf("expected valid port, got %v", err)
	}
	if err := ValidateAgainstSchema("port.json", schemaDoc, []byte(`70000`)); err == nil {
		t.Error("expected out-of-range port to fail")
	}
	if err := ValidateAgainstSchema("port.json", schemaDoc, []byte(`{`)); err == nil {
		t.Error("expected invalid JSON to fail")
	}
	if err := ValidateAgainstSchema("broken.json", []byte(`{"type": 12}`), []byte(`{}`)); err == nil {
		t.Error("expected broken schema to fail")
	}
}

func TestValidatorCompilesOnce(t *testing.T) {
	v := NewValidator("port.json", []byte(`{"type": "integer", "minimum": 1}`))

	first, err := v.compile()
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	second, err := v.compile()
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if first != second {
		t.Error("expected the compiled schema to be reused")
	}

	if err := v.Validate(float64(3)); err != nil {
		t.Errorf("expected decoded document to pass, got %v", err)
	}
	if err := v.ValidateJSON([]byte(`0`)); err == nil {
		t.Error("expected minimum violation")
	}
}

func TestValidatorBrokenSchema(t *testing.T) {
	v := NewValidator("broken.json", []byte(`{"type": 12}`))
	if err := v.Validate(map[string]interface{}{}); err == nil {
		t.Error("expected compile error to surface from Validate")
	}
	if err := v.ValidateJSON([]byte(`{}`)); err == nil {
		t.Error("expected compile error to surface from ValidateJSON")
	}
}

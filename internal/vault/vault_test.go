package vault

import (
	"errors"
	"testing"
)

func TestParseRef(t *testing.T) {
	tests := []struct {
		ref             string
		mount, rel, key string
		wantErr         bool
	}{
		{ref: "vault:secret/mailingtools#db_password", mount: "secret", rel: "mailingtools", key: "db_password"},
		{ref: "vault:/kv/crm/prod/#dsn", mount: "kv", rel: "crm/prod", key: "dsn"},
		{ref: "vault:secret#key", wantErr: true},
		{ref: "vault:secret/x", wantErr: true},
		{ref: "vault:secret/x#", wantErr: true},
		{ref: "plain-password", wantErr: true},
	}

	for _, tt := range tests {
		mount, rel, key, err := ParseRef(tt.ref)
		if tt.wantErr {
			if !errors.Is(err, ErrBadRef) {
				t.Errorf("ParseRef(%q) err = %v, want ErrBadRef", tt.ref, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseRef(%q): %v", tt.ref, err)
		}
		if mount != tt.mount || rel != tt.rel || key != tt.key {
			t.Errorf("ParseRef(%q) = %q %q %q", tt.ref, mount, rel, key)
		}
	}
}

func TestIsRef(t *testing.T) {
	if !IsRef("vault:secret/a#b") {
		t.Error("expected vault ref")
	}
	if IsRef("secret") {
		t.Error("plain value reported as ref")
	}
}

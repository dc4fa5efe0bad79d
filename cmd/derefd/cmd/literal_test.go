package cmd

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/MrSnakeDoc/derefd/internal/version"
)

func TestLiteralCommand(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{
			name: "curie type",
			args: []string{"literal", "--value", "42", "--type", "xsd:int"},
			want: `"42"^^<http://www.w3.org/2001/XMLSchema#int>`,
		},
		{
			name: "quoted value",
			args: []string{"literal", "--value", `"foo"`, "--type", "<http://www.w3.org/2001/XMLSchema#string>"},
			want: `"foo"^^<http://www.w3.org/2001/XMLSchema#string>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			rootCmd.SetOut(&out)
			rootCmd.SetArgs(tt.args)
			if err := rootCmd.Execute(); err != nil {
				t.Fatalf("Execute() error = %v", err)
			}
			if got := strings.TrimSpace(out.String()); got != tt.want {
				t.Errorf("literal = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.HasPrefix(out.String(), "derefd ") {
		t.Errorf("version output = %q", out.String())
	}
}

func TestVersionCommandJSON(t *testing.T) {
	t.Cleanup(func() { versionJSON = false })

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version", "--json"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	var info version.Info
	if err := json.Unmarshal(out.Bytes(), &info); err != nil {
		t.Fatalf("version output is not JSON: %v", err)
	}
	if info.Version != version.Version || info.Platform == "" {
		t.Errorf("version info = %+v", info)
	}
}

package command

import (
	"reflect"
	"testing"
)

func TestParseCommand(t *testing.T) {
	cases := []struct {
		line string
		name string
		args []string
	}{
		{line: "npm install", name: "npm", args: []string{"install"}},
		{line: "  npx   sst deploy ", name: "npx", args: []string{"sst", "deploy"}},
		{line: `sh -c "echo 'hi there'"`, name: "sh", args: []string{"-c", "echo 'hi there'"}},
		{line: `echo a\ b ''`, name: "echo", args: []string{"a b", ""}},
	}
	for _, tc := range cases {
		cmd, err := Parse(tc.line)
		if err != nil {
			t.Fatalf("parse %q: %v", tc.line, err)
		}
		if cmd.Name != tc.name {
			t.Fatalf("parse %q: expected name %q got %q", tc.line, tc.name, cmd.Name)
		}
		if !reflect.DeepEqual(cmd.Args, tc.args) {
			t.Fatalf("parse %q: expected args %#v got %#v", tc.line, tc.args, cmd.Args)
		}
	}
}

func TestParseCommandErrors(t *testing.T) {
	if _, err := Parse("   "); err == nil {
		t.Fatalf("expected error for empty command")
	}
	if _, err := Parse(`echo "unterminated`); err == nil {
		t.Fatalf("expected error for unterminated quote")
	}
}

func TestWithDoesNotAliasArgs(t *testing.T) {
	base, err := Parse("npx sst deploy")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	staging := base.With("--stage", "staging")
	prod := base.With("--stage", "production")

	if len(base.Args) != 2 {
		t.Fatalf("base command mutated: %#v", base.Args)
	}
	if staging.String() != "npx sst deploy --stage staging" {
		t.Fatalf("unexpected staging command %q", staging.String())
	}
	if prod.String() != "npx sst deploy --stage production" {
		t.Fatalf("unexpected production command %q", prod.String())
	}
}

func TestStringQuotesArguments(t *testing.T) {
	cmd := New("git", "clone", "/tmp/with space")
	if got := cmd.String(); got != "git clone '/tmp/with space'" {
		t.Fatalf("unexpected rendering %q", got)
	}
}

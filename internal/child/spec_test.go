package child

import (
	"strings"
	"testing"
)

func TestBuildCommandSimple(t *testing.T) {
	s := Spec{Name: "app", Command: "/bin/echo hello world"}
	cmd := s.BuildCommand()
	if cmd.Path != "/bin/echo" {
		t.Fatalf("path = %q, want /bin/echo", cmd.Path)
	}
	if len(cmd.Args) != 3 || cmd.Args[1] != "hello" || cmd.Args[2] != "world" {
		t.Fatalf("args = %v", cmd.Args)
	}
}

func TestBuildCommandShellMetachars(t *testing.T) {
	s := Spec{Name: "app", Command: "echo hi > /dev/null"}
	cmd := s.BuildCommand()
	if cmd.Path != "/bin/sh" {
		t.Fatalf("expected shell wrapping, got %q", cmd.Path)
	}
	if cmd.Args[1] != "-c" {
		t.Fatalf("expected -c, got %v", cmd.Args)
	}
}

func TestBuildCommandExplicitShellNotDoubleWrapped(t *testing.T) {
	s := Spec{Name: "app", Command: "sh -c 'sleep 1; echo done'"}
	cmd := s.BuildCommand()
	if cmd.Path != "/bin/sh" {
		t.Fatalf("path = %q", cmd.Path)
	}
	script := cmd.Args[len(cmd.Args)-1]
	if strings.Contains(script, "sh -c") {
		t.Fatalf("double-wrapped shell: %v", cmd.Args)
	}
	if script != "sleep 1; echo done" {
		t.Fatalf("script = %q", script)
	}
}

func TestExecutable(t *testing.T) {
	cases := []struct {
		command string
		want    string
	}{
		{"/usr/local/bin/app --serve", "/usr/local/bin/app"},
		{"app", "app"},
		{"sh -c 'echo hi'", "/bin/sh"},
		{"echo hi | grep hi", "/bin/sh"},
	}
	for _, c := range cases {
		s := Spec{Name: "x", Command: c.command}
		if got := s.Executable(); got != c.want {
			t.Errorf("Executable(%q) = %q, want %q", c.command, got, c.want)
		}
	}
}

func TestValidate(t *testing.T) {
	s := Spec{}
	if err := s.Validate(); err == nil {
		t.Fatal("expected error for empty spec")
	}
	s = Spec{Name: "app"}
	if err := s.Validate(); err == nil {
		t.Fatal("expected error for missing command")
	}
	s = Spec{Name: "app", Command: "/bin/true"}
	if err := s.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

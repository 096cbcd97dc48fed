package deploy

import "testing"

func TestTargetValidate(t *testing.T) {
	tests := []struct {
		name    string
		target  Target
		wantErr bool
	}{
		{"complete", Target{Name: "app", WorkDir: "/srv/app", Deploy: "make deploy"}, false},
		{"missing name", Target{WorkDir: "/srv/app", Deploy: "make deploy"}, true},
		{"missing workdir", Target{Name: "app", Deploy: "make deploy"}, true},
		{"missing deploy", Target{Name: "app", WorkDir: "/srv/app"}, true},
		{"whitespace deploy", Target{Name: "app", WorkDir: "/srv/app", Deploy: "  "}, true},
		{"build optional", Target{Name: "app", WorkDir: "/srv/app", Deploy: "restart"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.target.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRemoteNameDefault(t *testing.T) {
	tgt := Target{}
	if got := tgt.RemoteName(); got != "origin" {
		t.Fatalf("RemoteName() = %q, want origin", got)
	}
	tgt.Remote = "upstream"
	if got := tgt.RemoteName(); got != "upstream" {
		t.Fatalf("RemoteName() = %q, want upstream", got)
	}
}

func TestTrackingRef(t *testing.T) {
	tgt := Target{}
	if got := tgt.TrackingRef(); got != "@{u}" {
		t.Fatalf("TrackingRef() = %q, want @{u}", got)
	}
	tgt.Branch = "main"
	if got := tgt.TrackingRef(); got != "origin/main" {
		t.Fatalf("TrackingRef() = %q, want origin/main", got)
	}
	tgt.Remote = "upstream"
	if got := tgt.TrackingRef(); got != "upstream/main" {
		t.Fatalf("TrackingRef() = %q, want upstream/main", got)
	}
}

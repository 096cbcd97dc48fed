package deploy

import (
	"errors"
	"strings"
)

// Target is one source-repository + build/deploy pairing managed by the
// orchestrator.
type Target struct {
	Name    string `json:"name" mapstructure:"name"`
	WorkDir string `json:"workdir" mapstructure:"workdir"` // local working copy
	Remote  string `json:"remote" mapstructure:"remote"`   // remote name, default "origin"
	Branch  string `json:"branch" mapstructure:"branch"`   // tracked branch; empty uses the upstream of HEAD
	Build   string `json:"build" mapstructure:"build"`     // external build command, run in WorkDir
	Deploy  string `json:"deploy" mapstructure:"deploy"`   // external deploy command, run in WorkDir
	Cleanup string `json:"cleanup" mapstructure:"cleanup"` // optional housekeeping, never fails the run
}

// Validate checks the fields required before a target can be evaluated.
func (t *Target) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return errors.New("deploy target requires a name")
	}
	if strings.TrimSpace(t.WorkDir) == "" {
		return errors.New("deploy target requires a workdir")
	}
	if strings.TrimSpace(t.Deploy) == "" {
		return errors.New("deploy target requires a deploy command")
	}
	return nil
}

// RemoteName returns the git remote to fetch from.
func (t *Target) RemoteName() string {
	if t.Remote == "" {
		return "origin"
	}
	return t.Remote
}

// TrackingRef is the revision the working copy should follow: the configured
// remote branch, or the upstream of the current branch when none is set.
func (t *Target) TrackingRef() string {
	if t.Branch == "" {
		return "@{u}"
	}
	return t.RemoteName() + "/" + t.Branch
}

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/vigil-sh/vigil/internal/deploy"
)

// printRunResult writes a machine-readable summary of an orchestration run to
// stdout; the operational log already carries the per-stage detail.
func printRunResult(res deploy.RunResult) {
	type line struct {
		Target   string `json:"target"`
		Outcome  string `json:"outcome"`
		Revision string `json:"revision,omitempty"`
		Stage    string `json:"stage,omitempty"`
		Error    string `json:"error,omitempty"`
	}
	out := struct {
		Skipped bool   `json:"skipped"`
		Targets []line `json:"targets"`
	}{Skipped: res.Skipped}
	for _, t := range res.Targets {
		l := line{
			Target:   t.Target,
			Outcome:  string(t.Outcome),
			Revision: t.Revision,
			Stage:    string(t.Stage),
		}
		if t.Err != nil {
			l.Error = t.Err.Error()
		}
		out.Targets = append(out.Targets, l)
	}
	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		return
	}
	fmt.Println(string(b))
}

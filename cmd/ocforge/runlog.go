package main

import (
	"fmt"
	"os"

	"github.com/ocforge/ocforge/internal/firmware"
	"github.com/ocforge/ocforge/internal/journal"
)

// runLog records a command invocation in the run journal. Recording is
// best effort: when the journal cannot be opened (no root, read-only
// filesystem) the zero runLog swallows everything and the command keeps
// going.
type runLog struct {
	j     *journal.Journal
	runID int64
}

func beginRun(kind, target string) *runLog {
	j, err := journal.Open(journal.DefaultPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: run journal unavailable: %v\n", err)
		return &runLog{}
	}
	id, err := j.BeginRun(kind, target)
	if err != nil {
		j.Close()
		return &runLog{}
	}
	return &runLog{j: j, runID: id}
}

func (r *runLog) step(step, status string, details map[string]interface{}) {
	if r.j == nil {
		return
	}
	r.j.RecordStep(r.runID, step, status, details)
}

func (r *runLog) summary(s *firmware.Summary) {
	if r.j == nil {
		return
	}
	r.j.RecordSummary(r.runID, s.SMBIOS, s.BootArgs, len(s.Kexts), s.SecurityDowngraded)
}

// finish closes out the run and the journal. Pass the command's final
// error; nil marks the run ok.
func (r *runLog) finish(err error) {
	if r.j == nil {
		return
	}
	if err != nil {
		r.j.FinishRun(r.runID, journal.StatusFailed, err.Error())
	} else {
		r.j.FinishRun(r.runID, journal.StatusOK, "")
	}
	r.j.Close()
	r.j = nil
}

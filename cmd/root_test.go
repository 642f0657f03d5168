package cmd

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/tanq16/hfmirror/internal/scheduler"
	"github.com/tanq16/hfmirror/internal/utils"
)

func TestClassifyModelAndExitCode(t *testing.T) {
	unauthorized := &utils.FatalError{Kind: utils.FatalUnauthorized, Err: errors.New("401 from mirror")}
	clean := scheduler.Summary{Results: []scheduler.Result{{State: scheduler.StateDone}, {State: scheduler.StateSkipped}}}
	partial := scheduler.Summary{Results: []scheduler.Result{{State: scheduler.StateDone}, {State: scheduler.StateFailed}}}

	tests := []struct {
		name      string
		summary   scheduler.Summary
		err       error
		wantFail  bool
		wantFatal bool
		wantCode  int
	}{
		{name: "clean", summary: clean, wantCode: 0},
		{name: "failed target", summary: partial, wantFail: true, wantCode: 1},
		{name: "plain error", err: errors.New("error listing large files: boom"), wantFail: true, wantCode: 1},
		{name: "wrapped fatal", err: fmt.Errorf("error syncing repository: %w", unauthorized), wantFail: true, wantFatal: true, wantCode: 1},
		{name: "fatal with partial summary", summary: partial, err: unauthorized, wantFail: true, wantFatal: true, wantCode: 1},
		{name: "interrupted", err: fmt.Errorf("run stopped: %w", context.Canceled), wantFail: true, wantFatal: true, wantCode: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			failed, fatal := classifyModel(tt.summary, tt.err)
			if failed != tt.wantFail || fatal != tt.wantFatal {
				t.Errorf("classifyModel = (%v, %v), want (%v, %v)", failed, fatal, tt.wantFail, tt.wantFatal)
			}
			var fatalErr error
			if fatal {
				fatalErr = tt.err
			}
			if code := exitCode(failed, fatalErr); code != tt.wantCode {
				t.Errorf("exitCode = %d, want %d", code, tt.wantCode)
			}
		})
	}
}

// SPDX-FileCopyrightText: 2024 The censys-oss authors
// SPDX-License-Identifier: MIT

package runtime

import "testing"

func TestSyncRuntimeRunsInline(t *testing.T) {
	rt := NewSyncRuntime()
	ran := false
	rt.SubmitBlocking(func() { ran = true })
	if !ran {
		t.Fatal("SubmitBlocking did not run job inline")
	}
}

func TestSyncRuntimeDomainTag(t *testing.T) {
	rt := NewSyncRuntime()
	var observed DomainTag
	rt.PostToEventLoop(func() {
		observed = rt.CurrentDomainTag()
	}, "flow-42")

	if observed != "flow-42" {
		t.Fatalf("observed domain = %v, want flow-42", observed)
	}
	if got := rt.CurrentDomainTag(); got != nil {
		t.Fatalf("domain leaked after PostToEventLoop returned: %v", got)
	}
}

// SPDX-FileCopyrightText: 2024 The censys-oss authors
// SPDX-License-Identifier: MIT

package runtime

// SyncRuntime runs both blocking jobs and event-loop reposts inline, on
// the calling goroutine. It exists for deterministic tests of the
// encode loop that don't want to reason about real concurrency: NEED_TASK
// handling still goes through SubmitBlocking/PostToEventLoop, but both
// happen synchronously before the call returns.
type SyncRuntime struct {
	domain DomainTag
}

// NewSyncRuntime returns a Runtime suitable for unit tests.
func NewSyncRuntime() *SyncRuntime {
	return &SyncRuntime{}
}

// SubmitBlocking implements Runtime by calling job immediately.
func (r *SyncRuntime) SubmitBlocking(job func()) {
	job()
}

// PostToEventLoop implements Runtime by calling job immediately, with
// domain installed as the current tag for its duration.
func (r *SyncRuntime) PostToEventLoop(job func(), domain DomainTag) {
	prev := r.domain
	r.domain = domain
	defer func() { r.domain = prev }()
	job()
}

// CurrentDomainTag implements Runtime.
func (r *SyncRuntime) CurrentDomainTag() DomainTag {
	return r.domain
}

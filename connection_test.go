// SPDX-FileCopyrightText: 2024 The censys-oss authors
// SPDX-License-Identifier: MIT

package tlswrap

import (
	"context"
	"crypto/x509"
	"errors"
	"io"
	"testing"

	"github.com/censys-oss/tlswrap/internal/fakeengine"
	"github.com/censys-oss/tlswrap/pkg/ciphersuite"
	"github.com/censys-oss/tlswrap/pkg/engine"
	"github.com/censys-oss/tlswrap/runtime"
)

type acceptAllTrustStore struct{}

func (acceptAllTrustStore) Verify(chain []*x509.Certificate, role engine.Role, algorithm ciphersuite.Algorithm) error {
	return nil
}

func newTestConnection(t *testing.T, role engine.Role, eng *fakeengine.Engine, cfg *Config) *Connection {
	t.Helper()
	if cfg.Runtime == nil {
		cfg.Runtime = runtime.NewSyncRuntime()
	}
	cfg.EngineFactory = fakeengine.Factory{New: func(engine.Role, string, []byte) (engine.Engine, error) {
		return eng, nil
	}}

	c := NewConnection(role, "example.com", 443)
	if err := c.Init(context.Background(), cfg); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return c
}

// S1: client happy path — handshake completes, application data flows
// both directions.
func TestScenarioClientHappyPath(t *testing.T) {
	session := engine.SessionInfo{
		PeerCertificates: []*x509.Certificate{{}},
		CipherSuite:      "TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256",
		Protocol:         "TLSv1.3",
	}
	eng := fakeengine.New(fakeengine.ClientScript(), session)

	var writes [][]byte
	var handshakeStarted, handshakeDone int
	var unwrapCbErr error
	unwrapCbCalled := false

	c := newTestConnection(t, engine.RoleClient, eng, &Config{TrustStore: acceptAllTrustStore{}})
	c.SetOnWrite(func(ciphertext []byte, shutdown bool, cb func(error)) {
		writes = append(writes, append([]byte(nil), ciphertext...))
		if cb != nil {
			cb(nil)
		}
	})
	c.SetOnHandshakeStart(func() { handshakeStarted++ })
	c.SetOnHandshakeDone(func() { handshakeDone++ })
	c.SetOnError(func(err error) { t.Fatalf("unexpected onError: %v", err) })

	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if handshakeStarted != 1 {
		t.Fatalf("handshakeStarted = %d, want 1", handshakeStarted)
	}
	if len(writes) != 1 || string(writes[0]) != "HS00" {
		t.Fatalf("writes = %v, want one record HS00", writes)
	}
	if c.InitFinished() {
		t.Fatal("handshake should not be finished before the server's reply is unwrapped")
	}

	c.Unwrap([]byte("1234"), func(err error) {
		unwrapCbCalled = true
		unwrapCbErr = err
	})

	if !unwrapCbCalled || unwrapCbErr != nil {
		t.Fatalf("unwrap completion callback: called=%v err=%v", unwrapCbCalled, unwrapCbErr)
	}
	if handshakeDone != 1 {
		t.Fatalf("handshakeDone = %d, want 1", handshakeDone)
	}
	if !c.InitFinished() {
		t.Fatal("expected InitFinished after handshake completes")
	}
	if err := c.VerifyError(); err != nil {
		t.Fatalf("VerifyError = %v, want nil", err)
	}
	if c.CipherSuite() != session.CipherSuite {
		t.Fatalf("CipherSuite = %q, want %q", c.CipherSuite(), session.CipherSuite)
	}

	var readPlaintext []byte
	var readErr error
	c.SetOnRead(func(plaintext []byte, errCode error) {
		readPlaintext = plaintext
		readErr = errCode
	})

	var wrapCbErr error
	wrapCbCalled := false
	c.Wrap([]byte("hello"), func(err error) {
		wrapCbCalled = true
		wrapCbErr = err
	})
	if !wrapCbCalled || wrapCbErr != nil {
		t.Fatalf("wrap completion: called=%v err=%v", wrapCbCalled, wrapCbErr)
	}
	if len(writes) != 2 || string(writes[1]) != "hello" {
		t.Fatalf("writes = %v, want second entry hello", writes)
	}

	c.Unwrap([]byte("world"), nil)
	if string(readPlaintext) != "world" || readErr != nil {
		t.Fatalf("onRead = (%q, %v), want (world, nil)", readPlaintext, readErr)
	}
}

// S2: server completes a handshake with an anonymous client while
// requesting a certificate — verify_error is set, but it is never
// auto-fired to onError.
func TestScenarioServerRejectsAnonymousClient(t *testing.T) {
	session := engine.SessionInfo{PeerUnverified: true}
	eng := fakeengine.New(fakeengine.ServerScript(), session)

	errorCalls := 0
	c := newTestConnection(t, engine.RoleServer, eng, &Config{})
	c.SetVerificationMode(true /* requestCert */, true /* rejectUnauthorized */)
	c.SetOnError(func(err error) { errorCalls++ })
	c.SetOnWrite(func([]byte, bool, func(error)) {})

	c.Unwrap([]byte("1234"), nil)

	if !c.InitFinished() {
		t.Fatal("expected handshake to finish even with an anonymous client")
	}
	if c.VerifyError() == nil {
		t.Fatal("expected VerifyError for an anonymous client when a certificate was requested")
	}
	if errorCalls != 0 {
		t.Fatalf("onError fired %d times, want 0: verify_error is data, not a thrown error", errorCalls)
	}
}

// S3: ciphertext split across two Unwrap calls — the engine reports
// BUFFER_UNDERFLOW, the first chunk's callback fires early, and the
// combined buffer is delivered once enough data has arrived.
func TestScenarioSplitRecordsUnderflow(t *testing.T) {
	eng := fakeengine.NewFinished(engine.SessionInfo{})
	eng.SetMinRecordLen(5)

	c := newTestConnection(t, engine.RoleClient, eng, &Config{})
	c.initFinished = true

	var plaintext []byte
	c.SetOnRead(func(p []byte, err error) { plaintext = p })

	firstFired := false
	c.Unwrap([]byte("ab"), func(err error) {
		firstFired = true
		if err != nil {
			t.Fatalf("unexpected error on first chunk: %v", err)
		}
	})
	if !firstFired {
		t.Fatal("first chunk's callback should fire as soon as it is handed to the engine")
	}
	if plaintext != nil {
		t.Fatal("no plaintext should be delivered until the full record arrives")
	}

	secondFired := false
	c.Unwrap([]byte("cde"), func(err error) {
		secondFired = true
	})
	if !secondFired {
		t.Fatal("second chunk's callback should fire once the combined record completes")
	}
	if string(plaintext) != "abcde" {
		t.Fatalf("plaintext = %q, want %q", plaintext, "abcde")
	}
}

// S4: the engine reports BUFFER_OVERFLOW once; the adapter grows its
// scratch buffer and retries rather than failing.
func TestScenarioWriteBufferGrowth(t *testing.T) {
	eng := fakeengine.NewFinished(engine.SessionInfo{})
	eng.SetWrapOverflowCountdown(1)

	c := newTestConnection(t, engine.RoleClient, eng, &Config{})
	c.initFinished = true

	var ciphertext []byte
	c.SetOnWrite(func(ct []byte, shutdown bool, cb func(error)) {
		ciphertext = ct
		if cb != nil {
			cb(nil)
		}
	})

	payload := []byte("this record needed a bigger buffer")
	done := false
	c.Wrap(payload, func(err error) {
		done = true
		if err != nil {
			t.Fatalf("unexpected wrap error: %v", err)
		}
	})

	if !done {
		t.Fatal("wrap completion callback did not fire")
	}
	if string(ciphertext) != string(payload) {
		t.Fatalf("ciphertext = %q, want %q", ciphertext, payload)
	}
}

// S5: graceful shutdown — a shutdown chunk closes the outbound side
// and is delivered to onWrite with shutdown=true.
func TestScenarioGracefulShutdown(t *testing.T) {
	eng := fakeengine.NewFinished(engine.SessionInfo{})

	c := newTestConnection(t, engine.RoleClient, eng, &Config{})
	c.initFinished = true

	var gotShutdown bool
	c.SetOnWrite(func(ct []byte, shutdown bool, cb func(error)) {
		gotShutdown = shutdown
		if cb != nil {
			cb(nil)
		}
	})

	cbFired := false
	c.Shutdown(func(err error) {
		cbFired = true
		if err != nil {
			t.Fatalf("unexpected shutdown error: %v", err)
		}
	})

	if !cbFired {
		t.Fatal("shutdown completion callback did not fire")
	}
	if !gotShutdown {
		t.Fatal("onWrite should have been called with shutdown=true")
	}
	if !c.SentShutdown() {
		t.Fatal("SentShutdown should be true after Shutdown")
	}
	if !eng.CloseSent() {
		t.Fatal("engine should have been asked to close outbound")
	}
}

// Delegated-task dispatch: a NEED_TASK status drains the engine's task
// queue on the blocking pool and resumes the encode loop afterward. With
// a synchronous Runtime the resume is reentrant (it lands back on the
// same call stack as the original runLoop invocation); this exercises
// that the handshake still completes rather than stalling.
func TestScenarioDelegatedTaskDispatch(t *testing.T) {
	eng := fakeengine.New([]engine.HandshakeStatus{engine.NeedTask, engine.NeedWrap}, engine.SessionInfo{})

	taskRan := false
	eng.QueueTask(fakeengine.Task(func() error {
		taskRan = true
		return nil
	}))

	c := newTestConnection(t, engine.RoleClient, eng, &Config{})

	var wrote []byte
	c.SetOnWrite(func(ct []byte, shutdown bool, cb func(error)) {
		wrote = append(wrote, ct...)
		if cb != nil {
			cb(nil)
		}
	})
	done := 0
	c.SetOnHandshakeDone(func() { done++ })

	c.Wrap(nil, nil)

	if !taskRan {
		t.Fatal("delegated task never ran")
	}
	if done != 1 {
		t.Fatalf("handshakeDone fired %d times, want 1 — encode loop must resume after NEED_TASK drains", done)
	}
	if string(wrote) != "HS01" {
		t.Fatalf("wrote = %q, want the post-task handshake record HS01", wrote)
	}
}

// Init forwards Config.SessionTicket to the engine factory for a
// client Connection, and never for a server one (SPEC_FULL.md
// SUPPLEMENTED FEATURES §4).
func TestInitForwardsSessionTicketToFactory(t *testing.T) {
	eng := fakeengine.NewFinished(engine.SessionInfo{})

	var gotTicket []byte
	cfg := &Config{
		Runtime:       runtime.NewSyncRuntime(),
		SessionTicket: []byte("resume-me"),
		EngineFactory: fakeengine.Factory{New: func(_ engine.Role, _ string, ticket []byte) (engine.Engine, error) {
			gotTicket = ticket
			return eng, nil
		}},
	}

	c := NewConnection(engine.RoleClient, "example.com", 443)
	if err := c.Init(context.Background(), cfg); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if string(gotTicket) != "resume-me" {
		t.Fatalf("factory got ticket %q, want %q", gotTicket, "resume-me")
	}
}

func TestInitNeverForwardsSessionTicketForServerRole(t *testing.T) {
	eng := fakeengine.NewFinished(engine.SessionInfo{})

	gotTicket := []byte("untouched")
	cfg := &Config{
		Runtime:       runtime.NewSyncRuntime(),
		SessionTicket: []byte("resume-me"),
		EngineFactory: fakeengine.Factory{New: func(_ engine.Role, _ string, ticket []byte) (engine.Engine, error) {
			gotTicket = ticket
			return eng, nil
		}},
	}

	c := NewConnection(engine.RoleServer, "", 0)
	if err := c.Init(context.Background(), cfg); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if gotTicket != nil {
		t.Fatalf("factory got ticket %q, want nil for a server Connection", gotTicket)
	}
}

// A Wrap/Unwrap error observed before the handshake finishes is a
// HandshakeError, recorded as both Error() and VerifyError(), and
// always fired to onError (no chunk callback can own it: the
// handshake itself has no per-call completion callback).
func TestScenarioPreHandshakeWrapErrorFiresOnError(t *testing.T) {
	eng := fakeengine.New([]engine.HandshakeStatus{engine.NeedWrap}, engine.SessionInfo{})
	wrapErr := errors.New("wrap boom")
	eng.SetWrapErr(wrapErr)

	c := newTestConnection(t, engine.RoleClient, eng, &Config{})

	var gotErr error
	errorCalls := 0
	c.SetOnError(func(err error) {
		errorCalls++
		gotErr = err
	})

	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if errorCalls != 1 {
		t.Fatalf("onError fired %d times, want 1", errorCalls)
	}
	var handshakeErr *HandshakeError
	if !errors.As(gotErr, &handshakeErr) {
		t.Fatalf("onError error = %v, want *HandshakeError", gotErr)
	}
	if !errors.Is(gotErr, wrapErr) {
		t.Fatalf("handshake error does not wrap %v", wrapErr)
	}
	if !errors.Is(c.VerifyError(), wrapErr) {
		t.Fatalf("VerifyError() = %v, want it to wrap %v", c.VerifyError(), wrapErr)
	}
	if !errors.Is(c.Error(), wrapErr) {
		t.Fatalf("Error() = %v, want it to wrap %v", c.Error(), wrapErr)
	}
}

// A Wrap error observed after the handshake finishes is an
// EncodingError delivered to the chunk's own completion callback, not
// to onError: the caller already has a place to learn the outcome of
// that specific call.
func TestScenarioPostHandshakeWrapErrorDeliveredToChunkCallback(t *testing.T) {
	eng := fakeengine.NewFinished(engine.SessionInfo{})
	wrapErr := errors.New("wrap boom")
	eng.SetWrapErr(wrapErr)

	c := newTestConnection(t, engine.RoleClient, eng, &Config{})
	c.initFinished = true
	c.SetOnWrite(func([]byte, bool, func(error)) {})

	errorCalls := 0
	c.SetOnError(func(err error) { errorCalls++ })

	var cbErr error
	cbCalled := false
	c.Wrap([]byte("hello"), func(err error) {
		cbCalled = true
		cbErr = err
	})

	if !cbCalled {
		t.Fatal("wrap completion callback should receive the encoding error")
	}
	var encErr *EncodingError
	if !errors.As(cbErr, &encErr) {
		t.Fatalf("callback error = %v, want *EncodingError", cbErr)
	}
	if !errors.Is(cbErr, wrapErr) {
		t.Fatalf("encoding error does not wrap %v", wrapErr)
	}
	if errorCalls != 0 {
		t.Fatalf("onError fired %d times, want 0: the chunk callback already took the error", errorCalls)
	}
}

// An Unwrap error observed after the handshake finishes falls back to
// onError when the call supplied no completion callback.
func TestScenarioPostHandshakeUnwrapErrorWithoutCallbackFiresOnError(t *testing.T) {
	eng := fakeengine.NewFinished(engine.SessionInfo{})
	unwrapErr := errors.New("unwrap boom")
	eng.SetUnwrapErr(unwrapErr)

	c := newTestConnection(t, engine.RoleClient, eng, &Config{})
	c.initFinished = true

	var gotErr error
	errorCalls := 0
	c.SetOnError(func(err error) {
		errorCalls++
		gotErr = err
	})

	c.Unwrap([]byte("ciphertext"), nil)

	if errorCalls != 1 {
		t.Fatalf("onError fired %d times, want 1", errorCalls)
	}
	var encErr *EncodingError
	if !errors.As(gotErr, &encErr) {
		t.Fatalf("onError error = %v, want *EncodingError", gotErr)
	}
	if !errors.Is(gotErr, unwrapErr) {
		t.Fatalf("encoding error does not wrap %v", unwrapErr)
	}
}

// S6: an inbound lower-layer error is surfaced to onRead strictly
// after all previously enqueued ciphertext, and nothing queued
// afterward is ever processed.
func TestScenarioInboundErrorOrdering(t *testing.T) {
	eng := fakeengine.NewFinished(engine.SessionInfo{})

	c := newTestConnection(t, engine.RoleClient, eng, &Config{})
	c.initFinished = true

	var reads [][]byte
	var errs []error
	c.SetOnRead(func(plaintext []byte, err error) {
		reads = append(reads, append([]byte(nil), plaintext...))
		errs = append(errs, err)
	})

	c.Unwrap([]byte("A"), nil)
	c.InboundError(io.EOF)
	c.Unwrap([]byte("B"), nil)

	if len(reads) != 2 {
		t.Fatalf("onRead called %d times, want 2 (A, then EOF); B must never be processed", len(reads))
	}
	if string(reads[0]) != "A" || errs[0] != nil {
		t.Fatalf("first onRead = (%q, %v), want (A, nil)", reads[0], errs[0])
	}
	if errs[1] != io.EOF {
		t.Fatalf("second onRead err = %v, want io.EOF", errs[1])
	}
}

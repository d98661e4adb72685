// SPDX-FileCopyrightText: 2024 The censys-oss authors
// SPDX-License-Identifier: MIT

package verify

import (
	"crypto/x509"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/censys-oss/tlswrap/pkg/ciphersuite"
	"github.com/censys-oss/tlswrap/pkg/engine"
)

type stubTrustStore struct {
	err error

	gotRole engine.Role
	gotAlg  ciphersuite.Algorithm
}

func (s *stubTrustStore) Verify(chain []*x509.Certificate, role engine.Role, algorithm ciphersuite.Algorithm) error {
	s.gotRole = role
	s.gotAlg = algorithm
	return s.err
}

func TestCheckAnonymousClientWithoutRequestCert(t *testing.T) {
	err := Check(Params{
		Role:        engine.RoleServer,
		RequestCert: false,
		Session:     engine.SessionInfo{PeerUnverified: true},
	})
	require.NoError(t, err, "anonymous client should be accepted when the server never requested a cert")
}

func TestCheckUnverifiedClientWhenCertRequested(t *testing.T) {
	err := Check(Params{
		Role:        engine.RoleServer,
		RequestCert: true,
		Session:     engine.SessionInfo{PeerUnverified: true},
	})
	require.Error(t, err)
}

func TestCheckUnverifiedServerIsAlwaysAnError(t *testing.T) {
	err := Check(Params{
		Role:    engine.RoleClient,
		Session: engine.SessionInfo{PeerUnverified: true},
	})
	require.Error(t, err, "a client must always be able to verify the server chain")
}

func TestCheckNoTrustStoreConfigured(t *testing.T) {
	err := Check(Params{
		Role: engine.RoleClient,
		Session: engine.SessionInfo{
			PeerCertificates: []*x509.Certificate{{}},
		},
	})
	require.ErrorIs(t, err, ErrNoTrustedCAs)
}

func TestCheckNoCertificatesProvided(t *testing.T) {
	err := Check(Params{
		Role:        engine.RoleServer,
		RequestCert: true,
		Session:     engine.SessionInfo{},
	})
	require.ErrorIs(t, err, ErrNoCertificates)
}

func TestCheckDerivesAlgorithmAndPeerRole(t *testing.T) {
	store := &stubTrustStore{}
	leaf := &x509.Certificate{}

	err := Check(Params{
		Role: engine.RoleServer,
		Session: engine.SessionInfo{
			PeerCertificates: []*x509.Certificate{leaf},
			CipherSuite:      "TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256",
		},
		TrustStore: store,
	})

	require.NoError(t, err)
	require.Equal(t, engine.RoleClient, store.gotRole, "server checks the client's chain")
	require.Equal(t, ciphersuite.ECDHE_RSA, store.gotAlg)
}

func TestCheckTrustStoreRejection(t *testing.T) {
	store := &stubTrustStore{err: ErrNoTrustedCAs}
	leaf := &x509.Certificate{}

	err := Check(Params{
		Role: engine.RoleClient,
		Session: engine.SessionInfo{
			PeerCertificates: []*x509.Certificate{leaf},
		},
		TrustStore: store,
	})
	require.Error(t, err)
	require.ErrorIs(t, err, ErrNoTrustedCAs)
}

func TestCheckOCSPStapleSkippedWithoutIssuer(t *testing.T) {
	store := &stubTrustStore{}
	leaf := &x509.Certificate{}

	err := Check(Params{
		Role: engine.RoleClient,
		Session: engine.SessionInfo{
			PeerCertificates:    []*x509.Certificate{leaf},
			CipherSuite:         "TLS_RSA_WITH_AES_128_GCM_SHA256",
			StapledOCSPResponse: []byte("not-a-real-ocsp-response"),
		},
		TrustStore:   store,
		OCSPStapling: true,
	})
	require.NoError(t, err, "single-certificate chain has no issuer to validate the staple against, so it is skipped")
}

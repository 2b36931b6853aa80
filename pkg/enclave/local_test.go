package enclave

import (
	"testing"

	"github.com/attestvm/attestvm/pkg/crypto/hash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLocalPlatform(t *testing.T) {
	_, err := NewLocalPlatform("", []byte("secret"))
	require.Error(t, err)

	_, err = NewLocalPlatform("module v1", nil)
	require.Error(t, err)

	p, err := NewLocalPlatform("module v1", []byte("secret"))
	require.NoError(t, err)
	require.Equal(t, hash.Sha256([]byte("module v1")), p.Measurement())
}

func TestMeasurementIsStable(t *testing.T) {
	p1, err := NewLocalPlatform("module v1", []byte("secret"))
	require.NoError(t, err)
	p2, err := NewLocalPlatform("module v1", []byte("other secret"))
	require.NoError(t, err)

	// Identity decides the measurement, the secret does not.
	assert.Equal(t, p1.Measurement(), p2.Measurement())

	p3, err := NewLocalPlatform("module v2", []byte("secret"))
	require.NoError(t, err)
	assert.NotEqual(t, p1.Measurement(), p3.Measurement())
}

func TestSealKeyDerivation(t *testing.T) {
	p, err := NewLocalPlatform("module v1", []byte("secret"))
	require.NoError(t, err)

	k1, err := p.SealKey()
	require.NoError(t, err)
	require.Len(t, k1, SealKeyLen)

	k2, err := p.SealKey()
	require.NoError(t, err)
	assert.Equal(t, k1, k2)

	// A different module identity or secret yields a different key.
	other, err := NewLocalPlatform("module v2", []byte("secret"))
	require.NoError(t, err)
	k3, err := other.SealKey()
	require.NoError(t, err)
	assert.NotEqual(t, k1, k3)

	otherSecret, err := NewLocalPlatform("module v1", []byte("other"))
	require.NoError(t, err)
	k4, err := otherSecret.SealKey()
	require.NoError(t, err)
	assert.NotEqual(t, k1, k4)
}

func TestReport(t *testing.T) {
	p, err := NewLocalPlatform("module v1", []byte("secret"))
	require.NoError(t, err)

	var userData [ReportUserDataLen]byte
	copy(userData[:], "report payload")

	r1, err := p.Report(userData)
	require.NoError(t, err)
	r2, err := p.Report(userData)
	require.NoError(t, err)
	assert.Equal(t, r1, r2)

	userData[0] ^= 1
	r3, err := p.Report(userData)
	require.NoError(t, err)
	assert.NotEqual(t, r1, r3)
}

// Package verifier implements the trust-boundary facade: it validates and
// executes contract bytecode, derives execution hashes and wraps them into
// proofs signed with the enclave's sealed long-term key.
package verifier

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"sync"

	"github.com/attestvm/attestvm/pkg/crypto/hash"
	"github.com/attestvm/attestvm/pkg/crypto/keys"
	"github.com/attestvm/attestvm/pkg/enclave"
	"github.com/attestvm/attestvm/pkg/enclave/seal"
	"github.com/attestvm/attestvm/pkg/host"
	"github.com/attestvm/attestvm/pkg/storage"
	"github.com/attestvm/attestvm/pkg/util"
	"github.com/attestvm/attestvm/pkg/vm"
	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"
)

// MaxResultSize is the boundary cap on execution output.
const MaxResultSize = 64 * 1024

// defaultProgramCacheSize bounds the validated-program cache when the
// configuration leaves it unset.
const defaultProgramCacheSize = 128

// Boundary errors.
var (
	// ErrNotInitialized is returned by operations on a closed or never
	// initialized verifier.
	ErrNotInitialized = errors.New("verifier is not initialized")
	// ErrExecutionFailed is returned by ProveExecution when the run did
	// not complete, no proof can attest to a failed run.
	ErrExecutionFailed = errors.New("contract execution failed")
)

// Config holds the dependencies and settings of a Verifier.
type Config struct {
	// Log is used for the audit stream, zap.NewNop() when nil.
	Log *zap.Logger
	// Platform is the trusted-execution platform.
	Platform enclave.Platform
	// Host is the outcall surface.
	Host host.Host
	// KeystoreKey is the storage key of the sealed signing keypair.
	KeystoreKey string
	// RequireSealedKey refuses initialization when the keystore blob
	// fails authentication instead of regenerating a fresh keypair.
	RequireSealedKey bool
	// ProgramCacheSize bounds the validated-program cache.
	ProgramCacheSize int
}

// Result is the outcome of one contract execution behind the trust
// boundary.
type Result struct {
	// Output is the canonical contract output, nil for failed runs.
	Output []byte
	// GasUsed is the gas consumed up to the terminal state.
	GasUsed uint64
	// State is the terminal VM state.
	State vm.State
	// Err details the failure for failed terminal states.
	Err error
	// ExecHash is the execution hash, zero unless State is
	// vm.CompletedState.
	ExecHash util.Uint256
}

// Verifier is the singleton owning the enclave signing key and serving
// boundary calls. It lives for the enclave lifetime, from New to Close.
type Verifier struct {
	log      *zap.Logger
	platform enclave.Platform
	host     host.Host

	keystoreKey string

	mtx         sync.Mutex
	privKey     *keys.PrivateKey
	measurement util.Uint256
	counter     uint64
	progCache   *lru.Cache
}

// New initializes the verifier: it derives the enclave measurement and
// unseals the long-term signing keypair from host storage, generating and
// sealing a fresh one on first boot. A keystore blob failing authentication
// is replaced by a fresh keypair unless cfg.RequireSealedKey is set.
func New(cfg Config) (*Verifier, error) {
	if cfg.Platform == nil {
		return nil, errors.New("no platform given")
	}
	if cfg.Host == nil {
		return nil, errors.New("no host given")
	}
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.KeystoreKey == "" {
		return nil, errors.New("no keystore key given")
	}
	cacheSize := cfg.ProgramCacheSize
	if cacheSize <= 0 {
		cacheSize = defaultProgramCacheSize
	}
	progCache, err := lru.New(cacheSize)
	if err != nil {
		return nil, err
	}

	v := &Verifier{
		log:         log,
		platform:    cfg.Platform,
		host:        cfg.Host,
		keystoreKey: cfg.KeystoreKey,
		measurement: cfg.Platform.Measurement(),
		progCache:   progCache,
	}
	if err := v.loadOrGenerateKey(cfg.RequireSealedKey); err != nil {
		return nil, err
	}
	log.Info("verifier initialized",
		zap.String("measurement", v.measurement.StringBE()),
		zap.String("pubkey", v.privKey.PublicKey().String()))
	return v, nil
}

func (v *Verifier) loadOrGenerateKey(requireSealed bool) error {
	blob, err := v.host.StorageRead(v.keystoreKey)
	if errors.Is(err, storage.ErrKeyNotFound) {
		v.log.Info("no sealed keystore found, generating signing key")
		return v.generateKey()
	}
	if err != nil {
		return fmt.Errorf("keystore read: %w", err)
	}

	sealKey, err := v.platform.SealKey()
	if err != nil {
		return fmt.Errorf("seal key derivation: %w", err)
	}
	raw, err := seal.Open(sealKey, v.measurement.BytesBE(), blob)
	if err != nil {
		if requireSealed {
			return fmt.Errorf("keystore unseal: %w", err)
		}
		v.log.Warn("keystore failed to unseal, generating fresh signing key",
			zap.Error(err))
		return v.generateKey()
	}
	v.privKey, err = keys.NewPrivateKeyFromBytes(raw)
	if err != nil {
		return fmt.Errorf("keystore contents: %w", err)
	}
	return nil
}

// generateKey creates a new signing keypair and persists it sealed to the
// enclave identity. It is used on first boot and by RotateKey.
func (v *Verifier) generateKey() error {
	priv, err := keys.NewPrivateKey()
	if err != nil {
		return fmt.Errorf("key generation: %w", err)
	}
	sealKey, err := v.platform.SealKey()
	if err != nil {
		return fmt.Errorf("seal key derivation: %w", err)
	}
	blob, err := seal.Seal(sealKey, v.measurement.BytesBE(), priv.Bytes())
	if err != nil {
		return fmt.Errorf("keystore seal: %w", err)
	}
	if err := v.host.StorageWrite(v.keystoreKey, blob); err != nil {
		return fmt.Errorf("keystore write: %w", err)
	}
	v.privKey = priv
	return nil
}

// Execute validates and runs the given bytecode within gasLimit. Invalid
// code is reported as an error, runtime failures terminate the run and are
// reported in the Result only. The code and input slices are borrowed
// read-only for the duration of the call.
func (v *Verifier) Execute(code, input []byte, gasLimit uint64) (*Result, error) {
	v.mtx.Lock()
	defer v.mtx.Unlock()
	return v.execute(code, input, gasLimit)
}

func (v *Verifier) execute(code, input []byte, gasLimit uint64) (*Result, error) {
	if v.privKey == nil {
		return nil, ErrNotInitialized
	}

	codeHash := hash.Sha256(code)
	jumps, err := v.validatedProgram(code, codeHash)
	if err != nil {
		v.host.AuditLog(host.AuditError, "contract rejected: "+err.Error(), codeHash.BytesBE())
		return nil, err
	}

	v.host.AuditLog(host.AuditInfo, "contract execution started", codeHash.BytesBE())

	m := vm.NewWithJumpSet(code, jumps, gasLimit)
	m.Run()
	v.counter++

	res := &Result{
		Output:  m.Output(),
		GasUsed: m.GasUsed(),
		State:   m.State(),
		Err:     m.Err(),
	}
	if len(res.Output) > MaxResultSize {
		// Unreachable with the current output model, the boundary
		// contract caps results regardless.
		res.Output = nil
		res.State = vm.ErrorState
	}
	if res.State == vm.CompletedState {
		res.ExecHash = ExecutionHash(code, input, res.Output, res.GasUsed)
		executionsCompleted.Inc()
		v.host.AuditLog(host.AuditInfo, "contract execution completed", res.ExecHash.BytesBE())
		v.log.Debug("execution completed",
			zap.Uint64("gas", res.GasUsed),
			zap.Uint64("counter", v.counter))
	} else {
		executionsFailed.Inc()
		msg := "contract execution failed: " + res.State.String()
		if res.Err != nil {
			msg += ": " + res.Err.Error()
		}
		v.host.AuditLog(host.AuditError, msg, nil)
		v.log.Debug("execution failed",
			zap.String("state", res.State.String()),
			zap.Error(res.Err),
			zap.Uint64("gas", res.GasUsed))
	}
	return res, nil
}

// validatedProgram returns the instruction boundary set for code, reusing
// a cached result when the same program was validated before.
func (v *Verifier) validatedProgram(code []byte, codeHash util.Uint256) (vm.JumpSet, error) {
	if jumps, ok := v.progCache.Get(codeHash); ok {
		return jumps.(vm.JumpSet), nil
	}
	jumps, err := vm.Validate(code)
	if err != nil {
		return nil, err
	}
	v.progCache.Add(codeHash, jumps)
	return jumps, nil
}

// GenerateProof signs the given execution hash together with fresh
// timestamp and nonce material under the enclave key.
func (v *Verifier) GenerateProof(execHash util.Uint256) (*Proof, error) {
	v.mtx.Lock()
	defer v.mtx.Unlock()
	return v.generateProof(execHash)
}

func (v *Verifier) generateProof(execHash util.Uint256) (*Proof, error) {
	if v.privKey == nil {
		return nil, ErrNotInitialized
	}

	p := &Proof{
		ExecHash:    execHash,
		TimestampMS: v.host.TimestampMS(),
		PublicKey:   v.privKey.PublicKey(),
	}
	if _, err := rand.Read(p.Nonce[:]); err != nil {
		return nil, fmt.Errorf("proof nonce: %w", err)
	}
	copy(p.Signature[:], v.privKey.Sign(p.signedData()))

	proofsGenerated.Inc()
	v.host.AuditLog(host.AuditInfo, "execution proof generated", p.ExecHash.BytesBE())
	return p, nil
}

// ProveExecution runs the contract and wraps the resulting execution hash
// into a signed proof. Failed runs produce no proof and are reported with
// ErrExecutionFailed alongside the failed Result.
func (v *Verifier) ProveExecution(code, input []byte, gasLimit uint64) (*Proof, *Result, error) {
	v.mtx.Lock()
	defer v.mtx.Unlock()

	res, err := v.execute(code, input, gasLimit)
	if err != nil {
		return nil, nil, err
	}
	if res.State != vm.CompletedState {
		return nil, res, fmt.Errorf("%w: %s", ErrExecutionFailed, res.State)
	}
	p, err := v.generateProof(res.ExecHash)
	if err != nil {
		return nil, res, err
	}
	return p, res, nil
}

// VerifyProof checks that the proof attests to the expected execution hash
// and carries a valid signature under its own public key. The hash
// comparison is constant-time.
func (v *Verifier) VerifyProof(p *Proof, expected util.Uint256) bool {
	if p == nil || p.PublicKey == nil {
		return false
	}
	hashesMatch := subtle.ConstantTimeCompare(p.ExecHash[:], expected[:]) == 1

	digest := sha256.Sum256(p.signedData())
	sigValid := p.PublicKey.Verify(p.Signature[:], digest[:])

	return hashesMatch && sigValid
}

// Measurement returns the 32-byte enclave identity.
func (v *Verifier) Measurement() util.Uint256 {
	return v.measurement
}

// PublicKey returns the current proof-signing public key.
func (v *Verifier) PublicKey() (*keys.PublicKey, error) {
	v.mtx.Lock()
	defer v.mtx.Unlock()
	if v.privKey == nil {
		return nil, ErrNotInitialized
	}
	return v.privKey.PublicKey(), nil
}

// ExecutionCounter returns the number of terminal executions served.
func (v *Verifier) ExecutionCounter() uint64 {
	v.mtx.Lock()
	defer v.mtx.Unlock()
	return v.counter
}

// CreateReport produces a platform attestation report with userData bound
// into it.
func (v *Verifier) CreateReport(userData [enclave.ReportUserDataLen]byte) ([]byte, error) {
	return v.platform.Report(userData)
}

// Seal encrypts a state blob under the enclave sealing identity.
func (v *Verifier) Seal(data []byte) ([]byte, error) {
	sealKey, err := v.platform.SealKey()
	if err != nil {
		return nil, err
	}
	return seal.Seal(sealKey, v.measurement.BytesBE(), data)
}

// Unseal authenticates and decrypts a blob produced by Seal.
func (v *Verifier) Unseal(blob []byte) ([]byte, error) {
	sealKey, err := v.platform.SealKey()
	if err != nil {
		return nil, err
	}
	return seal.Open(sealKey, v.measurement.BytesBE(), blob)
}

// RotateKey replaces the signing keypair with a freshly generated one and
// reseals the keystore. Proofs generated before the rotation verify under
// the old public key only.
func (v *Verifier) RotateKey() error {
	v.mtx.Lock()
	defer v.mtx.Unlock()
	if v.privKey == nil {
		return ErrNotInitialized
	}
	old := v.privKey
	if err := v.generateKey(); err != nil {
		return err
	}
	old.Destroy()
	v.log.Info("signing key rotated",
		zap.String("pubkey", v.privKey.PublicKey().String()))
	v.host.AuditLog(host.AuditWarn, "signing key rotated", nil)
	return nil
}

// Close tears the verifier down, wiping the unsealed signing key. The
// sealed keystore remains in host storage for the next boot.
func (v *Verifier) Close() error {
	v.mtx.Lock()
	defer v.mtx.Unlock()
	if v.privKey == nil {
		return ErrNotInitialized
	}
	v.privKey.Destroy()
	v.privKey = nil
	v.log.Info("verifier closed",
		zap.Uint64("executions", v.counter))
	return nil
}

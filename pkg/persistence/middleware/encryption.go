package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aretw0/conduit/pkg/domain"
	"github.com/aretw0/conduit/pkg/ports"
)

var (
	// ErrNotSealed is returned when a stored snapshot carries no sealed graph.
	ErrNotSealed = errors.New("snapshot is not sealed")
	// ErrUnsealFailed is returned when no key opens a sealed snapshot, or
	// the snapshot was sealed for another graph id.
	ErrUnsealFailed = errors.New("snapshot cannot be unsealed")
)

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey seals new snapshots. Must be 32 bytes for AES-256.
	ActiveKey []byte

	// FallbackKeys are tried in order when the active key cannot open a
	// snapshot, so keys can be rotated while old snapshots remain readable.
	FallbackKeys [][]byte
}

// sealedNode names the single node of an envelope snapshot.
const sealedNode = "__sealed__"

const cipherName = "aes-256-gcm"

type sealer struct {
	next  ports.SnapshotStore
	aeads []cipher.AEAD
}

// NewEncryptionMiddleware seals every snapshot with AES-256-GCM. The graph id
// is authenticated with the ciphertext, so a sealed snapshot copied under
// another id does not open. It panics on a key that is not 32 bytes long.
func NewEncryptionMiddleware(config EncryptionConfig) Middleware {
	if len(config.ActiveKey) != 32 {
		panic("active key must be 32 bytes (AES-256)")
	}
	aeads := []cipher.AEAD{mustAEAD(config.ActiveKey)}
	for _, key := range config.FallbackKeys {
		aeads = append(aeads, mustAEAD(key))
	}
	return func(next ports.SnapshotStore) ports.SnapshotStore {
		return &sealer{next: next, aeads: aeads}
	}
}

func mustAEAD(key []byte) cipher.AEAD {
	block, err := aes.NewCipher(key)
	if err != nil {
		panic(fmt.Sprintf("invalid snapshot key: %v", err))
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		panic(fmt.Sprintf("invalid snapshot key: %v", err))
	}
	return gcm
}

// Save stores an envelope that only exposes graph id, time and status, so
// stores can still list and monitor snapshots.
func (s *sealer) Save(ctx context.Context, graphID string, snap *domain.GraphSnapshot) error {
	plain, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	gcm := s.aeads[0]
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("failed to seal snapshot: %w", err)
	}
	sealed := gcm.Seal(nonce, nonce, plain, []byte(graphID))

	envelope := &domain.GraphSnapshot{
		GraphID: snap.GraphID,
		TakenAt: snap.TakenAt,
		Status:  snap.Status,
		Spec: domain.GraphSpec{
			ID: snap.Spec.ID,
			Nodes: []domain.NodeSpec{{
				ID:   sealedNode,
				Type: sealedNode,
				Params: map[string]any{
					"cipher": cipherName,
					"sealed": base64.StdEncoding.EncodeToString(sealed),
				},
			}},
		},
	}
	return s.next.Save(ctx, graphID, envelope)
}

// Load opens the envelope stored for graphID. Plain snapshots are refused.
func (s *sealer) Load(ctx context.Context, graphID string) (*domain.GraphSnapshot, error) {
	envelope, err := s.next.Load(ctx, graphID)
	if err != nil {
		return nil, err
	}

	node, ok := envelope.Spec.Node(sealedNode)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotSealed, graphID)
	}
	if c, _ := node.Params["cipher"].(string); c != cipherName {
		return nil, fmt.Errorf("%w: unsupported cipher %q", ErrUnsealFailed, c)
	}
	encoded, _ := node.Params["sealed"].(string)
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsealFailed, err)
	}

	plain, err := s.open(sealed, []byte(graphID))
	if err != nil {
		return nil, err
	}
	var snap domain.GraphSnapshot
	if err := json.Unmarshal(plain, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal unsealed snapshot: %w", err)
	}
	return &snap, nil
}

func (s *sealer) open(sealed, graphID []byte) ([]byte, error) {
	for _, gcm := range s.aeads {
		n := gcm.NonceSize()
		if len(sealed) < n {
			return nil, fmt.Errorf("%w: sealed data too short", ErrUnsealFailed)
		}
		if plain, err := gcm.Open(nil, sealed[:n], sealed[n:], graphID); err == nil {
			return plain, nil
		}
	}
	return nil, ErrUnsealFailed
}

func (s *sealer) Delete(ctx context.Context, graphID string) error {
	return s.next.Delete(ctx, graphID)
}

func (s *sealer) List(ctx context.Context) ([]string, error) {
	return s.next.List(ctx)
}

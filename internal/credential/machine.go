package credential

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/haventools/premises-manage/core/internal/autherr"
)

// MachineStore persists machine credential hashes keyed by service id.
type MachineStore interface {
	SecretHash(ctx context.Context, serviceID string) (string, error)
	CreateSecretHash(ctx context.Context, serviceID, hash string) error
	UpdateSecretHash(ctx context.Context, serviceID, hash string) error
}

// MachineService registers, rotates and verifies machine credentials for
// service-to-service sessions. Verification cost is uniform: unknown service
// ids still burn a bcrypt comparison against DummyHash so response timing
// does not reveal which ids exist.
type MachineService struct {
	store MachineStore
}

// NewMachineService creates a MachineService backed by store.
func NewMachineService(store MachineStore) *MachineService {
	return &MachineService{store: store}
}

// Register stores the hash of a new machine secret. Registering an already
// known service id is DuplicateData; rotation goes through Rotate.
func (s *MachineService) Register(ctx context.Context, serviceID, secret string) error {
	if serviceID == "" || secret == "" {
		return autherr.New(autherr.CodeBadRequest, "serviceId and secret are required")
	}
	hash, err := HashPassword(secret)
	if err != nil {
		return fmt.Errorf("hash machine secret: %w", err)
	}
	return s.store.CreateSecretHash(ctx, serviceID, hash)
}

// Rotate replaces the secret of an existing machine credential.
func (s *MachineService) Rotate(ctx context.Context, serviceID, secret string) error {
	if serviceID == "" || secret == "" {
		return autherr.New(autherr.CodeBadRequest, "serviceId and secret are required")
	}
	hash, err := HashPassword(secret)
	if err != nil {
		return fmt.Errorf("hash machine secret: %w", err)
	}
	return s.store.UpdateSecretHash(ctx, serviceID, hash)
}

// Verify checks a presented machine secret. Unknown ids and wrong secrets are
// both UnAuthorized and take the same time.
func (s *MachineService) Verify(ctx context.Context, serviceID, secret string) error {
	hash, err := s.store.SecretHash(ctx, serviceID)
	if err != nil {
		if errors.Is(err, autherr.ErrNotFound) {
			VerifyPassword(secret, DummyHash)
			return autherr.New(autherr.CodeUnAuthorized, "invalid service credentials")
		}
		return err
	}
	if !VerifyPassword(secret, hash) {
		return autherr.New(autherr.CodeUnAuthorized, "invalid service credentials")
	}
	return nil
}

// MemoryMachineStore is an in-memory MachineStore.
type MemoryMachineStore struct {
	mu     sync.Mutex
	hashes map[string]string
}

// NewMemoryMachineStore creates an empty MemoryMachineStore.
func NewMemoryMachineStore() *MemoryMachineStore {
	return &MemoryMachineStore{hashes: make(map[string]string)}
}

// SecretHash implements MachineStore.
func (s *MemoryMachineStore) SecretHash(_ context.Context, serviceID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hash, ok := s.hashes[serviceID]
	if !ok {
		return "", autherr.New(autherr.CodeNotFound, "machine credential not found")
	}
	return hash, nil
}

// CreateSecretHash implements MachineStore.
func (s *MemoryMachineStore) CreateSecretHash(_ context.Context, serviceID, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.hashes[serviceID]; exists {
		return autherr.New(autherr.CodeDuplicateData, "machine credential already registered")
	}
	s.hashes[serviceID] = hash
	return nil
}

// UpdateSecretHash implements MachineStore.
func (s *MemoryMachineStore) UpdateSecretHash(_ context.Context, serviceID, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.hashes[serviceID]; !exists {
		return autherr.New(autherr.CodeNotFound, "machine credential not found")
	}
	s.hashes[serviceID] = hash
	return nil
}

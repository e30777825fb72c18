package keyvault

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/sluggerrrr/briefcase-sub001/internal/repository"
)

// memKeyStore — in-memory KeyStore для тестов.
type memKeyStore struct {
	mu   sync.Mutex
	keys map[string][]byte // keyRef → wrapped
	docs map[string][]string
}

func newMemKeyStore() *memKeyStore {
	return &memKeyStore{
		keys: make(map[string][]byte),
		docs: make(map[string][]string),
	}
}

func (s *memKeyStore) Insert(_ context.Context, keyRef, documentID string, wrapped []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[keyRef]; ok {
		return repository.ErrConflict
	}
	s.keys[keyRef] = wrapped
	s.docs[documentID] = append(s.docs[documentID], keyRef)
	return nil
}

func (s *memKeyStore) Get(_ context.Context, keyRef string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wrapped, ok := s.keys[keyRef]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return wrapped, nil
}

func (s *memKeyStore) DeleteByDocument(_ context.Context, documentID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	refs := s.docs[documentID]
	for _, ref := range refs {
		delete(s.keys, ref)
	}
	delete(s.docs, documentID)
	return len(refs), nil
}

func TestVaultGenerateGet(t *testing.T) {
	ctx := context.Background()
	vault, err := New(newMemKeyStore(), "test-master-key")
	if err != nil {
		t.Fatalf("New() ошибка: %v", err)
	}

	keyRef, key, err := vault.Generate(ctx, "doc-1")
	if err != nil {
		t.Fatalf("Generate() ошибка: %v", err)
	}
	if len(key) != 32 {
		t.Errorf("длина ключа %d, ожидалось 32", len(key))
	}

	got, err := vault.Get(ctx, keyRef)
	if err != nil {
		t.Fatalf("Get() ошибка: %v", err)
	}
	if !bytes.Equal(got, key) {
		t.Error("Get() вернул не тот ключ, что сгенерирован")
	}
}

func TestVaultKeysUnique(t *testing.T) {
	ctx := context.Background()
	vault, _ := New(newMemKeyStore(), "test-master-key")

	_, key1, err := vault.Generate(ctx, "doc-1")
	if err != nil {
		t.Fatalf("Generate() ошибка: %v", err)
	}
	_, key2, err := vault.Generate(ctx, "doc-2")
	if err != nil {
		t.Fatalf("Generate() ошибка: %v", err)
	}

	if bytes.Equal(key1, key2) {
		t.Error("два документа получили одинаковый ключ")
	}
}

func TestVaultDestroyedKeyNotFound(t *testing.T) {
	ctx := context.Background()
	store := newMemKeyStore()
	vault, _ := New(store, "test-master-key")

	keyRef, _, err := vault.Generate(ctx, "doc-1")
	if err != nil {
		t.Fatalf("Generate() ошибка: %v", err)
	}

	deleted, err := store.DeleteByDocument(ctx, "doc-1")
	if err != nil {
		t.Fatalf("DeleteByDocument() ошибка: %v", err)
	}
	if deleted != 1 {
		t.Errorf("удалено ключей %d, ожидалось 1", deleted)
	}

	if _, err := vault.Get(ctx, keyRef); err != ErrKeyNotFound {
		t.Errorf("Get() после уничтожения = %v, ожидался ErrKeyNotFound", err)
	}
}

func TestVaultWrongMasterKey(t *testing.T) {
	ctx := context.Background()
	store := newMemKeyStore()

	vault1, _ := New(store, "master-key-one")
	keyRef, _, err := vault1.Generate(ctx, "doc-1")
	if err != nil {
		t.Fatalf("Generate() ошибка: %v", err)
	}

	// Vault с другим master-ключом не может развернуть обёртку
	vault2, _ := New(store, "master-key-two")
	if _, err := vault2.Get(ctx, keyRef); err == nil {
		t.Error("Get() с чужим master-ключом вернул ключ без ошибки")
	}
}

func TestVaultEmptyMasterKey(t *testing.T) {
	if _, err := New(newMemKeyStore(), ""); err == nil {
		t.Error("New() с пустым master-ключом не вернул ошибку")
	}
}

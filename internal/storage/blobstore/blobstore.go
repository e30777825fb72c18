// Пакет blobstore — хранилище зашифрованного содержимого документов.
// Движок трактует blob store как внешнего коллаборатора за интерфейсом:
// байты непрозрачны, ключ доступа — непрозрачный handle.
// FSStore — локальная файловая реализация (два уровня поддиректорий
// по префиксу handle, чтобы не упираться в лимиты файловой системы).
package blobstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrBlobNotFound — blob с таким handle отсутствует.
var ErrBlobNotFound = errors.New("blob не найден")

// Store — интерфейс хранилища зашифрованного содержимого.
type Store interface {
	// Put сохраняет байты и возвращает handle.
	Put(handle string, data []byte) error
	// Get возвращает байты по handle.
	Get(handle string) ([]byte, error)
	// Delete удаляет blob. Удаление отсутствующего blob — не ошибка.
	Delete(handle string) error
}

// FSStore — файловая реализация Store.
type FSStore struct {
	baseDir string
}

// NewFSStore создаёт файловое хранилище в директории baseDir.
// Директория создаётся, если отсутствует.
func NewFSStore(baseDir string) (*FSStore, error) {
	if err := os.MkdirAll(baseDir, 0o750); err != nil {
		return nil, fmt.Errorf("ошибка создания директории blob store: %w", err)
	}
	return &FSStore{baseDir: baseDir}, nil
}

// blobPath строит путь вида baseDir/ab/cd/abcdef... по префиксу handle.
func (s *FSStore) blobPath(handle string) (string, error) {
	// Handle — UUID; защита от path traversal на всякий случай.
	if handle == "" || strings.ContainsAny(handle, "/\\.") {
		return "", fmt.Errorf("некорректный handle: %q", handle)
	}
	sub := "00"
	sub2 := "00"
	if len(handle) >= 4 {
		sub = handle[:2]
		sub2 = handle[2:4]
	}
	return filepath.Join(s.baseDir, sub, sub2, handle), nil
}

// CheckReady проверяет доступность базовой директории хранилища.
// Используется readiness probe.
func (s *FSStore) CheckReady() (status string, message string) {
	info, err := os.Stat(s.baseDir)
	if err != nil {
		return "fail", fmt.Sprintf("директория blob store недоступна: %s", err.Error())
	}
	if !info.IsDir() {
		return "fail", "путь blob store не является директорией"
	}
	return "ok", ""
}

func (s *FSStore) Put(handle string, data []byte) error {
	path, err := s.blobPath(handle)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("ошибка создания поддиректории: %w", err)
	}

	// Запись через временный файл + rename — атомарность на уровне ФС.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return fmt.Errorf("ошибка записи blob: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("ошибка переименования blob: %w", err)
	}
	return nil
}

func (s *FSStore) Get(handle string) ([]byte, error) {
	path, err := s.blobPath(handle)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrBlobNotFound
		}
		return nil, fmt.Errorf("ошибка чтения blob: %w", err)
	}
	return data, nil
}

func (s *FSStore) Delete(handle string) error {
	path, err := s.blobPath(handle)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("ошибка удаления blob: %w", err)
	}
	return nil
}

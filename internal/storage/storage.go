// Package storage は耐久クライアントストレージを提供する。
//
// ブラウザのlocalStorageに相当する、キーごとに1ファイルのJSONストアで、
// セッションと言語設定の2キーのみが使用される。各キーは所有ストアだけが
// 書き込み、読み出しは起動時の復元でのみ行われるため、ロックは不要。
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// 耐久ストレージのキー。キーごとに所有ストアが1つだけ存在する。
const (
	KeySession  = "session"
	KeyLanguage = "language"
)

// Store はキーごとに1つのJSONファイルを読み書きする。
type Store struct {
	dir string
}

// New は状態ディレクトリを作成してStoreを生成する。
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("state directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Read はキーの値をvへデコードする。エントリが存在しない場合はfalseを返す。
// 壊れたエントリはデコードエラーとして返し、呼び出し側（復元処理）が
// 「エントリなし」として扱うかを決める。
func (s *Store) Read(key string, v any) (bool, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

// Write はキーの値を同期的に書き込む。一時ファイルへ書いてから
// renameすることで、クラッシュ時にも部分的なエントリを残さない。
func (s *Store) Write(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}

	tmp, err := os.CreateTemp(s.dir, key+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", key, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file for %s: %w", key, err)
	}

	if err := os.Rename(tmpName, s.path(key)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", key, err)
	}
	return nil
}

// Delete はキーのエントリを削除する。存在しない場合は何もしない。
func (s *Store) Delete(key string) error {
	if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

package facts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// snapshotObject 是归档对象名。
const snapshotObject = "facts/latest.json"

// ErrNoArchive 表示还没有任何归档。
var ErrNoArchive = errors.New("no archived snapshot")

// ObjectStore 是归档所需的最小对象存储能力。
type ObjectStore interface {
	PutObject(ctx context.Context, name string, data []byte, contentType string) error
	// GetObject 在对象不存在时返回的错误应能被 IsNotFound 识别。
	GetObject(ctx context.Context, name string) ([]byte, error)
	IsNotFound(err error) bool
}

// Archive 把快照以 JSON 形式存取到对象存储，用于多实例共享与冷启动预热。
type Archive struct {
	store ObjectStore
}

// NewArchive 创建归档。
func NewArchive(store ObjectStore) *Archive {
	return &Archive{store: store}
}

// Save 写入最新快照。
func (a *Archive) Save(ctx context.Context, snap *Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := a.store.PutObject(ctx, snapshotObject, data, "application/json"); err != nil {
		return fmt.Errorf("put snapshot: %w", err)
	}
	return nil
}

// Load 读取最新快照，没有归档时返回 ErrNoArchive。
func (a *Archive) Load(ctx context.Context) (*Snapshot, error) {
	data, err := a.store.GetObject(ctx, snapshotObject)
	if err != nil {
		if a.store.IsNotFound(err) {
			return nil, ErrNoArchive
		}
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

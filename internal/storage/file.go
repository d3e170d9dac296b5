package storage

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"acme-manager/internal/renewal"
)

const renewalSuffix = ".renewal.json"

// RenewalStore 续期任务的文件存储。
// 每个任务一个JSON文件，不维护索引，查找靠目录枚举。
type RenewalStore struct {
	dir string
}

// NewRenewalStore 创建续期任务存储
func NewRenewalStore(dir string) (*RenewalStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("创建续期记录目录失败: %w", err)
	}
	return &RenewalStore{dir: dir}, nil
}

func (s *RenewalStore) path(id string) string {
	return filepath.Join(s.dir, id+renewalSuffix)
}

// All 读取所有未删除的续期任务，按展示名稳定排序
func (s *RenewalStore) All() ([]*renewal.Renewal, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, "*"+renewalSuffix))
	if err != nil {
		return nil, fmt.Errorf("枚举续期记录失败: %w", err)
	}

	var out []*renewal.Renewal
	for _, path := range matches {
		r, err := s.read(path)
		if err != nil {
			// 单个损坏的记录不阻塞整批处理
			log.Printf("[存储] 读取续期记录 %s 失败: %v", filepath.Base(path), err)
			continue
		}
		if r.Deleted {
			continue
		}
		out = append(out, r)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].DisplayName() < out[j].DisplayName()
	})
	return out, nil
}

// Find 按ID或展示名查找续期任务（不区分大小写）
func (s *RenewalStore) Find(idOrName string) (*renewal.Renewal, error) {
	if r, err := s.read(s.path(idOrName)); err == nil && !r.Deleted {
		return r, nil
	}

	all, err := s.All()
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(idOrName)
	for _, r := range all {
		if strings.ToLower(r.ID) == needle || strings.ToLower(r.DisplayName()) == needle {
			return r, nil
		}
	}
	return nil, fmt.Errorf("续期任务不存在: %s", idOrName)
}

// Save 持久化续期任务并复位运行期标志
func (s *RenewalStore) Save(r *renewal.Renewal) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化续期记录失败: %w", err)
	}
	if err := os.WriteFile(s.path(r.ID), data, 0600); err != nil {
		return fmt.Errorf("写入续期记录失败: %w", err)
	}
	r.New = false
	r.Updated = false
	return nil
}

// Delete 软删除：只打标记，物理清理由 Clean 执行
func (s *RenewalStore) Delete(r *renewal.Renewal) error {
	r.Deleted = true
	return s.Save(r)
}

// Clean 物理清理已软删除的记录，返回被清理的任务ID
// 供调用方顺带清掉证书缓存。
func (s *RenewalStore) Clean() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, "*"+renewalSuffix))
	if err != nil {
		return nil, fmt.Errorf("枚举续期记录失败: %w", err)
	}

	var removed []string
	for _, path := range matches {
		r, err := s.read(path)
		if err != nil || !r.Deleted {
			continue
		}
		if err := os.Remove(path); err != nil {
			log.Printf("[存储] 清理续期记录 %s 失败: %v", filepath.Base(path), err)
			continue
		}
		removed = append(removed, r.ID)
	}
	return removed, nil
}

func (s *RenewalStore) read(path string) (*renewal.Renewal, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var r renewal.Renewal
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("解析续期记录失败: %w", err)
	}
	if r.ID == "" {
		r.ID = strings.TrimSuffix(filepath.Base(path), renewalSuffix)
	}
	return &r, nil
}

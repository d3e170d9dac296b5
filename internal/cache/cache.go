package cache

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"acme-manager/internal/renewal"
)

// 缓存文件后缀
const (
	certSuffix = "cert.pem"
	keySuffix  = "key.pem"
	csrSuffix  = "csr.pem"
)

// Store 证书缓存：按续期ID + 订单键 + 版本化缓存键命名的PEM文件集合。
// 单进程同步访问，不加文件锁，并发进程由部署环境排除。
type Store struct {
	dir string
	// 私钥复用天数，0表示从不落盘私钥
	reuseDays int

	mu   sync.Mutex
	meta map[string]*metaEntry
}

// 按路径+修改时间缓存的解析结果，避免重复解析未变化的文件
type metaEntry struct {
	modTime time.Time
	info    *renewal.CertificateInfo
}

// NewStore 创建缓存，目录不存在时创建
func NewStore(dir string, reuseDays int) (*Store, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("创建缓存目录失败: %w", err)
	}
	return &Store{
		dir:       dir,
		reuseDays: reuseDays,
		meta:      make(map[string]*metaEntry),
	}, nil
}

// ReuseDays 私钥复用天数
func (s *Store) ReuseDays() int {
	return s.reuseDays
}

// 文件名: <续期ID>-<订单键>-<缓存键>-cert.pem
func (s *Store) filePath(order *renewal.Order, version int, suffix string) string {
	name := fmt.Sprintf("%s-%s-%s-%s",
		order.Renewal.ID, order.Name(), CacheKey(order, version), suffix)
	return filepath.Join(s.dir, name)
}

// 旧版未分键的文件名: <续期ID>-cert.pem
func (s *Store) legacyPath(renewalID, suffix string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s-%s", renewalID, suffix))
}

// CachedInfo 形状精确匹配的缓存证书。
// 按缓存键版本从新到旧查找；旧版未分键的文件
// 需要用当前目标的CN/SAN重新校验后才算命中。
func (s *Store) CachedInfo(order *renewal.Order) *renewal.CertificateInfo {
	for version := currentKeyVersion; version >= keyVersion1; version-- {
		path := s.filePath(order, version, certSuffix)
		if info := s.load(path); info != nil {
			info.KeyFile = s.existing(s.filePath(order, version, keySuffix))
			return info
		}
	}

	legacy := s.legacyPath(order.Renewal.ID, certSuffix)
	if info := s.load(legacy); info != nil && info.Matches(order.Target) {
		info.KeyFile = s.existing(s.legacyPath(order.Renewal.ID, keySuffix))
		return info
	}
	return nil
}

// PreviousInfo 该订单最近一张已知证书，不要求形状匹配。
// 三级回退：订单键标记的文件 → 该续期的任意版本化文件 → 旧版文件。
func (s *Store) PreviousInfo(r *renewal.Renewal, orderKey string) *renewal.CertificateInfo {
	if path := s.newestMatch(fmt.Sprintf("%s-%s-*-%s", r.ID, strings.ToLower(orderKey), certSuffix)); path != "" {
		if info := s.load(path); info != nil {
			info.KeyFile = s.existing(strings.TrimSuffix(path, certSuffix) + keySuffix)
			return info
		}
	}
	if path := s.newestMatch(fmt.Sprintf("%s-*-%s", r.ID, certSuffix)); path != "" {
		if info := s.load(path); info != nil {
			info.KeyFile = s.existing(strings.TrimSuffix(path, certSuffix) + keySuffix)
			return info
		}
	}
	if info := s.load(s.legacyPath(r.ID, certSuffix)); info != nil {
		info.KeyFile = s.existing(s.legacyPath(r.ID, keySuffix))
		return info
	}
	return nil
}

// StoreCertificate 缓存新签发的证书。先清掉同一订单下
// 缓存键不同的旧文件（形状变化会改变缓存键），
// 私钥只在允许复用时落盘。
func (s *Store) StoreCertificate(order *renewal.Order, certPEM, keyPEM []byte) (*renewal.CertificateInfo, error) {
	s.clearStale(order)

	certPath := s.filePath(order, currentKeyVersion, certSuffix)
	if err := os.WriteFile(certPath, certPEM, 0644); err != nil {
		return nil, fmt.Errorf("写入缓存证书失败: %w", err)
	}

	keyPath := ""
	if s.reuseDays > 0 && len(keyPEM) > 0 {
		keyPath = s.filePath(order, currentKeyVersion, keySuffix)
		if err := os.WriteFile(keyPath, keyPEM, 0600); err != nil {
			return nil, fmt.Errorf("写入缓存私钥失败: %w", err)
		}
	}

	info, err := renewal.ParseCertificatePEM(certPEM)
	if err != nil {
		return nil, err
	}
	info.CertFile = certPath
	info.KeyFile = keyPath
	info.CacheDate = time.Now()
	return info, nil
}

// StoreCsr 缓存CSR，供排查和重放
func (s *Store) StoreCsr(order *renewal.Order, csrPEM []byte) error {
	path := s.filePath(order, currentKeyVersion, csrSuffix)
	if err := os.WriteFile(path, csrPEM, 0644); err != nil {
		return fmt.Errorf("写入缓存CSR失败: %w", err)
	}
	return nil
}

// Key 定位可复用的私钥文件。从旧版本开始尝试已有文件，
// 都不存在时返回当前版本的路径供新写入。
func (s *Store) Key(order *renewal.Order) string {
	for version := keyVersion1; version <= currentKeyVersion; version++ {
		path := s.filePath(order, version, keySuffix)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	if path := s.legacyPath(order.Renewal.ID, keySuffix); s.existing(path) != "" {
		return path
	}
	return s.filePath(order, currentKeyVersion, keySuffix)
}

// Delete 删除一个订单的所有缓存产物
func (s *Store) Delete(renewalID, orderKey string) {
	s.clearPrefix(fmt.Sprintf("%s-%s-", renewalID, strings.ToLower(orderKey)))
}

// DeleteAll 删除一个续期的所有缓存产物（含旧版文件）
func (s *Store) DeleteAll(renewalID string) {
	s.clearPrefix(renewalID + "-")
}

// Revoke 吊销后清除私钥文件，保证吊销过的密钥不会被复用
func (s *Store) Revoke(renewalID string) {
	matches, _ := filepath.Glob(filepath.Join(s.dir, renewalID+"-*"+keySuffix))
	for _, path := range matches {
		if err := os.Remove(path); err != nil {
			log.Printf("[缓存] 删除私钥文件失败 %s: %v", path, err)
		}
		s.forget(path)
	}
}

// load 读取并解析证书文件，路径+修改时间未变时复用上次的解析结果
func (s *Store) load(path string) *renewal.CertificateInfo {
	stat, err := os.Stat(path)
	if err != nil {
		return nil
	}

	s.mu.Lock()
	entry, ok := s.meta[path]
	s.mu.Unlock()
	if ok && entry.modTime.Equal(stat.ModTime()) {
		clone := *entry.info
		return &clone
	}

	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("[缓存] 读取缓存文件失败 %s: %v", path, err)
		return nil
	}
	info, err := renewal.ParseCertificatePEM(data)
	if err != nil {
		log.Printf("[缓存] 解析缓存文件失败 %s: %v", path, err)
		return nil
	}
	info.CertFile = path
	info.CacheDate = stat.ModTime()

	s.mu.Lock()
	s.meta[path] = &metaEntry{modTime: stat.ModTime(), info: info}
	s.mu.Unlock()

	clone := *info
	return &clone
}

// newestMatch 返回匹配模式中修改时间最新的文件
func (s *Store) newestMatch(pattern string) string {
	matches, err := filepath.Glob(filepath.Join(s.dir, pattern))
	if err != nil || len(matches) == 0 {
		return ""
	}
	sort.Slice(matches, func(i, j int) bool {
		si, _ := os.Stat(matches[i])
		sj, _ := os.Stat(matches[j])
		if si == nil || sj == nil {
			return false
		}
		return si.ModTime().After(sj.ModTime())
	})
	return matches[0]
}

// clearStale 删除同一订单下缓存键与当前值不一致的文件
func (s *Store) clearStale(order *renewal.Order) {
	current := CacheKey(order, currentKeyVersion)
	prefix := fmt.Sprintf("%s-%s-", order.Renewal.ID, order.Name())
	matches, _ := filepath.Glob(filepath.Join(s.dir, prefix+"*"))
	for _, path := range matches {
		if strings.Contains(filepath.Base(path), current) {
			continue
		}
		if err := os.Remove(path); err != nil {
			log.Printf("[缓存] 删除过期缓存文件失败 %s: %v", path, err)
		}
		s.forget(path)
	}
}

func (s *Store) clearPrefix(prefix string) {
	matches, _ := filepath.Glob(filepath.Join(s.dir, prefix+"*"))
	for _, path := range matches {
		if err := os.Remove(path); err != nil {
			log.Printf("[缓存] 删除缓存文件失败 %s: %v", path, err)
		}
		s.forget(path)
	}
}

func (s *Store) existing(path string) string {
	if _, err := os.Stat(path); err == nil {
		return path
	}
	return ""
}

func (s *Store) forget(path string) {
	s.mu.Lock()
	delete(s.meta, path)
	s.mu.Unlock()
}

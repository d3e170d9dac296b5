package acme

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"log"
	"os"
	"path/filepath"

	acmewire "github.com/mholt/acmez/v3/acme"
)

const (
	accountKeyFile = "account.key.pem"
	regFile        = "account.registration.json"
)

// Account 本地ACME账户：联系邮箱 + 账户目录。
// 私钥和注册信息缓存在账户目录下，首次使用时自动生成/注册。
type Account struct {
	Email string
	Dir   string
}

// registrationRecord 已注册账户的落盘记录
type registrationRecord struct {
	Location string `json:"location"`
	Status   string `json:"status"`
}

// ensureAccount 加载或注册ACME账户
func ensureAccount(ctx context.Context, client *acmewire.Client, acct Account) (acmewire.Account, error) {
	var zero acmewire.Account

	if acct.Dir == "" {
		return zero, fmt.Errorf("未配置账户目录")
	}
	if err := os.MkdirAll(acct.Dir, 0700); err != nil {
		return zero, fmt.Errorf("创建账户目录失败: %w", err)
	}

	key, err := loadOrCreateAccountKey(filepath.Join(acct.Dir, accountKeyFile))
	if err != nil {
		return zero, err
	}

	wireAcct := acmewire.Account{
		Contact:              []string{"mailto:" + acct.Email},
		TermsOfServiceAgreed: true,
		PrivateKey:           key,
	}

	// 已注册过则直接复用账户地址
	if rec := readRegistration(acct.Dir); rec != nil {
		wireAcct.Location = rec.Location
		wireAcct.Status = rec.Status
		return wireAcct, nil
	}

	registered, err := client.NewAccount(ctx, wireAcct)
	if err != nil {
		return zero, fmt.Errorf("注册ACME账户失败: %w", err)
	}

	if err := writeRegistration(acct.Dir, registered); err != nil {
		// 注册已成功，落盘失败只记录，下次会重新注册到同一账户
		log.Printf("[ACME] 保存账户注册信息失败: %v", err)
	}

	return registered, nil
}

// loadOrCreateAccountKey 加载账户私钥，不存在时生成ECDSA P-256并落盘
func loadOrCreateAccountKey(path string) (*ecdsa.PrivateKey, error) {
	if data, err := os.ReadFile(path); err == nil {
		block, _ := pem.Decode(data)
		if block == nil {
			return nil, fmt.Errorf("账户私钥文件格式无效: %s", path)
		}
		key, err := x509.ParseECPrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("解析账户私钥失败: %w", err)
		}
		return key, nil
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("生成账户私钥失败: %w", err)
	}

	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("编码账户私钥失败: %w", err)
	}

	data := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der})
	if err := os.WriteFile(path, data, 0600); err != nil {
		return nil, fmt.Errorf("保存账户私钥失败: %w", err)
	}

	return key, nil
}

func readRegistration(dir string) *registrationRecord {
	data, err := os.ReadFile(filepath.Join(dir, regFile))
	if err != nil {
		return nil
	}

	rec := new(registrationRecord)
	if err := json.Unmarshal(data, rec); err != nil {
		log.Printf("[ACME] 读取账户注册信息失败: %v", err)
		return nil
	}
	if rec.Location == "" {
		return nil
	}
	return rec
}

func writeRegistration(dir string, acct acmewire.Account) error {
	data, err := json.Marshal(registrationRecord{
		Location: acct.Location,
		Status:   acct.Status,
	})
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, regFile), data, 0600)
}

package installation

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strings"

	"acme-manager/internal/plugin"
	"acme-manager/internal/renewal"
)

// Script 脚本安装插件：证书保存完成后执行用户命令，
// 支持 ${DOMAIN} ${CERT_FILE} ${KEY_FILE} 等变量替换。
type Script struct {
	command string
}

// NewScript 创建脚本安装插件
func NewScript(opts renewal.InstallationOptions) (*Script, error) {
	if opts.Script == "" {
		return nil, fmt.Errorf("script 安装插件需要安装命令")
	}
	return &Script{command: opts.Script}, nil
}

// Install 执行安装命令
func (s *Script) Install(ctx context.Context, stores map[string]*plugin.StoreInfo, newCert, previousCert *renewal.CertificateInfo) error {
	vars := map[string]string{
		"DOMAIN":     newCert.CommonName(),
		"THUMBPRINT": newCert.Thumbprint(),
	}
	if info, ok := stores["pemfiles"]; ok {
		vars["CERT_FILE"] = info.Path
		vars["KEY_FILE"] = info.KeyPath
	}
	if previousCert != nil {
		vars["PREVIOUS_THUMBPRINT"] = previousCert.Thumbprint()
	}
	for name, info := range stores {
		if strings.HasPrefix(name, "cloud-") {
			vars["CLOUD_CERT_ID"] = info.Path
		}
	}

	command := s.command
	for key, value := range vars {
		command = strings.ReplaceAll(command, "${"+key+"}", value)
	}

	log.Printf("执行安装命令: %s", command)

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("执行安装命令失败: %w", err)
	}

	log.Printf("安装命令执行成功")
	return nil
}

// Register 注册安装插件
func Register(r *plugin.Registry) {
	r.RegisterInstallation("script", func(opts renewal.InstallationOptions) (plugin.InstallationPlugin, error) {
		return NewScript(opts)
	})
}

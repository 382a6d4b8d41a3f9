package migration

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PathApplier 执行 opts.Path 目录下的 *.sql 文件，文件名即版本号
type PathApplier struct {
	logger *zap.Logger
}

func NewPathApplier(logger *zap.Logger) *PathApplier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PathApplier{logger: logger}
}

func (p *PathApplier) Apply(ctx context.Context, db *gorm.DB, opts Options) error {
	files, err := SQLFiles(opts.Path)
	if err != nil {
		return err
	}
	byVersion := make(map[string]string, len(files))
	versions := make([]string, 0, len(files))
	for _, f := range files {
		v := filepath.Base(f)
		byVersion[v] = f
		versions = append(versions, v)
	}
	return applyVersions(ctx, db, p.logger, versions, func(version string) MigrationFunc {
		return func(tx *gorm.DB, _ string) error {
			return executeSQLFile(tx, byVersion[version])
		}
	})
}

// SQLFiles 返回目录下按文件名排序的 *.sql
func SQLFiles(dir string) ([]string, error) {
	if dir == "" {
		return nil, fmt.Errorf("迁移目录为空")
	}
	files, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		if _, err := os.Stat(dir); err != nil {
			return nil, fmt.Errorf("迁移目录 %s 不可用: %w", dir, err)
		}
	}
	sort.Strings(files)
	return files, nil
}

// executeSQLFile 按分号切分语句逐条执行，跳过注释和空行
func executeSQLFile(db *gorm.DB, filePath string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	var statement strings.Builder

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}

		statement.WriteString(line)
		statement.WriteString(" ")

		if strings.HasSuffix(line, ";") {
			sql := strings.TrimSpace(statement.String())
			if sql != "" && sql != ";" {
				if err := db.Exec(sql).Error; err != nil {
					return fmt.Errorf("执行 %s 失败: %w", filepath.Base(filePath), err)
				}
			}
			statement.Reset()
		}
	}
	return scanner.Err()
}

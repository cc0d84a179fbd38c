package handler

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
)

// StaticFiles отдаёт фронтенд из PUBLIC_DIR
type StaticFiles struct {
	dir string
}

// NewStaticFiles возвращает nil, если каталога нет: фронтенд необязателен
func NewStaticFiles(dir string) *StaticFiles {
	if dir == "" {
		return nil
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil
	}
	return &StaticFiles{dir: dir}
}

// AddRoutes регистрирует / (index.html) и /static/*
func (s *StaticFiles) AddRoutes(router *gin.Engine) {
	index := filepath.Join(s.dir, "index.html")
	if _, err := os.Stat(index); err == nil {
		router.StaticFile("/", index)
	}
	router.Static("/static", s.dir)
}

// TryServe отдаёт файл из корня каталога, если name похоже на имя файла.
// Коды не содержат точку, поэтому с ними это не пересекается.
func (s *StaticFiles) TryServe(c *gin.Context, name string) bool {
	if !strings.Contains(name, ".") || name == "." || name == ".." {
		return false
	}

	path := filepath.Join(s.dir, filepath.Base(name))
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}

	c.File(path)
	return true
}

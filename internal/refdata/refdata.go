// Package refdata holds the static per-character reference tables (stroke
// count, stroke order, pinyin) loaded once at startup and passed by reference
// to whoever derives fields from them.
package refdata

import (
	"bufio"
	"context"
	"os"
	"strconv"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/inkstone-dev/inkstone/internal/config"
)

type Store struct {
	strokeCounts map[string]int
	strokeOrders map[string]string
	pinyin       map[string]string
}

// Load reads the reference files. A missing file degrades to an empty table
// with a warning; lookups then return zero values and import falls back to
// defaults, which matches how the original data behaves when the tables are
// incomplete.
func Load(cfg config.RefDataConfig) (*Store, error) {
	s := &Store{
		strokeCounts: make(map[string]int),
		strokeOrders: make(map[string]string),
		pinyin:       make(map[string]string),
	}
	log := logutil.GetLogger(context.Background())
	if err := loadTable(cfg.StrokeCountFile, func(char, value string) {
		if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && n >= 0 {
			s.strokeCounts[char] = n
		}
	}); err != nil {
		log.Warn("stroke count table unavailable", zap.String("file", cfg.StrokeCountFile), zap.Error(err))
	}
	if err := loadTable(cfg.StrokeOrderFile, func(char, value string) {
		s.strokeOrders[char] = strings.TrimSpace(value)
	}); err != nil {
		log.Warn("stroke order table unavailable", zap.String("file", cfg.StrokeOrderFile), zap.Error(err))
	}
	if err := loadTable(cfg.PinyinFile, func(char, value string) {
		s.pinyin[char] = strings.TrimSpace(value)
	}); err != nil {
		log.Warn("pinyin table unavailable", zap.String("file", cfg.PinyinFile), zap.Error(err))
	}
	log.Info("reference tables loaded",
		zap.Int("stroke_counts", len(s.strokeCounts)),
		zap.Int("stroke_orders", len(s.strokeOrders)),
		zap.Int("pinyin", len(s.pinyin)))
	return s, nil
}

// loadTable parses "seq|char|value" lines; lines with fewer than three fields
// are skipped.
func loadTable(path string, put func(char, value string)) error {
	if path == "" {
		return os.ErrNotExist
	}
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		parts := strings.Split(strings.TrimSpace(scanner.Text()), "|")
		if len(parts) < 3 {
			continue
		}
		char := strings.TrimSpace(parts[1])
		if char == "" {
			continue
		}
		put(char, parts[2])
	}
	return scanner.Err()
}

func (s *Store) StrokeCount(character string) int {
	return s.strokeCounts[character]
}

func (s *Store) StrokeOrder(character string) string {
	return s.strokeOrders[character]
}

func (s *Store) Pinyin(character string) string {
	return s.pinyin[character]
}

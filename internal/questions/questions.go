// Package questions imports question seed files into the question bank.
package questions

import (
	"context"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/interviewprep/interviewprep/internal/model"
	"github.com/interviewprep/interviewprep/internal/store"
)

//go:embed seed/questions.yaml
var seed embed.FS

// DefaultSeedPath is the key under which the embedded bank is recorded.
const DefaultSeedPath = "embedded:seed/questions.yaml"

// Parse decodes a seed file. Files ending in .yaml or .yml are YAML;
// anything else is JSON.
func Parse(path string, data []byte) ([]model.QuestionImport, error) {
	var out []model.QuestionImport
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &out); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	return out, nil
}

// Load imports each file once. A file already imported with the same
// content is skipped; one whose content changed is skipped with a warning
// so edits made through the admin API are not duplicated.
func Load(ctx context.Context, repo store.Repository, paths []string) error {
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		if _, err := Import(ctx, repo, path, data, false); err != nil {
			return err
		}
	}
	return nil
}

// LoadDefault imports the embedded bank if the question bank is empty.
func LoadDefault(ctx context.Context, repo store.Repository) error {
	count, err := repo.QuestionCount(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	data, err := seed.ReadFile("seed/questions.yaml")
	if err != nil {
		return err
	}
	_, err = Import(ctx, repo, DefaultSeedPath, data, false)
	return err
}

// Result reports what Import did.
type Result struct {
	Imported int  `json:"imported"`
	Skipped  bool `json:"skipped"`
}

// Import inserts the questions of one seed file recorded under name. The
// same content is never imported twice. Changed content under a known
// name is imported only when allowChanged is set.
func Import(ctx context.Context, repo store.Repository, name string, data []byte, allowChanged bool) (Result, error) {
	hash := sha256sum(data)
	storedHash, err := repo.GetImportedFileHash(ctx, name)
	if err != nil {
		return Result{}, fmt.Errorf("check import status for %s: %w", name, err)
	}
	if storedHash == hash {
		slog.Info("questions file unchanged, skipping", "path", name)
		return Result{Skipped: true}, nil
	}
	if storedHash != "" && !allowChanged {
		slog.Warn("questions file changed since last import, skipping to avoid duplicates", "path", name)
		return Result{Skipped: true}, nil
	}

	imports, err := Parse(name, data)
	if err != nil {
		return Result{}, err
	}
	// Validate the whole file first so a bad entry imports nothing.
	qs := make([]model.Question, len(imports))
	for i, qi := range imports {
		qs[i] = model.Question{
			Text:      strings.TrimSpace(qi.Text),
			Tags:      qi.Tags,
			Subtag:    qi.Subtag,
			Big3:      qi.Big3,
			Big3Order: qi.Big3Order,
			Tip:       strings.TrimSpace(qi.Tip),
		}
		if err := qs[i].Validate(); err != nil {
			return Result{}, fmt.Errorf("question %d of %s: %w", i+1, name, err)
		}
	}
	for i, q := range qs {
		if _, err := repo.InsertQuestion(ctx, q); err != nil {
			return Result{}, fmt.Errorf("insert question %d from %s: %w", i+1, name, err)
		}
	}

	if err := repo.SetImportedFileHash(ctx, name, hash); err != nil {
		return Result{}, fmt.Errorf("record import for %s: %w", name, err)
	}
	slog.Info("imported questions", "path", name, "count", len(imports))
	return Result{Imported: len(imports)}, nil
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Package seed формирует начальное содержимое новых файлов проекта.
package seed

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"log/slog"
	"strings"
	"text/template"

	"github.com/iudanet/gophtex/internal/models"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(
	template.New("seed").
		Funcs(template.FuncMap{"latex": EscapeLaTeX}).
		ParseFS(templateFS, "templates/*.tmpl"),
)

// templateByFile шаблоны по имени файла. Остальные файлы создаются пустыми.
var templateByFile = map[string]string{
	models.DefaultFileName: "main.tex.tmpl",
}

// Data параметры шаблона
type Data struct {
	Title  string
	Author string
}

// ProjectStore источник метаданных проекта
type ProjectStore interface {
	GetProject(ctx context.Context, projectID string) (*models.Project, error)
	MarkSeeded(ctx context.Context, projectID, fileName string) (bool, error)
}

// Seeder отдает шаблон ровно один раз за время жизни файла
type Seeder struct {
	store  ProjectStore
	logger *slog.Logger
}

// NewSeeder создает Seeder поверх хранилища проектов
func NewSeeder(store ProjectStore, logger *slog.Logger) *Seeder {
	return &Seeder{store: store, logger: logger}
}

// HasTemplate сообщает, есть ли у файла начальный шаблон
func HasTemplate(fileName string) bool {
	_, ok := templateByFile[models.NormalizeFileName(fileName)]
	return ok
}

// Render заполняет шаблон файла fileName
func Render(fileName string, data Data) (string, error) {
	name, ok := templateByFile[models.NormalizeFileName(fileName)]
	if !ok {
		return "", nil
	}

	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", name, err)
	}
	return buf.String(), nil
}

// InitialContent возвращает шаблон для файла, который еще ни разу не наполнялся.
// Ошибки хранилища не мешают входу в комнату: файл остается пустым.
func (s *Seeder) InitialContent(ctx context.Context, projectID, fileName string) (string, bool) {
	if !HasTemplate(fileName) {
		return "", false
	}

	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		s.logger.Warn("Failed to load project for seeding", "project_id", projectID, "error", err)
		return "", false
	}

	text, err := Render(fileName, Data{Title: project.Name, Author: project.OwnerName})
	if err != nil {
		s.logger.Error("Failed to render template", "project_id", projectID, "file", fileName, "error", err)
		return "", false
	}

	first, err := s.store.MarkSeeded(ctx, projectID, fileName)
	if err != nil {
		s.logger.Warn("Failed to mark file seeded", "project_id", projectID, "file", fileName, "error", err)
		return "", false
	}
	if !first {
		return "", false
	}

	s.logger.Info("File seeded", "project_id", projectID, "file", fileName)
	return text, true
}

var latexEscaper = strings.NewReplacer(
	`\`, `\textbackslash{}`,
	`{`, `\{`,
	`}`, `\}`,
	`$`, `\$`,
	`&`, `\&`,
	`#`, `\#`,
	`%`, `\%`,
	`_`, `\_`,
	`^`, `\textasciicircum{}`,
	`~`, `\textasciitilde{}`,
)

// EscapeLaTeX экранирует специальные символы LaTeX
func EscapeLaTeX(s string) string {
	return latexEscaper.Replace(s)
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/jwalitptl/notify-api/internal/model"
	"github.com/jwalitptl/notify-api/internal/repository"
	apperrors "github.com/jwalitptl/notify-api/pkg/errors"
)

type templateRepository struct {
	BaseRepository
}

func NewTemplateRepository(base BaseRepository) repository.TemplateRepository {
	return &templateRepository{base}
}

func (r *templateRepository) Create(ctx context.Context, tmpl *model.EmailTemplate) error {
	query := `
		INSERT INTO email_templates (
			id, key, name, description, subject, html_content, text_content,
			category, language, active, variables, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	tmpl.ID = uuid.New()
	tmpl.CreatedAt = time.Now()
	tmpl.UpdatedAt = time.Now()

	_, err := r.db.ExecContext(ctx, query,
		tmpl.ID,
		tmpl.Key,
		tmpl.Name,
		tmpl.Description,
		tmpl.Subject,
		tmpl.HTMLContent,
		tmpl.TextContent,
		tmpl.Category,
		tmpl.Language,
		tmpl.Active,
		tmpl.Variables,
		tmpl.CreatedAt,
		tmpl.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return apperrors.NewBadRequest(fmt.Sprintf("template key %q already exists", tmpl.Key), err)
		}
		return fmt.Errorf("failed to create template: %w", err)
	}
	return nil
}

func (r *templateRepository) GetByKey(ctx context.Context, key string) (*model.EmailTemplate, error) {
	query := `
		SELECT id, key, name, description, subject, html_content, text_content,
		       category, language, active, variables, created_at, updated_at
		FROM email_templates
		WHERE key = $1
	`
	var tmpl model.EmailTemplate
	err := r.db.GetContext(ctx, &tmpl, query, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	return &tmpl, nil
}

func (r *templateRepository) GetActiveByKey(ctx context.Context, key string) (*model.EmailTemplate, error) {
	query := `
		SELECT id, key, name, description, subject, html_content, text_content,
		       category, language, active, variables, created_at, updated_at
		FROM email_templates
		WHERE key = $1 AND active = true
	`
	var tmpl model.EmailTemplate
	err := r.db.GetContext(ctx, &tmpl, query, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active template: %w", err)
	}
	return &tmpl, nil
}

func (r *templateRepository) List(ctx context.Context) ([]*model.EmailTemplate, error) {
	query := `
		SELECT id, key, name, description, subject, html_content, text_content,
		       category, language, active, variables, created_at, updated_at
		FROM email_templates
		ORDER BY category, name
	`
	var templates []*model.EmailTemplate
	if err := r.db.SelectContext(ctx, &templates, query); err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	return templates, nil
}

func (r *templateRepository) Update(ctx context.Context, tmpl *model.EmailTemplate) error {
	query := `
		UPDATE email_templates
		SET name = $1, description = $2, subject = $3, html_content = $4,
		    text_content = $5, category = $6, language = $7, active = $8,
		    variables = $9, updated_at = $10
		WHERE key = $11
	`
	tmpl.UpdatedAt = time.Now()

	result, err := r.db.ExecContext(ctx, query,
		tmpl.Name,
		tmpl.Description,
		tmpl.Subject,
		tmpl.HTMLContent,
		tmpl.TextContent,
		tmpl.Category,
		tmpl.Language,
		tmpl.Active,
		tmpl.Variables,
		tmpl.UpdatedAt,
		tmpl.Key,
	)
	if err != nil {
		return fmt.Errorf("failed to update template: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *templateRepository) Delete(ctx context.Context, key string) error {
	query := `
		DELETE FROM email_templates
		WHERE key = $1
	`
	result, err := r.db.ExecContext(ctx, query, key)
	if err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return repository.ErrNotFound
	}
	return nil
}

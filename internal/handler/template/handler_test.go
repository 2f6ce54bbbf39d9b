package template

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/notify-api/internal/middleware"
	"github.com/jwalitptl/notify-api/internal/model"
	"github.com/jwalitptl/notify-api/internal/repository"
	tmpl "github.com/jwalitptl/notify-api/internal/template"
	"github.com/jwalitptl/notify-api/pkg/logger"
)

type fakeTemplateRepo struct {
	repository.TemplateRepository
	templates map[string]*model.EmailTemplate
	created   []*model.EmailTemplate
}

func (f *fakeTemplateRepo) Create(_ context.Context, t *model.EmailTemplate) error {
	f.templates[t.Key] = t
	f.created = append(f.created, t)
	return nil
}

func (f *fakeTemplateRepo) GetActiveByKey(_ context.Context, key string) (*model.EmailTemplate, error) {
	t, ok := f.templates[key]
	if !ok || !t.Active {
		return nil, repository.ErrNotFound
	}
	return t, nil
}

func (f *fakeTemplateRepo) GetByKey(_ context.Context, key string) (*model.EmailTemplate, error) {
	t, ok := f.templates[key]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return t, nil
}

func newTestRouter(repo *fakeTemplateRepo) *gin.Engine {
	gin.SetMode(gin.TestMode)
	middleware.RegisterValidators()

	engine := gin.New()
	store := tmpl.NewStore(repo, logger.New(nil))
	h := NewHandler(store, tmpl.NewRenderer())
	h.RegisterRoutes(engine.Group("/api/v1"))
	return engine
}

func doJSON(t *testing.T, engine *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestCreateTemplate(t *testing.T) {
	repo := &fakeTemplateRepo{templates: map[string]*model.EmailTemplate{}}
	engine := newTestRouter(repo)

	w := doJSON(t, engine, http.MethodPost, "/api/v1/templates",
		`{"key": "user.welcome", "name": "Welcome", "subject": "Hi {{.name}}"}`)

	require.Equal(t, http.StatusCreated, w.Code)
	require.Len(t, repo.created, 1)
	assert.Equal(t, "user.welcome", repo.created[0].Key)
	assert.True(t, repo.created[0].Active)
	assert.Equal(t, "en", repo.created[0].Language)
}

func TestCreateTemplateInvalidKey(t *testing.T) {
	repo := &fakeTemplateRepo{templates: map[string]*model.EmailTemplate{}}
	engine := newTestRouter(repo)

	w := doJSON(t, engine, http.MethodPost, "/api/v1/templates",
		`{"key": "Not A Key!", "name": "Welcome", "subject": "Hi"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, repo.created)
}

func TestPreviewTemplate(t *testing.T) {
	repo := &fakeTemplateRepo{templates: map[string]*model.EmailTemplate{
		"user.welcome": {
			Key:         "user.welcome",
			Subject:     "Hi {{.name}}",
			TextContent: "Welcome, {{.name}}",
			Active:      true,
		},
	}}
	engine := newTestRouter(repo)

	w := doJSON(t, engine, http.MethodPost, "/api/v1/templates/user.welcome/preview",
		`{"context": {"name": "Ann"}}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Hi Ann")
	assert.Contains(t, w.Body.String(), "Welcome, Ann")
}

func TestPreviewUnknownTemplate(t *testing.T) {
	engine := newTestRouter(&fakeTemplateRepo{templates: map[string]*model.EmailTemplate{}})

	w := doJSON(t, engine, http.MethodPost, "/api/v1/templates/missing/preview", `{"context": {}}`)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPreviewRenderFailure(t *testing.T) {
	repo := &fakeTemplateRepo{templates: map[string]*model.EmailTemplate{
		"broken": {Key: "broken", Subject: "Hi {{.name", Active: true},
	}}
	engine := newTestRouter(repo)

	w := doJSON(t, engine, http.MethodPost, "/api/v1/templates/broken/preview", `{"context": {}}`)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestTemplateKeyValidator(t *testing.T) {
	middleware.RegisterValidators()
	v, ok := binding.Validator.Engine().(*validator.Validate)
	require.True(t, ok)

	assert.NoError(t, v.Var("user.welcome", "templatekey"))
	assert.NoError(t, v.Var("order-shipped_v2", "templatekey"))
	assert.Error(t, v.Var("User.Welcome", "templatekey"))
	assert.Error(t, v.Var("user welcome", "templatekey"))
	assert.Error(t, v.Var("", "templatekey"))
}

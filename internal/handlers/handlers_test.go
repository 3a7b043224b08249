package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/shelftrack/shelftrack/internal/audit"
	"github.com/shelftrack/shelftrack/internal/authsvc"
	"github.com/shelftrack/shelftrack/internal/backend"
	"github.com/shelftrack/shelftrack/internal/models"
	"github.com/shelftrack/shelftrack/internal/repository"
)

type testEnv struct {
	e       *echo.Echo
	backend *backend.Backend

	Auth     *AuthHandler
	Stores   *StoreHandler
	Products *ProductHandler
	Logs     *LogHandler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&models.User{}, &models.Store{}, &models.Product{},
		&models.Log{}, &models.RefreshToken{},
	))

	b := backend.New(db)
	aud := audit.New(b, nil)
	auth := authsvc.New(db, []byte("access-secret"), []byte("refresh-secret"))
	stores := repository.New(b, repository.StoreKind(), aud)
	products := repository.New(b, repository.ProductKind(), aud)

	return &testEnv{
		e:       echo.New(),
		backend: b,
		Auth:    &AuthHandler{Auth: auth},
		Stores:  &StoreHandler{Stores: stores},
		Products: &ProductHandler{
			Products: products,
			Stores:   stores,
		},
		Logs: &LogHandler{Backend: b},
	}
}

// doJSON builds a request context the way the router would, with the
// authenticated identity already resolved.
func (env *testEnv) doJSON(method, path, identity string, body any) (*httptest.ResponseRecorder, echo.Context) {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := env.e.NewContext(req, rec)
	if identity != "" {
		c.Set("identity", identity)
	}
	return rec, c
}

func decodeData[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var body struct {
		Data T `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Data
}

func (env *testEnv) createStore(t *testing.T, identity, name string) models.Store {
	t.Helper()
	rec, c := env.doJSON(http.MethodPost, "/api/v1/stores", identity, map[string]string{"name": name})
	require.NoError(t, env.Stores.Create(c))
	require.Equal(t, http.StatusCreated, rec.Code)
	return decodeData[models.Store](t, rec)
}

func (env *testEnv) createProduct(t *testing.T, identity, storeID string, body map[string]any) (*httptest.ResponseRecorder, models.Product) {
	t.Helper()
	rec, c := env.doJSON(http.MethodPost, "/api/v1/stores/"+storeID+"/products", identity, body)
	c.SetParamNames("id")
	c.SetParamValues(storeID)
	require.NoError(t, env.Products.Create(c))
	if rec.Code != http.StatusCreated {
		return rec, models.Product{}
	}
	return rec, decodeData[models.Product](t, rec)
}

func TestAuthEndpoints(t *testing.T) {
	env := newTestEnv(t)

	creds := map[string]string{"email": "maria@example.com", "password": "secret1"}

	rec, c := env.doJSON(http.MethodPost, "/api/v1/register", "", creds)
	require.NoError(t, env.Auth.Register(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	var tokens struct {
		Identity     string `json:"identity"`
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tokens))
	assert.NotEmpty(t, tokens.AccessToken)
	assert.NotEmpty(t, tokens.RefreshToken)

	// Registering the same email again maps to 401 with the stable code.
	rec, c = env.doJSON(http.MethodPost, "/api/v1/register", "", creds)
	require.NoError(t, env.Auth.Register(c))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	var errBody map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errBody))
	assert.Equal(t, "auth/email-already-in-use", errBody["code"])

	rec, c = env.doJSON(http.MethodPost, "/api/v1/login", "", creds)
	require.NoError(t, env.Auth.Login(c))
	require.Equal(t, http.StatusOK, rec.Code)

	rec, c = env.doJSON(http.MethodPost, "/api/v1/refresh", "",
		map[string]string{"refresh_token": tokens.RefreshToken})
	require.NoError(t, env.Auth.Refresh(c))
	require.Equal(t, http.StatusOK, rec.Code)

	rec, c = env.doJSON(http.MethodPost, "/api/v1/logout", "",
		map[string]string{"refresh_token": tokens.RefreshToken})
	require.NoError(t, env.Auth.Logout(c))
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestStoreEndpoints(t *testing.T) {
	env := newTestEnv(t)

	store := env.createStore(t, "maria", "Corner Shop")
	assert.NotEmpty(t, store.ID)
	assert.Equal(t, "maria", store.OwnerID)
	assert.Equal(t, "No description provided.", store.Description)

	t.Run("list is owner scoped", func(t *testing.T) {
		env.createStore(t, "jose", "Jose Store")

		rec, c := env.doJSON(http.MethodGet, "/api/v1/stores", "maria", nil)
		require.NoError(t, env.Stores.List(c))
		require.Equal(t, http.StatusOK, rec.Code)

		stores := decodeData[[]models.Store](t, rec)
		require.Len(t, stores, 1)
		assert.Equal(t, store.ID, stores[0].ID)
	})

	t.Run("empty name is 400", func(t *testing.T) {
		rec, c := env.doJSON(http.MethodPost, "/api/v1/stores", "maria", map[string]string{"name": "  "})
		require.NoError(t, env.Stores.Create(c))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("patch updates name only", func(t *testing.T) {
		rec, c := env.doJSON(http.MethodPatch, "/api/v1/stores/"+store.ID, "maria",
			map[string]string{"name": "Corner Shop 2"})
		c.SetParamNames("id")
		c.SetParamValues(store.ID)
		require.NoError(t, env.Stores.Update(c))
		require.Equal(t, http.StatusOK, rec.Code)

		updated := decodeData[models.Store](t, rec)
		assert.Equal(t, "Corner Shop 2", updated.Name)
		assert.Equal(t, "No description provided.", updated.Description)
	})

	t.Run("foreign delete is 412", func(t *testing.T) {
		rec, c := env.doJSON(http.MethodDelete, "/api/v1/stores/"+store.ID, "jose", nil)
		c.SetParamNames("id")
		c.SetParamValues(store.ID)
		require.NoError(t, env.Stores.Delete(c))
		assert.Equal(t, http.StatusPreconditionFailed, rec.Code)
	})

	t.Run("owner delete is 204", func(t *testing.T) {
		rec, c := env.doJSON(http.MethodDelete, "/api/v1/stores/"+store.ID, "maria", nil)
		c.SetParamNames("id")
		c.SetParamValues(store.ID)
		require.NoError(t, env.Stores.Delete(c))
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})
}

func TestProductEndpoints(t *testing.T) {
	env := newTestEnv(t)
	store := env.createStore(t, "maria", "Corner Shop")

	rec, rice := env.createProduct(t, "maria", store.ID, map[string]any{
		"name": "Rice", "price": 52.5, "quantity": 10,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "Rice", rice.DisplayName)

	t.Run("duplicate name is 409", func(t *testing.T) {
		rec, _ := env.createProduct(t, "maria", store.ID, map[string]any{
			"name": "RICE", "price": 60, "quantity": 1,
		})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("create in foreign store is 404", func(t *testing.T) {
		rec, _ := env.createProduct(t, "jose", store.ID, map[string]any{
			"name": "Rice", "price": 50, "quantity": 1,
		})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("patch quantity to zero", func(t *testing.T) {
		rec, c := env.doJSON(http.MethodPatch, "/api/v1/products/"+rice.ID, "maria",
			map[string]any{"quantity": 0})
		c.SetParamNames("id")
		c.SetParamValues(rice.ID)
		require.NoError(t, env.Products.Update(c))
		require.Equal(t, http.StatusOK, rec.Code)

		updated := decodeData[models.Product](t, rec)
		assert.Zero(t, updated.Quantity)
	})

	t.Run("delete at zero quantity is 204", func(t *testing.T) {
		rec, c := env.doJSON(http.MethodDelete, "/api/v1/products/"+rice.ID, "maria", nil)
		c.SetParamNames("id")
		c.SetParamValues(rice.ID)
		require.NoError(t, env.Products.Delete(c))
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("delete with stock is 412", func(t *testing.T) {
		_, sugar := env.createProduct(t, "maria", store.ID, map[string]any{
			"name": "Sugar", "price": 30, "quantity": 5,
		})
		rec, c := env.doJSON(http.MethodDelete, "/api/v1/products/"+sugar.ID, "maria", nil)
		c.SetParamNames("id")
		c.SetParamValues(sugar.ID)
		require.NoError(t, env.Products.Delete(c))
		assert.Equal(t, http.StatusPreconditionFailed, rec.Code)

		var errBody map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errBody))
		assert.Equal(t, "precondition/nonzero-quantity", errBody["code"])
	})
}

func TestLogEndpoint(t *testing.T) {
	env := newTestEnv(t)
	store := env.createStore(t, "maria", "Corner Shop")
	_, _ = env.createProduct(t, "maria", store.ID, map[string]any{
		"name": "Rice", "price": 52.5, "quantity": 10,
	})

	rec, c := env.doJSON(http.MethodGet, "/api/v1/stores/"+store.ID+"/logs", "maria", nil)
	c.SetParamNames("id")
	c.SetParamValues(store.ID)
	require.NoError(t, env.Logs.List(c))
	require.Equal(t, http.StatusOK, rec.Code)

	logs := decodeData[[]models.Log](t, rec)
	require.Len(t, logs, 2)
	// Newest first.
	assert.Equal(t, "Added product: Rice (Quantity: 10, Price: ₱52.5)", logs[0].Action)
	assert.Equal(t, "Created store: Corner Shop", logs[1].Action)

	t.Run("foreign trail reads empty", func(t *testing.T) {
		rec, c := env.doJSON(http.MethodGet, "/api/v1/stores/"+store.ID+"/logs", "jose", nil)
		c.SetParamNames("id")
		c.SetParamValues(store.ID)
		require.NoError(t, env.Logs.List(c))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, decodeData[[]models.Log](t, rec))
	})
}

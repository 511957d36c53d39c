package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, g *gin.Engine, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	g.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	require.Equal(t, http.StatusOK, w.Code, path)
	return w
}

func TestSwaggerUIPage(t *testing.T) {
	g := gin.New()
	RegisterSwagger(g)
	require.Contains(t, serve(t, g, "/swagger/index.html").Body.String(), "swagger-ui")
}

func TestOpenAPIDocumentListsRoutes(t *testing.T) {
	g := gin.New()
	RegisterSwagger(g)
	w := serve(t, g, "/swagger/doc.json")
	require.Contains(t, w.Header().Get("Content-Type"), "application/json")

	var doc struct {
		OpenAPI string                     `json:"openapi"`
		Paths   map[string]json.RawMessage `json:"paths"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc), "document must be an object, not a quoted string")
	require.Equal(t, "3.0.0", doc.OpenAPI)

	for _, p := range []string{
		"/api/documents",
		"/api/documents/{id}",
		"/api/documents/{id}/share",
		"/api/v1/me",
		"/api/auth/logout",
		"/ws",
	} {
		require.Contains(t, doc.Paths, p)
	}
}

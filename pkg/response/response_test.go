package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/defense-scheduler/pkg/errors"
)

func serve(handler gin.HandlerFunc) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/", handler)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	return w
}

func TestOKWithMeta(t *testing.T) {
	w := serve(func(c *gin.Context) {
		OK(c, map[string]string{"id": "p1"}, map[string]interface{}{"mode": "preview"})
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))

	var body map[string]map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "p1", body["data"]["id"])
	assert.Equal(t, "preview", body["meta"]["mode"])
}

func TestEmptyMetaIsOmitted(t *testing.T) {
	w := serve(func(c *gin.Context) {
		Accepted(c, "queued", map[string]interface{}{})
	})
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.NotContains(t, w.Body.String(), "meta")
}

func TestErrorUsesTypedStatus(t *testing.T) {
	w := serve(func(c *gin.Context) {
		Error(c, appErrors.Clone(appErrors.ErrNoSolution, "nothing placed"))
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "nothing placed")

	w = serve(func(c *gin.Context) {
		Error(c, errors.New("boom"))
	})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestAttachment(t *testing.T) {
	w := serve(func(c *gin.Context) {
		Attachment(c, "schedule.csv", "text/csv", []byte("a,b\n"))
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `attachment; filename="schedule.csv"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Equal(t, "a,b\n", w.Body.String())
}

package view

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewEngine(t *testing.T) {
	engine, err := NewEngine()
	assert.NoError(t, err, "Templates should parse without error")
	assert.NotNil(t, engine)
}

func TestRenderInterstitial(t *testing.T) {
	engine, err := NewEngine()
	assert.NoError(t, err)

	rr := httptest.NewRecorder()
	err = engine.Render(rr, "pages/interstitial.html", TemplateData{
		Title: "Rol onayı bekleniyor",
		Data: map[string]any{
			"Heading":       "Rol onayı bekleniyor",
			"Message":       "Hesabınız doğrulandı ancak henüz onaylanmış bir göreviniz yok.",
			"ShowLoginLink": false,
		},
	})
	assert.NoError(t, err)
	assert.True(t, strings.Contains(rr.Body.String(), "Rol onayı bekleniyor"))
	assert.Equal(t, "text/html; charset=utf-8", rr.Header().Get("Content-Type"))
}

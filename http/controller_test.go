package http

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type demoController struct {
	BaseController
}

func (p *demoController) Index(w http.ResponseWriter, r *http.Request) {}

func (p *demoController) GetUserName(w http.ResponseWriter, r *http.Request) {}

func (p *demoController) NotHandler(w http.ResponseWriter) {}

func TestReflectHandlers(t *testing.T) {
	handlers, err := ReflectHandlers(&demoController{})
	require.NoError(t, err)
	assert.Len(t, handlers, 2)
	assert.Contains(t, handlers, "index")
	assert.Contains(t, handlers, "get_user_name")

	var nilController *demoController
	_, err = ReflectHandlers(nilController)
	assert.Error(t, err)
}

func TestToUnderlineName(t *testing.T) {
	cases := map[string]string{
		"Index":   "index",
		"IncrBy":  "incr_by",
		"GetHTTP": "get_http",
		"ID":      "id",
		"lookup":  "lookup",
	}
	for name, want := range cases {
		assert.Equal(t, want, ToUnderlineName(name), name)
	}
}

func TestRegController(t *testing.T) {
	conf := NewConfig("")
	require.NoError(t, conf.RegController(&demoController{BaseController{Name: "demo", Path: "/demo"}}))
	assert.Contains(t, conf.handles, "/demo/index")
	assert.Contains(t, conf.handles, "/demo/get_user_name")
	assert.Error(t, conf.RegController(&demoController{BaseController{Name: "demo", Path: "/demo/"}}))
	assert.Error(t, conf.RegController(nil))
	assert.Error(t, conf.RegController(&BaseController{Path: "/empty/"}))
}

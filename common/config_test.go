package common

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var data = `
a: Easy!
b:
  c: 2
  d: [3, 4]
`

type conf struct {
	A string
	B struct {
		C int
		D []int `yaml:",flow"`
	}
}

func TestLoadYAML(t *testing.T) {
	config := conf{}
	err := LoadYAMl([]byte(data), &config)
	assert.Nil(t, err)
	assert.Equal(t, "Easy!", config.A)
	assert.Equal(t, 2, config.B.C)
	assert.Equal(t, 2, len(config.B.D))
	assert.Equal(t, []int{3, 4}, config.B.D)

	assert.NotNil(t, LoadYAMl(nil, &config))
}

type parseCounter struct {
	Name   string `yaml:"name"`
	parsed int
}

func (p *parseCounter) Parse() error {
	p.parsed++
	return nil
}

type ConfigTest struct {
	AppConfig `yaml:",inline"`
	Extra     *parseCounter `yaml:"extra"`
	Missing   *parseCounter `yaml:"missing"`
	hidden    *parseCounter
}

var appConfigData = `log:
  env: production
  level: info
  no_caller: true
runtime:
  maxprocs: 0
extra:
  name: x
`

func TestAppConfig(t *testing.T) {
	old := currentLogger()
	defer SetLogger(old)

	var appConfig ConfigTest
	err := LoadYAMl([]byte(appConfigData), &appConfig)
	require.NoError(t, err)
	require.NotNil(t, appConfig.LogConfig)
	assert.Equal(t, EnvProduction, appConfig.LogConfig.Env)
	assert.Equal(t, appConfig.LogConfig, appConfig.GetLogConfig())

	err = Parse(&appConfig)
	require.NoError(t, err)
	assert.Equal(t, "x", appConfig.Extra.Name)
	assert.Equal(t, 1, appConfig.Extra.parsed)
	assert.Nil(t, appConfig.Missing)
	assert.False(t, DebugEnabled())
}

type mapLoader map[string]string

func (p mapLoader) Load(configPath string) ([]byte, error) {
	return []byte(p[configPath]), nil
}

func (p mapLoader) Exist(configPath string) (bool, error) {
	_, ok := p[configPath]
	return ok, nil
}

func TestLoadConfigWithLoader(t *testing.T) {
	loader := mapLoader{
		"conf/a.yaml": "extra:\n  name: fromfile\n",
		"conf/b.yaml": "",
	}
	var appConfig ConfigTest
	err := LoadConfigWithLoader(loader, &appConfig, "runtime:\n  maxprocs: 0", "conf", "a.yaml", "b.yaml")
	require.NoError(t, err)
	assert.Equal(t, "fromfile", appConfig.Extra.Name)
	require.NotNil(t, appConfig.RuntimeConfig)

	t.Setenv("KCOUNTER_TEST_NAME", "fromenv")
	loader["conf/env.yaml"] = "extra:\n  name: ${KCOUNTER_TEST_NAME}\n"
	appConfig = ConfigTest{}
	require.NoError(t, LoadConfigWithLoader(loader, &appConfig, "", "conf", "env.yaml"))
	assert.Equal(t, "fromenv", appConfig.Extra.Name)

	loader["conf/typo.yaml"] = "extra:\n  nmae: x\n"
	assert.Error(t, LoadConfigWithLoader(loader, &appConfig, "", "conf", "typo.yaml"))

	assert.Equal(t, errInvalidConf, LoadConfigWithLoader(loader, &appConfig, "", "conf"))
	assert.NotNil(t, LoadConfigWithLoader(nil, &appConfig, "", "conf", "a.yaml"))
}

func TestConfigFileLoader(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "app.yaml")
	require.NoError(t, os.WriteFile(file, []byte(data), 0644))

	exist, err := FileLoader.Exist(file)
	assert.NoError(t, err)
	assert.True(t, exist)

	exist, err = FileLoader.Exist(dir)
	assert.NoError(t, err)
	assert.False(t, exist)

	exist, err = FileLoader.Exist(filepath.Join(dir, "none.yaml"))
	assert.NoError(t, err)
	assert.False(t, exist)

	content, err := FileLoader.Load(file)
	require.NoError(t, err)
	config := conf{}
	assert.NoError(t, LoadYAMl(content, &config))
	assert.Equal(t, "Easy!", config.A)
}

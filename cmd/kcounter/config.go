package main

import (
	"fmt"
	"path/filepath"

	c "github.com/d0ngw/kcounter/common"
	"github.com/d0ngw/kcounter/counter"
	"github.com/d0ngw/kcounter/http"
	"github.com/d0ngw/kcounter/plugins"
)

// AppConfig kcounter的配置
type AppConfig struct {
	c.AppConfig `yaml:",inline"`
	Counter     *counter.StoreConfig `yaml:"counter"`
	Plugins     *plugins.Config      `yaml:"plugins"`
	HTTP        *http.Config         `yaml:"http"`
}

// Parse implements Configurer
func (p *AppConfig) Parse() error {
	if p.Counter == nil {
		return fmt.Errorf("no counter config")
	}
	if p.Plugins == nil {
		p.Plugins = &plugins.Config{}
	}
	if p.HTTP == nil {
		p.HTTP = &http.Config{}
	}
	return c.Parse(p)
}

// loadConfig load the yaml config file, or use a file store of fileFlag when configFile is empty
func loadConfig(configFile, fileFlag, formatFlag string) (*AppConfig, error) {
	conf := &AppConfig{}
	if configFile != "" {
		if err := c.LoadConfig(conf, "", filepath.Dir(configFile), filepath.Base(configFile)); err != nil {
			return nil, fmt.Errorf("load config %s fail,err:%w", configFile, err)
		}
	} else {
		conf.Counter = &counter.StoreConfig{
			Backend: counter.BackendFile,
			File:    &counter.FileConfig{Path: fileFlag, Format: formatFlag},
		}
	}
	if err := conf.Parse(); err != nil {
		return nil, err
	}
	return conf, nil
}

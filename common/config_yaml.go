package common

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path"

	"gopkg.in/yaml.v3"
)

// LoadYAMl 将data中的YAML配置加载到到结构体target中,target中没有的配置项视为错误
func LoadYAMl(data []byte, target interface{}) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return fmt.Errorf("can't load yaml config from empty data")
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(target); err != nil && err != io.EOF {
		return err
	}
	return nil
}

// LoadConfig 从configDir目录下的多个path指定的YAML配置文件中加载配置
func LoadConfig(config Configurer, addonConfig string, configDir string, pathes ...string) (err error) {
	return LoadConfigWithLoader(FileLoader, config, addonConfig, configDir, pathes...)
}

// LoadConfigWithLoader 使用指定的加载器加载配置. addonConfig和各个文件的内容依次拼接,
// 其中的${VAR}会被替换为环境变量的值,未设置的环境变量替换为空
func LoadConfigWithLoader(loader ConfigLoader, config Configurer, addonConfig string, configDir string, pathes ...string) error {
	if loader == nil {
		return errors.New("no loader")
	}
	if len(pathes) == 0 && addonConfig == "" {
		return errInvalidConf
	}

	var content bytes.Buffer
	if addonConfig != "" {
		content.WriteString(addonConfig)
		content.WriteByte(LF)
	}
	for _, p := range pathes {
		p = path.Join(configDir, p)
		Infof("load conf from:%s", p)
		cnt, err := loader.Load(p)
		if err != nil {
			return err
		}
		if len(cnt) == 0 {
			Warnf("empty content in %s", p)
			continue
		}
		content.Write(cnt)
		content.WriteByte(LF)
	}
	return LoadYAMl([]byte(os.ExpandEnv(content.String())), config)
}

/*
Copyright 2022 Huawei Cloud Computing Technologies Co., Ltd.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

 http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package config

import (
	"errors"
	"os"
	"os/user"
	"path"
	"path/filepath"

	"github.com/BurntSushi/toml"
	itoml "github.com/influxdata/influxdb/toml"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

const envPrefix = "TSGRID"

type Validator interface {
	Validate() error
}

type Config interface {
	ApplyEnvOverrides(func(string) string) error
	Validate() error
	GetLogging() *Logger
	GetCommon() *Common
}

type App string

const (
	AppNode App = "node"
	AppCli  App = "cli"
)

func Parse(conf Config, path string) error {
	if path == "" {
		return nil
	}

	return fromTomlFile(conf, path)
}

func fromTomlFile(c Config, p string) error {
	content, err := os.ReadFile(path.Clean(p))
	if err != nil {
		return err
	}

	dec := unicode.BOMOverride(transform.Nop)
	content, _, err = transform.Bytes(dec, content)
	if err != nil {
		return err
	}
	return fromToml(c, string(content))
}

func fromToml(c Config, input string) error {
	_, err := toml.Decode(input, c)
	return err
}

// Common holds the identity of this process within the cluster.
type Common struct {
	NodeID    uint64 `toml:"node-id"`
	ClusterID string `toml:"cluster-id"`
	PidFile   string `toml:"pid-file"`
}

func NewCommon() *Common {
	return &Common{
		NodeID:    1,
		ClusterID: "tsgrid",
	}
}

func (c *Common) ApplyEnvOverrides(fn func(string) string) error {
	return itoml.ApplyEnvOverrides(fn, envPrefix, c)
}

func (c Common) Validate() error {
	if c.NodeID == 0 {
		return errors.New("common node-id must be positive")
	}
	return stringValidator{}.Validate([]stringValidatorItem{
		{"common cluster-id", c.ClusterID},
	})
}

// defaultDir is the base directory for logs and snapshots: the user's
// home directory, then $HOME, then the working directory, with ".tsgrid" appended.
func defaultDir() string {
	if u, err := user.Current(); err == nil && u.HomeDir != "" {
		return filepath.Join(u.HomeDir, ".tsgrid")
	}
	if home := os.Getenv("HOME"); home != "" {
		return filepath.Join(home, ".tsgrid")
	}
	wd, err := os.Getwd()
	if err != nil {
		return ".tsgrid"
	}
	return filepath.Join(wd, ".tsgrid")
}

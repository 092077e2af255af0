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

package run

import (
	"fmt"

	"github.com/tsgrid/tsgrid/app"
	"github.com/tsgrid/tsgrid/lib/config"
)

// NewCommand returns a new instance of Command.
func NewCommand(info app.ServerInfo) *app.Command {
	cmd := app.NewCommand()
	cmd.Info = info
	cmd.Logo = app.NODELOGO
	cmd.Version = info.FullVersion()
	cmd.Usage = fmt.Sprintf(app.RunUsage, info.App, "ts-"+string(info.App))
	cmd.Config = config.NewTSNode()
	cmd.NewServerFunc = NewServer
	return cmd
}

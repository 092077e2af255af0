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

package app

import (
	"fmt"
	"os"

	"github.com/VictoriaMetrics/VictoriaMetrics/lib/procutil"
	"github.com/spf13/cobra"
	"github.com/tsgrid/tsgrid/lib/config"
	"github.com/tsgrid/tsgrid/lib/errno"
	"github.com/tsgrid/tsgrid/lib/logger"
	"go.uber.org/zap"
)

// waitForSignal blocks "run" until the process is asked to stop.
var waitForSignal = procutil.WaitForSigterm

// Command represents the command executed by "ts-xxx run".
type Command struct {
	Logo          string
	Usage         string
	Pidfile       string
	Logger        *logger.Logger
	Info          ServerInfo
	Version       string
	Server        Server
	Config        config.Config
	NewServerFunc func(config.Config, ServerInfo, *logger.Logger) (Server, error)

	AfterOpen func()
}

func NewCommand() *Command {
	return &Command{
		Logger: logger.NewLogger(errno.ModuleUnknown),
	}
}

func (cmd *Command) Run(args ...string) error {
	usageFunc := func() { fmt.Fprintln(os.Stderr, cmd.Usage) }
	options, err := ParseFlags(usageFunc, args...)
	if err != nil {
		return err
	}
	return cmd.Start(options)
}

// Start loads the configuration, then creates and opens the server.
func (cmd *Command) Start(options Options) error {
	if cmd.Config == nil || cmd.NewServerFunc == nil {
		return fmt.Errorf("command %q has no server", cmd.Info.App)
	}

	err := cmd.InitConfig(cmd.Config, options.ConfigPath)
	if err != nil {
		return fmt.Errorf("parse config: %s", err)
	}

	cmd.Logger = logger.NewLogger(errno.ModuleUnknown)
	if lc := cmd.Config.GetLogging(); lc != nil {
		cmd.Logger.Info("logging to file", zap.String("file", lc.GetFileName()))
	}

	fmt.Fprint(os.Stdout, cmd.Logo)

	s, err := cmd.NewServerFunc(cmd.Config, cmd.Info, cmd.Logger)
	if err != nil {
		return fmt.Errorf("create server failed: %s", err)
	}

	if err := s.Open(); err != nil {
		return fmt.Errorf("open server: %s", err)
	}

	cmd.Server = s
	if cmd.AfterOpen != nil {
		cmd.AfterOpen()
	}

	pidfile := options.PIDFile
	if pidfile == "" && cmd.Config.GetCommon() != nil {
		pidfile = cmd.Config.GetCommon().PidFile
	}
	// Run successfully and write the PID file.
	if err = WritePIDFile(pidfile); err != nil {
		return fmt.Errorf("write pid file: %s", err)
	}
	cmd.Pidfile = pidfile

	return nil
}

func (cmd *Command) Close() error {
	defer RemovePIDFile(cmd.Pidfile)
	if cmd.Server != nil {
		return cmd.Server.Close()
	}
	return nil
}

func (cmd *Command) InitConfig(conf config.Config, path string) error {
	if err := config.Parse(conf, path); err != nil {
		return fmt.Errorf("parse config: %s", err)
	}

	if err := conf.ApplyEnvOverrides(os.Getenv); err != nil {
		return fmt.Errorf("apply env overrides: %s", err)
	}

	if lc := conf.GetLogging(); lc != nil {
		lc.SetApp(cmd.Info.App)
		logger.InitLogger(*lc)
	}

	if err := conf.Validate(); err != nil {
		return err
	}

	cmd.Config = conf
	return nil
}

// NewRootCommand builds the cobra tree shared by every binary:
// "run" (also the default) and "version".
func NewRootCommand(commands ...*Command) *cobra.Command {
	first := commands[0]
	name := "ts-" + string(first.Info.App)

	var options Options
	runE := func(*cobra.Command, []string) error {
		return serve(options, commands)
	}

	root := &cobra.Command{
		Use:           name,
		Short:         "tsgrid " + string(first.Info.App),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runE,
	}
	bindRunFlags(root, &options)
	root.SetUsageTemplate(fmt.Sprintf(MainUsage, name, name))

	run := &cobra.Command{
		Use:   "run",
		Short: "start with specified configuration",
		RunE:  runE,
	}
	bindRunFlags(run, &options)
	run.SetUsageTemplate(fmt.Sprintf(RunUsage, name, name))

	version := &cobra.Command{
		Use:   "version",
		Short: "display the tsgrid version",
		Run: func(c *cobra.Command, _ []string) {
			fmt.Fprintln(c.OutOrStdout(), first.Version)
		},
	}

	root.AddCommand(run, version)
	return root
}

func serve(options Options, commands []*Command) error {
	for _, command := range commands {
		if err := command.Start(options); err != nil {
			return err
		}
	}

	signal := waitForSignal()
	for _, command := range commands {
		app := string(command.Info.App)
		logger.GetLogger().Info(app+" service received shutdown signal", zap.Any("signal", signal))
		if err := command.Close(); err != nil {
			logger.GetLogger().Error(app+" shutdown failed", zap.Error(err))
			continue
		}
		logger.GetLogger().Info(app + " shutdown successfully!")
	}
	logger.CloseLogger()
	return nil
}

func Run(args []string, commands ...*Command) {
	if len(commands) == 0 {
		return
	}

	root := NewRootCommand(commands...)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

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

package logger_test

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsgrid/tsgrid/lib/config"
	"github.com/tsgrid/tsgrid/lib/errno"
	"github.com/tsgrid/tsgrid/lib/logger"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type LogLine struct {
	Level string
	Msg   string
	Errno string
	Color string
}

func initLogger(t *testing.T, level zapcore.Level) (string, string) {
	dir := t.TempDir()
	conf := config.NewLogger(config.AppNode)
	conf.Path = dir
	conf.Level = level

	logger.InitLogger(conf)

	return filepath.Join(dir, "node.log"), filepath.Join(dir, "node.error.log")
}

func TestLogger(t *testing.T) {
	filename, errFile := initLogger(t, zapcore.DebugLevel)

	errMessage := fmt.Sprintf("test error. %d", time.Now().UnixNano())
	infoMessage := fmt.Sprintf("test info. %d", time.Now().UnixNano())

	lg := logger.GetLogger()
	lg.Info(infoMessage)
	lg.Error(errMessage)
	logger.CloseLogger()

	assertFileContents(t, filename, []string{"info", "error"}, []string{infoMessage, errMessage})
	assertFileContents(t, errFile, []string{"error"}, []string{errMessage})
}

func TestModuleLoggerErrno(t *testing.T) {
	var codes []string
	logger.SetErrnoStatHandler(func(s string) {
		codes = append(codes, s)
	})
	defer logger.SetErrnoStatHandler(nil)

	filename, _ := initLogger(t, zapcore.DebugLevel)
	errno.SetNode(errno.NodeData)
	lg := logger.NewLogger(errno.ModuleCoordinator).With(zap.String("color", "red"))

	err := errno.NewError(errno.PathNotExist, "root.sg")
	messages := []string{"some error with errno", "some error with no errno", "some debug", "some info", "some warn"}
	lg.Error(messages[0], zap.Error(err))
	lg.Error(messages[1], zap.Error(errors.New("error")))
	lg.Debug(messages[2])
	lg.Info(messages[3])
	lg.Warn(messages[4])
	logger.CloseLogger()

	logs := assertFileContents(t, filename,
		[]string{"error", "error", "debug", "info", "warn"}, messages)

	expErrno := fmt.Sprintf("%d%02d%d%04d",
		errno.NodeData, errno.ModuleMeta, errno.LevelNotice, errno.PathNotExist)
	assert.Equal(t, []string{expErrno}, codes)
	assert.Equal(t, expErrno, logs[0].Errno)
	assert.Equal(t, "", logs[1].Errno)
	for _, l := range logs {
		assert.Equal(t, "red", l.Color)
	}
}

func TestLoggerLevel(t *testing.T) {
	filename, _ := initLogger(t, zapcore.InfoLevel)
	lg := logger.NewLogger(errno.ModuleNetwork)

	messages := []string{"some debug", "some info", "some warn"}
	lg.Debug(messages[0])
	lg.Info(messages[1])
	lg.Warn(messages[2])
	logger.CloseLogger()

	assertFileContents(t, filename, []string{"info", "warn"}, messages[1:])
}

func TestLoggerZapAndDebugLevel(t *testing.T) {
	filename, _ := initLogger(t, zapcore.DebugLevel)
	lg := logger.NewLogger(errno.ModuleQueryEngine).With(zap.String("color", "red"))
	assert.True(t, lg.IsDebugLevel())

	// the plain zap logger keeps the module logger's fields
	zap.NewStdLog(lg.GetZapLogger()).Print("from std log")
	logger.CloseLogger()

	logs := assertFileContents(t, filename, []string{"info"}, []string{"from std log"})
	assert.Equal(t, "red", logs[0].Color)

	initLogger(t, zapcore.InfoLevel)
	assert.False(t, lg.IsDebugLevel())
	logger.CloseLogger()
}

func TestSetLevel(t *testing.T) {
	require.NoError(t, logger.SetLevel("warn"))
	assert.Equal(t, zapcore.WarnLevel, logger.Alevel.Level())
	assert.Error(t, logger.SetLevel("verbose"))
	require.NoError(t, logger.SetLevel("info"))
}

func TestRaftLogger(t *testing.T) {
	conf := config.NewLogger(config.AppNode)
	conf.Path = t.TempDir()
	rl := logger.NewRaftLogger(conf)
	rl.Infof("term %d", 3)
	logger.CloseLogger()

	_, err := os.Stat(filepath.Join(conf.Path, config.DefaultRaftLoggerName+".log"))
	assert.NoError(t, err)
}

func assertFileContents(t *testing.T, file string, levels []string, messages []string) []*LogLine {
	logs, err := readLog(file)
	require.NoError(t, err)
	require.Len(t, logs, len(messages))

	for i, line := range logs {
		assert.Equal(t, levels[i], line.Level, "line %d", i+1)
		assert.Equal(t, messages[i], line.Msg, "line %d", i+1)
	}
	return logs
}

func readLog(file string) ([]*LogLine, error) {
	fp, err := os.OpenFile(file, os.O_RDONLY, 0644)
	if err != nil {
		return nil, err
	}
	defer fp.Close()

	reader := bufio.NewReader(fp)
	var ret []*LogLine
	for {
		line, _, err := reader.ReadLine()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		log := &LogLine{}
		if err := json.Unmarshal(line, log); err != nil {
			return nil, err
		}

		ret = append(ret, log)
	}
	return ret, nil
}

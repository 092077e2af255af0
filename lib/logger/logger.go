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

package logger

import (
	"fmt"
	"sync"

	"github.com/tsgrid/tsgrid/lib/errno"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var errnoStatHandler func(string)

// SetErrnoStatHandler registers a callback receiving every errno code that is logged.
func SetErrnoStatHandler(handler func(string)) {
	errnoStatHandler = handler
}

func stat(code string) {
	if errnoStatHandler != nil {
		errnoStatHandler(code)
	}
}

// Logger is a module scoped logger. Error fields holding an *errno.Error
// are expanded with the composite errno code.
type Logger struct {
	module errno.Module
	fields []zap.Field
}

var loggerPool sync.Map

func NewLogger(module errno.Module) *Logger {
	l, ok := loggerPool.Load(module)
	if ok {
		log, _ := l.(*Logger)
		return log
	}
	// ignore concurrent situation, repeat store same module logger
	log := &Logger{
		module: module,
	}
	loggerPool.Store(module, log)
	return log
}

// With returns a child logger carrying the given fields on every line.
func (l *Logger) With(fields ...zap.Field) *Logger {
	child := &Logger{
		module: l.module,
		fields: make([]zap.Field, 0, len(l.fields)+len(fields)),
	}
	child.fields = append(child.fields, l.fields...)
	child.fields = append(child.fields, fields...)
	return child
}

func (l *Logger) SetModule(m errno.Module) {
	l.module = m
}

func (l *Logger) zap() *zap.Logger {
	return GetLogger().WithOptions(zap.AddCallerSkip(1))
}

func (l *Logger) merge(fields []zap.Field) []zap.Field {
	if len(l.fields) == 0 {
		return fields
	}
	merged := make([]zap.Field, 0, len(l.fields)+len(fields))
	merged = append(merged, l.fields...)
	return append(merged, fields...)
}

func (l *Logger) Error(msg string, fields ...zap.Field) {
	l.zap().Error(msg, l.rewriteFields(l.merge(fields))...)
}

func (l *Logger) Info(msg string, fields ...zap.Field) {
	l.zap().Info(msg, l.merge(fields)...)
}

func (l *Logger) Warn(msg string, fields ...zap.Field) {
	l.zap().Warn(msg, l.merge(fields)...)
}

func (l *Logger) Debug(msg string, fields ...zap.Field) {
	if level > zapcore.DebugLevel {
		return
	}
	l.zap().Debug(msg, l.merge(fields)...)
}

func (l *Logger) GetZapLogger() *zap.Logger {
	return GetLogger().With(l.fields...)
}

func (l *Logger) IsDebugLevel() bool {
	return level == zap.DebugLevel
}

func (l *Logger) rewriteFields(fields []zap.Field) []zap.Field {
	for i := range fields {
		if fields[i].Key != "error" {
			continue
		}

		tmp, ok := fields[i].Interface.(*errno.Error)
		if !ok || tmp == nil {
			continue
		}

		code := l.makeErrno(tmp)
		stat(code)

		fields = append(fields, zap.String("errno", code))
		if tmp.Level().LogStack() {
			fields = append(fields, zap.String("stack", string(tmp.Stack())))
		}
		return fields
	}

	return fields
}

func (l *Logger) makeErrno(err *errno.Error) string {
	lv := err.Level() % (errno.LevelFatal + 1)
	module := err.Module()
	if module == errno.ModuleUnknown {
		module = l.module
	}

	return fmt.Sprintf("%d%02d%d%04d", errno.GetNode(), module, lv, err.Errno())
}

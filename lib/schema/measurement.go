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

package schema

import (
	"strings"
)

type DataType int8

const (
	Unknown DataType = iota
	Boolean
	Int32
	Int64
	Float
	Double
	Text
)

var dataTypeNames = map[DataType]string{
	Unknown: "UNKNOWN",
	Boolean: "BOOLEAN",
	Int32:   "INT32",
	Int64:   "INT64",
	Float:   "FLOAT",
	Double:  "DOUBLE",
	Text:    "TEXT",
}

func (t DataType) String() string {
	if s, ok := dataTypeNames[t]; ok {
		return s
	}
	return dataTypeNames[Unknown]
}

// ParseDataType accepts the upper or lower case name of a data type.
func ParseDataType(s string) (DataType, bool) {
	for t, name := range dataTypeNames {
		if t != Unknown && strings.EqualFold(name, s) {
			return t, true
		}
	}
	return Unknown, false
}

type MeasurementSchema struct {
	Measurement string            `json:"measurement"`
	Type        DataType          `json:"type"`
	Encoding    string            `json:"encoding,omitempty"`
	Compressor  string            `json:"compressor,omitempty"`
	Alias       string            `json:"alias,omitempty"`
	Props       map[string]string `json:"props,omitempty"`
}

func NewMeasurementSchema(measurement string, typ DataType) MeasurementSchema {
	return MeasurementSchema{Measurement: measurement, Type: typ}
}

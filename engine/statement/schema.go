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

package statement

import (
	"github.com/tsgrid/tsgrid/lib/metapath"
	"github.com/tsgrid/tsgrid/lib/schema"
)

type CreateTimeSeriesStatement struct {
	writeStatement
	Path       metapath.PartialPath
	DataType   schema.DataType
	Encoding   string
	Compressor string
	Alias      string
	Props      map[string]string
	Tags       map[string]string
	Attributes map[string]string
}

func (*CreateTimeSeriesStatement) Kind() Kind { return CreateTimeSeriesKind }

type CreateAlignedTimeSeriesStatement struct {
	writeStatement
	Device       metapath.PartialPath
	Measurements []string
	DataTypes    []schema.DataType
	Encodings    []string
	Compressors  []string
	Aliases      []string
}

func (*CreateAlignedTimeSeriesStatement) Kind() Kind { return CreateAlignedTimeSeriesKind }

type AlterType uint8

const (
	AlterRename AlterType = iota
	AlterSet
	AlterDrop
	AlterAddTags
	AlterAddAttributes
	AlterUpsert
)

type AlterTimeSeriesStatement struct {
	writeStatement
	Path       metapath.PartialPath
	AlterType  AlterType
	AlterMap   map[string]string
	Alias      string
	Tags       map[string]string
	Attributes map[string]string
}

func (*AlterTimeSeriesStatement) Kind() Kind { return AlterTimeSeriesKind }

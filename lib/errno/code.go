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

package errno

// http
const (
	HttpBadRequest       = 6400
	HttpNotFound         = 6404
	HttpMethodNotAllowed = 6405
)

// common error codes
const (
	InternalError      = 9001
	InvalidDataType    = 9002
	RecoverPanic       = 9003
	UnknownMessageType = 9004

	// BuiltInError errors returned by built-in functions
	BuiltInError = 9007

	// ThirdPartyError errors returned by third-party packages
	ThirdPartyError = 9008

	OperationInterrupted = 9012
)

// network module error codes
const (
	NoConnectionAvailable = 1001
	NoNodeAvailable       = 1002
	InvalidDataSize       = 1009
	ConnectionClosed      = 1011
	PoolClosed            = 1018
	InvalidAddress        = 1022
	RemoteError           = 1206
	RemoteMetaCallFailed  = 1210
	FrameTooLarge         = 1211
	RequestRateLimited    = 1212
)

// schema (meta) error codes
const (
	IllegalPath            = 3001
	PathNotExist           = 3002
	StorageGroupNotSet     = 3003
	StorageGroupAlreadySet = 3004
	TimeseriesAlreadyExist = 3005
	MeasurementNotExist    = 3006
	SnapshotCorrupted      = 3007
)

// consistency error codes
const (
	ConsistencyCheckFailed = 4001
	NoLeader               = 4002
)

// coordinator error codes
const (
	MetaAggregateFailed = 5001
	NoPartitionGroup    = 5002
	UnknownGroup        = 5003
)

// query engine error codes
const (
	PlanNodeMisuse            = 6001
	UnsupportedStatement      = 6002
	AuthorPlanBuildFailed     = 6003
	InvalidFragmentInstanceID = 6004
	InvalidQueryID            = 6005
	SchemaNotFound            = 6006
	InvalidWriteStatement     = 6007
)

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

type Message struct {
	format string
	level  Level
	module Module
}

func newMessage(format string, module Module, level Level) *Message {
	return &Message{
		format: format,
		level:  level,
		module: module,
	}
}

func newNoticeMessage(format string, module Module) *Message {
	return newMessage(format, module, LevelNotice)
}

func newWarnMessage(format string, module Module) *Message {
	return newMessage(format, module, LevelWarn)
}

func newFatalMessage(format string, module Module) *Message {
	return newMessage(format, module, LevelFatal)
}

var unknownMessage = newNoticeMessage("unknown error", ModuleUnknown)

// When an error message is initialized, the level and module corresponding to the error code are bound
// If the module to which the error code belongs cannot be determined during initialization, set to ModuleUnknown
// Can set module when recording logs
var messageMap = map[Errno]*Message{
	// common error codes
	InternalError:        newWarnMessage("%v", ModuleUnknown),
	InvalidDataType:      newWarnMessage("invalid data type, exp: %s, got: %s", ModuleUnknown),
	RecoverPanic:         newFatalMessage("runtime panic: %v", ModuleUnknown),
	UnknownMessageType:   newFatalMessage("unknown message type: %v", ModuleUnknown),
	OperationInterrupted: newWarnMessage("%s interrupted while waiting: %v", ModuleUnknown),

	// http
	HttpBadRequest:       newNoticeMessage("bad request: %v", ModuleHTTP),
	HttpNotFound:         newNoticeMessage("not found: %s", ModuleHTTP),
	HttpMethodNotAllowed: newNoticeMessage("method not allowed: %s", ModuleHTTP),

	// network module error codes
	NoConnectionAvailable: newFatalMessage("no connections available, node: %v, %v", ModuleNetwork),
	NoNodeAvailable:       newFatalMessage("no node available, node: %v", ModuleNetwork),
	InvalidDataSize:       newFatalMessage("expect write with data length %d, but %d", ModuleNetwork),
	ConnectionClosed:      newWarnMessage("connection closed", ModuleNetwork),
	PoolClosed:            newWarnMessage("try get connection from a closed pool", ModuleNetwork),
	InvalidAddress:        newNoticeMessage("invalid address: %s", ModuleNetwork),
	RemoteError:           newWarnMessage("remote error: %v", ModuleNetwork),
	RemoteMetaCallFailed:  newWarnMessage("%s on node %s failed: %v", ModuleNetwork),
	FrameTooLarge:         newWarnMessage("frame of %d bytes exceeds the limit %d", ModuleNetwork),
	RequestRateLimited:    newNoticeMessage("request rejected by rate limit", ModuleNetwork),

	// schema error codes
	IllegalPath:            newNoticeMessage("%s is not a legal path", ModuleMeta),
	PathNotExist:           newNoticeMessage("path %s does not exist", ModuleMeta),
	StorageGroupNotSet:     newNoticeMessage("storage group is not set for current seriesPath: [%s]", ModuleMeta),
	StorageGroupAlreadySet: newNoticeMessage("%s has already been set to storage group", ModuleMeta),
	TimeseriesAlreadyExist: newNoticeMessage("path %s already exists", ModuleMeta),
	MeasurementNotExist:    newNoticeMessage("measurement %s does not exist under %s", ModuleMeta),
	SnapshotCorrupted:      newFatalMessage("schema snapshot is corrupted: %v", ModuleMeta),

	// consistency error codes
	ConsistencyCheckFailed: newWarnMessage("check consistency failed, applied index %d is behind leader commit %d", ModuleConsistency),
	NoLeader:               newWarnMessage("no leader found for group %s", ModuleConsistency),

	// coordinator error codes
	MetaAggregateFailed: newWarnMessage("%s failed on at least one partition group: %v", ModuleCoordinator),
	NoPartitionGroup:    newWarnMessage("no partition group for storage group %s", ModulePartition),
	UnknownGroup:        newWarnMessage("node is not a member of group %s", ModuleCoordinator),

	// query engine error codes
	PlanNodeMisuse:            newFatalMessage("%s: %s", ModuleQueryEngine),
	UnsupportedStatement:      newWarnMessage("unsupported statement %s", ModuleQueryEngine),
	AuthorPlanBuildFailed:     newWarnMessage("build author plan of %s failed: %v", ModuleQueryEngine),
	InvalidFragmentInstanceID: newNoticeMessage("invalid fragment instance id %q", ModuleQueryEngine),
	InvalidQueryID:            newNoticeMessage("invalid query id %q", ModuleQueryEngine),
	SchemaNotFound:            newWarnMessage("measurement schema of %s.%s not found", ModuleQueryEngine),
	InvalidWriteStatement:     newNoticeMessage("invalid %s: %s", ModuleQueryEngine),
}

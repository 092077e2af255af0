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
)

// AuthorType is the kind of a user or role administration statement.
type AuthorType uint8

const (
	CreateUser AuthorType = iota
	CreateRole
	DropUser
	DropRole
	GrantUser
	GrantRole
	GrantRoleToUser
	RevokeUser
	RevokeRole
	RevokeRoleFromUser
	UpdateUser
	ListUser
	ListRole
	ListUserPrivilege
	ListRolePrivilege
	ListUserPrivilegeOnPath
	ListRolePrivilegeOnPath
	ListUserRoles
	ListRoleUsers
)

var authorTypeNames = [...]string{
	CreateUser:              "CREATE_USER",
	CreateRole:              "CREATE_ROLE",
	DropUser:                "DROP_USER",
	DropRole:                "DROP_ROLE",
	GrantUser:               "GRANT_USER",
	GrantRole:               "GRANT_ROLE",
	GrantRoleToUser:         "GRANT_ROLE_TO_USER",
	RevokeUser:              "REVOKE_USER",
	RevokeRole:              "REVOKE_ROLE",
	RevokeRoleFromUser:      "REVOKE_ROLE_FROM_USER",
	UpdateUser:              "UPDATE_USER",
	ListUser:                "LIST_USER",
	ListRole:                "LIST_ROLE",
	ListUserPrivilege:       "LIST_USER_PRIVILEGE",
	ListRolePrivilege:       "LIST_ROLE_PRIVILEGE",
	ListUserPrivilegeOnPath: "LIST_USER_PRIVILEGE_ON_PATH",
	ListRolePrivilegeOnPath: "LIST_ROLE_PRIVILEGE_ON_PATH",
	ListUserRoles:           "LIST_USER_ROLES",
	ListRoleUsers:           "LIST_ROLE_USERS",
}

// AllAuthorTypes lists every administration kind.
func AllAuthorTypes() []AuthorType {
	out := make([]AuthorType, len(authorTypeNames))
	for i := range authorTypeNames {
		out[i] = AuthorType(i)
	}
	return out
}

func (t AuthorType) String() string {
	if int(t) < len(authorTypeNames) {
		return authorTypeNames[t]
	}
	return "UNKNOWN"
}

// IsQuery reports whether the kind only lists users, roles or privileges.
func (t AuthorType) IsQuery() bool {
	return t >= ListUser
}

type AuthorStatement struct {
	Type        AuthorType
	UserName    string
	RoleName    string
	Password    string
	NewPassword string
	Privileges  []string
	NodeName    metapath.PartialPath
}

func (*AuthorStatement) Kind() Kind { return AuthorKind }

// IsQuery is false for every kind. Listing kinds are executed by the
// authority manager and never reach the query optimizers.
func (*AuthorStatement) IsQuery() bool { return false }

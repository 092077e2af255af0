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

package executor

import (
	"fmt"
	"strings"

	mapset "github.com/deckarep/golang-set"
	"github.com/tsgrid/tsgrid/engine/hybridqp"
	"github.com/tsgrid/tsgrid/engine/statement"
	"github.com/tsgrid/tsgrid/lib/errno"
	"github.com/tsgrid/tsgrid/lib/metapath"
	"golang.org/x/crypto/bcrypt"
)

const (
	minNameLength     = 4
	minPasswordLength = 4
	// bcrypt ignores everything past 72 bytes.
	maxPasswordLength = 72
)

var privileges = mapset.NewSet(
	"SET_STORAGE_GROUP", "CREATE_TIMESERIES", "INSERT_TIMESERIES", "READ_TIMESERIES",
	"DELETE_TIMESERIES", "CREATE_USER", "DELETE_USER", "MODIFY_PASSWORD", "LIST_USER",
	"GRANT_USER_PRIVILEGE", "REVOKE_USER_PRIVILEGE", "GRANT_USER_ROLE", "REVOKE_USER_ROLE",
	"CREATE_ROLE", "DELETE_ROLE", "LIST_ROLE", "GRANT_ROLE_PRIVILEGE", "REVOKE_ROLE_PRIVILEGE",
	"ALL",
)

// AuthorNode carries one user or role administration request. Passwords
// only travel as bcrypt hashes.
type AuthorNode struct {
	planNodeBase
	AuthorType      statement.AuthorType
	UserName        string
	RoleName        string
	PasswordHash    string
	NewPasswordHash string
	Privileges      []string
	NodeName        metapath.PartialPath
}

// NewAuthorNode validates stmt and hashes its passwords. Every failure is
// an AuthorPlanBuildFailed error.
func NewAuthorNode(id hybridqp.PlanNodeID, stmt *statement.AuthorStatement) (*AuthorNode, error) {
	n := &AuthorNode{
		planNodeBase: newPlanNodeBase(id, AuthorNodeType, hybridqp.NoChild),
		AuthorType:   stmt.Type,
		UserName:     stmt.UserName,
		RoleName:     stmt.RoleName,
		NodeName:     stmt.NodeName,
	}
	if err := n.init(stmt); err != nil {
		return nil, errno.NewError(errno.AuthorPlanBuildFailed, stmt.Type, err).SetCause(err)
	}
	return n, nil
}

func (n *AuthorNode) init(stmt *statement.AuthorStatement) error {
	var err error
	switch stmt.Type {
	case statement.CreateUser:
		if err = checkName("user", stmt.UserName); err != nil {
			return err
		}
		n.PasswordHash, err = encryptPassword(stmt.Password)
	case statement.UpdateUser:
		if err = checkName("user", stmt.UserName); err != nil {
			return err
		}
		n.NewPasswordHash, err = encryptPassword(stmt.NewPassword)
	case statement.DropUser, statement.ListUserPrivilege, statement.ListUserRoles:
		err = checkName("user", stmt.UserName)
	case statement.CreateRole, statement.DropRole, statement.ListRolePrivilege, statement.ListRoleUsers:
		err = checkName("role", stmt.RoleName)
	case statement.GrantUser, statement.RevokeUser:
		if err = checkName("user", stmt.UserName); err != nil {
			return err
		}
		n.Privileges, err = checkPrivileges(stmt.Privileges, stmt.NodeName)
	case statement.GrantRole, statement.RevokeRole:
		if err = checkName("role", stmt.RoleName); err != nil {
			return err
		}
		n.Privileges, err = checkPrivileges(stmt.Privileges, stmt.NodeName)
	case statement.GrantRoleToUser, statement.RevokeRoleFromUser:
		if err = checkName("user", stmt.UserName); err != nil {
			return err
		}
		err = checkName("role", stmt.RoleName)
	case statement.ListUserPrivilegeOnPath:
		if err = checkName("user", stmt.UserName); err != nil {
			return err
		}
		err = checkNodeName(stmt.NodeName)
	case statement.ListRolePrivilegeOnPath:
		if err = checkName("role", stmt.RoleName); err != nil {
			return err
		}
		err = checkNodeName(stmt.NodeName)
	case statement.ListUser, statement.ListRole:
	default:
		err = fmt.Errorf("unknown author type %d", stmt.Type)
	}
	return err
}

func checkName(kind, name string) error {
	if len(name) < minNameLength || strings.ContainsAny(name, " \t") {
		return fmt.Errorf("%s name %q must have at least %d characters and no spaces", kind, name, minNameLength)
	}
	return nil
}

func checkNodeName(p metapath.PartialPath) error {
	if p.IsEmpty() || p.Node(0) != metapath.Root {
		return fmt.Errorf("privilege path %q must start with %s", p, metapath.Root)
	}
	return nil
}

func checkPrivileges(names []string, path metapath.PartialPath) ([]string, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("no privilege given")
	}
	if err := checkNodeName(path); err != nil {
		return nil, err
	}
	out := make([]string, len(names))
	for i, p := range names {
		out[i] = strings.ToUpper(strings.TrimSpace(p))
		if !privileges.Contains(out[i]) {
			return nil, fmt.Errorf("unknown privilege %q", p)
		}
	}
	return out, nil
}

func encryptPassword(pwd string) (string, error) {
	if len(pwd) < minPasswordLength || len(pwd) > maxPasswordLength {
		return "", fmt.Errorf("password must have %d to %d bytes", minPasswordLength, maxPasswordLength)
	}
	bytes, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.MinCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// CheckPassword reports whether pwd matches the password of a CreateUser
// or the new password of an UpdateUser node.
func (n *AuthorNode) CheckPassword(pwd string) bool {
	hash := n.PasswordHash
	if n.AuthorType == statement.UpdateUser {
		hash = n.NewPasswordHash
	}
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pwd)) == nil
}

func (n *AuthorNode) OutputColumns() []string {
	switch n.AuthorType {
	case statement.ListUser, statement.ListRoleUsers:
		return []string{"user"}
	case statement.ListRole, statement.ListUserRoles:
		return []string{"role"}
	case statement.ListUserPrivilege, statement.ListRolePrivilege,
		statement.ListUserPrivilegeOnPath, statement.ListRolePrivilegeOnPath:
		return []string{"privilege"}
	}
	return nil
}

func (n *AuthorNode) Clone() hybridqp.QueryNode {
	c := *n
	c.planNodeBase = n.clone()
	return &c
}

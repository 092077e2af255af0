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

package executor_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsgrid/tsgrid/engine/executor"
	"github.com/tsgrid/tsgrid/engine/hybridqp"
	"github.com/tsgrid/tsgrid/engine/statement"
	"github.com/tsgrid/tsgrid/lib/errno"
	"github.com/tsgrid/tsgrid/lib/metapath"
)

func validAuthor(typ statement.AuthorType) *statement.AuthorStatement {
	return &statement.AuthorStatement{
		Type:        typ,
		UserName:    "alice",
		RoleName:    "admin",
		Password:    "secret1",
		NewPassword: "secret2",
		Privileges:  []string{"read_timeseries", " INSERT_TIMESERIES"},
		NodeName:    metapath.MustParse("root.sg.**"),
	}
}

func TestAuthorNode_AllTypes(t *testing.T) {
	ctx := hybridqp.NewQueryContext("q", "")
	for _, typ := range statement.AllAuthorTypes() {
		n, err := executor.NewAuthorNode(ctx.GenPlanNodeID(), validAuthor(typ))
		require.NoError(t, err, typ.String())
		assert.Equal(t, typ, n.AuthorType)
		assert.Equal(t, typ.IsQuery(), len(n.OutputColumns()) == 1, typ.String())
		assert.Equal(t, executor.AuthorNodeType, n.Type())
	}
}

func TestAuthorNode_Passwords(t *testing.T) {
	ctx := hybridqp.NewQueryContext("q", "")
	n, err := executor.NewAuthorNode(ctx.GenPlanNodeID(), validAuthor(statement.CreateUser))
	require.NoError(t, err)
	assert.NotEqual(t, "secret1", n.PasswordHash)
	assert.True(t, strings.HasPrefix(n.PasswordHash, "$2"))
	assert.True(t, n.CheckPassword("secret1"))
	assert.False(t, n.CheckPassword("secret2"))

	n, err = executor.NewAuthorNode(ctx.GenPlanNodeID(), validAuthor(statement.UpdateUser))
	require.NoError(t, err)
	assert.Empty(t, n.PasswordHash)
	assert.True(t, n.CheckPassword("secret2"))

	n, err = executor.NewAuthorNode(ctx.GenPlanNodeID(), validAuthor(statement.GrantUser))
	require.NoError(t, err)
	assert.Equal(t, []string{"READ_TIMESERIES", "INSERT_TIMESERIES"}, n.Privileges)
	assert.False(t, n.CheckPassword("secret1"))
}

func TestAuthorNode_Invalid(t *testing.T) {
	ctx := hybridqp.NewQueryContext("q", "")
	cases := map[string]func(s *statement.AuthorStatement){
		"short password": func(s *statement.AuthorStatement) { s.Type = statement.CreateUser; s.Password = "abc" },
		"long password":  func(s *statement.AuthorStatement) { s.Type = statement.CreateUser; s.Password = strings.Repeat("x", 73) },
		"new password":   func(s *statement.AuthorStatement) { s.Type = statement.UpdateUser; s.NewPassword = "" },
		"user name":      func(s *statement.AuthorStatement) { s.Type = statement.DropUser; s.UserName = "a b c d" },
		"role name":      func(s *statement.AuthorStatement) { s.Type = statement.CreateRole; s.RoleName = "ad" },
		"no privilege":   func(s *statement.AuthorStatement) { s.Type = statement.GrantRole; s.Privileges = nil },
		"bad privilege":  func(s *statement.AuthorStatement) { s.Type = statement.GrantUser; s.Privileges = []string{"FLY"} },
		"bad path":       func(s *statement.AuthorStatement) { s.Type = statement.RevokeUser; s.NodeName = metapath.PartialPath{} },
		"grant role":     func(s *statement.AuthorStatement) { s.Type = statement.GrantRoleToUser; s.RoleName = "" },
		"on path":        func(s *statement.AuthorStatement) { s.Type = statement.ListRolePrivilegeOnPath; s.NodeName = metapath.New("sg") },
		"unknown":        func(s *statement.AuthorStatement) { s.Type = statement.AuthorType(100) },
	}
	for name, mutate := range cases {
		stmt := validAuthor(statement.CreateUser)
		mutate(stmt)
		n, err := executor.NewAuthorNode(ctx.GenPlanNodeID(), stmt)
		assert.Nil(t, n, name)
		require.Error(t, err, name)
		assert.True(t, errno.Equal(err, errno.AuthorPlanBuildFailed), name)
		assert.Error(t, errors.Unwrap(err), name)
	}
}

/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package auth gates access to the editor and the template server.
// The editor only asks a Gate whether a user is present; the server
// issues and checks HMAC signed bearer tokens.
package auth

// User is the signed-in principal.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Gate reports the authentication state.
type Gate interface {
	CurrentUser() (User, bool)
	Loading() bool
}

// ShouldRedirect reports whether the editor must send the user to sign in:
// the gate has finished loading and there is no user.
func ShouldRedirect(g Gate) bool {
	if g == nil {
		return true
	}
	if g.Loading() {
		return false
	}
	_, ok := g.CurrentUser()
	return !ok
}

// StaticGate is a fixed Gate, used for local sessions and tests.
type StaticGate struct {
	User      *User
	IsLoading bool
}

func (g StaticGate) CurrentUser() (User, bool) {
	if g.User == nil {
		return User{}, false
	}
	return *g.User, true
}

func (g StaticGate) Loading() bool { return g.IsLoading }

// LocalUser is the gate of a desktop session: always signed in as name.
func LocalUser(name string) Gate {
	if name == "" {
		name = "local"
	}
	return StaticGate{User: &User{ID: name, Name: name}}
}

// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package mattermost

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"

	"github.com/mattermost/mattermost/server/public/model"
)

// endpointCall records which API endpoints were hit during a test.
type endpointCall struct {
	Method string
	Path   string
	Body   string
}

// fakeMM is a test helper that wraps an httptest.Server simulating the
// Mattermost API. It records calls and provides canned responses.
type fakeMM struct {
	Server *httptest.Server

	mu    sync.Mutex
	calls []endpointCall
	posts []*model.Post

	// Users is the ordered user list served by GET /users.
	Users []*model.User
	// TokenToUser maps bearer tokens to user IDs for GetMe auth.
	TokenToUser map[string]string
	// FailEndpoints causes specific path prefixes to return 500.
	FailEndpoints map[string]bool
}

func newFakeMM() *fakeMM {
	f := &fakeMM{
		TokenToUser:   make(map[string]string),
		FailEndpoints: make(map[string]bool),
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.handler))
	return f
}

func (f *fakeMM) Close() {
	f.Server.Close()
}

func (f *fakeMM) config() Config {
	return Config{ServerURL: f.Server.URL, Token: "bot-token"}
}

func (f *fakeMM) addUser(u *model.User) *model.User {
	if u.Id == "" {
		u.Id = model.NewId()
	}
	f.Users = append(f.Users, u)
	return u
}

func (f *fakeMM) record(method, path, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, endpointCall{Method: method, Path: path, Body: body})
}

func (f *fakeMM) Calls() []endpointCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]endpointCall, len(f.calls))
	copy(cp, f.calls)
	return cp
}

func (f *fakeMM) CallCount(method, path string) int {
	n := 0
	for _, c := range f.Calls() {
		if c.Method == method && strings.Contains(c.Path, path) {
			n++
		}
	}
	return n
}

func (f *fakeMM) Posts() []*model.Post {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]*model.Post, len(f.posts))
	copy(cp, f.posts)
	return cp
}

func (f *fakeMM) resolveToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	for tok, uid := range f.TokenToUser {
		if auth == "BEARER "+tok || auth == "Bearer "+tok {
			return uid
		}
	}
	return ""
}

func (f *fakeMM) userByID(id string) *model.User {
	for _, u := range f.Users {
		if u.Id == id {
			return u
		}
	}
	return nil
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"message": msg, "status_code": status})
}

func (f *fakeMM) handler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.record(r.Method, r.URL.Path, string(body))

	for prefix := range f.FailEndpoints {
		if strings.Contains(r.URL.Path, prefix) {
			writeError(w, http.StatusInternalServerError, "fake error")
			return
		}
	}

	path := r.URL.Path
	switch {
	// GET /api/v4/users/me
	case r.Method == "GET" && path == "/api/v4/users/me":
		uid := f.resolveToken(r)
		if uid == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if u := f.userByID(uid); u != nil {
			_ = json.NewEncoder(w).Encode(u)
			return
		}
		writeError(w, http.StatusNotFound, "user not found")

	// GET /api/v4/users?page=&per_page=
	case r.Method == "GET" && path == "/api/v4/users":
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
		if perPage <= 0 {
			perPage = 60
		}
		start := min(page*perPage, len(f.Users))
		end := min(start+perPage, len(f.Users))
		_ = json.NewEncoder(w).Encode(f.Users[start:end])

	// GET /api/v4/users/email/{email}
	case r.Method == "GET" && strings.HasPrefix(path, "/api/v4/users/email/"):
		email := path[len("/api/v4/users/email/"):]
		for _, u := range f.Users {
			if strings.EqualFold(u.Email, email) {
				_ = json.NewEncoder(w).Encode(u)
				return
			}
		}
		writeError(w, http.StatusNotFound, "user not found")

	// POST /api/v4/channels/direct
	case r.Method == "POST" && path == "/api/v4/channels/direct":
		var ids []string
		_ = json.Unmarshal(body, &ids)
		if len(ids) != 2 {
			writeError(w, http.StatusBadRequest, "need two user ids")
			return
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(&model.Channel{
			Id:   "dm-" + ids[1],
			Type: model.ChannelTypeDirect,
			Name: model.GetDMNameFromIds(ids[0], ids[1]),
		})

	// POST /api/v4/posts
	case r.Method == "POST" && path == "/api/v4/posts":
		var post model.Post
		_ = json.Unmarshal(body, &post)
		post.Id = "created-post-id"
		f.mu.Lock()
		f.posts = append(f.posts, &post)
		f.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(&post)

	default:
		writeError(w, http.StatusNotFound, "not found: "+path)
	}
}

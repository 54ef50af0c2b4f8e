package api

import "github.com/xinkaiwang/swmr/libs/swmr/lazywriter"

// SessionHeader carries the caller's session id. Responses echo the id actually used.
const SessionHeader = "X-Session-Id"

// SetValueRequest is the body of POST /api/prefs/{id}
type SetValueRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type SetValueResponse struct {
	Id  string `json:"id"`
	Key string `json:"key"`
}

type GetValueResponse struct {
	Id    string `json:"id"`
	Key   string `json:"key"`
	Value string `json:"value"`
}

type EntriesResponse struct {
	Id      string            `json:"id"`
	Entries map[string]string `json:"entries"`
}

type ClearResponse struct {
	Id string `json:"id"`
}

// StatusResponse is the operator view of one prefs grain.
type StatusResponse struct {
	Id         string            `json:"id"`
	LazyWriter lazywriter.Status `json:"lazy_writer"`
}

type PingResponse struct {
	Version string `json:"version"`
	Grains  int    `json:"grains"`
	Nodes   int    `json:"nodes"`
}

// ListResponse is GET /api/prefs: ids of persisted prefs grains.
type ListResponse struct {
	Ids []string `json:"ids"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Msg   string `json:"msg"`
	Code  string `json:"code"`
}

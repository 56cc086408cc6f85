package node

import (
	"encoding/base64"
	"time"
)

// Request/response bodies for the shard HTTP API. Members and keys are
// opaque byte sequences; encoding/json carries []byte as base64.

type MembersResponse struct {
	Members [][]byte `json:"members"`
}

type MembersRequest struct {
	Members [][]byte `json:"members"`
}

type AddResponse struct {
	Added int64 `json:"added"`
}

type RemoveResponse struct {
	Removed int64 `json:"removed"`
}

type MemberRequest struct {
	Member []byte `json:"member"`
}

type ContainsResponse struct {
	Contains bool `json:"contains"`
}

type ExistsResponse struct {
	Exists bool `json:"exists"`
}

type CardResponse struct {
	Card int `json:"card"`
}

type MultiKeyRequest struct {
	Op   string   `json:"op"`
	Keys [][]byte `json:"keys"`
}

type MultiKeyStoreRequest struct {
	Op   string   `json:"op"`
	Dest []byte   `json:"dest"`
	Keys [][]byte `json:"keys"`
}

type StoreResponse struct {
	Stored int64 `json:"stored"`
}

type MoveRequest struct {
	Src    []byte `json:"src"`
	Dest   []byte `json:"dest"`
	Member []byte `json:"member"`
}

type MoveResponse struct {
	Moved bool `json:"moved"`
}

type InfoResponse struct {
	PID  int       `json:"pid"`
	Now  time.Time `json:"now"`
	Keys int       `json:"keys"`
}

// EncodeKey renders a binary key for use in a URL path.
func EncodeKey(key []byte) string {
	return base64.RawURLEncoding.EncodeToString(key)
}

// DecodeKey reverses EncodeKey.
func DecodeKey(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(s)
}

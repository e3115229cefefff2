// Package rpc provides JSON-RPC 2.0 types for the Intcode session API.
package rpc

import (
	"encoding/json"
	"time"
)

// JSON-RPC 2.0 constants.
const (
	JSONRPCVersion = "2.0"
)

// Request represents a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response represents a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

// RPCError represents a JSON-RPC 2.0 error.
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Encoding of an image passed as a string.
type Encoding string

const (
	EncodingText       Encoding = "text"
	EncodingBase64     Encoding = "base64"
	EncodingBase64Zstd Encoding = "base64+zstd"
)

// ImageRef selects an image: a stored one by hash or name, or an inline
// image given as cells or as encoded data. Exactly one must be set.
type ImageRef struct {
	Hash     string   `json:"hash,omitempty"`
	Name     string   `json:"name,omitempty"`
	Image    []int64  `json:"image,omitempty"`
	Data     string   `json:"data,omitempty"`
	Encoding Encoding `json:"encoding,omitempty"`
}

// ImportImageParams are the params of importImage.
type ImportImageParams struct {
	Name     string   `json:"name"`
	Image    []int64  `json:"image,omitempty"`
	Data     string   `json:"data,omitempty"`
	Encoding Encoding `json:"encoding,omitempty"`
}

// ImportImageResult is returned by importImage.
type ImportImageResult struct {
	Hash string `json:"hash"`
	Size int    `json:"size"`
}

// ImageInfo describes a stored image.
type ImageInfo struct {
	Hash    string    `json:"hash"`
	Names   []string  `json:"names"`
	Size    int       `json:"size"`
	AddedAt time.Time `json:"addedAt"`
}

// SessionParams identify a session.
type SessionParams struct {
	Session string `json:"session"`
}

// CreateSessionResult is returned by createSession.
type CreateSessionResult struct {
	Session string `json:"session"`
	Hash    string `json:"hash"`
}

// PushInputParams are the params of pushInput.
type PushInputParams struct {
	Session string  `json:"session"`
	Values  []int64 `json:"values"`
}

// PushInputResult reports the input queue length after a push.
type PushInputResult struct {
	Pending int `json:"pending"`
}

// RunParams are the params of run.
type RunParams struct {
	Session string `json:"session"`
	Keep    bool   `json:"keep,omitempty"`
}

// RunResult is returned by run. Pending counts outputs left queued.
type RunResult struct {
	Status  string  `json:"status"`
	Outputs []int64 `json:"outputs"`
	Pending int     `json:"pending"`
	Steps   uint64  `json:"steps"`
}

// PopOutputResult is returned by popOutput. OK is false when the output
// queue was empty.
type PopOutputResult struct {
	Value int64 `json:"value"`
	OK    bool  `json:"ok"`
}

// SessionStatus is returned by sessionStatus.
type SessionStatus struct {
	Session       string    `json:"session"`
	Hash          string    `json:"hash"`
	State         string    `json:"state"`
	IP            int64     `json:"ip"`
	RelativeBase  int64     `json:"relativeBase"`
	Steps         uint64    `json:"steps"`
	PendingInput  int       `json:"pendingInput"`
	PendingOutput int       `json:"pendingOutput"`
	CreatedAt     time.Time `json:"createdAt"`
	Error         string    `json:"error,omitempty"`
}

// ExecuteParams are the params of execute.
type ExecuteParams struct {
	ImageRef
	Inputs []int64 `json:"inputs"`
}

// ExecuteResult is returned by execute.
type ExecuteResult struct {
	Status  string  `json:"status"`
	Outputs []int64 `json:"outputs"`
	Steps   uint64  `json:"steps"`
	Cached  bool    `json:"cached"`
}

// FaultInfo is attached to MachineFault errors.
type FaultInfo struct {
	IP      int64   `json:"ip"`
	Word    int64   `json:"word"`
	Outputs []int64 `json:"outputs,omitempty"`
}

// VersionInfo is returned by getVersion.
type VersionInfo struct {
	Version  string `json:"version"`
	Sessions int    `json:"sessions"`
}

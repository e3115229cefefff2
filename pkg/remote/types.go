package remote

import "github.com/fortiblox/intcode/pkg/intcode"

// ExecuteRequest runs an image on a fixed input sequence. Either ImageHash
// (base58, a stored image) or Image (inline cells) must be set.
type ExecuteRequest struct {
	ImageHash string  `json:"imageHash,omitempty"`
	Image     []int64 `json:"image,omitempty"`
	Inputs    []int64 `json:"inputs,omitempty"`
}

// ExecuteResponse is the transcript of a run.
type ExecuteResponse struct {
	Outputs []int64        `json:"outputs"`
	Status  intcode.Status `json:"status"`
	Steps   uint64         `json:"steps"`
	Cached  bool           `json:"cached"`
}

// ImportRequest stores an image under a name.
type ImportRequest struct {
	Name  string  `json:"name"`
	Image []int64 `json:"image"`
}

// ImportResponse carries the stored image's hash.
type ImportResponse struct {
	Hash string `json:"hash"`
}

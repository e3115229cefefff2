package rpc

import (
	"bytes"
	"encoding/base64"
	"fmt"

	"github.com/fortiblox/intcode/pkg/loader"
)

// EncodeImage encodes an image as a string in the given encoding.
func EncodeImage(image []int64, encoding Encoding) (string, error) {
	switch encoding {
	case EncodingText, "":
		return loader.Format(image), nil

	case EncodingBase64:
		return base64.StdEncoding.EncodeToString([]byte(loader.Format(image))), nil

	case EncodingBase64Zstd:
		var buf bytes.Buffer
		if err := loader.WriteCompressed(&buf, image); err != nil {
			return "", fmt.Errorf("zstd compression failed: %w", err)
		}
		return base64.StdEncoding.EncodeToString(buf.Bytes()), nil

	default:
		return "", fmt.Errorf("unknown encoding %q", encoding)
	}
}

// DecodeImage decodes an image string. Base64 payloads may hold plain or
// zstd-compressed text; compression is detected from the frame magic.
func DecodeImage(data string, encoding Encoding) ([]int64, error) {
	switch encoding {
	case EncodingText, "":
		return loader.ParseString(data)

	case EncodingBase64, EncodingBase64Zstd:
		raw, err := base64.StdEncoding.DecodeString(data)
		if err != nil {
			return nil, fmt.Errorf("base64 decode failed: %w", err)
		}
		return loader.Parse(bytes.NewReader(raw))

	default:
		return nil, fmt.Errorf("unknown encoding %q", encoding)
	}
}

// inlineImage returns the image carried directly in a request, if any.
func inlineImage(cells []int64, data string, encoding Encoding) ([]int64, bool, error) {
	switch {
	case len(cells) > 0 && data != "":
		return nil, true, fmt.Errorf("image and data are mutually exclusive")
	case len(cells) > 0:
		return cells, true, nil
	case data != "":
		image, err := DecodeImage(data, encoding)
		return image, true, err
	default:
		return nil, false, nil
	}
}

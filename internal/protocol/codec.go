package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// EncodeRequest serializes a Request to JSON and writes it to w.
// Returns an error if marshaling or writing fails.
func EncodeRequest(w io.Writer, req *Request) error {
	if req.Protocol != Version {
		return fmt.Errorf("unsupported protocol version: %d", req.Protocol)
	}

	encoder := json.NewEncoder(w)
	if err := encoder.Encode(req); err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	return nil
}

// DecodeResponse reads and deserializes a Response from JSON in r.
// Returns an error if reading or unmarshaling fails, or if the response is invalid.
func DecodeResponse(r io.Reader) (*Response, error) {
	var resp Response

	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields() // Strict parsing

	if err := decoder.Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if err := validateResponse(&resp); err != nil {
		return nil, err
	}

	return &resp, nil
}

// DecodeResponseLenient is like DecodeResponse but captures any JSON on stdout.
// Used when debugging protocol errors - returns raw bytes if strict decode fails.
func DecodeResponseLenient(r io.Reader) (*Response, []byte, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response: %w", err)
	}

	resp, err := DecodeResponse(bytes.NewReader(data))
	if err == nil {
		return resp, data, nil
	}

	// Fall back to a tolerant decode so a handler adding fields does not
	// break dispatch outright.
	var lenient Response
	if uerr := json.Unmarshal(data, &lenient); uerr != nil {
		return nil, data, err
	}
	if verr := validateResponse(&lenient); verr != nil {
		return nil, data, verr
	}

	return &lenient, data, nil
}

func validateResponse(resp *Response) error {
	switch resp.Status {
	case StatusOK, StatusDeclined:
	case StatusError:
		if resp.Error == "" {
			return fmt.Errorf("response has status=error but no error message")
		}
	case "":
		return fmt.Errorf("response missing required field: status")
	default:
		return fmt.Errorf("invalid status value: %q (must be %q, %q or %q)",
			resp.Status, StatusOK, StatusDeclined, StatusError)
	}
	return nil
}

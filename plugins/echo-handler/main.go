// echo-handler is a reference handler subprocess. It echoes request
// parameters back through its logs and demonstrates the three response
// statuses: params.mode=decline passes on the request, params.mode=fail
// reports a fault, anything else handles it.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/mattjoyce/switchboard/internal/protocol"
)

func main() {
	resp := handle(os.Stdin)
	_ = json.NewEncoder(os.Stdout).Encode(resp)
}

func handle(stdin io.Reader) protocol.Response {
	var req protocol.Request
	if err := json.NewDecoder(stdin).Decode(&req); err != nil {
		return protocol.Response{
			Status: protocol.StatusError,
			Error:  fmt.Sprintf("invalid request JSON: %v", err),
		}
	}

	if req.Protocol != protocol.Version {
		return protocol.Response{
			Status: protocol.StatusError,
			Error:  fmt.Sprintf("unsupported protocol version %d", req.Protocol),
		}
	}

	switch mode(req.Params) {
	case "decline":
		return protocol.Response{
			Status: protocol.StatusDeclined,
			Logs: []protocol.LogEntry{
				{Level: "info", Message: "echo declining by request"},
			},
		}
	case "fail":
		return protocol.Response{
			Status: protocol.StatusError,
			Error:  "echo failing by request",
		}
	}

	logs := []protocol.LogEntry{
		{Level: "info", Message: fmt.Sprintf("echo handling %s request %s", req.Capability, req.RequestID)},
	}
	for key, value := range req.Params {
		logs = append(logs, protocol.LogEntry{
			Level:   "info",
			Message: fmt.Sprintf("param %s=%v", key, value),
		})
	}

	return protocol.Response{
		Status: protocol.StatusOK,
		Logs:   logs,
	}
}

func mode(params map[string]any) string {
	if params == nil {
		return ""
	}
	if v, ok := params["mode"].(string); ok {
		return v
	}
	return ""
}

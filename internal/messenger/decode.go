package messenger

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"

	"github.com/scanmark/scanmark/internal/proto"
)

// decodeError turns a non-2xx response into the protocol error its body
// carries. This is the only place response statuses are interpreted;
// callers branch on proto.KindOf.
func decodeError(resp *http.Response) error {
	if resp.StatusCode < 300 {
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return classifyTransportErr(err)
	}

	var pe proto.Error
	if err := json.Unmarshal(body, &pe); err == nil && pe.Kind != "" {
		return &pe
	}
	return proto.Errf(proto.Internal, "server returned %d: %s", resp.StatusCode, body)
}

// classifyTransportErr maps a transport failure onto the taxonomy's
// client-side kinds. Timeouts and everything else split so callers can
// tell "maybe it landed" from "it never left".
func classifyTransportErr(err error) error {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &proto.Error{Kind: proto.NetworkTimeout, Msg: err.Error()}
	}
	return &proto.Error{Kind: proto.ConnectionError, Msg: err.Error()}
}

package extension

import (
	"net/http"

	"github.com/ideamans/cmsgate/pkg/dispatch"
)

const (
	PingPath    = "/api/ext/ping"
	RuntimePath = "/api/ext/runtime"
)

// RuntimeInfo is the public description of a running gateway.
type RuntimeInfo struct {
	Mode     string `json:"mode"`
	Version  string `json:"version"`
	Upstream string `json:"upstream"`
}

// RegisterBuiltins adds the ping and runtime endpoints. info must not carry
// anything secret; Upstream is an origin only.
func RegisterBuiltins(reg *Registry, info RuntimeInfo) {
	reg.Register(http.MethodGet, PingPath, func(*http.Request) (*dispatch.Response, error) {
		return JSON(http.StatusOK, map[string]string{"status": "ok"}), nil
	})
	reg.Register(http.MethodGet, RuntimePath, func(*http.Request) (*dispatch.Response, error) {
		return JSON(http.StatusOK, info), nil
	})
}

package handler

import (
	"net/http"
	"reflect"
	"strings"

	"github.com/go-faster/jx"
	"github.com/go-playground/validator/v10"

	"github.com/xenking/ship-quote/internal/domain/device"
	"github.com/xenking/ship-quote/internal/domain/shipment"
)

// maxBodySize bounds request bodies read by the handlers.
const maxBodySize = 1 << 16

// Handler serves the shipping API, delegating business logic to the
// shipment service and the device repository.
type Handler struct {
	devices   device.Repository
	shipments *shipment.Service
	validate  *validator.Validate
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(devices device.Repository, shipments *shipment.Service) *Handler {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return fld.Name
		}
		return name
	})

	return &Handler{
		devices:   devices,
		shipments: shipments,
		validate:  v,
	}
}

// Register mounts the API routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /ship", h.Ship)
	mux.HandleFunc("GET /devices", h.ListDevices)
}

func writeJSON(w http.ResponseWriter, status int, e *jx.Encoder) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

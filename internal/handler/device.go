package handler

import (
	"net/http"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/ship-quote/internal/domain/device"
)

// ListDevices returns every device in the catalog with its discount tiers.
func (h *Handler) ListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := h.devices.List(r.Context())

	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	if err != nil {
		zctx.From(r.Context()).Error("List devices failed", zap.Error(err))

		e.ObjStart()
		e.FieldStart("error")
		e.Str("Failed to fetch devices")
		e.FieldStart("details")
		e.Str(err.Error())
		e.ObjEnd()
		writeJSON(w, http.StatusInternalServerError, e)
		return
	}

	e.ArrStart()
	for i := range devices {
		encodeDevice(e, &devices[i])
	}
	e.ArrEnd()
	writeJSON(w, http.StatusOK, e)
}

func encodeDevice(e *jx.Encoder, d *device.Device) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(d.ID)
	e.FieldStart("name")
	e.Str(d.Name)
	e.FieldStart("price")
	e.Str(d.Price.StringFixed(2))
	e.FieldStart("kilograms")
	e.Str(d.Kilograms.String())
	e.FieldStart("discounts")
	e.ArrStart()
	for _, t := range d.Discounts {
		e.ObjStart()
		e.FieldStart("units")
		e.Int(t.Units)
		e.FieldStart("rate")
		e.Str(t.Rate.String())
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()
}

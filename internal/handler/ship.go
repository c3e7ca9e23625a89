package handler

import (
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/xenking/ship-quote/internal/domain/shipment"
	"github.com/xenking/ship-quote/internal/geo"
)

const missingFieldsMessage = "Missing required fields: deviceId, quantity, lat, lng are required"

// shipRequest is the POST /ship body. Pointer fields distinguish an absent
// value from zero, so a coordinate of 0 is accepted.
type shipRequest struct {
	DeviceID  *int64   `json:"deviceId" validate:"required"`
	Quantity  *int64   `json:"quantity" validate:"required,gt=0,lte=2147483647"`
	Lat       *float64 `json:"lat" validate:"required"`
	Lng       *float64 `json:"lng" validate:"required"`
	SaveOrder bool     `json:"saveOrder"`
}

// Ship quotes a shipment and, when saveOrder is set, commits it as an order.
func (h *Handler) Ship(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		writeShipError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	req, err := decodeShipRequest(body)
	if err != nil {
		writeShipError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeShipError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	result, err := h.shipments.Quote(ctx, shipment.Request{
		DeviceID:    *req.DeviceID,
		Quantity:    int(*req.Quantity),
		Destination: geo.Point{Lat: *req.Lat, Lng: *req.Lng},
		Commit:      req.SaveOrder,
	})
	if err != nil {
		status, msg := mapShipError(err)
		if status == http.StatusInternalServerError {
			zctx.From(ctx).Error("Ship failed", zap.Error(err))
		}
		writeShipError(w, status, msg)
		return
	}

	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.ObjStart()
	e.FieldStart("isValid")
	e.Bool(true)
	e.FieldStart("order")
	encodeOrder(e, result)
	e.ObjEnd()

	writeJSON(w, http.StatusOK, e)
}

// shipErrors maps domain errors to the status and message sent to clients.
var shipErrors = []struct {
	target  error
	status  int
	message string
}{
	{shipment.ErrInvalidQuantity, http.StatusBadRequest, "quantity must be greater than 0"},
	{shipment.ErrInvalidDestination, http.StatusBadRequest, "lat and lng must be finite numbers"},
	{shipment.ErrDeviceNotFound, http.StatusBadRequest, "Device not found"},
	{shipment.ErrShippingCostExceeded, http.StatusBadRequest, "Shipping cost exceeds 15% of the total price"},
	{shipment.ErrInsufficientStock, http.StatusBadRequest, "Not enough stock across warehouses"},
	{shipment.ErrTransactionConflict, http.StatusConflict, "stock changed concurrently, order not committed"},
}

// mapShipError converts domain errors to an HTTP status and client message.
func mapShipError(err error) (int, string) {
	for _, e := range shipErrors {
		if errors.Is(err, e.target) {
			return e.status, e.message
		}
	}
	return http.StatusInternalServerError, "internal error"
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return missingFieldsMessage
	}
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			return missingFieldsMessage
		}
	}
	fe := verrs[0]
	if fe.Tag() == "lte" {
		return fe.Field() + " must be at most " + fe.Param()
	}
	return fe.Field() + " must be greater than " + fe.Param()
}

func writeShipError(w http.ResponseWriter, status int, msg string) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.ObjStart()
	e.FieldStart("isValid")
	e.Bool(false)
	e.FieldStart("error")
	e.Str(msg)
	e.ObjEnd()

	writeJSON(w, status, e)
}

func decodeShipRequest(data []byte) (shipRequest, error) {
	var req shipRequest
	err := jx.DecodeBytes(data).ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "deviceId":
			req.DeviceID, err = decodeInt(d)
		case "quantity":
			req.Quantity, err = decodeInt(d)
		case "lat":
			req.Lat, err = decodeFloat(d)
		case "lng":
			req.Lng, err = decodeFloat(d)
		case "saveOrder":
			req.SaveOrder, err = decodeFlag(d)
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "decode %s", key)
		}
		return nil
	})
	return req, err
}

// decodeInt accepts a JSON number or a numeric string.
func decodeInt(d *jx.Decoder) (*int64, error) {
	switch d.Next() {
	case jx.Null:
		return nil, d.Null()
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return nil, err
		}
		v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return nil, err
		}
		return &v, nil
	default:
		v, err := d.Int64()
		if err != nil {
			return nil, err
		}
		return &v, nil
	}
}

// decodeFloat accepts a JSON number or a numeric string.
func decodeFloat(d *jx.Decoder) (*float64, error) {
	switch d.Next() {
	case jx.Null:
		return nil, d.Null()
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return nil, err
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil, err
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, errors.Errorf("%q is not a finite number", s)
		}
		return &v, nil
	default:
		v, err := d.Float64()
		if err != nil {
			return nil, err
		}
		return &v, nil
	}
}

// decodeFlag accepts true or the string "true"; anything else is false.
func decodeFlag(d *jx.Decoder) (bool, error) {
	switch d.Next() {
	case jx.Bool:
		return d.Bool()
	case jx.String:
		s, err := d.Str()
		return s == "true", err
	default:
		return false, d.Skip()
	}
}

func encodeOrder(e *jx.Encoder, result *shipment.Result) {
	q := result.Quote

	e.ObjStart()
	if result.Order != nil {
		e.FieldStart("id")
		e.Str(result.Order.ID)
	}
	e.FieldStart("deviceId")
	e.Int64(q.DeviceID)
	e.FieldStart("quantity")
	e.Int(q.Quantity)
	e.FieldStart("lat")
	e.Float64(q.Destination.Lat)
	e.FieldStart("lng")
	e.Float64(q.Destination.Lng)
	e.FieldStart("totalPrice")
	e.Str(q.TotalPrice.StringFixed(2))
	e.FieldStart("shippingCost")
	e.Str(q.ShippingCost.StringFixed(2))
	e.FieldStart("discount")
	e.Str(q.Discount.StringFixed(2))
	e.FieldStart("shipments")
	e.ArrStart()
	for _, l := range q.Lines {
		e.ObjStart()
		e.FieldStart("warehouseId")
		e.Int64(l.WarehouseID)
		e.FieldStart("units")
		e.Int(l.Units)
		e.FieldStart("cost")
		e.Str(l.Cost.StringFixed(2))
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()
}

package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormState_Helpers(t *testing.T) {
	state := &FormState{
		Values: map[string]interface{}{
			"int64":   int64(4),
			"int":     4,
			"float":   4.0,
			"numeric": " 4 ",
			"string":  " hello ",
			"date":    "2031-05-02",
			"time":    "07:45",
			"bad":     "not a date",
		},
	}

	t.Run("NilValues", func(t *testing.T) {
		empty := &FormState{}
		assert.Equal(t, int64(0), empty.GetInt64("any"))
		assert.Equal(t, "", empty.GetString("any"))
		assert.True(t, empty.GetTime("date", "time").IsZero())
	})

	t.Run("GetInt64", func(t *testing.T) {
		assert.Equal(t, int64(4), state.GetInt64("int64"))
		assert.Equal(t, int64(4), state.GetInt64("int"))
		assert.Equal(t, int64(4), state.GetInt64("float"))
		assert.Equal(t, int64(4), state.GetInt64("numeric"))
		assert.Equal(t, int64(0), state.GetInt64("string"))
		assert.Equal(t, int64(0), state.GetInt64("missing"))
	})

	t.Run("GetString", func(t *testing.T) {
		assert.Equal(t, "hello", state.GetString("string"))
		assert.Equal(t, "", state.GetString("int"))
	})

	t.Run("GetTime", func(t *testing.T) {
		tm := state.GetTime("date", "time")
		assert.Equal(t, 2031, tm.Year())
		assert.Equal(t, 7, tm.Hour())
		assert.Equal(t, 45, tm.Minute())

		assert.Equal(t, 0, state.GetTime("date", "missing").Hour())
		assert.True(t, state.GetTime("bad", "time").IsZero())
	})
}

func TestFormState_Completed(t *testing.T) {
	state := &FormState{}
	state.MarkCompleted(2)
	state.MarkCompleted(0)
	state.MarkCompleted(2)

	assert.Equal(t, []int{0, 2}, state.Completed)
	assert.True(t, state.IsCompleted(0))
	assert.False(t, state.IsCompleted(1))
}

func TestFormState_BookingRequest(t *testing.T) {
	state := &FormState{Values: map[string]interface{}{
		"service_type":  "corporate",
		"departure":     "10 rue de Rivoli, Paris",
		"arrival":       "La Défense",
		"passengers":    "2",
		"vehicle_class": "first",
		"flight_number": "af1234",
		"first_name":    "Camille",
		"last_name":     "Martin",
		"company":       "ACME",
	}}

	req := state.BookingRequest()
	assert.Equal(t, ServiceCorporate, req.ServiceType)
	assert.Equal(t, int64(2), req.Passengers)
	assert.Equal(t, "AF1234", req.FlightNumber)
	assert.Equal(t, "Camille Martin", req.Contact.FullName())

	trip := req.Trip()
	assert.Equal(t, ModeTransfer, trip.Mode)
	assert.Equal(t, "first", trip.VehicleClass)
}

func TestServiceType(t *testing.T) {
	assert.Equal(t, ModeDisposition, ServiceDisposition.Mode())
	assert.Equal(t, ModeTransfer, ServiceCorporate.Mode())
	assert.Equal(t, ModeTransfer, ServiceTransfer.Mode())
	assert.True(t, ServiceCorporate.Valid())
	assert.False(t, ServiceType("helicopter").Valid())
}

func TestDispatchTask_Delivered(t *testing.T) {
	task := &DispatchTask{}
	task.MarkDelivered("telegram")
	task.MarkDelivered("telegram")

	assert.Len(t, task.Delivered, 1)
	assert.True(t, task.IsDelivered("telegram"))
	assert.False(t, task.IsDelivered("sheets"))
}

func TestContact_FullName(t *testing.T) {
	assert.Equal(t, "Jean", Contact{Name: " Jean "}.FullName())
	assert.Equal(t, "A B", Contact{FirstName: "A", LastName: "B", Name: "ignored"}.FullName())
}

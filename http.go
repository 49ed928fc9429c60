package shiftkit

import (
	"encoding/json"
	"math/big"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/pkg/errors"

	"shiftkit/drivers"
)

type RegisterStatus struct {
	Name     string `json:"name"`
	Driver   string `json:"driver"`
	Capacity int    `json:"capacity"`
	Value    string `json:"value"`
}

type WriteRequest struct {
	Value string `json:"value"`
}

func (sk *ShiftKit) registerStatus(reg *Register) RegisterStatus {
	return RegisterStatus{
		Name:     reg.Name,
		Driver:   reg.DriverName,
		Capacity: reg.Capacity(),
		Value:    reg.Value().String(),
	}
}

func (sk *ShiftKit) handleStatus(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	status := []RegisterStatus{}
	for _, reg := range sk.Registers {
		status = append(status, sk.registerStatus(reg))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

func (sk *ShiftKit) handleGetRegister(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	reg := sk.findRegister(ps.ByName("name"))
	if reg == nil {
		http.Error(w, "no such register", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sk.registerStatus(reg))
}

func (sk *ShiftKit) handleWriteRegister(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	reg := sk.findRegister(ps.ByName("name"))
	if reg == nil {
		http.Error(w, "no such register", http.StatusNotFound)
		return
	}

	var req WriteRequest
	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		http.Error(w, errors.Wrap(err, "failed to decode body").Error(), http.StatusBadRequest)
		return
	}

	value, ok := new(big.Int).SetString(req.Value, 10)
	if !ok {
		http.Error(w, "value is not a decimal integer", http.StatusBadRequest)
		return
	}

	err = reg.Write(value)
	if errors.Is(err, drivers.ErrInvalidArgument) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sk.registerStatus(reg))
}

func (sk *ShiftKit) handleClearRegister(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	reg := sk.findRegister(ps.ByName("name"))
	if reg == nil {
		http.Error(w, "no such register", http.StatusNotFound)
		return
	}

	err := reg.Clear()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sk.registerStatus(reg))
}

// HttpRouter builds the http api: register status, writes and clears.
func (sk *ShiftKit) HttpRouter() *httprouter.Router {
	router := httprouter.New()

	router.GET("/status", sk.handleStatus)
	router.GET("/register/:name", sk.handleGetRegister)
	router.POST("/register/:name/value", sk.handleWriteRegister)
	router.POST("/register/:name/clear", sk.handleClearRegister)

	return router
}

// StartHTTP blocks serving the http api on the configured address.
func (sk *ShiftKit) StartHTTP() error {
	if len(sk.HttpAddress) == 0 {
		return errors.New("http address not set")
	}

	return http.ListenAndServe(sk.HttpAddress, sk.HttpRouter())
}

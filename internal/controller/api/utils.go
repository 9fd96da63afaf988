package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/clearco/calendar-connector/internal/platform/logger"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

const timestampFormat = time.RFC3339

type errorResponse struct {
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail"`
}

func writeJSONResponse(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(status)

	if payload == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, "Unable to encode payload!", http.StatusUnprocessableEntity)
		logger.Log.WithFields(logrus.Fields{"error": err}).Error("Unable to encode payload!")
	}
}

func writeInvalidInputResponse(w http.ResponseWriter, err error) {
	response := errorResponse{Title: "Unable to process input",
		Status: http.StatusBadRequest,
		Detail: err.Error()}
	writeJSONResponse(w, response.Status, response)
}

func writeNotFoundResponse(w http.ResponseWriter) {
	response := errorResponse{Title: "Not found",
		Status: http.StatusNotFound,
		Detail: "connection does not exist"}
	writeJSONResponse(w, response.Status, response)
}

func writeInternalErrorResponse(w http.ResponseWriter, log logrus.FieldLogger, err error) {
	log.WithFields(logrus.Fields{"error": err}).Error("Request failed")
	response := errorResponse{Title: "Internal server error",
		Status: http.StatusInternalServerError,
		Detail: "the request could not be processed"}
	writeJSONResponse(w, response.Status, response)
}

func decodeJSON(body io.ReadCloser, data interface{}) error {
	dec := json.NewDecoder(body)
	if err := dec.Decode(&data); err != nil {
		return errors.New("Request body includes malformed json")
	}

	v := validator.New()
	if err := v.Struct(data); err != nil {
		for _, e := range err.(validator.ValidationErrors) {
			logger.Log.Debug(e)
		}
		return errors.New("Request body is missing required fields")
	} else if dec.More() {
		return errors.New("Request body must only contain one json object")
	}

	return nil
}

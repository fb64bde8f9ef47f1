// Package httputil provides HTTP handler utilities for consistent error
// handling, response writing, and request parsing.
package httputil

import (
	"encoding/json"
	"html/template"
	"net/http"
)

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteError writes a JSON error response with the given status code
func WriteError(w http.ResponseWriter, status int, err error) {
	WriteErrorMessage(w, status, err.Error())
}

// WriteErrorMessage writes a JSON error response with a custom message
func WriteErrorMessage(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// WriteInternalError writes an internal server error response (500)
func WriteInternalError(w http.ResponseWriter, err error) {
	WriteError(w, http.StatusInternalServerError, err)
}

// WriteBadRequest writes a bad request error (400)
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusBadRequest, message)
}

// WriteHTML writes an HTML response with the given status code
func WriteHTML(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(body))
}

// WriteXML writes an XML document response
func WriteXML(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	w.Write(body)
}

// autoPostForm is the self-submitting form used to deliver a payload across
// a browser redirect leg. Values are HTML-escaped by html/template.
var autoPostForm = template.Must(template.New("autopost").Parse(`<!DOCTYPE html>
<html>
<body onload="document.forms[0].submit()">
<noscript><p>JavaScript is disabled. Click the button below to continue.</p></noscript>
<form method="post" action="{{.Action}}" autocomplete="off">
{{- range $name, $value := .Fields}}
<input type="hidden" name="{{$name}}" value="{{$value}}" />
{{- end}}
<noscript><input type="submit" value="Continue" /></noscript>
</form>
</body>
</html>
`))

// WriteAutoPostForm writes an auto-submitting HTML form that POSTs the given
// hidden fields to action. Used for the SAML POST binding leg.
func WriteAutoPostForm(w http.ResponseWriter, action string, fields map[string]string) error {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	return autoPostForm.Execute(w, struct {
		Action string
		Fields map[string]string
	}{Action: action, Fields: fields})
}

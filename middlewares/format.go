package middlewares

import (
	"net/http"

	"github.com/sirupsen/logrus"
)

// HttpError logs err with the request and writes a plain-text error response.
func HttpError(log logrus.FieldLogger, w http.ResponseWriter, r *http.Request, message string, status int, err error) {
	log.WithError(err).WithFields(logrus.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
		"status": status,
	}).Error(message)
	http.Error(w, message, status)
}

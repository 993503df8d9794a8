package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"task-manager/config"
	"task-manager/logging"
	"task-manager/middleware"
	"task-manager/models"
	"task-manager/notify"
	"task-manager/ratelimit"
	"task-manager/sessions"
	"task-manager/storage"
	"task-manager/utils"
)

const maxUploadSize = 10 << 20

// App carries the services every controller needs.
type App struct {
	Config   config.Config
	Secret   string
	Sessions *sessions.Store
	Notifier notify.Notifier
	Storage  storage.Storage
	Limiter  ratelimit.Limiter
	Location *time.Location
	Now      func() time.Time
}

func (a *App) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

func (a *App) location() *time.Location {
	if a.Location != nil {
		return a.Location
	}
	return time.UTC
}

// today is the current date in the configured time zone.
func (a *App) today() string {
	return a.now().In(a.location()).Format(models.DateLayout)
}

func (a *App) fileURL(key string) string {
	if key == "" || a.Storage == nil {
		return ""
	}
	return a.Storage.URL(key)
}

// readParams reads a JSON object, a multipart form or a urlencoded form into
// url.Values. JSON arrays become repeated values.
func readParams(w http.ResponseWriter, r *http.Request) (url.Values, error) {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch ct {
	case "application/json":
		utils.LimitBody(w, r)
		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			if errors.Is(err, io.EOF) {
				return url.Values{}, nil
			}
			return nil, err
		}
		values := url.Values{}
		for k, v := range body {
			switch tv := v.(type) {
			case []interface{}:
				for _, item := range tv {
					values.Add(k, scalar(item))
				}
			default:
				values.Set(k, scalar(tv))
			}
		}
		return values, nil
	case "multipart/form-data":
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize+1<<20)
		if err := r.ParseMultipartForm(maxUploadSize); err != nil {
			return nil, err
		}
		return r.PostForm, nil
	default:
		utils.LimitBody(w, r)
		if err := r.ParseForm(); err != nil {
			return nil, err
		}
		return r.PostForm, nil
	}
}

func scalar(v interface{}) string {
	switch tv := v.(type) {
	case nil:
		return ""
	case string:
		return tv
	case float64:
		return strconv.FormatFloat(tv, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(tv)
	default:
		b, _ := json.Marshal(tv)
		return string(b)
	}
}

// intList parses every value of key as an id, skipping blanks and junk.
func intList(values url.Values, keys ...string) []int {
	var ids []int
	for _, key := range keys {
		for _, raw := range values[key] {
			for _, part := range strings.Split(raw, ",") {
				if id, err := utils.StrToInt(part); err == nil {
					ids = append(ids, id)
				}
			}
		}
		if len(ids) > 0 {
			break
		}
	}
	return ids
}

func pathID(r *http.Request, name string) (int, error) {
	return strconv.Atoi(mux.Vars(r)[name])
}

func currentUser(r *http.Request) models.User {
	u, _ := middleware.UserFromContext(r.Context())
	return u
}

func badRequest(w http.ResponseWriter, code, message string) {
	utils.RespondWithError(w, http.StatusBadRequest, models.Error{Message: message, Code: code})
}

func formError(w http.ResponseWriter, message string, err error) {
	utils.RespondWithError(w, http.StatusBadRequest, models.Error{
		Message: message,
		Code:    "invalid_form",
		Fields:  utils.FieldErrors(err),
	})
}

func notFound(w http.ResponseWriter, code, message string) {
	utils.RespondWithError(w, http.StatusNotFound, models.Error{Message: message, Code: code})
}

func forbidden(w http.ResponseWriter, message string) {
	utils.RespondWithError(w, http.StatusForbidden, models.Error{Message: message, Code: "permission_denied"})
}

func serverError(w http.ResponseWriter, event string, err error) {
	logging.Logger.Errorf("Event ID: %s, Description: %v", event, err)
	utils.RespondWithError(w, http.StatusInternalServerError, models.Error{Message: "Internal server error", Code: "server_error"})
}

// saveUpload stores the file posted under field, returning "" when none was sent.
func (a *App) saveUpload(ctx context.Context, r *http.Request, field, prefix string) (string, error) {
	if r.MultipartForm == nil {
		return "", nil
	}
	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	defer file.Close()
	if a.Storage == nil {
		return "", fmt.Errorf("no storage configured")
	}
	return a.Storage.Save(ctx, prefix, header.Filename, file)
}

func (a *App) discardUpload(ctx context.Context, key string) {
	if key == "" || a.Storage == nil {
		return
	}
	if err := a.Storage.Delete(ctx, key); err != nil {
		logging.Logger.Warnf("Event ID: UPLOAD_DELETE_FAILED, Description: %s: %v", key, err)
	}
}

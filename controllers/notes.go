package controllers

import (
	"database/sql"
	"net/http"

	"task-manager/logging"
	"task-manager/models"
	"task-manager/storage"
	"task-manager/store"
	"task-manager/utils"
)

type NotesController struct {
	*App
}

func (c NotesController) UploadNotes(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := currentUser(r)
		if _, err := readParams(w, r); err != nil {
			badRequest(w, "invalid_body", "Invalid request body.")
			return
		}
		key, err := c.saveUpload(r.Context(), r, "notes_file", storage.PrefixNotes)
		if err != nil {
			serverError(w, "NOTES_UPLOAD_FAILED", err)
			return
		}
		if key == "" {
			badRequest(w, "missing_file", "Please select a file to upload.")
			return
		}

		note := models.NotesUpload{UploadedByID: user.ID, File: key}
		if err := store.CreateNote(r.Context(), db, &note); err != nil {
			c.discardUpload(r.Context(), key)
			serverError(w, "NOTES_SAVE_FAILED", err)
			return
		}
		note.UploadedBy = user.FullName()
		if note.UploadedBy == "" {
			note.UploadedBy = user.Username
		}
		note.URL = c.fileURL(note.File)

		logging.Logger.Infof("Event ID: NOTES_UPLOADED, Description: note %d uploaded by %d", note.ID, user.ID)
		utils.ResponseJSONStatus(w, http.StatusCreated, map[string]interface{}{
			"success": true,
			"message": "Notes uploaded successfully.",
			"note":    note,
		})
	}
}

func (c NotesController) notes(r *http.Request, db *sql.DB) ([]models.NotesUpload, error) {
	notes, err := store.ListNotes(r.Context(), db)
	if err != nil {
		return nil, err
	}
	for i := range notes {
		notes[i].URL = c.fileURL(notes[i].File)
	}
	return notes, nil
}

func (c NotesController) ListNotes(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		notes, err := c.notes(r, db)
		if err != nil {
			serverError(w, "NOTES_LIST_FAILED", err)
			return
		}
		utils.ResponseJSON(w, map[string]interface{}{"notes": notes})
	}
}

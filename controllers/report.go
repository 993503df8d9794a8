package controllers

import (
	"bytes"
	"database/sql"
	"fmt"
	"net/http"

	"task-manager/logging"
	"task-manager/reports"
)

type ReportController struct {
	*App
}

// GenerateTaskReport streams the task report as a CSV (default) or XLSX
// attachment.
func (c ReportController) GenerateTaskReport(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		values, err := readParams(w, r)
		if err != nil {
			badRequest(w, "invalid_body", "Invalid request body.")
			return
		}
		reportType := values.Get("report_type")
		if reportType == "" {
			reportType = reports.TypeSummary
		}
		format := values.Get("format")
		if format != reports.FormatXLSX {
			format = reports.FormatCSV
		}

		rep, err := reports.Build(r.Context(), db, reportType, values.Get("date_range"), c.now(), c.location())
		if err != nil {
			serverError(w, "REPORT_BUILD_FAILED", err)
			return
		}

		var buf bytes.Buffer
		if format == reports.FormatXLSX {
			err = reports.WriteXLSX(&buf, rep.Rows)
		} else {
			err = reports.WriteCSV(&buf, rep.Rows)
		}
		if err != nil {
			serverError(w, "REPORT_WRITE_FAILED", err)
			return
		}

		logging.Logger.Infof("Event ID: REPORT_GENERATED, Description: %s/%s report by user %d", rep.Type, rep.Range, currentUser(r).ID)
		w.Header().Set("Content-Type", reports.ContentType(format))
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, rep.Filename(format)))
		w.WriteHeader(http.StatusOK)
		w.Write(buf.Bytes())
	}
}

package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/lakshan9910/studio-sub000/internal/domain"
)

func (a *API) handleListEmployees(w http.ResponseWriter, r *http.Request) {
	activeOnly := strings.EqualFold(strings.TrimSpace(r.URL.Query().Get("active")), "true")
	employees, err := a.service.ListEmployees(r.Context(), activeOnly)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"employees": employees})
}

func (a *API) handleCreateEmployee(w http.ResponseWriter, r *http.Request) {
	var req domain.EmployeeCreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	employee, err := a.service.CreateEmployee(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"employee": employee})
}

func (a *API) handleGetEmployee(w http.ResponseWriter, r *http.Request) {
	employee, err := a.service.GetEmployee(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"employee": employee})
}

func (a *API) handleUpdateEmployee(w http.ResponseWriter, r *http.Request) {
	var req domain.EmployeeUpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	employee, err := a.service.UpdateEmployee(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"employee": employee})
}

func (a *API) handleListLoans(w http.ResponseWriter, r *http.Request) {
	loans, err := a.service.ListLoans(r.Context(), r.URL.Query().Get("employee_id"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"loans": loans})
}

func (a *API) handleIssueLoan(w http.ResponseWriter, r *http.Request) {
	var req domain.LoanCreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	loan, err := a.service.IssueLoan(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"loan": loan})
}

func (a *API) handleListPayrollRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := a.service.ListPayrollRuns(r.Context(), parsePositiveLimit(r.URL.Query().Get("limit"), 50, 200))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (a *API) handleGeneratePayrollRun(w http.ResponseWriter, r *http.Request) {
	var req domain.PayrollRunRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	run, err := a.service.GeneratePayrollRun(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"run": run})
}

func (a *API) handleGetPayrollRun(w http.ResponseWriter, r *http.Request) {
	run, err := a.service.GetPayrollRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": run})
}

func (a *API) handleFinalizePayrollRun(w http.ResponseWriter, r *http.Request) {
	run, err := a.service.FinalizePayrollRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": run})
}

func (a *API) handlePayrollExport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	body, err := a.service.PayrollRunXLSX(r.Context(), id)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeFile(w, contentTypeXLSX, "payroll-"+id+".xlsx", body)
}

func (a *API) handlePayslip(w http.ResponseWriter, r *http.Request) {
	runID, employeeID := chi.URLParam(r, "id"), chi.URLParam(r, "employeeID")
	body, err := a.service.PayslipPDF(r.Context(), runID, employeeID)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeFile(w, contentTypePDF, "payslip-"+runID+"-"+employeeID+".pdf", body)
}
